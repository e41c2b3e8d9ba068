package log

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"strings"
)

// Formatter renders a log entry into bytes.
type Formatter interface {
	Format(entry *Entry) ([]byte, error)
}

// Output receives formatted log entries.
type Output interface {
	Write(formatted []byte) error
	Close() error
}

// TextFormatter renders entries as "ts LEVEL message key=value ...".
type TextFormatter struct{}

// Format implements Formatter.
func (f *TextFormatter) Format(entry *Entry) ([]byte, error) {
	var b bytes.Buffer
	b.WriteString(entry.Timestamp.Format("2006-01-02T15:04:05.000Z07:00"))
	b.WriteByte(' ')
	b.WriteString(entry.Level.String())
	b.WriteByte(' ')
	b.WriteString(entry.Message)
	for _, fld := range entry.Fields {
		b.WriteByte(' ')
		b.WriteString(fld.Key)
		b.WriteByte('=')
		b.WriteString(formatValue(fld.Value))
	}
	b.WriteByte('\n')
	return b.Bytes(), nil
}

func formatValue(v interface{}) string {
	s := fmt.Sprintf("%v", v)
	if strings.ContainsAny(s, " \t\"") {
		return fmt.Sprintf("%q", s)
	}
	return s
}

// JSONFormatter renders entries as single-line JSON objects.
type JSONFormatter struct{}

// Format implements Formatter.
func (f *JSONFormatter) Format(entry *Entry) ([]byte, error) {
	obj := make(map[string]interface{}, len(entry.Fields)+3)
	obj["ts"] = entry.Timestamp.Format("2006-01-02T15:04:05.000Z07:00")
	obj["level"] = entry.Level.String()
	obj["msg"] = entry.Message
	for _, fld := range entry.Fields {
		obj[fld.Key] = fld.Value
	}
	b, err := json.Marshal(obj)
	if err != nil {
		return nil, err
	}
	return append(b, '\n'), nil
}

type consoleOutput struct{}

// NewConsoleOutput returns an Output writing to stderr.
func NewConsoleOutput() Output { return consoleOutput{} }

func (consoleOutput) Write(formatted []byte) error {
	_, err := os.Stderr.Write(formatted)
	return err
}

func (consoleOutput) Close() error { return nil }

type discardOutput struct{}

func (discardOutput) Write([]byte) error { return nil }
func (discardOutput) Close() error       { return nil }
