package httpserver

import (
	"strings"
	"time"

	"github.com/google/cel-go/cel"

	"github.com/Kushchii/sse-service/internal/transaction"
)

// recordFilter wraps a compiled CEL program evaluated per record on a stream
// subscription. When disabled, Eval always returns true.
type recordFilter struct {
	prog    cel.Program
	enabled bool
}

func newRecordFilter(expr string) (recordFilter, error) {
	expr = strings.TrimSpace(expr)
	if expr == "" {
		return recordFilter{enabled: false}, nil
	}
	env, err := cel.NewEnv(
		cel.Variable("id", cel.StringType),
		cel.Variable("user_id", cel.StringType),
		cel.Variable("amount", cel.DoubleType),
		cel.Variable("currency", cel.StringType),
		cel.Variable("status", cel.StringType),
		cel.Variable("description", cel.StringType),
		cel.Variable("created_at_ms", cel.IntType),
		// Current time in ms for windowed filters
		cel.Variable("now_ms", cel.IntType),
	)
	if err != nil {
		return recordFilter{}, err
	}
	ast, iss := env.Parse(expr)
	if iss != nil && iss.Err() != nil {
		return recordFilter{}, iss.Err()
	}
	checked, iss2 := env.Check(ast)
	if iss2 != nil && iss2.Err() != nil {
		return recordFilter{}, iss2.Err()
	}
	prog, err := env.Program(checked)
	if err != nil {
		return recordFilter{}, err
	}
	return recordFilter{prog: prog, enabled: true}, nil
}

// Eval evaluates the compiled expression against a record. Evaluation errors
// drop the record rather than fail the stream.
func (f recordFilter) Eval(rec *transaction.Record) bool {
	if !f.enabled {
		return true
	}
	out, _, err := f.prog.Eval(map[string]any{
		"id":            rec.ID,
		"user_id":       rec.UserID,
		"amount":        rec.Amount,
		"currency":      rec.Currency,
		"status":        rec.Status,
		"description":   rec.Description,
		"created_at_ms": rec.CreatedAt.UnixMilli(),
		"now_ms":        time.Now().UnixMilli(),
	})
	if err != nil {
		return false
	}
	b, ok := out.Value().(bool)
	return ok && b
}
