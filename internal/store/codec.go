package store

import (
	"encoding/binary"
	"encoding/json"
	"errors"
	"hash/crc32"
	"time"

	"github.com/Kushchii/sse-service/internal/transaction"
)

// Persisted record framing:
// header (16 bytes: createdAt unix nanos be8 | seq be8) | JSON payload | crc32c(header|payload).
//
// The header duplicates the ordering fields so scans can stay cheap, and the
// checksum guards against torn or corrupted values.

var castagnoli = crc32.MakeTable(crc32.Castagnoli)

const frameHeaderLen = 16

func encodeRecord(rec *transaction.Record) ([]byte, error) {
	payload, err := json.Marshal(rec)
	if err != nil {
		return nil, err
	}
	out := make([]byte, frameHeaderLen, frameHeaderLen+len(payload)+4)
	binary.BigEndian.PutUint64(out[0:8], uint64(rec.CreatedAt.UnixNano()))
	binary.BigEndian.PutUint64(out[8:16], rec.Seq)
	out = append(out, payload...)

	crc := crc32.Update(0, castagnoli, out)
	var crcb [4]byte
	binary.BigEndian.PutUint32(crcb[:], crc)
	return append(out, crcb[:]...), nil
}

var errCorruptRecord = errors.New("corrupt record value")

func decodeRecord(b []byte) (*transaction.Record, error) {
	if len(b) < frameHeaderLen+4 {
		return nil, errCorruptRecord
	}
	body, tail := b[:len(b)-4], b[len(b)-4:]
	if crc32.Update(0, castagnoli, body) != binary.BigEndian.Uint32(tail) {
		return nil, errCorruptRecord
	}
	var rec transaction.Record
	if err := json.Unmarshal(body[frameHeaderLen:], &rec); err != nil {
		return nil, errCorruptRecord
	}
	rec.CreatedAt = time.Unix(0, int64(binary.BigEndian.Uint64(body[0:8]))).UTC()
	rec.Seq = binary.BigEndian.Uint64(body[8:16])
	return &rec, nil
}
