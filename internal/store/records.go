package store

import (
	"encoding/binary"
	"time"

	"github.com/vmihailenco/msgpack/v5"

	"sealpost/internal/domain"
)

var (
	docsBucket = []byte("docs")
	metaBucket = []byte("meta")
	genKey     = []byte("generation")
)

// record is the on-disk form of a document.
type record struct {
	ID      string `msgpack:"id"`
	Type    string `msgpack:"type"`
	Rev     int64  `msgpack:"rev"`
	Sealed  []byte `msgpack:"sealed"`
	Dirty   bool   `msgpack:"dirty"`
	Deleted bool   `msgpack:"deleted"`
	Updated int64  `msgpack:"updated"`
}

func encodeRecord(r record) ([]byte, error) { return msgpack.Marshal(r) }

func decodeRecord(b []byte) (record, error) {
	var r record
	err := msgpack.Unmarshal(b, &r)
	return r, err
}

func (r record) document(content []byte) domain.Document {
	return domain.Document{
		ID:      r.ID,
		Type:    r.Type,
		Rev:     r.Rev,
		Content: content,
		Updated: time.Unix(0, r.Updated).UTC(),
	}
}

func encodeGeneration(gen int64) []byte {
	b := make([]byte, 8)
	binary.BigEndian.PutUint64(b, uint64(gen))
	return b
}

func decodeGeneration(b []byte) int64 {
	if len(b) != 8 {
		return 0
	}
	return int64(binary.BigEndian.Uint64(b))
}
