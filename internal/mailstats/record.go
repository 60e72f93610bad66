// Package mailstats decodes sendmail's binary statistics file and resolves
// metric keys to individual counters in it.
package mailstats

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"time"
)

// MaxMailers is the number of mailer slots compiled into sendmail.
const MaxMailers = 25

// Default format constants for the statistics file.
const (
	DefaultMagic   int32 = 0x1936
	DefaultVersion int32 = 2
)

// MailerField selects one of the per-mailer counter arrays.
type MailerField int

const (
	MessagesFrom MailerField = iota
	KilobytesFrom
	MessagesTo
	KilobytesTo
	MessagesRejected
	MessagesDiscarded
	MessagesQuarantined

	numMailerFields
)

// Record is a decoded statistics file. Field order and widths follow
// sendmail's struct statistics on LP64 platforms.
type Record struct {
	Magic    int32
	Version  int32
	InitTime int64
	Size     int16
	_        [6]byte

	ConnectionsFrom     uint64
	ConnectionsTo       uint64
	ConnectionsRejected uint64

	Mailers [numMailerFields][MaxMailers]uint64
}

// RecordSize is the exact encoded size of a Record.
var RecordSize = binary.Size(Record{})

// Mailer returns the counter for field at slot index. The index must
// already be range-checked by the caller.
func (r *Record) Mailer(field MailerField, index int) uint64 {
	return r.Mailers[field][index]
}

// Initialized returns the time the producer initialized the file.
func (r *Record) Initialized() time.Time {
	return time.Unix(r.InitTime, 0)
}

// Format describes the one on-disk revision a decoder accepts.
type Format struct {
	Magic     int32
	Version   int32
	ByteOrder binary.ByteOrder
}

// DefaultFormat returns the format produced by the supported sendmail builds.
func DefaultFormat() Format {
	return Format{
		Magic:     DefaultMagic,
		Version:   DefaultVersion,
		ByteOrder: binary.LittleEndian,
	}
}

// Decode converts exactly RecordSize bytes into a Record. It does not
// validate the header; see Validate.
func (f Format) Decode(data []byte) (Record, error) {
	var rec Record
	if len(data) != RecordSize {
		return rec, fmt.Errorf("decoding statistics record: got %d bytes, want %d", len(data), RecordSize)
	}
	order := f.ByteOrder
	if order == nil {
		order = binary.LittleEndian
	}
	if err := binary.Read(bytes.NewReader(data), order, &rec); err != nil {
		return rec, fmt.Errorf("decoding statistics record: %w", err)
	}
	return rec, nil
}

// Encode writes rec in the format's byte order. Padding is zeroed.
func (f Format) Encode(rec Record) ([]byte, error) {
	order := f.ByteOrder
	if order == nil {
		order = binary.LittleEndian
	}
	var buf bytes.Buffer
	buf.Grow(RecordSize)
	if err := binary.Write(&buf, order, &rec); err != nil {
		return nil, fmt.Errorf("encoding statistics record: %w", err)
	}
	return buf.Bytes(), nil
}

// NewRecord returns an empty record with a header that f accepts.
func (f Format) NewRecord() Record {
	return Record{
		Magic:   f.Magic,
		Version: f.Version,
		Size:    int16(RecordSize),
	}
}
