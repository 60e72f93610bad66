package mailstats

import (
	"fmt"
	"strconv"
	"strings"
)

// Family groups keys by the parameters they take.
type Family int

const (
	FamilyConnection Family = iota + 1
	FamilyMailer
)

const (
	connectionPrefix = "connection."
	mailerPrefix     = "mailer."
)

// Params returns the number of request parameters keys of the family take.
func (f Family) Params() int {
	switch f {
	case FamilyConnection:
		return 1
	case FamilyMailer:
		return 2
	default:
		return 0
	}
}

// FamilyOf returns the family of key by prefix, or 0 if it has none.
func FamilyOf(key string) Family {
	switch {
	case strings.HasPrefix(key, connectionPrefix):
		return FamilyConnection
	case strings.HasPrefix(key, mailerPrefix):
		return FamilyMailer
	default:
		return 0
	}
}

// accessor extracts one counter. index is ignored by connection keys.
type accessor func(rec *Record, index int) uint64

func mailer(field MailerField) accessor {
	return func(rec *Record, index int) uint64 {
		return rec.Mailer(field, index)
	}
}

var accessors = map[string]accessor{
	"connection.from":     func(rec *Record, _ int) uint64 { return rec.ConnectionsFrom },
	"connection.to":       func(rec *Record, _ int) uint64 { return rec.ConnectionsTo },
	"connection.rejected": func(rec *Record, _ int) uint64 { return rec.ConnectionsRejected },

	"mailer.msgs.from":        mailer(MessagesFrom),
	"mailer.kbytes.from":      mailer(KilobytesFrom),
	"mailer.msgs.to":          mailer(MessagesTo),
	"mailer.kbytes.to":        mailer(KilobytesTo),
	"mailer.msgs.rejected":    mailer(MessagesRejected),
	"mailer.msgs.discarded":   mailer(MessagesDiscarded),
	"mailer.msgs.quarantined": mailer(MessagesQuarantined),
}

// Keys lists the recognized metric keys in a stable order.
var Keys = []string{
	"connection.from",
	"connection.to",
	"connection.rejected",
	"mailer.msgs.from",
	"mailer.kbytes.from",
	"mailer.msgs.to",
	"mailer.kbytes.to",
	"mailer.msgs.rejected",
	"mailer.msgs.discarded",
	"mailer.msgs.quarantined",
}

// Resolver maps metric keys to counters of a statistics file. It holds no
// per-request state and is safe for concurrent use.
type Resolver struct {
	format Format
	fs     FileSystem
}

// NewResolver creates a Resolver that accepts files in format f.
func NewResolver(f Format) *Resolver {
	return &Resolver{format: f, fs: OSFileSystem{}}
}

// WithFileSystem returns a copy of r reading through fsys.
func (r *Resolver) WithFileSystem(fsys FileSystem) *Resolver {
	return &Resolver{format: r.format, fs: fsys}
}

// Format returns the accepted file format.
func (r *Resolver) Format() Format {
	return r.format
}

// Load reads, decodes and validates the statistics file at path.
func (r *Resolver) Load(path string) (Record, error) {
	data, err := readFile(r.fs, path)
	if err != nil {
		return Record{}, err
	}
	rec, err := r.format.Decode(data)
	if err != nil {
		return Record{}, newError(KindUnableToRead, ErrUnableToRead.Msg, err)
	}
	if err := r.format.Validate(&rec); err != nil {
		return Record{}, err
	}
	return rec, nil
}

// Resolve returns the counter named by key. params holds the statistics
// file path and, for mailer keys, the mailer slot index.
func (r *Resolver) Resolve(key string, params []string) (uint64, error) {
	family := FamilyOf(key)
	if family == 0 {
		return 0, newError(KindInvalidParameterCount, ErrInvalidParameterCount.Msg, nil)
	}
	if len(params) != family.Params() {
		return 0, newError(KindInvalidParameterCount,
			fmt.Sprintf("%s (expected %d)", ErrInvalidParameterCount.Msg, family.Params()), nil)
	}

	index := 0
	if family == FamilyMailer {
		var err error
		if index, err = ParseMailerIndex(params[1]); err != nil {
			return 0, err
		}
	}
	path := params[0]

	rec, err := r.Load(path)
	if err != nil {
		return 0, err
	}

	v, ok := rec.Value(key, index)
	if !ok {
		return 0, newError(KindUnknownKey, ErrUnknownKey.Msg, fmt.Errorf("%q", key))
	}
	return v, nil
}

// Value returns the counter named by key. index is ignored by connection
// keys and must be a valid slot for mailer keys.
func (r *Record) Value(key string, index int) (uint64, bool) {
	get, ok := accessors[key]
	if !ok {
		return 0, false
	}
	return get(r, index), true
}

// ParseMailerIndex parses a base-10 mailer slot index in [0, MaxMailers).
func ParseMailerIndex(s string) (int, error) {
	n, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return 0, newError(KindInvalidMailerIndex, ErrInvalidMailerIndex.Msg, err)
	}
	if n < 0 || n >= MaxMailers {
		return 0, newError(KindInvalidMailerIndex, ErrInvalidMailerIndex.Msg,
			fmt.Errorf("%d out of range [0, %d)", n, MaxMailers))
	}
	return int(n), nil
}
