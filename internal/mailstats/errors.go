package mailstats

import "errors"

// Kind classifies a failed request.
type Kind int

const (
	KindNone Kind = iota
	KindInvalidParameterCount
	KindInvalidMailerIndex
	KindInvalidStatisticsFile
	KindUnableToOpen
	KindUnableToRead
	KindMagicMismatch
	KindVersionMismatch
	KindSizeMismatch
	KindUnknownKey
)

var kindNames = map[Kind]string{
	KindNone:                  "none",
	KindInvalidParameterCount: "invalid_parameter_count",
	KindInvalidMailerIndex:    "invalid_mailer_index",
	KindInvalidStatisticsFile: "invalid_statistics_file",
	KindUnableToOpen:          "unable_to_open",
	KindUnableToRead:          "unable_to_read",
	KindMagicMismatch:         "magic_mismatch",
	KindVersionMismatch:       "version_mismatch",
	KindSizeMismatch:          "size_mismatch",
	KindUnknownKey:            "unknown_key",
}

// String returns a snake_case name suitable for metric labels.
func (k Kind) String() string {
	if s, ok := kindNames[k]; ok {
		return s
	}
	return "unknown"
}

// IsValidation reports whether k is one of the header check failures.
func (k Kind) IsValidation() bool {
	return k == KindMagicMismatch || k == KindVersionMismatch || k == KindSizeMismatch
}

// Error is returned for every failed request. Msg is the human readable
// message reported to the monitoring host.
type Error struct {
	Kind Kind
	Msg  string
	Err  error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return e.Msg + ": " + e.Err.Error()
	}
	return e.Msg
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Is matches any *Error of the same kind, so the sentinels below work
// with errors.Is.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	return ok && t.Kind == e.Kind
}

// Sentinels for errors.Is.
var (
	ErrInvalidParameterCount = &Error{Kind: KindInvalidParameterCount, Msg: "invalid number of parameters"}
	ErrInvalidMailerIndex    = &Error{Kind: KindInvalidMailerIndex, Msg: "invalid mailer number"}
	ErrInvalidStatisticsFile = &Error{Kind: KindInvalidStatisticsFile, Msg: "invalid statistics file"}
	ErrUnableToOpen          = &Error{Kind: KindUnableToOpen, Msg: "unable to open statistics file"}
	ErrUnableToRead          = &Error{Kind: KindUnableToRead, Msg: "unable to read statistics file"}
	ErrMagicMismatch         = &Error{Kind: KindMagicMismatch, Msg: "wrong magic number in statistics file"}
	ErrVersionMismatch       = &Error{Kind: KindVersionMismatch, Msg: "wrong version number in statistics file"}
	ErrSizeMismatch          = &Error{Kind: KindSizeMismatch, Msg: "wrong size of statistics file"}
	ErrUnknownKey            = &Error{Kind: KindUnknownKey, Msg: "invalid key"}
)

func newError(kind Kind, msg string, err error) *Error {
	return &Error{Kind: kind, Msg: msg, Err: err}
}

// KindOf returns the Kind of err, or KindNone if err is nil or not an *Error.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindNone
}
