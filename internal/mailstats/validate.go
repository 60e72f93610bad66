package mailstats

import "fmt"

// Validate checks the record header against f. Checks run in order
// magic, version, size and stop at the first failure.
func (f Format) Validate(rec *Record) error {
	if rec.Magic != f.Magic {
		return newError(KindMagicMismatch, ErrMagicMismatch.Msg,
			fmt.Errorf("got 0x%x, want 0x%x", rec.Magic, f.Magic))
	}
	if rec.Version != f.Version {
		return newError(KindVersionMismatch, ErrVersionMismatch.Msg,
			fmt.Errorf("got %d, want %d", rec.Version, f.Version))
	}
	if int(rec.Size) != RecordSize {
		return newError(KindSizeMismatch, ErrSizeMismatch.Msg,
			fmt.Errorf("got %d, want %d", rec.Size, RecordSize))
	}
	return nil
}
