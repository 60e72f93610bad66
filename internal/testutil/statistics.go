// Package testutil provides test helpers for creating statistics file
// fixtures.
package testutil

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/infodancer/mailstatsd/internal/mailstats"
)

// TestMailer holds the counters of one mailer slot.
type TestMailer struct {
	Index         int
	MessagesFrom  uint64
	KilobytesFrom uint64
	MessagesTo    uint64
	KilobytesTo   uint64
	Rejected      uint64
	Discarded     uint64
	Quarantined   uint64
}

// TestStatistics describes the counters written to a fixture file.
// Slots not listed in Mailers are zero.
type TestStatistics struct {
	InitTime            int64
	ConnectionsFrom     uint64
	ConnectionsTo       uint64
	ConnectionsRejected uint64
	Mailers             []TestMailer
}

// DefaultTestStatistics returns the standard fixture: 42 inbound and 5
// rejected connections, 99 messages sent by mailer 3 and 1024 KB received
// by mailer 24.
func DefaultTestStatistics() TestStatistics {
	return TestStatistics{
		InitTime:            1700000000,
		ConnectionsFrom:     42,
		ConnectionsRejected: 5,
		Mailers: []TestMailer{
			{Index: 3, MessagesTo: 99},
			{Index: 24, KilobytesFrom: 1024},
		},
	}
}

// Record builds a record with a header the default format accepts.
func (s TestStatistics) Record() mailstats.Record {
	rec := mailstats.DefaultFormat().NewRecord()
	rec.InitTime = s.InitTime
	rec.ConnectionsFrom = s.ConnectionsFrom
	rec.ConnectionsTo = s.ConnectionsTo
	rec.ConnectionsRejected = s.ConnectionsRejected

	for _, m := range s.Mailers {
		rec.Mailers[mailstats.MessagesFrom][m.Index] = m.MessagesFrom
		rec.Mailers[mailstats.KilobytesFrom][m.Index] = m.KilobytesFrom
		rec.Mailers[mailstats.MessagesTo][m.Index] = m.MessagesTo
		rec.Mailers[mailstats.KilobytesTo][m.Index] = m.KilobytesTo
		rec.Mailers[mailstats.MessagesRejected][m.Index] = m.Rejected
		rec.Mailers[mailstats.MessagesDiscarded][m.Index] = m.Discarded
		rec.Mailers[mailstats.MessagesQuarantined][m.Index] = m.Quarantined
	}
	return rec
}

// WriteStatisticsFile encodes rec in the default format into a file named
// sendmail.st under a fresh temporary directory and returns its path.
func WriteStatisticsFile(t *testing.T, rec mailstats.Record) string {
	t.Helper()

	data, err := mailstats.DefaultFormat().Encode(rec)
	if err != nil {
		t.Fatalf("failed to encode statistics record: %v", err)
	}
	return WriteStatisticsBytes(t, data)
}

// WriteStatisticsBytes writes raw bytes as a statistics file, for fixtures
// that must not decode cleanly.
func WriteStatisticsBytes(t *testing.T, data []byte) string {
	t.Helper()

	path := filepath.Join(t.TempDir(), "sendmail.st")
	if err := os.WriteFile(path, data, 0644); err != nil {
		t.Fatalf("failed to write statistics file: %v", err)
	}
	return path
}

// SetupStatisticsFile writes a fixture file for s and returns its path.
func SetupStatisticsFile(t *testing.T, s TestStatistics) string {
	t.Helper()
	return WriteStatisticsFile(t, s.Record())
}

// SetupDefaultStatisticsFile is a convenience function that writes the
// default fixture and returns its path.
func SetupDefaultStatisticsFile(t *testing.T) string {
	t.Helper()
	return SetupStatisticsFile(t, DefaultTestStatistics())
}
