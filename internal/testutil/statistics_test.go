package testutil

import (
	"errors"
	"os"
	"testing"

	"github.com/infodancer/mailstatsd/internal/mailstats"
)

func TestSetupStatisticsFile(t *testing.T) {
	s := TestStatistics{
		InitTime:      1234,
		ConnectionsTo: 7,
		Mailers: []TestMailer{
			{Index: 0, MessagesFrom: 1, Quarantined: 2},
			{Index: 24, Discarded: 3},
		},
	}

	path := SetupStatisticsFile(t, s)

	info, err := os.Stat(path)
	if err != nil {
		t.Fatalf("statistics file not created: %v", err)
	}
	if info.Size() != int64(mailstats.RecordSize) {
		t.Errorf("file size = %d, want %d", info.Size(), mailstats.RecordSize)
	}

	rec, err := mailstats.NewResolver(mailstats.DefaultFormat()).Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if rec.InitTime != 1234 || rec.ConnectionsTo != 7 {
		t.Errorf("header counters = %d, %d", rec.InitTime, rec.ConnectionsTo)
	}
	if got := rec.Mailer(mailstats.MessagesFrom, 0); got != 1 {
		t.Errorf("msgs from[0] = %d, want 1", got)
	}
	if got := rec.Mailer(mailstats.MessagesQuarantined, 0); got != 2 {
		t.Errorf("msgs quarantined[0] = %d, want 2", got)
	}
	if got := rec.Mailer(mailstats.MessagesDiscarded, 24); got != 3 {
		t.Errorf("msgs discarded[24] = %d, want 3", got)
	}
}

func TestSetupDefaultStatisticsFile(t *testing.T) {
	path := SetupDefaultStatisticsFile(t)
	resolver := mailstats.NewResolver(mailstats.DefaultFormat())

	v, err := resolver.Resolve("connection.from", []string{path})
	if err != nil || v != 42 {
		t.Errorf("connection.from = %d, %v; want 42", v, err)
	}
	v, err = resolver.Resolve("mailer.msgs.to", []string{path, "3"})
	if err != nil || v != 99 {
		t.Errorf("mailer.msgs.to[3] = %d, %v; want 99", v, err)
	}
}

func TestWriteStatisticsBytes(t *testing.T) {
	path := WriteStatisticsBytes(t, []byte("short"))

	_, err := mailstats.NewResolver(mailstats.DefaultFormat()).Load(path)
	if !errors.Is(err, mailstats.ErrUnableToRead) {
		t.Errorf("Load() error = %v, want ErrUnableToRead", err)
	}
}
