package metrics

import (
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/infodancer/mailstatsd/internal/mailstats"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func writeStatsFile(t *testing.T, rec mailstats.Record) string {
	t.Helper()
	data, err := mailstats.DefaultFormat().Encode(rec)
	if err != nil {
		t.Fatalf("Encode() error = %v", err)
	}
	path := filepath.Join(t.TempDir(), "sendmail.st")
	if err := os.WriteFile(path, data, 0o644); err != nil {
		t.Fatalf("failed to write statistics file: %v", err)
	}
	return path
}

func TestStatsExporterCollect(t *testing.T) {
	rec := mailstats.DefaultFormat().NewRecord()
	rec.InitTime = 1700000000
	rec.ConnectionsFrom = 42
	rec.ConnectionsTo = 7
	rec.ConnectionsRejected = 3
	rec.Mailers[mailstats.MessagesFrom][3] = 17
	rec.Mailers[mailstats.KilobytesTo][0] = 2048
	rec.Mailers[mailstats.MessagesQuarantined][24] = 5
	path := writeStatsFile(t, rec)

	e := NewStatsExporter(mailstats.NewResolver(mailstats.DefaultFormat()), path,
		map[string]string{"3": "esmtp"}, discardLogger())

	expected := `
# HELP sendmail_connections_total Connections handled by sendmail.
# TYPE sendmail_connections_total counter
sendmail_connections_total{direction="from"} 42
sendmail_connections_total{direction="rejected"} 3
sendmail_connections_total{direction="to"} 7
# HELP sendmail_stats_up Whether the last read of the statistics file succeeded.
# TYPE sendmail_stats_up gauge
sendmail_stats_up 1
`
	if err := testutil.CollectAndCompare(e, strings.NewReader(expected),
		"sendmail_connections_total", "sendmail_stats_up"); err != nil {
		t.Error(err)
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(e)

	mfs, err := reg.Gather()
	if err != nil {
		t.Fatalf("failed to gather metrics: %v", err)
	}

	values := make(map[string]float64)
	for _, mf := range mfs {
		for _, m := range mf.GetMetric() {
			key := mf.GetName()
			for _, lp := range m.GetLabel() {
				key += "," + lp.GetName() + "=" + lp.GetValue()
			}
			if c := m.GetCounter(); c != nil {
				values[key] = c.GetValue()
			} else if g := m.GetGauge(); g != nil {
				values[key] = g.GetValue()
			}
		}
	}

	checks := map[string]float64{
		"sendmail_stats_init_timestamp_seconds":                      1700000000,
		"sendmail_mailer_messages_total,direction=from,mailer=esmtp": 17,
		"sendmail_mailer_messages_total,direction=from,mailer=4":     0,
		"sendmail_mailer_kilobytes_total,direction=to,mailer=0":      2048,
		"sendmail_mailer_messages_quarantined_total,mailer=24":       5,
		"sendmail_mailer_messages_rejected_total,mailer=esmtp":       0,
		"sendmail_mailer_messages_discarded_total,mailer=12":         0,
	}
	for key, want := range checks {
		got, ok := values[key]
		if !ok {
			t.Errorf("series %s not found", key)
			continue
		}
		if got != want {
			t.Errorf("%s = %v, want %v", key, got, want)
		}
	}

	// 3 connection series, 7 per mailer, up and init time
	if n := testutil.CollectAndCount(e); n != 3+7*mailstats.MaxMailers+2 {
		t.Errorf("collected %d series, want %d", n, 3+7*mailstats.MaxMailers+2)
	}
}

func TestStatsExporterUnreadableFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "missing.st")
	e := NewStatsExporter(mailstats.NewResolver(mailstats.DefaultFormat()), path, nil, discardLogger())

	expected := `
# HELP sendmail_stats_up Whether the last read of the statistics file succeeded.
# TYPE sendmail_stats_up gauge
sendmail_stats_up 0
`
	if err := testutil.CollectAndCompare(e, strings.NewReader(expected)); err != nil {
		t.Error(err)
	}
}

func TestStatsExporterRejectsForeignFormat(t *testing.T) {
	rec := mailstats.DefaultFormat().NewRecord()
	rec.Version = 4
	path := writeStatsFile(t, rec)

	e := NewStatsExporter(mailstats.NewResolver(mailstats.DefaultFormat()), path, nil, discardLogger())

	if n := testutil.CollectAndCount(e); n != 1 {
		t.Errorf("collected %d series for an invalid file, want only sendmail_stats_up", n)
	}
}

func TestStatsExporterIgnoresBadMailerNames(t *testing.T) {
	e := NewStatsExporter(nil, "", map[string]string{
		"99": "bogus",
		"1":  "",
		"2":  "local",
	}, discardLogger())

	if e.mailers[2] != "local" {
		t.Errorf("mailer 2 label = %q, want 'local'", e.mailers[2])
	}
	if e.mailers[1] != "1" {
		t.Errorf("mailer 1 label = %q, want '1'", e.mailers[1])
	}
}

func TestStatsExporterMailerNameCollision(t *testing.T) {
	path := writeStatsFile(t, mailstats.DefaultFormat().NewRecord())
	e := NewStatsExporter(mailstats.NewResolver(mailstats.DefaultFormat()), path,
		map[string]string{"3": "5"}, discardLogger())

	reg := prometheus.NewRegistry()
	if err := reg.Register(e); err != nil {
		t.Fatalf("Register() error = %v", err)
	}
	if _, err := reg.Gather(); err != nil {
		t.Fatalf("Gather() error = %v", err)
	}
	if e.mailers[3] != "3" || e.mailers[5] != "5" {
		t.Errorf("labels = %q, %q; want the index labels kept", e.mailers[3], e.mailers[5])
	}
}

func TestStatsExporterDuplicateMailerNames(t *testing.T) {
	names := map[string]string{"7": "smtp", "2": "smtp", "12": "smtp", "03": "relay", "3": "local"}

	for range 20 {
		e := NewStatsExporter(nil, "", names, discardLogger())
		// "12" sorts before "2" and "7"; "03" before "3"
		if e.mailers[12] != "smtp" || e.mailers[2] != "2" || e.mailers[7] != "7" {
			t.Fatalf("smtp labels = %q, %q, %q", e.mailers[12], e.mailers[2], e.mailers[7])
		}
		if e.mailers[3] != "relay" {
			t.Fatalf("mailer 3 label = %q, want relay", e.mailers[3])
		}
	}
}

func TestNewRegistersExtraCollectors(t *testing.T) {
	path := writeStatsFile(t, mailstats.DefaultFormat().NewRecord())
	e := NewStatsExporter(mailstats.NewResolver(mailstats.DefaultFormat()), path, nil, discardLogger())

	_, server := New(Config{Enabled: true, Address: "127.0.0.1:0", Path: "/metrics"}, e)
	ps, ok := server.(*PrometheusServer)
	if !ok {
		t.Fatalf("server type %T, want *PrometheusServer", server)
	}
	if ps.Handler() == nil {
		t.Error("expected a metrics handler")
	}
}
