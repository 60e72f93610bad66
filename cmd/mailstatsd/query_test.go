package main

import (
	"bytes"
	"errors"
	"path/filepath"
	"strings"
	"testing"

	"github.com/infodancer/mailstatsd/internal/config"
	"github.com/infodancer/mailstatsd/internal/mailstats"
	"github.com/infodancer/mailstatsd/internal/testutil"
)

func testConfig(path string) *config.Config {
	cfg := config.Default()
	cfg.StatisticsFile = path
	return &cfg
}

func TestCmdGet(t *testing.T) {
	path := testutil.SetupDefaultStatisticsFile(t)
	cfg := testConfig(path)
	resolver := mailstats.NewResolver(mailstats.DefaultFormat())

	tests := []struct {
		name string
		args []string
		want string
	}{
		{"default path", []string{"connection.from"}, "42\n"},
		{"with prefix", []string{"sendmail.connection.from"}, "42\n"},
		{"explicit path", []string{"connection.from", path}, "42\n"},
		{"mailer", []string{"mailer.msgs.to", path, "3"}, "99\n"},
		{"mailer empty path", []string{"mailer.msgs.to", "", "3"}, "99\n"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var buf bytes.Buffer
			if err := cmdGet(&buf, resolver, cfg, tt.args); err != nil {
				t.Fatalf("cmdGet() error = %v", err)
			}
			if buf.String() != tt.want {
				t.Errorf("output = %q, want %q", buf.String(), tt.want)
			}
		})
	}
}

func TestCmdGetErrors(t *testing.T) {
	path := testutil.SetupDefaultStatisticsFile(t)
	cfg := testConfig(path)
	resolver := mailstats.NewResolver(mailstats.DefaultFormat())

	if err := cmdGet(&bytes.Buffer{}, resolver, cfg, nil); !errors.Is(err, errUsage) {
		t.Errorf("no args: error = %v, want usage", err)
	}

	err := cmdGet(&bytes.Buffer{}, resolver, cfg, []string{"mailer.msgs.to"})
	if !errors.Is(err, mailstats.ErrInvalidParameterCount) {
		t.Errorf("mailer without index: error = %v", err)
	}

	err = cmdGet(&bytes.Buffer{}, resolver, cfg, []string{"mailer.msgs.to", path, "25"})
	if !errors.Is(err, mailstats.ErrInvalidMailerIndex) {
		t.Errorf("index 25: error = %v", err)
	}
}

func TestCmdKeys(t *testing.T) {
	var buf bytes.Buffer
	if err := cmdKeys(&buf, testConfig("/var/lib/sendmail/sendmail.st")); err != nil {
		t.Fatalf("cmdKeys() error = %v", err)
	}

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != len(mailstats.Keys) {
		t.Fatalf("got %d lines, want %d", len(lines), len(mailstats.Keys))
	}
	if lines[0] != "sendmail.connection.from[/var/lib/sendmail/sendmail.st]" {
		t.Errorf("first line = %q", lines[0])
	}
	if lines[3] != "sendmail.mailer.msgs.from[/var/lib/sendmail/sendmail.st,1]" {
		t.Errorf("fourth line = %q", lines[3])
	}
}

func TestCmdSizeof(t *testing.T) {
	var buf bytes.Buffer
	if err := cmdSizeof(&buf); err != nil {
		t.Fatalf("cmdSizeof() error = %v", err)
	}
	if buf.String() != "1448\n" {
		t.Errorf("output = %q, want 1448", buf.String())
	}
}

func TestCmdDump(t *testing.T) {
	path := testutil.SetupDefaultStatisticsFile(t)
	resolver := mailstats.NewResolver(mailstats.DefaultFormat())

	var buf bytes.Buffer
	if err := cmdDump(&buf, resolver, path); err != nil {
		t.Fatalf("cmdDump() error = %v", err)
	}
	out := buf.String()

	for _, want := range []string{"magic", "0x1936", "2023-11-14T22:13:20Z", "connection.from", "42", "msgs.quarantined", "99"} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q:\n%s", want, out)
		}
	}

	lines := strings.Split(strings.TrimSpace(out), "\n")
	// 5 header lines, 3 connection lines, a blank line, a heading and 25 slots
	if len(lines) != 5+3+1+1+mailstats.MaxMailers {
		t.Errorf("got %d lines", len(lines))
	}
}

func TestCmdDumpInvalidFile(t *testing.T) {
	resolver := mailstats.NewResolver(mailstats.DefaultFormat())
	err := cmdDump(&bytes.Buffer{}, resolver, filepath.Join(t.TempDir(), "missing.st"))
	if !errors.Is(err, mailstats.ErrInvalidStatisticsFile) {
		t.Errorf("error = %v, want ErrInvalidStatisticsFile", err)
	}
}
