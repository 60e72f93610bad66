package main

import (
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"text/tabwriter"

	"github.com/infodancer/mailstatsd/internal/config"
	"github.com/infodancer/mailstatsd/internal/mailstats"
)

// defaultMailerIndex is the slot shown in the keys listing.
const defaultMailerIndex = "1"

var errUsage = errors.New("usage: mailstatsd get <key> [path] [index]")

func runQuery(subcommand string) {
	flags := config.ParseFlags()

	cfg, err := config.LoadWithFlags(flags)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error loading config: %v\n", err)
		os.Exit(1)
	}

	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "invalid configuration: %v\n", err)
		os.Exit(1)
	}

	resolver := mailstats.NewResolver(cfg.StatsFormat())

	switch subcommand {
	case "get":
		err = cmdGet(os.Stdout, resolver, &cfg, flags.Args)
	case "keys":
		err = cmdKeys(os.Stdout, &cfg)
	case "sizeof":
		err = cmdSizeof(os.Stdout)
	case "dump":
		path := cfg.StatisticsFile
		if len(flags.Args) > 0 {
			path = flags.Args[0]
		}
		err = cmdDump(os.Stdout, resolver, path)
	}

	if err != nil {
		fmt.Fprintf(os.Stderr, "%s: %v\n", subcommand, err)
		os.Exit(1)
	}
}

// cmdGet resolves one key. The agent key prefix is optional; the path
// defaults to the configured statistics file.
func cmdGet(w io.Writer, resolver *mailstats.Resolver, cfg *config.Config, args []string) error {
	if len(args) == 0 {
		return errUsage
	}

	key := strings.TrimPrefix(args[0], cfg.Agent.GetKeyPrefix())
	params := append([]string(nil), args[1:]...)
	if len(params) == 0 {
		params = []string{cfg.StatisticsFile}
	} else if params[0] == "" {
		params[0] = cfg.StatisticsFile
	}

	value, err := resolver.Resolve(key, params)
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(w, value)
	return err
}

// cmdKeys lists the item keys with their default parameters.
func cmdKeys(w io.Writer, cfg *config.Config) error {
	prefix := cfg.Agent.GetKeyPrefix()
	for _, key := range mailstats.Keys {
		params := cfg.StatisticsFile
		if mailstats.FamilyOf(key) == mailstats.FamilyMailer {
			params += "," + defaultMailerIndex
		}
		if _, err := fmt.Fprintf(w, "%s%s[%s]\n", prefix, key, params); err != nil {
			return err
		}
	}
	return nil
}

func cmdSizeof(w io.Writer) error {
	_, err := fmt.Fprintln(w, mailstats.RecordSize)
	return err
}

// cmdDump prints the header and every counter of a validated record.
func cmdDump(w io.Writer, resolver *mailstats.Resolver, path string) error {
	rec, err := resolver.Load(path)
	if err != nil {
		return err
	}

	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintf(tw, "file\t%s\n", path)
	fmt.Fprintf(tw, "magic\t0x%x\n", rec.Magic)
	fmt.Fprintf(tw, "version\t%d\n", rec.Version)
	fmt.Fprintf(tw, "size\t%d\n", rec.Size)
	fmt.Fprintf(tw, "initialized\t%s\n", rec.Initialized().UTC().Format("2006-01-02T15:04:05Z"))

	for _, key := range mailstats.Keys {
		if mailstats.FamilyOf(key) != mailstats.FamilyConnection {
			continue
		}
		v, _ := rec.Value(key, 0)
		fmt.Fprintf(tw, "%s\t%d\n", key, v)
	}

	fmt.Fprint(tw, "\nmailer")
	for _, key := range mailstats.Keys {
		if mailstats.FamilyOf(key) == mailstats.FamilyMailer {
			fmt.Fprintf(tw, "\t%s", strings.TrimPrefix(key, "mailer."))
		}
	}
	fmt.Fprintln(tw)
	for i := 0; i < mailstats.MaxMailers; i++ {
		fmt.Fprintf(tw, "%d", i)
		for _, key := range mailstats.Keys {
			if mailstats.FamilyOf(key) == mailstats.FamilyMailer {
				v, _ := rec.Value(key, i)
				fmt.Fprintf(tw, "\t%d", v)
			}
		}
		fmt.Fprintln(tw)
	}

	return tw.Flush()
}
