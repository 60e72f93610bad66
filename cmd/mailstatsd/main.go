package main

import (
	"fmt"
	"os"
	"strings"
)

const usage = "usage: mailstatsd [serve|get|keys|sizeof|dump] [flags] [args]\n"

func main() {
	// Dispatch to a subcommand before flag.Parse() so the chosen function
	// owns flag parsing. Strip the subcommand from os.Args so flag.Parse
	// sees only flags.
	var subcommand string
	if len(os.Args) > 1 && !strings.HasPrefix(os.Args[1], "-") {
		subcommand = os.Args[1]
		os.Args = append(os.Args[:1], os.Args[2:]...)
	}

	switch subcommand {
	case "", "serve":
		runServe()
	case "get", "keys", "sizeof", "dump":
		runQuery(subcommand)
	default:
		fmt.Fprintf(os.Stderr, "unknown subcommand %q\n%s", subcommand, usage)
		os.Exit(1)
	}
}
