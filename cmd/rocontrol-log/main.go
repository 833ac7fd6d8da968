// Command rocontrol-log views and analyzes rocontrol node journal files.
//
// Journal files are written by rocontrol-node when run with the -journal
// flag.
//
// Usage:
//
//	rocontrol-log <command> [flags] <file.rlog>
//
// Commands:
//
//	view     View journal in human-readable format
//	export   Export journal to JSONL or CSV format
//	stats    Show statistics about the journal
//
// Examples:
//
//	# View all events
//	rocontrol-log view master.rlog
//
//	# View only node registry events
//	rocontrol-log view -category node master.rlog
//
//	# View events about one receiver
//	rocontrol-log view -subject recv-stage-left master.rlog
//
//	# Export to JSONL
//	rocontrol-log export -format jsonl master.rlog
package main

import (
	"flag"
	"fmt"
	"os"

	"github.com/rocontrol/rocontrol-go/cmd/rocontrol-log/commands"
)

const usage = `rocontrol-log - rocontrol journal analyzer

Usage:
  rocontrol-log <command> [flags] <file.rlog>

Commands:
  view     View journal in human-readable format
  export   Export journal to JSONL or CSV format
  stats    Show statistics about the journal

Use "rocontrol-log <command> -help" for more information about a command.
`

func main() {
	if len(os.Args) < 2 {
		fmt.Fprint(os.Stderr, usage)
		os.Exit(1)
	}

	cmd := os.Args[1]
	args := os.Args[2:]

	switch cmd {
	case "view":
		runView(args)
	case "export":
		runExport(args)
	case "stats":
		runStats(args)
	case "-h", "-help", "--help", "help":
		fmt.Print(usage)
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n", cmd)
		fmt.Fprint(os.Stderr, usage)
		os.Exit(1)
	}
}

// filterFlags registers the shared filter flags on fs.
func filterFlags(fs *flag.FlagSet) *commands.FilterOptions {
	opts := &commands.FilterOptions{}
	fs.StringVar(&opts.Category, "category", "", "Filter by category (node, command, ack, timestate, timeline, discovery, error)")
	fs.StringVar(&opts.NodeID, "node", "", "Filter by recording node ID")
	fs.StringVar(&opts.SubjectID, "subject", "", "Filter by subject (peer node, state, timeline or command ID)")
	fs.StringVar(&opts.TimeStart, "time-start", "", "Filter by start time (RFC3339)")
	fs.StringVar(&opts.TimeEnd, "time-end", "", "Filter by end time (RFC3339)")
	return opts
}

func parseArgs(fs *flag.FlagSet, args []string) string {
	if err := fs.Parse(args); err != nil {
		os.Exit(1)
	}
	if fs.NArg() < 1 {
		fmt.Fprintln(os.Stderr, "Error: journal file path required")
		fs.Usage()
		os.Exit(1)
	}
	return fs.Arg(0)
}

func fail(err error) {
	fmt.Fprintf(os.Stderr, "Error: %v\n", err)
	os.Exit(1)
}

func runView(args []string) {
	fs := flag.NewFlagSet("view", flag.ExitOnError)
	fs.Usage = func() {
		fmt.Fprintf(os.Stderr, `rocontrol-log view - View journal in human-readable format

Usage:
  rocontrol-log view [flags] <file.rlog>

Flags:
`)
		fs.PrintDefaults()
	}
	opts := filterFlags(fs)
	path := parseArgs(fs, args)

	filter, err := opts.Build()
	if err != nil {
		fail(err)
	}
	if err := commands.RunView(path, filter, os.Stdout); err != nil {
		fail(err)
	}
}

func runExport(args []string) {
	fs := flag.NewFlagSet("export", flag.ExitOnError)
	fs.Usage = func() {
		fmt.Fprintf(os.Stderr, `rocontrol-log export - Export journal to JSONL or CSV format

Usage:
  rocontrol-log export [flags] <file.rlog>

Flags:
`)
		fs.PrintDefaults()
	}
	format := fs.String("format", "jsonl", "Output format (jsonl, csv)")
	output := fs.String("o", "", "Output file (default: stdout)")
	opts := filterFlags(fs)
	path := parseArgs(fs, args)

	filter, err := opts.Build()
	if err != nil {
		fail(err)
	}
	if err := commands.RunExport(path, filter, *format, *output); err != nil {
		fail(err)
	}
}

func runStats(args []string) {
	fs := flag.NewFlagSet("stats", flag.ExitOnError)
	fs.Usage = func() {
		fmt.Fprintf(os.Stderr, `rocontrol-log stats - Show statistics about the journal

Usage:
  rocontrol-log stats [flags] <file.rlog>

Flags:
`)
		fs.PrintDefaults()
	}
	opts := filterFlags(fs)
	path := parseArgs(fs, args)

	filter, err := opts.Build()
	if err != nil {
		fail(err)
	}
	if err := commands.RunStats(path, filter, os.Stdout); err != nil {
		fail(err)
	}
}
