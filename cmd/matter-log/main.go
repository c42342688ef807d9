// Command matter-log views and analyzes device capture files.
//
// Capture files are written by matter-device when started with -capture.
//
// Usage:
//
//	matter-log <command> [flags] <capture.cbor>
//
// Commands:
//
//	view     View capture file in human-readable format
//	export   Export capture file to JSONL or CSV
//	filter   Filter capture file and write to new file
//	stats    Show statistics and the mode timeline
//
// Examples:
//
//	# View only mode transitions
//	matter-log view -entity mode device.cbor
//
//	# View BTP fragments
//	matter-log view -layer btp device.cbor
//
//	# Export to CSV
//	matter-log export -format csv -o device.csv device.cbor
//
//	# Keep one commissioning pipe
//	matter-log filter -session 3f2a91c0 -o pipe.cbor device.cbor
package main

import (
	"flag"
	"fmt"
	"io"
	"os"

	"github.com/mash-protocol/matter-stack/cmd/matter-log/commands"
)

const usage = `matter-log - Device Capture Analyzer

Usage:
  matter-log <command> [flags] <capture.cbor>

Commands:
  view     View capture file in human-readable format
  export   Export capture file to JSONL or CSV
  filter   Filter capture file and write to new file
  stats    Show statistics and the mode timeline

Use "matter-log <command> -help" for more information about a command.
`

func main() {
	os.Exit(run(os.Args[1:], os.Stdout, os.Stderr))
}

func run(args []string, stdout, stderr io.Writer) int {
	if len(args) < 1 {
		fmt.Fprint(stderr, usage)
		return 1
	}

	var err error
	switch cmd := args[0]; cmd {
	case "view":
		err = runView(args[1:], stdout, stderr)
	case "export":
		err = runExport(args[1:], stderr)
	case "filter":
		err = runFilter(args[1:], stdout, stderr)
	case "stats":
		err = runStats(args[1:], stdout, stderr)
	case "-h", "-help", "--help", "help":
		fmt.Fprint(stdout, usage)
	default:
		fmt.Fprintf(stderr, "Unknown command: %s\n", cmd)
		fmt.Fprint(stderr, usage)
		return 1
	}
	if err != nil {
		if err != flag.ErrHelp {
			fmt.Fprintf(stderr, "Error: %v\n", err)
		}
		return 1
	}
	return 0
}

// parseArgs parses fs and returns the capture path.
func parseArgs(fs *flag.FlagSet, args []string) (string, error) {
	if err := fs.Parse(args); err != nil {
		return "", err
	}
	if fs.NArg() < 1 {
		fs.Usage()
		return "", fmt.Errorf("capture file path required")
	}
	return fs.Arg(0), nil
}

func runView(args []string, stdout, stderr io.Writer) error {
	fs := flag.NewFlagSet("view", flag.ContinueOnError)
	fs.SetOutput(stderr)
	layer := fs.String("layer", "", "Filter by layer (btp, udp, interaction, stack)")
	direction := fs.String("direction", "", "Filter by direction (in, out)")
	category := fs.String("category", "", "Filter by category (message, state, error)")
	entity := fs.String("entity", "", "Filter state changes by entity (mode, window, link, radio, pipe)")

	path, err := parseArgs(fs, args)
	if err != nil {
		return err
	}

	var filter commands.ViewFilter
	if *layer != "" {
		l, err := commands.ParseLayer(*layer)
		if err != nil {
			return err
		}
		filter.Layer = &l
	}
	if *direction != "" {
		d, err := commands.ParseDirection(*direction)
		if err != nil {
			return err
		}
		filter.Direction = &d
	}
	if *category != "" {
		c, err := commands.ParseCategory(*category)
		if err != nil {
			return err
		}
		filter.Category = &c
	}
	if *entity != "" {
		e, err := commands.ParseEntity(*entity)
		if err != nil {
			return err
		}
		filter.Entity = &e
	}

	return commands.RunView(path, filter, stdout)
}

func runExport(args []string, stderr io.Writer) error {
	fs := flag.NewFlagSet("export", flag.ContinueOnError)
	fs.SetOutput(stderr)
	format := fs.String("format", "jsonl", "Output format (jsonl, csv)")
	output := fs.String("o", "", "Output file (default: stdout)")

	path, err := parseArgs(fs, args)
	if err != nil {
		return err
	}
	return commands.RunExport(path, *format, *output)
}

func runFilter(args []string, stdout, stderr io.Writer) error {
	fs := flag.NewFlagSet("filter", flag.ContinueOnError)
	fs.SetOutput(stderr)
	var opts commands.FilterOptions
	fs.StringVar(&opts.Output, "o", "", "Output file (required)")
	fs.StringVar(&opts.SessionID, "session", "", "Filter by session ID")
	fs.StringVar(&opts.TimeStart, "time-start", "", "Filter by start time (RFC3339)")
	fs.StringVar(&opts.TimeEnd, "time-end", "", "Filter by end time (RFC3339)")
	fs.StringVar(&opts.Layer, "layer", "", "Filter by layer (btp, udp, interaction, stack)")
	fs.StringVar(&opts.Category, "category", "", "Filter by category (message, state, error)")
	fs.StringVar(&opts.Entity, "entity", "", "Filter state changes by entity")
	fs.StringVar(&opts.Mode, "mode", "", "Filter by orchestrator mode (commissioning, operating, ...)")

	path, err := parseArgs(fs, args)
	if err != nil {
		return err
	}
	if opts.Output == "" {
		fs.Usage()
		return fmt.Errorf("output file (-o) required")
	}
	return commands.RunFilter(path, opts, stdout)
}

func runStats(args []string, stdout, stderr io.Writer) error {
	fs := flag.NewFlagSet("stats", flag.ContinueOnError)
	fs.SetOutput(stderr)
	path, err := parseArgs(fs, args)
	if err != nil {
		return err
	}
	return commands.RunStats(path, stdout)
}
