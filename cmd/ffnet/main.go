// Command ffnet trains feed-forward MNIST classifiers and manages their
// checkpoints.
//
// Usage:
//
//	ffnet [-v=N] <command> [flags] [args]
//
// Commands:
//
//	train     Train a classifier and save checkpoints
//	inspect   Describe a checkpoint
//	predict   Evaluate a checkpoint or probe it with a zero input
//	export    Convert a checkpoint to SafeTensors
//	version   Print version information
package main

import (
	"flag"
	"fmt"
	"os"
	"sort"

	"k8s.io/klog/v2"
)

const version = "v0.1.0"

type command struct {
	summary string
	run     func(args []string) error
}

var commands = map[string]command{
	"train":   {"Train a classifier and save checkpoints", runTrain},
	"inspect": {"Describe a checkpoint", runInspect},
	"predict": {"Evaluate a checkpoint or probe it with a zero input", runPredict},
	"export":  {"Convert a checkpoint to SafeTensors", runExport},
	"version": {"Print version information", runVersion},
}

func usage() {
	out := flag.CommandLine.Output()
	_, _ = fmt.Fprintf(out, "Usage: ffnet [flags] <command> [command flags] [args]\n\nCommands:\n")
	names := make([]string, 0, len(commands))
	for name := range commands {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		_, _ = fmt.Fprintf(out, "  %-8s  %s\n", name, commands[name].summary)
	}
	_, _ = fmt.Fprintf(out, "\nRun 'ffnet <command> -help' for command flags.\n\nGlobal flags:\n")
	flag.PrintDefaults()
}

func main() {
	klog.InitFlags(nil)
	flag.Usage = usage
	flag.Parse()

	args := flag.Args()
	if len(args) == 0 {
		usage()
		os.Exit(2)
	}
	cmd, ok := commands[args[0]]
	if !ok {
		klog.Errorf("Unknown command %q. See 'ffnet -help'.", args[0])
		klog.Flush()
		os.Exit(2)
	}
	err := cmd.run(args[1:])
	klog.Flush()
	if err != nil {
		_, _ = fmt.Fprintf(os.Stderr, "ffnet %s: %v\n", args[0], err)
		os.Exit(1)
	}
}

// newFlagSet returns the flag set of a sub-command.
func newFlagSet(name, argsUsage string) *flag.FlagSet {
	fs := flag.NewFlagSet(name, flag.ExitOnError)
	fs.Usage = func() {
		_, _ = fmt.Fprintf(fs.Output(), "Usage: ffnet %s [flags] %s\n\nFlags:\n", name, argsUsage)
		fs.PrintDefaults()
	}
	return fs
}
