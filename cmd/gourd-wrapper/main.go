package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/gourd-go/gourd/pkg/wrapper"
)

func main() {
	os.Exit(run())
}

func run() int {
	args, err := wrapper.ParseArgs(os.Args[1:])
	if err != nil {
		fmt.Fprintln(os.Stderr, err)

		return 1
	}

	exp, err := wrapper.LoadExperiment(args.ExperimentPath)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)

		return 1
	}

	r, err := wrapper.Resolve(exp, args)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)

		return 1
	}

	program, ok := exp.ProgramByRef(r.Program)
	if !ok {
		fmt.Fprintf(os.Stderr, "unknown program %q for run %d\n", r.Program.Name, r.ID)

		return 1
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	exitCode, err := wrapper.Execute(ctx, program, r)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)

		if exitCode < 0 {
			return 1
		}
	}

	return exitCode
}
