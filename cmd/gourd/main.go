package main

import (
	"fmt"
	"os"

	"github.com/gourd-go/gourd/internal/cli"
)

func main() {
	app := cli.NewApp()

	if err := app.Main(os.Args[1:]); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
