// Package main provides the escrow command: the exchange engine, its
// scenario runner, genesis validation and audit journal inspection.
package main

import (
	"context"
	"fmt"
	"os"

	"github.com/roach88/escrow/internal/cli"
)

func main() {
	if err := cli.NewRootCommand().ExecuteContext(context.Background()); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(cli.GetExitCode(err))
	}
}
