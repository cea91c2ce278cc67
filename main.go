// reposerve - a multi-client TCP file repository server and its client.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"reposerve/cmd"
)

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(),
		os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := cmd.Execute(ctx, os.Args[1:]); err != nil {
		fmt.Fprintf(os.Stderr, "reposerve: %v\n", err)
		os.Exit(1)
	}
}
