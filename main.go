// Playmote - a line-protocol remote control server for music playback.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"playmote/cmd"
)

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(),
		os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := cmd.Execute(ctx, os.Args[1:]); err != nil {
		fmt.Fprintf(os.Stderr, "playmote: %v\n", err)
		os.Exit(1)
	}
}
