// Command seqno allocates PFS visit identifiers.
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/subaru-pfs/seqno/internal/cli"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := cli.NewRootCommand().ExecuteContext(ctx); err != nil {
		stop()
		os.Exit(1)
	}
}
