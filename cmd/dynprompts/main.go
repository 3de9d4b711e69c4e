package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/benjaminschreck/go-dynprompts/cmd/dynprompts/commands"
	"github.com/benjaminschreck/go-dynprompts/internal/logging"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	err := commands.Execute(ctx)
	_ = logging.GetLogger().Sync()
	if err != nil {
		stop()
		os.Exit(1)
	}
}
