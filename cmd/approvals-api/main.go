package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/cmsflow/approvals/pkg/log"
	cli "github.com/urfave/cli/v3"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	command := &cli.Command{
		Name:                  "approvals-api",
		Usage:                 "Run content approval workflows",
		EnableShellCompletion: true,
		Commands: []*cli.Command{
			RunAPICommand(),
			ImportCommand(),
			EventsCommand(),
		},
	}

	err := command.Run(ctx, os.Args)
	if err != nil {
		log.WithModule("api").Error("Command failed", "error", err)
		os.Exit(1)
	}
}
