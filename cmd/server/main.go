// Command identity-portal runs the identity API and its maintenance tasks.
//
//	identity-portal serve               # migrate credentials, then serve HTTP
//	identity-portal migrate up          # apply Postgres schema migrations
//	identity-portal migrate credentials # hash any legacy plaintext passwords
//	identity-portal mail-worker         # drain the RabbitMQ mail queue
//
// All settings come from the environment (see internal/config). With
// ENV=dev a local .env file is loaded first.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
)

func main() {
	// Cancelled on Ctrl+C or SIGTERM; every command shuts down from it.
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, err)
		stop()
		os.Exit(1)
	}
}
