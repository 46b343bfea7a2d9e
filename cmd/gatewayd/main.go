// Command gatewayd serves the HTTP surface: function registration, execution
// requests, and task status/result polling.
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/urfave/cli/v2"
	"goa.design/clue/log"

	"github.com/taskfabric/taskfabric/gateway"
	"github.com/taskfabric/taskfabric/store"
)

func main() {
	app := &cli.App{
		Name:  "gatewayd",
		Usage: "serve the client HTTP API",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "addr", Value: ":8000", Usage: "listen address"},
			&cli.StringFlag{Name: "redis", Value: "localhost:6379", Usage: "redis address"},
		},
		Action: run,
	}
	if err := app.Run(os.Args); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run(c *cli.Context) error {
	ctx := log.Context(context.Background(), log.WithFormat(log.FormatJSON))
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	st, err := store.NewRedis(ctx, c.String("redis"))
	if err != nil {
		return err
	}
	defer func() { _ = st.Close() }()

	srv := &http.Server{
		Addr:    c.String("addr"),
		Handler: gateway.New(st).Handler(),
	}
	errs := make(chan error, 1)
	go func() {
		log.Printf(ctx, "gateway listening on %s", srv.Addr)
		errs <- srv.ListenAndServe()
	}()

	select {
	case err := <-errs:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
