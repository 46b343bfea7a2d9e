// Command dispatcherd runs the task dispatcher.
//
// The placement policy is fixed at startup: local executes tasks in-process,
// push transmits them to the least-loaded registered worker, pull parks them
// until a worker asks. Workers in the deployment must match the mode.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/urfave/cli/v2"
	"goa.design/clue/log"

	"github.com/taskfabric/taskfabric/dispatch"
	"github.com/taskfabric/taskfabric/registry"
	"github.com/taskfabric/taskfabric/store"
)

func main() {
	app := &cli.App{
		Name:  "dispatcherd",
		Usage: "run the task dispatcher",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "mode", Value: "local", Usage: "placement policy: local, push or pull"},
			&cli.IntFlag{Name: "port", Value: 5555, Usage: "listen port for push and pull modes"},
			&cli.UintFlag{Name: "workers", Value: 4, Usage: "execution pool size in local mode"},
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
	mode, err := dispatch.ParseMode(c.String("mode"))
	if err != nil {
		return err
	}

	ctx := log.Context(context.Background(), log.WithFormat(log.FormatJSON))
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	st, err := store.NewRedis(ctx, c.String("redis"))
	if err != nil {
		return err
	}
	defer func() { _ = st.Close() }()

	d, err := dispatch.New(dispatch.Config{
		Mode:     mode,
		Port:     c.Int("port"),
		Workers:  c.Uint("workers"),
		Store:    st,
		Registry: registry.NewBuiltin(),
	})
	if err != nil {
		return err
	}
	return d.Run(ctx)
}
