// Command workerd runs one worker process against a push or pull dispatcher.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/urfave/cli/v2"
	"goa.design/clue/log"

	"github.com/taskfabric/taskfabric/registry"
	"github.com/taskfabric/taskfabric/worker"
)

func main() {
	app := &cli.App{
		Name:  "workerd",
		Usage: "run a worker process",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "mechanism", Value: "pull", Usage: "task acquisition mechanism: pull or push (must match the dispatcher mode)"},
			&cli.StringFlag{Name: "dispatcher", Value: "ws://127.0.0.1:5555/", Usage: "dispatcher websocket URL"},
			&cli.UintFlag{Name: "processes", Value: 4, Usage: "execution pool size"},
		},
		Action: run,
	}
	if err := app.Run(os.Args); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run(c *cli.Context) error {
	mech, err := worker.ParseMechanism(c.String("mechanism"))
	if err != nil {
		return err
	}

	ctx := log.Context(context.Background(), log.WithFormat(log.FormatJSON))
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	w, err := worker.New(worker.Config{
		Mechanism:     mech,
		DispatcherURL: c.String("dispatcher"),
		Processes:     c.Uint("processes"),
		Registry:      registry.NewBuiltin(),
	})
	if err != nil {
		return err
	}
	return w.Run(ctx)
}
