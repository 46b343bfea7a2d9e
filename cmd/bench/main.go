// Command bench measures end-to-end completion time through the gateway:
// it registers a function, submits a batch of executions, and polls until
// every task is terminal.
//
// With sleep tasks the wall time shrinks as workers are added, which makes
// this a quick check that a deployment actually distributes load.
package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"sync"
	"time"

	"github.com/urfave/cli/v2"

	"github.com/taskfabric/taskfabric/registry"
	"github.com/taskfabric/taskfabric/task"
)

func main() {
	app := &cli.App{
		Name:  "bench",
		Usage: "measure end-to-end task completion time",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "gateway", Value: "http://127.0.0.1:8000", Usage: "gateway base URL"},
			&cli.IntFlag{Name: "tasks", Value: 20, Usage: "number of executions to submit"},
			&cli.StringFlag{Name: "entrypoint", Value: "sleep", Usage: "registered entrypoint to execute"},
			&cli.Float64Flag{Name: "seconds", Value: 1, Usage: "sleep duration per task (sleep entrypoint only)"},
		},
		Action: run,
	}
	if err := app.Run(os.Args); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run(c *cli.Context) error {
	base := c.String("gateway")
	n := c.Int("tasks")
	entrypoint := c.String("entrypoint")

	functionID, err := register(base, entrypoint)
	if err != nil {
		return err
	}

	var args []any
	if entrypoint == "sleep" {
		args = []any{c.Float64("seconds")}
	}
	payload, err := task.EncodeArgs(args, nil)
	if err != nil {
		return err
	}

	start := time.Now()
	taskIDs := make([]string, 0, n)
	for i := 0; i < n; i++ {
		id, err := execute(base, functionID, payload)
		if err != nil {
			return err
		}
		taskIDs = append(taskIDs, id)
	}

	var wg sync.WaitGroup
	errs := make(chan error, n)
	for _, id := range taskIDs {
		wg.Add(1)
		go func(id string) {
			defer wg.Done()
			if err := await(base, id); err != nil {
				errs <- err
			}
		}(id)
	}
	wg.Wait()
	close(errs)
	if err := <-errs; err != nil {
		return err
	}

	fmt.Printf("%d tasks completed in %s\n", n, time.Since(start).Round(time.Millisecond))
	return nil
}

func register(base, entrypoint string) (string, error) {
	desc, err := registry.EncodeDescriptor(entrypoint)
	if err != nil {
		return "", err
	}
	var resp struct {
		FunctionID string `json:"function_id"`
	}
	if err := post(base+"/register_function", map[string]string{
		"name":    entrypoint,
		"payload": desc,
	}, &resp); err != nil {
		return "", err
	}
	return resp.FunctionID, nil
}

func execute(base, functionID, payload string) (string, error) {
	var resp struct {
		TaskID string `json:"task_id"`
	}
	if err := post(base+"/execute_function", map[string]string{
		"function_id": functionID,
		"payload":     payload,
	}, &resp); err != nil {
		return "", err
	}
	return resp.TaskID, nil
}

func await(base, taskID string) error {
	for {
		r, err := http.Get(base + "/result/" + taskID)
		if err != nil {
			return err
		}
		var resp struct {
			Status task.Status `json:"status"`
		}
		err = json.NewDecoder(r.Body).Decode(&resp)
		_ = r.Body.Close()
		if err != nil {
			return err
		}
		if resp.Status == task.StatusCompleted || resp.Status == task.StatusFailed {
			return nil
		}
		time.Sleep(100 * time.Millisecond)
	}
}

func post(url string, body any, out any) error {
	b, err := json.Marshal(body)
	if err != nil {
		return err
	}
	r, err := http.Post(url, "application/json", bytes.NewReader(b))
	if err != nil {
		return err
	}
	defer func() { _ = r.Body.Close() }()
	if r.StatusCode != http.StatusCreated {
		return fmt.Errorf("%s: unexpected status %d", url, r.StatusCode)
	}
	return json.NewDecoder(r.Body).Decode(out)
}
