package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"

	"rulecluster/internal/cluster"
	"rulecluster/internal/rpc"
	"rulecluster/internal/scheduler"
)

var errUsage = errors.New("usage")

type commands struct {
	s     *cluster.RemoteScheduler
	stdin io.Reader
	out   *json.Encoder
}

type taskRow struct {
	ID          string                 `json:"id"`
	Name        string                 `json:"name"`
	WorkerID    string                 `json:"workerId"`
	SchedulerID string                 `json:"schedulerId"`
	Job         *scheduler.ScheduleJob `json:"job,omitempty"`
}

func row(t scheduler.Task) taskRow {
	return taskRow{ID: t.ID(), Name: t.Name(), WorkerID: t.WorkerID(), SchedulerID: t.SchedulerID(), Job: t.Job()}
}

func (c *commands) dispatch(ctx context.Context, args []string) error {
	cmd, rest := args[0], args[1:]
	arg := func(i int) (string, error) {
		if i >= len(rest) {
			return "", fmt.Errorf("%s: missing argument: %w", cmd, errUsage)
		}
		return rest[i], nil
	}

	switch cmd {
	case "alive":
		alive, err := c.s.IsAlive(ctx)
		if err != nil {
			return err
		}
		return c.out.Encode(map[string]any{"id": c.s.ID(), "alive": alive})

	case "workers":
		type w struct {
			ID   string `json:"id"`
			Name string `json:"name"`
		}
		var out []w
		for wk, err := range c.s.GetWorkers(ctx) {
			if err != nil {
				return err
			}
			out = append(out, w{ID: wk.ID(), Name: wk.Name()})
		}
		return c.out.Encode(out)

	case "worker", "executors":
		id, err := arg(0)
		if err != nil {
			return err
		}
		wk, ok, err := c.s.GetWorker(ctx, id)
		if err != nil {
			return err
		}
		if !ok {
			return fmt.Errorf("worker %q not found", id)
		}
		if cmd == "executors" {
			execs, err := rpc.Collect(wk.SupportedExecutors(ctx))
			if err != nil {
				return err
			}
			return c.out.Encode(execs)
		}
		st, err := wk.State(ctx)
		if err != nil {
			return err
		}
		return c.out.Encode(map[string]any{"id": wk.ID(), "name": wk.Name(), "state": st})

	case "tasks":
		seq := c.s.GetSchedulingTasks(ctx)
		if len(rest) > 0 {
			seq = c.s.GetSchedulingTask(ctx, rest[0])
		}
		var out []taskRow
		for t, err := range seq {
			if err != nil {
				return err
			}
			out = append(out, row(t))
		}
		return c.out.Encode(out)

	case "total":
		n, err := c.s.TotalTask(ctx)
		if err != nil {
			return err
		}
		return c.out.Encode(map[string]int64{"total": n})

	case "schedule", "check":
		file, err := arg(0)
		if err != nil {
			return err
		}
		job, err := c.readJob(file)
		if err != nil {
			return err
		}
		if cmd == "check" {
			ok, err := c.s.CanSchedule(ctx, job)
			if err != nil {
				return err
			}
			return c.out.Encode(map[string]bool{"canSchedule": ok})
		}
		var out []taskRow
		for t, err := range c.s.Schedule(ctx, job) {
			if err != nil {
				return err
			}
			out = append(out, row(t))
		}
		return c.out.Encode(out)

	case "shutdown":
		inst, err := arg(0)
		if err != nil {
			return err
		}
		if err := c.s.Shutdown(ctx, inst); err != nil {
			return err
		}
		return c.out.Encode(map[string]any{"instance": inst, "ok": true})

	case "task":
		id, err := arg(0)
		if err != nil {
			return err
		}
		name, err := arg(1)
		if err != nil {
			return err
		}
		op, ok := scheduler.ParseTaskOperation(name)
		if !ok {
			return fmt.Errorf("unknown task operation %q", name)
		}
		return c.taskOp(ctx, id, op)

	default:
		return fmt.Errorf("unknown command %q: %w", cmd, errUsage)
	}
}

func (c *commands) taskOp(ctx context.Context, id string, op scheduler.TaskOperation) error {
	var task scheduler.Task
	for t, err := range c.s.GetSchedulingTasks(ctx) {
		if err != nil {
			return err
		}
		if t.ID() == id {
			task = t
			break
		}
	}
	if task == nil {
		return fmt.Errorf("task %q not found", id)
	}
	var err error
	switch op {
	case scheduler.OpStart:
		err = task.Start(ctx)
	case scheduler.OpPause:
		err = task.Pause(ctx)
	case scheduler.OpReload:
		err = task.Reload(ctx)
	case scheduler.OpShutdown:
		err = task.Shutdown(ctx)
	case scheduler.OpEnableDebug, scheduler.OpDisableDebug:
		err = task.Debug(ctx, op == scheduler.OpEnableDebug)
	}
	if err != nil {
		return err
	}
	st, err := task.State(ctx)
	if err != nil {
		return err
	}
	return c.out.Encode(map[string]any{"id": id, "op": op, "state": st})
}

func (c *commands) readJob(file string) (scheduler.ScheduleJob, error) {
	var (
		data []byte
		err  error
	)
	if file == "-" {
		data, err = io.ReadAll(c.stdin)
	} else {
		data, err = os.ReadFile(file)
	}
	if err != nil {
		return scheduler.ScheduleJob{}, err
	}
	var job scheduler.ScheduleJob
	if err := json.Unmarshal(data, &job); err != nil {
		return scheduler.ScheduleJob{}, fmt.Errorf("%s: %w", file, err)
	}
	return job, nil
}
