// Command schedctl talks to one remote scheduler over gRPC.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"rulecluster/internal/cluster"
	"rulecluster/internal/discovery"
	"rulecluster/internal/rpc/grpcrpc"
	"rulecluster/pkg/logx"
)

const usage = `usage: schedctl -target host:port -id SCHEDULER <command> [args]

commands:
  alive                  report liveness
  workers                list workers
  worker ID              show one worker
  executors WORKER       list executors supported by a worker
  tasks [INSTANCE]       list scheduled tasks, optionally of one instance
  total                  count scheduled tasks
  schedule JOB.json      submit a job ("-" reads stdin)
  check JOB.json         ask whether a job can be scheduled
  shutdown INSTANCE      stop every task of an instance
  task ID OP             run start|pause|reload|shutdown|enable_debug|disable_debug on a task
`

type options struct {
	target       string
	id           string
	callTimeout  time.Duration
	aliveTimeout time.Duration
	logLevel     string
}

func main() {
	var opts options
	fs := flag.NewFlagSet("schedctl", flag.ExitOnError)
	fs.StringVar(&opts.target, "target", "127.0.0.1:7400", "scheduler host:port")
	fs.StringVar(&opts.id, "id", "", "scheduler id")
	fs.DurationVar(&opts.callTimeout, "timeout", 10*time.Second, "per-call timeout")
	fs.DurationVar(&opts.aliveTimeout, "alive-timeout", 5*time.Second, "liveness probe timeout")
	fs.StringVar(&opts.logLevel, "log", "warn", "log level")
	fs.Usage = func() { fmt.Fprint(fs.Output(), usage); fs.PrintDefaults() }
	_ = fs.Parse(os.Args[1:])

	if opts.id == "" || fs.NArg() == 0 {
		fs.Usage()
		os.Exit(2)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	err := run(ctx, opts, fs.Args(), os.Stdin, os.Stdout)
	if errors.Is(err, errUsage) {
		fs.Usage()
		os.Exit(2)
	}
	if err != nil {
		fmt.Fprintln(os.Stderr, "schedctl:", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, opts options, args []string, stdin io.Reader, stdout io.Writer) error {
	log := logx.NewConsole(opts.logLevel).With(logx.String("comp", "schedctl"))
	resolver := discovery.NewStatic(map[string]string{cluster.Address(opts.id): opts.target})
	factory := grpcrpc.NewFactory(resolver, grpcrpc.FactoryConfig{CallTimeout: opts.callTimeout}, log)

	s := cluster.NewRemoteScheduler(opts.id, factory, cluster.WithLogger(log), cluster.WithAliveTimeout(opts.aliveTimeout))
	if err := s.Init(ctx); err != nil {
		return err
	}
	defer s.Dispose()

	c := &commands{s: s, stdin: stdin, out: json.NewEncoder(stdout)}
	c.out.SetIndent("", "  ")
	return c.dispatch(ctx, args)
}
