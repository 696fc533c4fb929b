package main

import (
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"time"

	"k8s.io/klog/v2"

	"github.com/ydb-platform/udev-queue/internal/queue"
	"github.com/ydb-platform/udev-queue/internal/udev"
)

var errUsage = errors.New("usage")

func main() {
	defer klog.Flush()
	os.Exit(run(os.Args[1:], os.Stdout, os.Stderr))
}

type FlagValues struct {
	Config   ConfigFlag
	Output   string
	Sysfs    string
	Run      string
	Timeout  time.Duration
	Interval time.Duration
	Healthz  string
	Only     string

	config *Config
	args   []string
}

func initFlags(args []string, output io.Writer) (*FlagValues, error) {
	values := &FlagValues{}
	flags := flag.NewFlagSet("udev-queue", flag.ContinueOnError)
	flags.SetOutput(output)
	klog.InitFlags(flags)
	flags.Var(&values.Config, "config", `optional configuration source (in form "file:<path>", "env:<ENV_VARIABLE>" or "stdin")`)
	flags.StringVar(&values.Output, "o", "text", `output format: "text" or "yaml"`)
	flags.StringVar(&values.Sysfs, "sysfs", "", "sysfs root (overrides config)")
	flags.StringVar(&values.Run, "run", "", "runtime state root (overrides config)")
	flags.DurationVar(&values.Timeout, "timeout", 0, "settle: maximum time to wait (overrides config)")
	flags.DurationVar(&values.Interval, "interval", 0, "settle, watch: poll interval (overrides config)")
	flags.StringVar(&values.Healthz, "healthz", "", "watch: serve /healthz on this address (overrides config)")
	flags.StringVar(&values.Only, "only", "all", `watch: comma separated states to print: "all", "busy", "idle", "active", "inactive"`)
	flags.Usage = func() {
		fmt.Fprintf(flags.Output(), "Usage: udev-queue [flags] <status|queued|failed|finished START [END]|settle [START [END]]|watch>\n")
		flags.PrintDefaults()
	}

	if err := flags.Parse(args); err != nil {
		return nil, fmt.Errorf("%w: %w", errUsage, err)
	}
	values.args = flags.Args()
	if len(values.args) == 0 {
		flags.Usage()
		return nil, fmt.Errorf("%w: command is required", errUsage)
	}
	if values.Output != "text" && values.Output != "yaml" {
		return nil, fmt.Errorf("%w: unknown output format %q", errUsage, values.Output)
	}

	config, err := loadConfig(values.Config.configSource)
	if err != nil {
		return nil, err
	}
	if values.Sysfs != "" {
		config.Sysfs = values.Sysfs
	}
	if values.Run != "" {
		config.Run = values.Run
	}
	if values.Timeout != 0 {
		config.SettleTimeout = values.Timeout
	}
	if values.Interval != 0 {
		config.PollInterval = values.Interval
	}
	if values.Healthz != "" {
		config.Healthz = values.Healthz
	}
	if err := config.validate(); err != nil {
		return nil, fmt.Errorf("%w: %w", errUsage, err)
	}
	values.config = config

	return values, nil
}

func openQueue(config *Config, opts ...queue.Option) (*queue.Queue, error) {
	ctx, err := udev.NewContext(udev.WithSysfs(config.Sysfs), udev.WithRun(config.Run))
	if err != nil {
		return nil, err
	}
	q, err := queue.New(ctx, opts...)
	if err != nil {
		ctx.Close()
		return nil, err
	}
	return q, nil
}

func run(args []string, stdout, stderr io.Writer) int {
	values, err := initFlags(args, stderr)
	if err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return 0
		}
		fmt.Fprintln(stderr, err)
		if errors.Is(err, errUsage) {
			return 2
		}
		return 1
	}

	cmd, found := commands[values.args[0]]
	if !found {
		fmt.Fprintf(stderr, "unknown command %q\n", values.args[0])
		return 2
	}

	q, err := openQueue(values.config)
	if err != nil {
		klog.Errorf("Failed to open udev queue: %v", err)
		return 1
	}
	ctx := q.Context()
	defer ctx.Close()
	defer q.Close()

	e := &env{
		out:    stdout,
		queue:  q,
		config: values.config,
		values: values,
	}
	if err := cmd(e, values.args[1:]); err != nil {
		switch {
		case errors.Is(err, errUsage):
			fmt.Fprintln(stderr, err)
			return 2
		case errors.Is(err, errNotDone):
			return 1
		default:
			klog.Errorf("%s: %v", values.args[0], err)
			return 1
		}
	}
	return 0
}
