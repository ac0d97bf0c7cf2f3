package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/gymflow/gymflow/cmd/gymctl/cli"
	"github.com/gymflow/gymflow/internal/app"
	"github.com/gymflow/gymflow/internal/observability"
	"github.com/gymflow/gymflow/internal/users"
	"github.com/gymflow/gymflow/internal/usersync"
)

const usage = `usage: gymctl [global flags] <command> [flags]

commands:
  list      print users (--refresh revalidates first)
  create    add a user (--name, --role, --dob)
  update    change a user (--id, --name, --role, --dob)
  remove    delete a user (--id)
  watch     print every change until interrupted
  jobs      backup | stats | scheduled (requires --redis or GYMFLOW_REDIS_ADDR)

global flags:
`

type globalFlags struct {
	profile     string
	json        bool
	verbose     bool
	metricsAddr string
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	code := run(ctx, os.Args[1:], os.Stdout, os.Stderr)
	stop()
	os.Exit(code)
}

func run(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	var g globalFlags
	fs := flag.NewFlagSet("gymctl", flag.ContinueOnError)
	fs.SetOutput(stderr)
	fs.StringVar(&g.profile, "profile", os.Getenv("GYMFLOW_PROFILE"), "YAML client profile")
	fs.BoolVar(&g.json, "json", false, "print JSON instead of tables")
	fs.BoolVar(&g.verbose, "v", false, "debug logging")
	fs.StringVar(&g.metricsAddr, "metrics-addr", "", "serve store metrics on this address")
	fs.Usage = func() {
		_, _ = fmt.Fprint(stderr, usage)
		fs.PrintDefaults()
	}
	if err := fs.Parse(args); err != nil {
		return 2
	}
	if fs.NArg() == 0 {
		fs.Usage()
		return 2
	}

	cfg, err := app.LoadClientConfig(g.profile)
	if err != nil {
		_, _ = fmt.Fprintf(stderr, "gymctl: %v\n", err)
		return 1
	}
	level := slog.LevelWarn
	if g.verbose {
		level = slog.LevelDebug
	}
	logger := app.NewClientLogger(cfg, level)
	out := cli.Output{JSON: g.json, Stdout: stdout, Stderr: stderr}

	command, rest := fs.Arg(0), fs.Args()[1:]
	if command == "jobs" {
		return runJobs(ctx, cfg, rest, out)
	}
	return runUsers(ctx, cfg, g, logger, command, rest, out)
}

func runUsers(ctx context.Context, cfg *app.ClientConfig, g globalFlags, logger *slog.Logger, command string, args []string, out cli.Output) int {
	fs := flag.NewFlagSet(command, flag.ContinueOnError)
	fs.SetOutput(out.Stderr)
	id := fs.String("id", "", "user id")
	name := fs.String("name", "", "full name")
	role := fs.String("role", "", "STAFF or MEMBER")
	dob := fs.String("dob", "", "date of birth, RFC 3339")
	refresh := fs.Bool("refresh", false, "revalidate before printing")
	if err := fs.Parse(args); err != nil {
		return cli.ExitValidation
	}
	switch command {
	case "list", "create", "update", "remove", "watch":
	default:
		_, _ = fmt.Fprintf(out.Stderr, "gymctl: unknown command %q\n", command)
		return cli.ExitValidation
	}

	var metrics *observability.Metrics
	var storeMetrics *usersync.Metrics
	if g.metricsAddr != "" {
		metrics = observability.NewMetrics()
		storeMetrics = usersync.NewMetrics(metrics.Registerer())
	}

	foreground := make(chan struct{}, 1)
	hup := make(chan os.Signal, 1)
	signal.Notify(hup, syscall.SIGHUP)
	defer signal.Stop(hup)

	store, release, err := app.OpenStore(ctx, cfg, app.StoreOptions{
		Logger:     logger,
		Metrics:    storeMetrics,
		Foreground: foreground,
	})
	if err != nil {
		_, _ = fmt.Fprintf(out.Stderr, "gymctl: %v\n", err)
		return cli.ExitFailure
	}
	defer func() {
		if err := release(); err != nil {
			logger.Warn("close store", slog.Any("error", err))
		}
	}()

	usersCLI, err := cli.NewUsersCLI(store)
	if err != nil {
		_, _ = fmt.Fprintf(out.Stderr, "gymctl: %v\n", err)
		return cli.ExitFailure
	}

	group, gctx := errgroup.WithContext(ctx)
	cmdCtx, cancel := context.WithCancel(gctx)
	defer cancel()

	var server *http.Server
	if metrics != nil {
		server = &http.Server{Addr: g.metricsAddr, Handler: metrics.Handler(), ReadHeaderTimeout: 5 * time.Second}
		group.Go(func() error {
			logger.Info("serving store metrics", slog.String("addr", g.metricsAddr))
			if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return err
			}
			return nil
		})
	}
	group.Go(func() error {
		for {
			select {
			case <-cmdCtx.Done():
				return nil
			case <-hup:
				select {
				case foreground <- struct{}{}:
				default:
				}
			}
		}
	})

	code := cli.ExitOK
	group.Go(func() error {
		defer cancel()
		if server != nil {
			defer func() {
				shutdownCtx, done := context.WithTimeout(context.Background(), 5*time.Second)
				defer done()
				_ = server.Shutdown(shutdownCtx)
			}()
		}
		switch command {
		case "list":
			code = usersCLI.ListCommand(cmdCtx, cli.ListOptions{Output: out, Refresh: *refresh})
		case "create":
			in := users.CreateInput{FullName: *name, Role: users.Role(*role), DateOfBirth: optional(*dob)}
			code = usersCLI.CreateCommand(cmdCtx, cli.CreateOptions{Output: out, Input: in})
		case "update":
			in := users.UpdateInput{FullName: optional(*name), DateOfBirth: optional(*dob)}
			if *role != "" {
				r := users.Role(*role)
				in.Role = &r
			}
			code = usersCLI.UpdateCommand(cmdCtx, cli.UpdateOptions{Output: out, ID: *id, Input: in})
		case "remove":
			code = usersCLI.RemoveCommand(cmdCtx, cli.RemoveOptions{Output: out, ID: *id})
		case "watch":
			code = usersCLI.WatchCommand(cmdCtx, cli.WatchOptions{Output: out})
		}
		return nil
	})

	if err := group.Wait(); err != nil {
		_, _ = fmt.Fprintf(out.Stderr, "gymctl: %v\n", err)
		if code == cli.ExitOK {
			code = cli.ExitFailure
		}
	}
	return code
}

func runJobs(ctx context.Context, cfg *app.ClientConfig, args []string, out cli.Output) int {
	fs := flag.NewFlagSet("jobs", flag.ContinueOnError)
	fs.SetOutput(out.Stderr)
	redisAddr := fs.String("redis", cfg.RedisAddr, "Redis address of the job queue")
	reason := fs.String("reason", "manual", "backup reason")
	size := fs.Int("size", 10, "number of scheduled tasks to list")
	if err := fs.Parse(args); err != nil {
		return cli.ExitValidation
	}
	if fs.NArg() == 0 {
		_, _ = fmt.Fprintln(out.Stderr, "jobs: expected backup, stats or scheduled")
		return cli.ExitValidation
	}

	jobsCLI, err := cli.NewJobsCLI(*redisAddr)
	if err != nil {
		_, _ = fmt.Fprintf(out.Stderr, "gymctl: %v\n", err)
		return cli.ExitFailure
	}
	defer func() { _ = jobsCLI.Close() }()

	switch fs.Arg(0) {
	case "backup":
		return jobsCLI.BackupCommand(ctx, *reason, out)
	case "stats":
		return jobsCLI.StatsCommand(out)
	case "scheduled":
		return jobsCLI.ScheduledCommand(*size, out)
	default:
		_, _ = fmt.Fprintf(out.Stderr, "jobs: unknown subcommand %q\n", fs.Arg(0))
		return cli.ExitValidation
	}
}

func optional(v string) *string {
	if v == "" {
		return nil
	}
	return &v
}
