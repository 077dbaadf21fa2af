package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"

	"signwise/adapters/jsonfile"
	sqlxAdapter "signwise/adapters/sqlx"
	"signwise/core"
	"signwise/engine"
	"signwise/notify"
	"signwise/streaks"
)

// pathEnv overrides the default store location.
const pathEnv = "SIGNWISE_CLI_PATH"

type rootFlags struct {
	store    string
	path     string
	device   string
	timezone string
	today    string
	verbose  bool
}

func newRootCmd() *cobra.Command {
	f := &rootFlags{}
	root := &cobra.Command{
		Use:           "signwise",
		Short:         "Daily sign-learning streaks from the terminal",
		SilenceUsage:  true,
		SilenceErrors: false,
	}
	pf := root.PersistentFlags()
	pf.StringVar(&f.store, "store", "file", "Local store: file or sqlite")
	pf.StringVar(&f.path, "path", "", "Store location (overrides "+pathEnv+")")
	pf.StringVar(&f.device, "device", "local", "Device id the streak belongs to")
	pf.StringVar(&f.timezone, "timezone", "", "IANA timezone deciding where a day starts (default local)")
	pf.StringVar(&f.today, "today", "", "Pretend today is YYYY-MM-DD")
	pf.BoolVarP(&f.verbose, "verbose", "v", false, "Debug logging on stderr")
	_ = pf.MarkHidden("today")

	root.AddCommand(
		newLearnCmd(f),
		newStatusCmd(f),
		newCheckCmd(f),
		newResetCmd(f),
		newRemindCmd(f),
	)
	return root
}

// resolvePath returns the store path using --path (highest priority),
// then SIGNWISE_CLI_PATH, then a file in the user's config directory.
func (f *rootFlags) resolvePath() (string, error) {
	p := f.path
	if p == "" {
		p = os.Getenv(pathEnv)
	}
	if p == "" {
		dir, err := os.UserConfigDir()
		if err != nil {
			return "", err
		}
		name := "streaks.json"
		if f.store == "sqlite" {
			name = "streaks.db"
		}
		p = filepath.Join(dir, "signwise", name)
	}
	if err := os.MkdirAll(filepath.Dir(p), 0o755); err != nil {
		return "", err
	}
	return p, nil
}

func (f *rootFlags) location() (*time.Location, error) {
	if f.timezone == "" {
		return time.Local, nil
	}
	return time.LoadLocation(f.timezone)
}

func (f *rootFlags) clock(loc *time.Location) (engine.Clock, error) {
	if f.today == "" {
		return engine.SystemClock{Location: loc}, nil
	}
	day, err := core.ParseDay(f.today)
	if err != nil {
		return nil, err
	}
	return engine.NewManualClock(day), nil
}

func (f *rootFlags) logger(errOut io.Writer) *slog.Logger {
	level := slog.LevelWarn
	if f.verbose {
		level = slog.LevelDebug
	}
	return slog.New(slog.NewTextHandler(errOut, &slog.HandlerOptions{Level: level}))
}

func (f *rootFlags) openStore(errOut io.Writer) (engine.KeyValueStore, func(), error) {
	path, err := f.resolvePath()
	if err != nil {
		return nil, nil, err
	}
	switch f.store {
	case "file":
		s, err := jsonfile.New(path)
		if err != nil {
			return nil, nil, err
		}
		if aside, ok := s.Quarantined(); ok {
			fmt.Fprintf(errOut, "warning: %s was unreadable, moved to %s; starting fresh\n", path, aside)
		}
		return s, func() {}, nil
	case "sqlite":
		cfg := sqlxAdapter.DefaultConfig(sqlxAdapter.DriverSQLite)
		cfg.DSN = path
		s, err := sqlxAdapter.New(cfg)
		if err != nil {
			return nil, nil, err
		}
		return s, func() { _ = s.Close() }, nil
	default:
		return nil, nil, fmt.Errorf("unknown store %q: want file or sqlite", f.store)
	}
}

// printSink writes each notification as one line.
func printSink(out io.Writer) notify.SinkFunc {
	return func(_ context.Context, n notify.Notification) error {
		_, err := fmt.Fprintf(out, "%s %s\n", n.Title, n.Body)
		return err
	}
}

// service opens the store and assembles a synchronous streak service.
func (f *rootFlags) service(cmd *cobra.Command, extra ...streaks.Option) (*streaks.Service, func(), error) {
	loc, err := f.location()
	if err != nil {
		return nil, nil, err
	}
	clk, err := f.clock(loc)
	if err != nil {
		return nil, nil, err
	}
	store, closeStore, err := f.openStore(cmd.ErrOrStderr())
	if err != nil {
		return nil, nil, err
	}
	logger := f.logger(cmd.ErrOrStderr())
	opts := append([]streaks.Option{
		streaks.WithStorage(store),
		streaks.WithClock(clk),
		streaks.WithDispatchMode(engine.DispatchSync),
		streaks.WithSinks(printSink(cmd.OutOrStdout()), notify.NewLogSink(logger)),
		streaks.WithLogger(logger),
	}, extra...)
	svc, err := streaks.New(opts...)
	if err != nil {
		closeStore()
		return nil, nil, err
	}
	return svc, func() {
		svc.Close()
		closeStore()
	}, nil
}
