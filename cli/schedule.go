package cli

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/pace-labs/wodflow/bus"
	"github.com/pace-labs/wodflow/clock"
	"github.com/pace-labs/wodflow/compose"
	"github.com/pace-labs/wodflow/loader"
	"github.com/pace-labs/wodflow/runtime"
	"github.com/pace-labs/wodflow/schedule"
)

// NewScheduleCmd creates the "schedule" subcommand.
func NewScheduleCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "schedule",
		Short: "Launch programs on a cron schedule",
		Long: "Run the session scheduler until interrupted, launching each " +
			"configured program when its cron expression fires. Scheduled runs " +
			"have no athlete at the controls, so blocks that wait for a press " +
			"are auto-advanced.",
		Args: cobra.NoArgs,
		RunE: runSchedule,
	}

	cmd.Flags().String("config", "", "Sessions YAML file (required)")
	cmd.Flags().Duration("poll", 5*time.Second, "How often to check for due sessions")
	cmd.Flags().Duration("tick", 250*time.Millisecond, "Tick interval for launched runs")
	cmd.Flags().String("record", "", "SQLite path for archiving launched runs")

	return cmd
}

func runSchedule(cmd *cobra.Command, args []string) error {
	configPath, _ := cmd.Flags().GetString("config")
	if configPath == "" {
		return exitError(exitUsage, "--config is required")
	}
	poll, _ := cmd.Flags().GetDuration("poll")
	tick, _ := cmd.Flags().GetDuration("tick")
	logger := newLoggerAt(cmd, slog.LevelInfo)

	sessions, err := schedule.LoadSessions(configPath)
	if err != nil {
		return exitError(exitRuntime, "loading sessions: %v", err)
	}

	var archive *bus.StoreSubscriber
	record, _ := cmd.Flags().GetString("record")
	if record != "" {
		store, err := bus.NewSQLiteStore(bus.SQLiteStoreConfig{DSN: record})
		if err != nil {
			return exitError(exitRuntime, "opening record store: %v", err)
		}
		defer store.Close()
		archive = bus.NewStoreSubscriber(store, logger)
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	sched, err := schedule.NewScheduler(schedule.SchedulerConfig{
		Sessions:     sessions,
		Start:        launchSession(ctx, logger, tick, archive),
		PollInterval: poll,
		Logger:       logger,
	})
	if err != nil {
		return exitError(exitRuntime, "building scheduler: %v", err)
	}

	if err := sched.Start(ctx); err != nil {
		return exitError(exitRuntime, "starting scheduler: %v", err)
	}
	logger.Info("scheduler running", "sessions", len(sessions), "poll", poll)

	<-ctx.Done()

	stopCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := sched.Stop(stopCtx); err != nil {
		return exitError(exitRuntime, "stopping scheduler: %v", err)
	}
	return nil
}

// launchSession returns the scheduler's launch function. Each launch loads
// the session's program fresh, so edits to the file take effect on the
// next firing, and drives its own engine to completion.
func launchSession(ctx context.Context, logger *slog.Logger, tick time.Duration, archive *bus.StoreSubscriber) func(schedule.Session) error {
	return func(sess schedule.Session) error {
		def, err := loader.Load(sess.Program)
		if err != nil {
			return fmt.Errorf("loading program: %w", err)
		}
		prog, err := compose.Compose(def)
		if err != nil {
			return fmt.Errorf("composing program: %w", err)
		}
		root, err := prog.Root()
		if err != nil {
			return fmt.Errorf("building root block: %w", err)
		}

		idle := newIdleWatch()
		handlers := []runtime.NotificationHandler{idle.handle}
		if archive != nil {
			handlers = append(handlers, archive.Handle)
		}

		rt := runtime.New(runtime.Config{
			Logger:  logger.With("session", sess.Name),
			Factory: prog,
			Handler: runtime.MultiNotificationHandler(handlers...),
		})
		if err := rt.Start(root); err != nil {
			return fmt.Errorf("starting run: %w", err)
		}

		driveScheduledRun(ctx, rt, tick, idle)
		return nil
	}
}

// driveScheduledRun ticks an unattended engine until the root pops or the
// scheduler shuts down. Idle blocks advance automatically.
func driveScheduledRun(ctx context.Context, rt *runtime.Runtime, tick time.Duration, idle *idleWatch) {
	ticks := make(chan time.Time, 1)
	ticker := clock.NewTicker(clock.TickerConfig{
		Interval: tick,
		OnTick: func(at time.Time) {
			select {
			case ticks <- at:
			default:
			}
		},
	})
	ticker.Start()
	defer ticker.Stop()

	for !rt.Finished() {
		select {
		case at := <-ticks:
			rt.Tick(at)
			if idle.idleFor(autoAdvancePause) {
				pressAdvance(rt)
				idle.touch()
			}
		case <-ctx.Done():
			rt.Cancel()
		}
	}
}
