package cli

import (
	"bufio"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/pace-labs/wodflow/bus"
	"github.com/pace-labs/wodflow/clock"
	"github.com/pace-labs/wodflow/compose"
	"github.com/pace-labs/wodflow/core"
	"github.com/pace-labs/wodflow/events"
	"github.com/pace-labs/wodflow/loader"
	"github.com/pace-labs/wodflow/runtime"
)

// autoAdvancePause is how long a block must sit idle before --auto advances
// it. Timer blocks emit progress every tick and never count as idle.
const autoAdvancePause = 2 * time.Second

// minTickInterval floors the real tick period under --speed so a large
// multiplier cannot turn the ticker into a busy loop.
const minTickInterval = 10 * time.Millisecond

// NewRunCmd creates the "run" subcommand.
func NewRunCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run <program>",
		Short: "Execute a program file",
		Long: "Execute a program file, streaming output statements to stdout as " +
			"the run produces them. Interactive controls read from stdin: " +
			"a=advance, p=pause, r=resume, q=quit.",
		Args: cobra.ExactArgs(1),
		RunE: runRun,
	}

	cmd.Flags().Duration("tick", 250*time.Millisecond, "Tick interval")
	cmd.Flags().Float64("speed", 1.0, "Time multiplier for demo runs")
	cmd.Flags().Bool("auto", false, "Auto-advance blocks that wait for a control press")
	cmd.Flags().String("format", "text", "Statement stream format: text | json")
	cmd.Flags().String("record", "", "SQLite path for archiving the notification journal")

	return cmd
}

func runRun(cmd *cobra.Command, args []string) error {
	filePath := args[0]
	logger := newLogger(cmd)

	speed, _ := cmd.Flags().GetFloat64("speed")
	if speed <= 0 {
		return exitError(exitUsage, "--speed must be positive, got %v", speed)
	}
	format, _ := cmd.Flags().GetString("format")
	if format != "text" && format != "json" {
		return exitError(exitUsage, "unknown format %q (want text or json)", format)
	}

	prog, err := loadProgramForRun(cmd, filePath)
	if err != nil {
		return err
	}
	root, err := prog.Root()
	if err != nil {
		return exitError(exitRuntime, "building root block: %v", err)
	}

	idle := newIdleWatch()
	handler, closeHandlers, err := buildRunHandlers(cmd, logger, idle)
	if err != nil {
		return err
	}
	defer closeHandlers()

	clk := runClock(speed)
	rt := runtime.New(runtime.Config{
		Clock:   clk,
		Logger:  logger,
		Factory: prog,
		Handler: handler,
	})

	quiet, _ := cmd.Flags().GetBool("quiet")
	if !quiet {
		unsub := rt.Outputs().Subscribe(streamStatement(cmd.OutOrStdout(), format))
		defer unsub()
	}

	if err := rt.Start(root); err != nil {
		return exitError(exitRuntime, "starting run: %v", err)
	}

	return driveRun(cmd, rt, clk, speed, idle)
}

// loadProgramForRun loads, validates, and composes the program file.
func loadProgramForRun(cmd *cobra.Command, filePath string) (*compose.Program, error) {
	def, err := loader.Load(filePath)
	if err != nil {
		var diagErr *loader.DiagnosticError
		if errors.As(err, &diagErr) {
			printDiagnosticsText(cmd.ErrOrStderr(), diagErr.Diagnostics)
			return nil, exitError(exitValidation, "program failed validation")
		}
		if errors.Is(err, os.ErrNotExist) {
			return nil, exitError(exitRuntime, "file not found: %s", filePath)
		}
		return nil, exitError(exitRuntime, "loading program: %v", err)
	}

	prog, err := compose.Compose(def)
	if err != nil {
		return nil, exitError(exitRuntime, "composing program: %v", err)
	}
	return prog, nil
}

// buildRunHandlers assembles the notification handler chain: the idle
// watch that --auto consults, plus the SQLite archive when --record is
// set. The returned close function releases whatever was opened.
func buildRunHandlers(cmd *cobra.Command, logger *slog.Logger, idle *idleWatch) (runtime.NotificationHandler, func(), error) {
	handlers := []runtime.NotificationHandler{idle.handle}
	closeHandlers := func() {}

	record, _ := cmd.Flags().GetString("record")
	if record != "" {
		store, err := bus.NewSQLiteStore(bus.SQLiteStoreConfig{DSN: record})
		if err != nil {
			return nil, nil, exitError(exitRuntime, "opening record store: %v", err)
		}
		sub := bus.NewStoreSubscriber(store, logger)
		handlers = append(handlers, sub.Handle)
		closeHandlers = func() {
			if err := store.Close(); err != nil {
				logger.Error("closing record store", "error", err)
			}
		}
	}

	return runtime.MultiNotificationHandler(handlers...), closeHandlers, nil
}

// runClock picks the engine clock: system time at speed 1, a scaled clock
// otherwise.
func runClock(speed float64) clock.Clock {
	if speed == 1.0 {
		return clock.System()
	}
	return newScaledClock(speed)
}

// driveRun owns the engine until the root pops. All engine calls happen on
// this goroutine; the ticker and the stdin reader only feed channels.
func driveRun(cmd *cobra.Command, rt *runtime.Runtime, clk clock.Clock, speed float64, idle *idleWatch) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	tick, _ := cmd.Flags().GetDuration("tick")
	auto, _ := cmd.Flags().GetBool("auto")

	// Under --speed the ticker fires faster so the scaled step per tick
	// stays near the requested interval.
	interval := tick
	if speed != 1.0 {
		interval = time.Duration(float64(tick) / speed)
		if interval < minTickInterval {
			interval = minTickInterval
		}
	}

	// A 1-buffered channel with a non-blocking send coalesces ticks when
	// the engine falls behind instead of queueing them.
	ticks := make(chan time.Time, 1)
	ticker := clock.NewTicker(clock.TickerConfig{
		Interval: interval,
		Clock:    clk,
		OnTick: func(at time.Time) {
			select {
			case ticks <- at:
			default:
			}
		},
	})
	ticker.Start()
	defer ticker.Stop()

	keys := readControls(cmd.InOrStdin())

	for !rt.Finished() {
		select {
		case at := <-ticks:
			rt.Tick(at)
			if auto && idle.idleFor(autoAdvancePause) {
				pressAdvance(rt)
				idle.touch()
			}
		case line, ok := <-keys:
			if !ok {
				// stdin closed; keep ticking.
				keys = nil
				continue
			}
			applyControl(rt, line)
		case <-ctx.Done():
			rt.Cancel()
		}
	}
	return nil
}

// readControls reads stdin lines on a background goroutine and feeds them
// to the returned channel, closed on EOF. The goroutine lives until its
// next read completes; the process exits with the run, so it is never
// reaped explicitly.
func readControls(in io.Reader) <-chan string {
	keys := make(chan string)
	go func() {
		defer close(keys)
		sc := bufio.NewScanner(in)
		for sc.Scan() {
			keys <- strings.TrimSpace(sc.Text())
		}
	}()
	return keys
}

// applyControl translates one stdin line into a control press. An empty
// line advances, matching the "press enter to continue" habit.
func applyControl(rt *runtime.Runtime, line string) {
	switch line {
	case "a", "advance", "":
		pressAdvance(rt)
	case "p", "pause":
		rt.Dispatch(events.New(events.ControlPause, events.ScopeActive))
	case "r", "resume":
		rt.Dispatch(events.New(events.ControlResume, events.ScopeActive))
	case "q", "quit":
		rt.Cancel()
	}
}

// pressAdvance dispatches the advance press. Active scope means only the
// top block hears it, and its controls cell decides what the press does.
func pressAdvance(rt *runtime.Runtime) {
	rt.Dispatch(events.New(events.ControlAdvance, events.ScopeActive))
}

// idleWatch tracks how long the run has gone without a notification. A
// ticking timer block reports progress every tick and never reads as idle;
// a block waiting on a control press produces nothing and does. That is
// the distinction --auto needs. The handler runs synchronously inside
// engine calls on the driving goroutine, so last needs no lock.
type idleWatch struct {
	last time.Time
}

func newIdleWatch() *idleWatch {
	return &idleWatch{last: time.Now()}
}

func (w *idleWatch) handle(runtime.Notification) {
	w.last = time.Now()
}

func (w *idleWatch) idleFor(d time.Duration) bool {
	return time.Since(w.last) >= d
}

func (w *idleWatch) touch() {
	w.last = time.Now()
}

// streamStatement returns the output subscriber for the requested format.
func streamStatement(w io.Writer, format string) func(core.OutputStatement) {
	if format == "json" {
		enc := json.NewEncoder(w)
		return func(s core.OutputStatement) {
			_ = enc.Encode(statementJSON(s))
		}
	}
	return func(s core.OutputStatement) {
		fmt.Fprintln(w, formatStatementText(s))
	}
}

// formatStatementText renders one statement as a stream line: clock time,
// type, fragments, and for closed windows the covered duration. The type
// column is padded past "completion", the longest name.
func formatStatementText(s core.OutputStatement) string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s  %-11s", s.Time.UTC().Format("15:04:05"), s.Type)

	parts := make([]string, 0, len(s.Fragments))
	for _, f := range s.Fragments {
		if f.Value != "" {
			parts = append(parts, f.Value)
		}
	}
	b.WriteString(strings.Join(parts, " "))

	if s.Window.Closed() {
		fmt.Fprintf(&b, " (%s)", s.Window.Stop.Sub(s.Window.Start).Round(time.Second))
	}
	return strings.TrimRight(b.String(), " ")
}

// statementView is the JSON shape of one streamed statement.
type statementView struct {
	Seq       uint64         `json:"seq"`
	Type      string         `json:"type"`
	Block     string         `json:"block"`
	Statement int            `json:"statement"`
	Depth     int            `json:"depth"`
	Time      time.Time      `json:"time"`
	Start     *time.Time     `json:"start,omitempty"`
	Stop      *time.Time     `json:"stop,omitempty"`
	Fragments []fragmentView `json:"fragments"`
}

type fragmentView struct {
	Type   string `json:"type"`
	Value  string `json:"value"`
	Origin string `json:"origin"`
}

func statementJSON(s core.OutputStatement) statementView {
	v := statementView{
		Seq:       s.Seq,
		Type:      s.Type.String(),
		Block:     s.Block.String(),
		Statement: int(s.Statement),
		Depth:     s.Depth,
		Time:      s.Time,
		Fragments: make([]fragmentView, 0, len(s.Fragments)),
	}
	if !s.Window.Start.IsZero() {
		start := s.Window.Start
		v.Start = &start
	}
	if !s.Window.Stop.IsZero() {
		stop := s.Window.Stop
		v.Stop = &stop
	}
	for _, f := range s.Fragments {
		v.Fragments = append(v.Fragments, fragmentView{
			Type:   f.Type.String(),
			Value:  f.Value,
			Origin: string(f.Origin),
		})
	}
	return v
}

// scaledClock runs time at a multiple of real time, for demo runs. Zero is
// not a valid factor; the flag check rejects it before construction.
type scaledClock struct {
	base   time.Time
	start  time.Time
	factor float64
}

func newScaledClock(factor float64) *scaledClock {
	now := time.Now()
	return &scaledClock{base: now, start: now, factor: factor}
}

func (c *scaledClock) Now() time.Time {
	elapsed := time.Since(c.start)
	return c.base.Add(time.Duration(float64(elapsed) * c.factor))
}

// newLogger builds the logger commands hand to the engine. The warn
// baseline keeps engine diagnostics out of the statement stream.
func newLogger(cmd *cobra.Command) *slog.Logger {
	return newLoggerAt(cmd, slog.LevelWarn)
}

// newLoggerAt builds a logger at the given baseline level; --verbose drops
// it to debug and --quiet raises it to error.
func newLoggerAt(cmd *cobra.Command, level slog.Level) *slog.Logger {
	verbose, _ := cmd.Flags().GetBool("verbose")
	quiet, _ := cmd.Flags().GetBool("quiet")

	switch {
	case quiet:
		level = slog.LevelError
	case verbose:
		level = slog.LevelDebug
	}

	return slog.New(slog.NewTextHandler(cmd.ErrOrStderr(), &slog.HandlerOptions{Level: level}))
}
