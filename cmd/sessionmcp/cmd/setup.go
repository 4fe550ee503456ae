package cmd

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/fatih/color"
	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"

	"github.com/sessionmcp/sessionmcp/internal/env"
	"github.com/sessionmcp/sessionmcp/internal/setup"
)

// setupFlags mirrors spec.md §6's bulk-setup CLI surface verbatim.
var setupFlags struct {
	batchMode     bool
	batchSize     int
	useCPU        bool
	timeout       int
	workers       int
	resume        bool
	retryTimeouts bool
}

func newSetupCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "setup",
		Short: "Bulk-index every transcript under the producer's root (spec.md §4.11)",
		Long: `First-run (and on-demand) bulk indexing of every transcript under
--claude-dir. Supports resumable checkpoints, a per-session timeout, and
either sequential in-process batches or a parallel worker pool.`,
		RunE: func(c *cobra.Command, _ []string) error {
			return runSetup(c)
		},
	}

	cmd.Flags().BoolVar(&setupFlags.batchMode, "batch-mode", false, "Process sessions in batches of --batch-size, one batch after another, inside this process (no child worker process is spawned)")
	cmd.Flags().IntVar(&setupFlags.batchSize, "batch-size", 5, "Sessions per batch in --batch-mode")
	cmd.Flags().BoolVar(&setupFlags.useCPU, "use-cpu", false, "Force CPU-only embedding (no GPU selection)")
	cmd.Flags().IntVar(&setupFlags.timeout, "timeout", 0, "Per-session cooperative deadline in seconds (default from config)")
	cmd.Flags().IntVar(&setupFlags.workers, "workers", 0, "Parallel workers (default from config)")
	cmd.Flags().BoolVar(&setupFlags.resume, "resume", false, "Skip paths setup_state.json already marked processed")
	cmd.Flags().BoolVar(&setupFlags.retryTimeouts, "retry-timeouts", false, "Re-queue paths previously recorded as timed out")

	return cmd
}

func runSetup(c *cobra.Command) error {
	if setupFlags.batchSize < 0 {
		return invalidArgsError("--batch-size must not be negative")
	}
	if setupFlags.workers < 0 {
		return invalidArgsError("--workers must not be negative")
	}

	ctx, stop := signal.NotifyContext(c.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := loadConfig()
	if err != nil {
		return withExitCode(1, err)
	}
	cfg.Setup.UseCPU = setupFlags.useCPU

	logger, cleanupLogging, err := setupLogger()
	if err != nil {
		return withExitCode(1, fmt.Errorf("set up logging: %w", err))
	}
	defer cleanupLogging()

	claudeDir := resolveClaudeDir()
	if claudeDir == "" {
		return invalidArgsError("--claude-dir (or PRODUCER_DIR) must resolve to a directory")
	}

	environment, err := env.Open(cfg, claudeDir, logger)
	if err != nil {
		return withExitCode(1, fmt.Errorf("assemble environment: %w", err))
	}
	defer func() { _ = environment.Close() }()

	emitter := newCLIProgressEmitter(c.OutOrStdout())
	orchestrator := environment.NewSetupOrchestrator(emitter.Emit)

	opts := setup.Options{
		Root:           claudeDir,
		BatchMode:      setupFlags.batchMode,
		BatchSize:      setupFlags.batchSize,
		Workers:        setupFlags.workers,
		TimeoutPerFile: time.Duration(setupFlags.timeout) * time.Second,
		Resume:         setupFlags.resume,
		RetryTimeouts:  setupFlags.retryTimeouts,
	}

	result, err := orchestrator.Run(ctx, opts)
	emitter.Done(result)
	if err != nil {
		return withExitCode(1, err)
	}

	switch result.Outcome {
	case setup.OutcomeSuccess:
		return nil
	case setup.OutcomeInterrupted:
		return interruptedError(fmt.Errorf("setup interrupted after %d/%d sessions; re-run with --resume", len(result.Processed), result.TotalSessions))
	default:
		return withExitCode(1, fmt.Errorf("setup failed: %d session(s) errored, %d timed out", len(result.Failed), len(result.TimedOut)))
	}
}

// cliProgressEmitter renders setup.Progress snapshots: a live bar on a
// terminal (spec.md §4.11 "Emits progress every N sessions"), or plain
// color-free lines when stdout isn't a TTY (CI, redirected output, or a
// setup invocation launched by the daemon itself).
type cliProgressEmitter struct {
	bar *progressbar.ProgressBar
	out *os.File
	tty bool
}

func newCLIProgressEmitter(w any) *cliProgressEmitter {
	f, _ := w.(*os.File)
	tty := setup.IsInteractive(f)

	e := &cliProgressEmitter{out: f, tty: tty}
	if tty {
		e.bar = progressbar.NewOptions(-1,
			progressbar.OptionSetDescription("indexing transcripts"),
			progressbar.OptionSetWriter(f),
			progressbar.OptionShowCount(),
			progressbar.OptionShowIts(),
			progressbar.OptionSetPredictTime(true),
			progressbar.OptionClearOnFinish(),
		)
	}
	return e
}

func (e *cliProgressEmitter) Emit(p setup.Progress) {
	if e.tty && e.bar != nil {
		e.bar.ChangeMax(p.Total)
		e.bar.Describe(fmt.Sprintf("indexing %s", p.CurrentFile))
		_ = e.bar.Set(p.Processed)
		return
	}
	fmt.Printf("[setup] %d/%d elapsed=%s eta=%s file=%s\n",
		p.Processed, p.Total, p.Elapsed.Round(time.Second), p.ETA.Round(time.Second), p.CurrentFile)
}

func (e *cliProgressEmitter) Done(result setup.Result) {
	summary := fmt.Sprintf("setup %s: processed=%d timed_out=%d failed=%d",
		result.Outcome, len(result.Processed), len(result.TimedOut), len(result.Failed))
	if e.tty && e.bar != nil {
		_ = e.bar.Finish()
	}
	if color.NoColor {
		fmt.Println(summary)
		return
	}
	switch result.Outcome {
	case setup.OutcomeSuccess:
		color.Green(summary)
	case setup.OutcomeInterrupted:
		color.Yellow(summary)
	default:
		color.Red(summary)
	}
}
