package cmd

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/sessionmcp/sessionmcp/internal/env"
)

// doctorCheck is one preflight diagnostic (SPEC_FULL.md "Supplemented
// Features: doctor command").
type doctorCheck struct {
	name string
	run  func() error
}

func newDoctorCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "doctor",
		Short: "Run preflight diagnostics against the configured storage directory",
		RunE: func(c *cobra.Command, _ []string) error {
			return runDoctor(c)
		},
	}
}

func runDoctor(c *cobra.Command) error {
	cfg, err := loadConfig()
	if err != nil {
		return withExitCode(1, fmt.Errorf("load configuration: %w", err))
	}

	claudeDir := resolveClaudeDir()

	checks := []doctorCheck{
		{"storage directory writable", func() error { return checkWritable(cfg.StorageDir) }},
		{"transcript producer directory readable", func() error { return checkReadable(claudeDir) }},
		{"configuration valid", cfg.Validate},
		{"environment assembles (registry, vector store, embedding cache)", func() error {
			logger, cleanup, err := setupLogger()
			if err != nil {
				return err
			}
			defer cleanup()
			e, err := env.Open(cfg, claudeDir, logger)
			if err != nil {
				return err
			}
			return e.Close()
		}},
	}

	failures := 0
	for _, check := range checks {
		err := check.run()
		if err != nil {
			failures++
			printResult(c, check.name, false)
			fmt.Fprintf(c.OutOrStdout(), "    %s\n", err)
			continue
		}
		printResult(c, check.name, true)
	}

	if failures > 0 {
		return withExitCode(1, fmt.Errorf("doctor: %d check(s) failed", failures))
	}
	return nil
}

func printResult(c *cobra.Command, name string, ok bool) {
	if color.NoColor {
		mark := "FAIL"
		if ok {
			mark = "OK"
		}
		fmt.Fprintf(c.OutOrStdout(), "[%s] %s\n", mark, name)
		return
	}
	if ok {
		color.New(color.FgGreen).Fprintf(c.OutOrStdout(), "[OK]   ")
	} else {
		color.New(color.FgRed).Fprintf(c.OutOrStdout(), "[FAIL] ")
	}
	fmt.Fprintln(c.OutOrStdout(), name)
}

func checkWritable(dir string) error {
	if dir == "" {
		return fmt.Errorf("storage directory not configured")
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create %s: %w", dir, err)
	}
	probe := filepath.Join(dir, ".doctor-probe")
	if err := os.WriteFile(probe, []byte("ok"), 0o644); err != nil {
		return fmt.Errorf("write probe file in %s: %w", dir, err)
	}
	return os.Remove(probe)
}

func checkReadable(dir string) error {
	if dir == "" {
		return fmt.Errorf("producer directory not configured")
	}
	info, err := os.Stat(dir)
	if err != nil {
		return fmt.Errorf("stat %s: %w", dir, err)
	}
	if !info.IsDir() {
		return fmt.Errorf("%s is not a directory", dir)
	}
	return nil
}
