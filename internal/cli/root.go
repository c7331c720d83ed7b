package cli

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/gophersatwork/compcache"
	"github.com/spf13/cobra"
)

const version = "0.1.0"

// Exit codes
const (
	ExitSuccess      = 0
	ExitMiss         = 1
	ExitUsageError   = 2
	ExitRuntimeError = 3
)

// app holds the state shared by one execution of the command tree.
type app struct {
	root     string
	backend  string
	exitCode int
}

// runtimeError marks failures that are not caused by the command line.
type runtimeError struct {
	err error
}

func (e *runtimeError) Error() string { return e.err.Error() }
func (e *runtimeError) Unwrap() error { return e.err }

// Run executes the root command and returns an exit code.
func Run() int {
	return execute(os.Args[1:], os.Stdout, os.Stderr)
}

func execute(args []string, stdout, stderr io.Writer) int {
	a := &app{exitCode: ExitSuccess}
	rootCmd := newRootCmd(a)
	rootCmd.SetArgs(args)
	rootCmd.SetOut(stdout)
	rootCmd.SetErr(stderr)

	if err := rootCmd.Execute(); err != nil {
		// Cobra already prints the error
		var rerr *runtimeError
		if errors.As(err, &rerr) {
			return ExitRuntimeError
		}
		return ExitUsageError
	}
	return a.exitCode
}

func newRootCmd(a *app) *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "compcache",
		Short: "Inspect and maintain the computation cache",
		Long: "Compcache computes fingerprints of units of work and reads and writes " +
			"their cached results in <root>/.tach/computation-cache.",
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			// Arguments are valid by now; later errors are not usage errors.
			cmd.SilenceUsage = true
		},
	}
	rootCmd.PersistentFlags().StringVar(&a.root, "root", ".", "Project root")
	rootCmd.PersistentFlags().StringVar(&a.backend, "backend", "", "Store backend (file, bolt); overrides COMPCACHE_BACKEND")

	rootCmd.AddCommand(newKeyCmd(a))
	rootCmd.AddCommand(newCheckCmd(a))
	rootCmd.AddCommand(newUpdateCmd(a))
	rootCmd.AddCommand(newStatsCmd(a))
	rootCmd.AddCommand(newClearCmd(a))
	rootCmd.AddCommand(&cobra.Command{
		Use:   "version",
		Short: "Print compcache version",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "compcache version %s\n", version)
		},
	})
	return rootCmd
}

// cache builds a Cache from the environment configuration and the flags.
// Logs go to the command's error stream.
func (a *app) cache(cmd *cobra.Command) (*compcache.Cache, error) {
	cfg, err := compcache.LoadConfig()
	if err != nil {
		return nil, err
	}
	if a.backend != "" {
		cfg.Backend = a.backend
	}

	level, err := cfg.Level()
	if err != nil {
		return nil, err
	}
	opts, err := cfg.Options()
	if err != nil {
		return nil, err
	}

	logger := slog.New(slog.NewTextHandler(cmd.ErrOrStderr(), &slog.HandlerOptions{Level: level}))
	return compcache.New(append(opts, compcache.WithLogger(logger))...), nil
}
