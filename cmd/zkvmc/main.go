// Package main implements the zkvmc CLI.
package main

import (
	"os"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"zkvmc/internal/version"
)

var rootCmd = &cobra.Command{
	Use:   "zkvmc",
	Short: "Yul and EVM legacy assembly compiler for the zkVM",
	Long:  `zkvmc lowers Yul objects and EVM legacy assembly to zkVM bytecode, links libraries and factory dependencies`,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		stopProf, err := setupProfiling(cmd)
		if err != nil {
			return err
		}
		stopTrace, err := setupTracing(cmd)
		if err != nil {
			stopProf()
			return err
		}
		cleanup = func(failed bool) {
			stopTrace(failed)
			stopProf()
		}
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		runCleanup(false)
	},
}

// cleanup is set by PersistentPreRunE; PersistentPostRun does not run when
// RunE fails, so main calls it too.
var cleanup func(failed bool)

func runCleanup(failed bool) {
	if cleanup != nil {
		cleanup(failed)
		cleanup = nil
	}
}

func init() {
	// Устанавливаем версию для автоматического флага --version
	rootCmd.Version = version.Version

	rootCmd.AddCommand(buildCmd)
	rootCmd.AddCommand(asmCmd)
	rootCmd.AddCommand(linkCmd)
	rootCmd.AddCommand(versionCmd)

	// Глобальные флаги
	rootCmd.PersistentFlags().String("color", "auto", "colorize output (auto|on|off)")
	rootCmd.PersistentFlags().Bool("quiet", false, "suppress non-essential output")
	rootCmd.PersistentFlags().Bool("timings", false, "show timing information")
	rootCmd.PersistentFlags().Int("max-diagnostics", 100, "maximum number of diagnostics to show")
	rootCmd.PersistentFlags().String("ui", "auto", "progress UI (auto|on|off)")
	rootCmd.PersistentFlags().Int("jobs", 0, "parallel compilation jobs (0 = GOMAXPROCS)")
	rootCmd.PersistentFlags().String("trace", "", "trace output file (- for stderr, *.ndjson for NDJSON)")
	rootCmd.PersistentFlags().String("trace-level", "off", "trace level (off|error|phase|detail|debug)")
	rootCmd.PersistentFlags().String("trace-mode", "stream", "trace storage (stream|ring|both)")
	rootCmd.PersistentFlags().Int("trace-ring-size", 4096, "ring buffer capacity in events")
	rootCmd.PersistentFlags().String("cpu-profile", "", "write a CPU profile to file")
	rootCmd.PersistentFlags().String("mem-profile", "", "write a heap profile to file on exit")
	rootCmd.PersistentFlags().String("runtime-trace", "", "write a Go runtime trace to file")
}

// main executes the root command. If command execution returns an error,
// the process exits with status code 1.
func main() {
	err := rootCmd.Execute()
	runCleanup(err != nil)
	if err != nil {
		os.Exit(1)
	}
}

// isTerminal проверяет, является ли файл терминалом
func isTerminal(f *os.File) bool {
	return term.IsTerminal(int(f.Fd()))
}

// terminalWidth returns the width of f clamped to 255, or 0 when f is not a
// terminal.
func terminalWidth(f *os.File) uint8 {
	if !isTerminal(f) {
		return 0
	}
	w, _, err := term.GetSize(int(f.Fd()))
	if err != nil || w <= 0 {
		return 0
	}
	return uint8(min(w, 255)) // #nosec G115 -- clamped
}
