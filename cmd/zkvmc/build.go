package main

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"zkvmc/internal/buildpipeline"
	"zkvmc/internal/cache"
	"zkvmc/internal/diag"
	"zkvmc/internal/diagfmt"
	"zkvmc/internal/observ"
	"zkvmc/internal/project"
	"zkvmc/internal/source"
	"zkvmc/internal/version"
)

const noManifestMessage = "no input files and no " + project.ManifestName + " found; pass files or run inside a project"

var buildCmd = &cobra.Command{
	Use:   "build [flags] [files...]",
	Short: "Compile Yul and EVM legacy assembly contracts",
	Long: `Compile the given files, or the inputs listed in zkvmc.toml when no files are given.
Accepted inputs: *.yul, *.yul.json, *.evmla.json, *.asm.json and standard JSON (*.json).`,
	RunE: buildExecution,
}

func init() {
	buildCmd.Flags().StringP("opt", "O", "", "optimization level (0|1|2|3|s|z)")
	buildCmd.Flags().StringSliceP("library", "l", nil, "library address <file>:<Name>=0x<address> (repeatable)")
	buildCmd.Flags().Bool("allow-placeholders", false, "leave unresolved libraries as placeholders")
	buildCmd.Flags().Bool("emit-asm", false, "write target assembly next to each artifact")
	buildCmd.Flags().Bool("emit-llvm", false, "write LLVM IR next to each artifact")
	buildCmd.Flags().Bool("emit-native", false, "write native IR dumps next to each artifact")
	buildCmd.Flags().StringP("out", "o", "", "output directory (default out)")
	buildCmd.Flags().StringSlice("contracts", nil, "contracts to write (<file>:<Name>, <file>:* or *)")
	buildCmd.Flags().StringSlice("suppress", nil, "error kinds to downgrade to warnings (selfdestruct|extcodecopy|callcode|pc|blob)")
	buildCmd.Flags().String("cache", "", "artifact cache directory")
	buildCmd.Flags().Bool("no-cache", false, "do not read or write the artifact cache")
	buildCmd.Flags().Bool("clean-cache", false, "drop the artifact cache before building")
	buildCmd.Flags().String("format", "pretty", "diagnostics format (pretty|short|json|sarif)")
	buildCmd.Flags().String("path-mode", "auto", "file paths in diagnostics (auto|absolute|relative|basename)")
}

type buildOptions struct {
	settings project.Settings
	libs     project.Libraries
	inputs   []string
	outDir   string
	baseDir  string
	format   string
	pathMode diagfmt.PathMode
	noCache  bool
	clean    bool
}

func buildExecution(cmd *cobra.Command, args []string) error {
	opts, err := readBuildOptions(cmd, args)
	if err != nil {
		return err
	}
	quiet, err := cmd.Root().PersistentFlags().GetBool("quiet")
	if err != nil {
		return fmt.Errorf("failed to get quiet flag: %w", err)
	}
	showTimings, err := cmd.Root().PersistentFlags().GetBool("timings")
	if err != nil {
		return fmt.Errorf("failed to get timings flag: %w", err)
	}
	maxDiagnostics, err := cmd.Root().PersistentFlags().GetInt("max-diagnostics")
	if err != nil {
		return fmt.Errorf("failed to get max-diagnostics flag: %w", err)
	}
	uiValue, err := cmd.Root().PersistentFlags().GetString("ui")
	if err != nil {
		return fmt.Errorf("failed to get ui flag: %w", err)
	}
	uiModeValue, err := readUIMode(uiValue)
	if err != nil {
		return err
	}

	var timer *observ.Timer
	if showTimings {
		timer = observ.NewTimer()
	}

	fs := source.NewFileSet()
	loadBag := diag.NewBag(maxDiagnostics)
	idx := timer.Begin("load")
	proj, loadErr := loadProject(fs, loadBag, opts)
	timer.End(idx, fmt.Sprintf("%d inputs", len(opts.inputs)))
	if loadErr != nil {
		if err := printDiagnostics(cmd, loadBag, fs, opts); err != nil {
			return err
		}
		return loadErr
	}

	var c *cache.Cache
	if !opts.noCache && opts.settings.CacheDir != "" {
		c, err = cache.Open(opts.settings.CacheDir)
		if err != nil {
			return fmt.Errorf("cache: %w", err)
		}
		if opts.clean {
			if err := c.DropAll(); err != nil {
				return fmt.Errorf("cache: %w", err)
			}
		}
	}

	req := &buildpipeline.BuildRequest{
		Project:        proj,
		Cache:          c,
		Timer:          timer,
		MaxDiagnostics: maxDiagnostics,
	}
	var (
		res      *buildpipeline.BuildResult
		buildErr error
	)
	if shouldUseTUI(uiModeValue, quiet, opts.format) {
		res, buildErr = runBuildWithUI(cmd.Context(), "zkvmc build", opts.baseDir, req)
	} else {
		res, buildErr = buildpipeline.Build(cmd.Context(), req)
	}
	if res == nil {
		return buildErr
	}

	res.Bag.Merge(loadBag)
	if err := printDiagnostics(cmd, res.Bag, fs, opts); err != nil {
		return err
	}
	if buildErr != nil && !errors.Is(buildErr, buildpipeline.ErrBuildFailed) {
		return buildErr
	}

	if len(res.Artifacts) > 0 {
		idx = timer.Begin(string(buildpipeline.StageOutput))
		written, err := buildpipeline.WriteArtifacts(opts.outDir, res.Artifacts)
		timer.End(idx, fmt.Sprintf("%d files", len(written)))
		if err != nil {
			return err
		}
		if !quiet {
			if err := printSummary(cmd.ErrOrStderr(), res, written, opts); err != nil {
				return err
			}
		}
	}
	if showTimings {
		if err := printStageTimings(cmd.ErrOrStderr(), res.Timings, timer); err != nil {
			return err
		}
	}
	return buildErr
}

// readBuildOptions merges zkvmc.toml (when present) with the command-line
// flags; flags that were set explicitly win.
func readBuildOptions(cmd *cobra.Command, args []string) (*buildOptions, error) {
	opts := &buildOptions{libs: make(project.Libraries)}
	manifest, found, err := project.LoadProjectManifest(".")
	if err != nil {
		return nil, err
	}
	if found {
		if opts.settings, err = manifest.Settings(); err != nil {
			return nil, err
		}
		libs, err := manifest.LibraryTable()
		if err != nil {
			return nil, err
		}
		opts.libs.Merge(libs)
		opts.outDir = manifest.OutputDir()
		opts.baseDir = manifest.Root
		if len(args) == 0 {
			if opts.inputs, err = manifest.InputFiles(); err != nil {
				return nil, err
			}
		}
	}
	if len(args) > 0 {
		opts.inputs = args
	}
	if len(opts.inputs) == 0 {
		return nil, errors.New(noManifestMessage)
	}
	if opts.baseDir == "" {
		if cwd, err := os.Getwd(); err == nil {
			opts.baseDir = cwd
		}
	}

	flags := cmd.Flags()
	if flags.Changed("opt") {
		v, _ := flags.GetString("opt")
		if opts.settings.Optimizer, err = project.ParseOptLevel(v); err != nil {
			return nil, fmt.Errorf("--opt: %w", err)
		}
	}
	if flags.Changed("library") {
		v, _ := flags.GetStringSlice("library")
		libs, err := project.ParseLibraries(v)
		if err != nil {
			return nil, fmt.Errorf("--library: %w", err)
		}
		opts.libs.Merge(libs)
	}
	if flags.Changed("allow-placeholders") {
		opts.settings.AllowPlaceholders, _ = flags.GetBool("allow-placeholders")
	}
	if flags.Changed("emit-asm") {
		opts.settings.EmitAssembly, _ = flags.GetBool("emit-asm")
	}
	if flags.Changed("emit-llvm") {
		opts.settings.EmitLLVM, _ = flags.GetBool("emit-llvm")
	}
	if flags.Changed("emit-native") {
		opts.settings.EmitNative, _ = flags.GetBool("emit-native")
	}
	if flags.Changed("contracts") {
		contracts, _ := flags.GetStringSlice("contracts")
		opts.settings.Contracts = nil
		for _, c := range contracts {
			if c == "*" || strings.HasSuffix(c, ":*") {
				opts.settings.Contracts = append(opts.settings.Contracts, c)
				continue
			}
			name, err := project.NormalizeName(c)
			if err != nil {
				return nil, fmt.Errorf("--contracts: %w", err)
			}
			opts.settings.Contracts = append(opts.settings.Contracts, name)
		}
	}
	if flags.Changed("suppress") {
		v, _ := flags.GetStringSlice("suppress")
		if opts.settings.Suppressed, err = project.NormalizeSuppressed(v); err != nil {
			return nil, fmt.Errorf("--suppress: %w", err)
		}
	}
	if flags.Changed("cache") {
		opts.settings.CacheDir, _ = flags.GetString("cache")
	}
	if cmd.Root().PersistentFlags().Changed("jobs") {
		opts.settings.Jobs, _ = cmd.Root().PersistentFlags().GetInt("jobs")
	}
	if flags.Changed("out") || opts.outDir == "" {
		out, _ := flags.GetString("out")
		if out == "" {
			out = "out"
		}
		opts.outDir = out
	}
	opts.noCache, _ = flags.GetBool("no-cache")
	opts.clean, _ = flags.GetBool("clean-cache")

	opts.format, _ = flags.GetString("format")
	opts.format = strings.ToLower(opts.format)
	switch opts.format {
	case "pretty", "short", "json", "sarif":
	default:
		return nil, fmt.Errorf("unsupported diagnostics format: %s (supported: pretty, short, json, sarif)", opts.format)
	}
	mode, _ := flags.GetString("path-mode")
	if opts.pathMode, err = diagfmt.ParsePathMode(strings.ToLower(mode)); err != nil {
		return nil, err
	}
	return opts, nil
}

func loadProject(fs *source.FileSet, bag *diag.Bag, opts *buildOptions) (*project.Project, error) {
	loader := project.NewLoader(fs, bag)
	loader.Settings = opts.settings
	loader.Root = opts.baseDir
	loader.Libraries.Merge(opts.libs)
	for _, path := range opts.inputs {
		// problems are already in the bag; keep loading the rest
		_ = loader.LoadFile(path)
	}
	return loader.Finish()
}

func printDiagnostics(cmd *cobra.Command, bag *diag.Bag, fs *source.FileSet, opts *buildOptions) error {
	out := cmd.OutOrStdout()
	bag.Sort()
	pathMode := opts.pathMode
	switch opts.format {
	case "json":
		return diagfmt.JSON(out, bag, fs, diagfmt.JSONOpts{
			IncludePositions: true,
			PathMode:         pathMode,
			BaseDir:          opts.baseDir,
			IncludeNotes:     true,
		})
	case "sarif":
		return diagfmt.Sarif(out, bag, fs, diagfmt.SarifRunMeta{
			ToolName:       version.Compiler,
			ToolVersion:    version.Version,
			InvocationArgs: os.Args[1:],
		})
	case "short":
		if bag.Len() == 0 {
			return nil
		}
		_, err := fmt.Fprintln(out, diag.FormatShortDiagnostics(bag.Items(), fs, false))
		return err
	}
	if bag.Len() == 0 {
		return nil
	}
	colorFlag, err := cmd.Root().PersistentFlags().GetString("color")
	if err != nil {
		return fmt.Errorf("failed to get color flag: %w", err)
	}
	useColor := colorFlag == "on" || (colorFlag == "auto" && isTerminal(os.Stderr))
	diagfmt.Pretty(cmd.ErrOrStderr(), bag, fs, diagfmt.PrettyOpts{
		Color:     useColor,
		Context:   1,
		PathMode:  pathMode,
		BaseDir:   opts.baseDir,
		Width:     terminalWidth(os.Stderr),
		ShowNotes: true,
	})
	return nil
}

func printSummary(w io.Writer, res *buildpipeline.BuildResult, written []string, opts *buildOptions) error {
	cached := 0
	for _, art := range res.Artifacts {
		if art.Cached {
			cached++
		}
		if len(art.UnresolvedLibraries) > 0 {
			if _, err := fmt.Fprintf(w, "%s: %d unresolved libraries left as placeholders\n",
				buildpipeline.DisplayName(art.Name, opts.baseDir), len(art.UnresolvedLibraries)); err != nil {
				return err
			}
		}
	}
	msg := fmt.Sprintf("compiled %d contracts", len(res.Artifacts))
	if cached > 0 {
		msg += fmt.Sprintf(" (%d cached)", cached)
	}
	if len(res.Failed) > 0 {
		msg += fmt.Sprintf(", %d failed", len(res.Failed))
	}
	outDir := opts.outDir
	if rel, err := filepath.Rel(opts.baseDir, outDir); err == nil && opts.baseDir != "" && !strings.HasPrefix(rel, "..") {
		outDir = filepath.ToSlash(rel)
	}
	_, err := fmt.Fprintf(w, "%s, wrote %d files to %s\n", msg, len(written), outDir)
	return err
}
