package main

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/spf13/cobra"

	"zkvmc/internal/link"
	"zkvmc/internal/project"
)

var linkCmd = &cobra.Command{
	Use:   "link [flags] <artifact>",
	Short: "Resolve library placeholders left in an artifact",
	Long: `Patch library placeholders of an artifact built with --allow-placeholders.
Factory dependency markers can be patched with --factory-dep <file>:<Name>=0x<code hash>.`,
	Args: cobra.ExactArgs(1),
	RunE: linkExecution,
}

func init() {
	linkCmd.Flags().StringSliceP("library", "l", nil, "library address <file>:<Name>=0x<address> (repeatable)")
	linkCmd.Flags().StringSlice("factory-dep", nil, "factory dependency code hash <file>:<Name>=0x<hash> (repeatable)")
	linkCmd.Flags().StringP("out", "o", "", "output file (default: overwrite the artifact)")
	linkCmd.Flags().Bool("hex", false, "artifact is hex text")
	linkCmd.Flags().Bool("strict", false, "fail when placeholders remain")
}

func linkExecution(cmd *cobra.Command, args []string) error {
	libFlags, err := cmd.Flags().GetStringSlice("library")
	if err != nil {
		return err
	}
	depFlags, err := cmd.Flags().GetStringSlice("factory-dep")
	if err != nil {
		return err
	}
	out, err := cmd.Flags().GetString("out")
	if err != nil {
		return err
	}
	asHex, err := cmd.Flags().GetBool("hex")
	if err != nil {
		return err
	}
	strict, err := cmd.Flags().GetBool("strict")
	if err != nil {
		return err
	}

	libs, err := project.ParseLibraries(libFlags)
	if err != nil {
		return fmt.Errorf("--library: %w", err)
	}
	deps, err := parseFactoryDeps(depFlags)
	if err != nil {
		return fmt.Errorf("--factory-dep: %w", err)
	}

	path := args[0]
	// #nosec G304 -- path is provided by the user
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	if asHex {
		if data, err = decodeHex(data); err != nil {
			return fmt.Errorf("%s: %w", path, err)
		}
	}
	patched, pending, err := link.Patch(data, libs, deps)
	if err != nil {
		return fmt.Errorf("%s: %w", path, err)
	}
	if out == "" {
		out = path
	}
	payload := patched
	if asHex {
		payload = []byte(common.Bytes2Hex(patched) + "\n")
	}
	if err := os.WriteFile(out, payload, 0o600); err != nil {
		return err
	}
	for _, p := range pending {
		if _, err := fmt.Fprintf(cmd.ErrOrStderr(), "unresolved library %s at %d offsets\n", p.Library, len(p.Offsets)); err != nil {
			return err
		}
	}
	if strict && len(pending) > 0 {
		return fmt.Errorf("%d libraries remain unresolved", len(pending))
	}
	return nil
}

func parseFactoryDeps(flags []string) (map[string][32]byte, error) {
	out := make(map[string][32]byte, len(flags))
	for _, f := range flags {
		nameStr, hashStr, ok := strings.Cut(f, "=")
		if !ok {
			return nil, errors.New("expected <file>:<Name>=0x<hash>, got " + f)
		}
		name, err := project.NormalizeName(nameStr)
		if err != nil {
			return nil, err
		}
		raw := common.FromHex(strings.TrimSpace(hashStr))
		if len(raw) != 32 {
			return nil, fmt.Errorf("code hash for %s must be 32 bytes, got %d", name, len(raw))
		}
		var h [32]byte
		copy(h[:], raw)
		out[name] = h
	}
	return out, nil
}
