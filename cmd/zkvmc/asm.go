package main

import (
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"zkvmc/internal/asm"
	"zkvmc/internal/metadata"
)

var asmCmd = &cobra.Command{
	Use:   "asm [flags] <file>",
	Short: "Assemble target assembly or disassemble an artifact",
	Args:  cobra.ExactArgs(1),
	RunE:  asmExecution,
}

func init() {
	asmCmd.Flags().BoolP("disassemble", "d", false, "disassemble a binary artifact instead")
	asmCmd.Flags().StringP("out", "o", "", "output file (default: input with .zbin, or stdout when disassembling)")
	asmCmd.Flags().Bool("hex", false, "read or write the artifact as hex text")
}

func asmExecution(cmd *cobra.Command, args []string) error {
	disassemble, err := cmd.Flags().GetBool("disassemble")
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
	quiet, err := cmd.Root().PersistentFlags().GetBool("quiet")
	if err != nil {
		return fmt.Errorf("failed to get quiet flag: %w", err)
	}

	path := args[0]
	// #nosec G304 -- path is provided by the user
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}

	if disassemble {
		if asHex {
			if data, err = decodeHex(data); err != nil {
				return fmt.Errorf("%s: %w", path, err)
			}
		}
		code, trailer, err := metadata.Split(data)
		if errors.Is(err, metadata.ErrNoTrailer) {
			code = data
		} else if err != nil {
			return fmt.Errorf("%s: %w", path, err)
		}
		text, err := asm.Disassemble(code)
		if err != nil {
			return fmt.Errorf("%s: %w", path, err)
		}
		if trailer != nil {
			s := trailer.Settings
			text = fmt.Sprintf("; %s %s, %s pipeline, -O%s\n", s.Compiler, s.Version, s.Pipeline, s.Optimization) + text
		}
		if out == "" {
			_, err = fmt.Fprint(cmd.OutOrStdout(), text)
			return err
		}
		return os.WriteFile(out, []byte(text), 0o600)
	}

	bin, err := asm.Assemble(string(data))
	if err != nil {
		var ae *asm.Error
		if errors.As(err, &ae) && ae.Line > 0 {
			return fmt.Errorf("%s:%d:%d: %s: %s", path, ae.Line, ae.Column, ae.Code.ID(), ae.Msg)
		}
		return fmt.Errorf("%s: %w", path, err)
	}
	if out == "" {
		out = strings.TrimSuffix(path, filepath.Ext(path)) + ".zbin"
	}
	payload := bin.Code
	if asHex {
		payload = []byte(hex.EncodeToString(bin.Code) + "\n")
	}
	if err := os.WriteFile(out, payload, 0o600); err != nil {
		return err
	}
	if !quiet {
		_, err = fmt.Fprintf(cmd.ErrOrStderr(), "%s: %d code words, %d pool words, %d link markers\n",
			out, bin.CodeWords, bin.PoolWords, len(bin.Markers))
	}
	return err
}

func decodeHex(data []byte) ([]byte, error) {
	s := strings.TrimPrefix(strings.TrimSpace(string(data)), "0x")
	return hex.DecodeString(s)
}
