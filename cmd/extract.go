package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"

	"planner/internal/core/extract"

	"github.com/spf13/cobra"
)

func extractCmd() *cobra.Command {
	var compact bool
	cmd := &cobra.Command{
		Use:   "extract [file]",
		Short: "Extract sections, diagrams, code and project structure from a markdown file",
		Long:  "Runs the extraction engine offline and prints the structured document as JSON. Reads stdin when no file or - is given.",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			text, err := readInput(cmd.InOrStdin(), args)
			if err != nil {
				return err
			}
			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetEscapeHTML(false)
			if !compact {
				enc.SetIndent("", "  ")
			}
			return enc.Encode(extract.Extract(text))
		},
	}
	cmd.Flags().BoolVar(&compact, "compact", false, "print JSON on a single line")
	return cmd
}

func readInput(stdin io.Reader, args []string) (string, error) {
	if len(args) == 0 || args[0] == "-" {
		b, err := io.ReadAll(stdin)
		if err != nil {
			return "", fmt.Errorf("read stdin: %w", err)
		}
		return string(b), nil
	}
	b, err := os.ReadFile(args[0])
	if err != nil {
		return "", fmt.Errorf("read %s: %w", args[0], err)
	}
	return string(b), nil
}
