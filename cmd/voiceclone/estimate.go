package main

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/book-expert/voice-clone-service/internal/cli/colours"
	"github.com/book-expert/voice-clone-service/internal/runner"
	"github.com/spf13/cobra"
)

var errNoEstimateInput = errors.New("provide text as arguments or with --file")

func newEstimateCommand(*app) *cobra.Command {
	var textFile string

	cmd := &cobra.Command{
		Use:   "estimate [text...]",
		Short: "Estimate how much of the model's budget a text uses",
		RunE: func(_ *cobra.Command, args []string) error {
			text, err := estimateInput(args, textFile)
			if err != nil {
				return err
			}

			printEstimate(text)

			return nil
		},
	}

	cmd.Flags().StringVarP(&textFile, "file", "f", "", "Read the text from this file")

	return cmd
}

func estimateInput(args []string, textFile string) (string, error) {
	if textFile != "" {
		data, err := os.ReadFile(filepath.Clean(textFile))
		if err != nil {
			return "", fmt.Errorf("failed to read text file: %w", err)
		}

		return string(data), nil
	}

	if len(args) == 0 {
		return "", errNoEstimateInput
	}

	return strings.Join(args, " "), nil
}

func printEstimate(text string) {
	units := runner.EstimateCost(text)

	colours.Info.Printf("Estimated units: %d / %d\n", units, runner.ModelMaxUnits)

	if runner.ExceedsModelLimit(text) {
		colours.Warning.Println("The text reaches the model limit; split it into shorter jobs.")

		return
	}

	colours.Success.Println("The text fits in one job.")
}
