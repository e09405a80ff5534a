package main

import (
	"fmt"
	"os"

	"github.com/book-expert/voice-clone-service/internal/catalog"
	"github.com/book-expert/voice-clone-service/internal/cli/colours"
	"github.com/book-expert/voice-clone-service/internal/fileutil"
	"github.com/spf13/cobra"
)

func newVoicesCommand(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "voices",
		Short: "List the voice presets",
		Args:  cobra.NoArgs,
		RunE: func(*cobra.Command, []string) error {
			return a.listVoices()
		},
	}
}

func (a *app) listVoices() error {
	voices, err := catalog.New(a.presetsDir())
	if err != nil {
		return err
	}

	entries := voices.Entries()

	colours.Title.Printf("Voice presets in %s\n", voices.Dir())

	for _, name := range voices.Names() {
		entry := entries[name]
		if entry.IsSentinel() {
			colours.Info.Printf("  %s (use --voice-file)\n", name)

			continue
		}

		colours.Name.Printf("  %s", name)
		colours.Path.Printf("  %s%s\n", entry.Path, sizeSuffix(entry.Path))
	}

	if len(entries) == 1 {
		colours.Warning.Println("No presets yet. Drop audio or video files into the presets directory.")
	}

	return nil
}

func sizeSuffix(path string) string {
	info, err := os.Stat(path)
	if err != nil {
		return ""
	}

	return fmt.Sprintf(" (%s)", fileutil.FormatFileSize(info.Size()))
}
