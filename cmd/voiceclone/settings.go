package main

import (
	"github.com/book-expert/voice-clone-service/internal/cli/colours"
	"github.com/book-expert/voice-clone-service/internal/settings"
	"github.com/spf13/cobra"
)

func newSettingsCommand(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "settings",
		Short: "Show or change preferences",
		Args:  cobra.NoArgs,
		RunE: func(*cobra.Command, []string) error {
			a.showSettings()

			return nil
		},
	}

	cmd.AddCommand(
		&cobra.Command{
			Use:   "get KEY",
			Short: "Print one preference",
			Args:  cobra.ExactArgs(1),
			RunE: func(_ *cobra.Command, args []string) error {
				return a.getSetting(args[0])
			},
		},
		&cobra.Command{
			Use:   "set KEY [VALUE]",
			Short: "Change a preference; omit VALUE to restore the default",
			Args:  cobra.RangeArgs(1, 2),
			RunE: func(_ *cobra.Command, args []string) error {
				value := ""
				if len(args) == 2 {
					value = args[1]
				}

				return a.setSetting(args[0], value)
			},
		},
	)

	return cmd
}

func (a *app) showSettings() {
	colours.Title.Printf("Preferences (%s)\n", a.prefs.Path())

	all := a.prefs.All()
	for _, key := range settings.Keys() {
		colours.Name.Printf("  %-16s", key)
		colours.Path.Printf(" %s\n", all[key])
	}
}

func (a *app) getSetting(key string) error {
	value, ok := a.prefs.All()[key]
	if !ok {
		return settings.ErrUnknownKey
	}

	colours.Path.Println(value)

	return nil
}

func (a *app) setSetting(key, value string) error {
	err := a.prefs.Set(key, value)
	if err != nil {
		return err
	}

	err = a.prefs.Save()
	if err != nil {
		return err
	}

	a.log.Info("Preference %s updated", key)
	colours.Success.Printf("%s = %s\n", key, a.prefs.GetString(key))

	return nil
}
