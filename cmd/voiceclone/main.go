// main package for the voiceclone command
package main

import (
	"fmt"
	"os"
	"time"

	"github.com/book-expert/logger"
	"github.com/book-expert/voice-clone-service/internal/cli/colours"
	"github.com/book-expert/voice-clone-service/internal/config"
	"github.com/book-expert/voice-clone-service/internal/fileutil"
	"github.com/book-expert/voice-clone-service/internal/job"
	"github.com/book-expert/voice-clone-service/internal/media"
	"github.com/book-expert/voice-clone-service/internal/settings"
	"github.com/spf13/cobra"
)

// Flag names.
const (
	flagConfig   = "config"
	flagSettings = "settings"
)

// File names.
const (
	bootstrapLogFile = "voiceclone-bootstrap.log"
	finalLogFile     = "voiceclone.log"
)

// app holds what every subcommand needs once the root command has run its setup.
type app struct {
	configPath   string
	settingsPath string

	cfg   *config.Config
	prefs *settings.Store
	log   *logger.Logger
}

func setupLogger(logPath, fileName string) (*logger.Logger, error) {
	log, err := logger.New(logPath, fileName)
	if err != nil {
		return nil, fmt.Errorf("failed to create logger in %s: %w", logPath, err)
	}

	return log, nil
}

// setup follows the bootstrap sequence: temporary logger, configuration,
// final logger, preferences.
func (a *app) setup(*cobra.Command, []string) error {
	bootstrapLog, err := setupLogger(os.TempDir(), bootstrapLogFile)
	if err != nil {
		return err
	}

	defer func() {
		_ = bootstrapLog.Close()
	}()

	cfg, err := a.loadConfig(bootstrapLog)
	if err != nil {
		bootstrapLog.Error("Failed to load configuration: %v", err)

		return fmt.Errorf("failed to load configuration: %w", err)
	}

	finalLog, err := setupLogger(cfg.Paths.BaseLogsDir, finalLogFile)
	if err != nil {
		bootstrapLog.Error("Failed to create final logger: %v", err)

		return err
	}

	settingsPath := a.settingsPath
	if settingsPath == "" {
		settingsPath = cfg.Paths.SettingsFile
	}

	prefs, err := settings.Open(settingsPath)
	if err != nil {
		_ = finalLog.Close()

		return err
	}

	a.cfg = cfg
	a.prefs = prefs
	a.log = finalLog

	return nil
}

func (a *app) loadConfig(bootstrapLog *logger.Logger) (*config.Config, error) {
	if a.configPath != "" {
		return config.LoadFile(a.configPath)
	}

	cfg, err := config.Load(bootstrapLog)
	if err != nil {
		bootstrapLog.Warn("No project configuration found, using defaults: %v", err)

		cfg = &config.Config{}
		cfg.ApplyDefaults()
	}

	return cfg, nil
}

func (a *app) close() {
	if a.log == nil {
		return
	}

	closeErr := a.log.Close()
	if closeErr != nil {
		fmt.Fprintf(os.Stderr, "error closing logger: %v\n", closeErr)
	}
}

// preference returns the user's stored value for key, then the configured
// value, then the preference default.
func (a *app) preference(key, configured string) string {
	value, ok := a.prefs.Lookup(key)
	if ok {
		return value
	}

	if configured != "" {
		return fileutil.ExpandHome(configured)
	}

	return a.prefs.GetString(key)
}

func (a *app) presetsDir() string {
	return a.preference(settings.KeyPresetsDir, a.cfg.Generation.PresetsDir)
}

func (a *app) outputDir() string {
	return a.preference(settings.KeyOutputDir, a.cfg.Generation.OutputDir)
}

func (a *app) newDecoder() *media.Decoder {
	transcoder := media.NewFFmpegTranscoder(a.preference(settings.KeyFFmpegPath, a.cfg.Media.FFmpegPath))

	return media.NewDecoder(transcoder, a.cfg.Media.TempDir, a.log)
}

func (a *app) transcodeTimeout() time.Duration {
	_, ok := a.prefs.Lookup(settings.KeyTimeoutSeconds)
	if ok {
		return a.prefs.Timeout()
	}

	return a.cfg.TranscodeTimeout()
}

func (a *app) generatorOptions() []job.Option {
	return []job.Option{
		job.WithOutputPrefix(a.cfg.Generation.OutputPrefix),
		job.WithLanguage(a.cfg.Inference.Language),
	}
}

func newRootCommand() (*cobra.Command, *app) {
	application := &app{}

	rootCmd := &cobra.Command{
		Use:               "voiceclone",
		Short:             "Clone a voice from a short sample and speak any text with it",
		SilenceUsage:      true,
		SilenceErrors:     true,
		PersistentPreRunE: application.setup,
	}

	rootCmd.PersistentFlags().StringVar(&application.configPath, flagConfig, "",
		"Path to a TOML configuration file (defaults to the project configuration)")
	rootCmd.PersistentFlags().StringVar(&application.settingsPath, flagSettings, "",
		"Path to the preferences file (defaults to ~/.voiceclone/settings.yaml)")

	rootCmd.AddCommand(
		newServeCommand(application),
		newVoicesCommand(application),
		newGenerateCommand(application),
		newEstimateCommand(application),
		newSettingsCommand(application),
	)

	return rootCmd, application
}

func run() error {
	rootCmd, application := newRootCommand()
	defer application.close()

	return rootCmd.Execute()
}

func main() {
	err := run()
	if err != nil {
		colours.Error.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
