package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/tphakala/livelabel/cmd/classify"
	"github.com/tphakala/livelabel/cmd/realtime"
	"github.com/tphakala/livelabel/internal/buildinfo"
	"github.com/tphakala/livelabel/internal/conf"
	"github.com/tphakala/livelabel/internal/logger"
	"github.com/tphakala/livelabel/internal/telemetry"
)

// RootCommand creates and returns the root command. settings is filled in
// before any sub-command runs.
func RootCommand(settings *conf.Settings) *cobra.Command {
	var (
		configFile    string
		centralLogger *logger.CentralLogger
	)

	build := buildinfo.Current()
	rootCmd := &cobra.Command{
		Use:           "livelabel",
		Short:         "Live image classification from a webcam",
		Version:       build.GetVersion(),
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	// Set up the global flags for the root command.
	if err := setupFlags(rootCmd, &configFile); err != nil {
		panic(err)
	}

	rootCmd.AddCommand(
		realtime.Command(settings),
		classify.Command(settings),
	)

	rootCmd.PersistentPreRunE = func(cmd *cobra.Command, args []string) error {
		if configFile != "" {
			viper.SetConfigFile(configFile)
		}

		loaded, err := conf.Load()
		if err != nil {
			return err
		}
		*settings = *loaded

		centralLogger, err = logger.NewCentralLogger(settings.LoggerConfig())
		if err != nil {
			return fmt.Errorf("failed to initialize logger: %w", err)
		}
		logger.SetGlobal(centralLogger)

		return telemetry.InitSentry(settings, build)
	}

	rootCmd.PersistentPostRunE = func(cmd *cobra.Command, args []string) error {
		telemetry.Flush(telemetry.DefaultFlushTimeout)
		if centralLogger != nil {
			return centralLogger.Close()
		}
		return nil
	}

	return rootCmd
}

// setupFlags defines flags that are global to the command line interface.
// Values override the config file only when set.
func setupFlags(rootCmd *cobra.Command, configFile *string) error {
	flags := rootCmd.PersistentFlags()
	flags.StringVarP(configFile, "config", "c", "", "Path to config.yaml")
	flags.BoolP("debug", "d", false, "Enable debug output")
	flags.String("model", "", "Model base URL or local path")
	flags.String("backend", "", "Inference backend: tflite or onnx")
	flags.Int("threads", 0, "Inference threads, 0 picks a value from the CPU")

	bindings := map[string]string{
		"debug":         "debug",
		"model.ref":     "model",
		"model.backend": "backend",
		"model.threads": "threads",
	}
	for key, name := range bindings {
		if err := viper.BindPFlag(key, flags.Lookup(name)); err != nil {
			return fmt.Errorf("error binding flag %s: %w", name, err)
		}
	}
	return nil
}
