package realtime

import (
	"fmt"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/tphakala/livelabel/internal/analysis"
	"github.com/tphakala/livelabel/internal/conf"
)

// Command creates the command for the live classification session.
func Command(settings *conf.Settings) *cobra.Command {
	var opts analysis.RealtimeOptions

	cmd := &cobra.Command{
		Use:   "realtime",
		Short: "Classify webcam frames in realtime",
		Long: "Serve the live classification session over HTTP, publish results to MQTT " +
			"and expose metrics until interrupted.",
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return analysis.RealtimeAnalysis(cmd.Context(), settings, opts)
		},
	}

	if err := setupFlags(cmd, &opts); err != nil {
		panic(err)
	}

	return cmd
}

// setupFlags configures flags specific to the realtime command.
func setupFlags(cmd *cobra.Command, opts *analysis.RealtimeOptions) error {
	flags := cmd.Flags()
	flags.StringVar(&opts.ImageLoop, "image-loop", "", "Classify this image on every frame instead of the webcam")
	flags.BoolVar(&opts.AutoStart, "start", false, "Start the session immediately")
	flags.String("device", "", "Camera index or stream URL")
	flags.Int("stride", 0, "Classify every Nth frame")
	flags.String("listen", "", "Listen address of the HTTP API")
	flags.Bool("mqtt", false, "Publish results to MQTT")
	flags.Bool("telemetry", false, "Enable Prometheus telemetry endpoint")

	bindings := map[string]string{
		"capture.device":      "device",
		"capture.framestride": "stride",
		"http.listen":         "listen",
		"mqtt.enabled":        "mqtt",
		"telemetry.enabled":   "telemetry",
	}
	for key, name := range bindings {
		if err := viper.BindPFlag(key, flags.Lookup(name)); err != nil {
			return fmt.Errorf("error binding flag %s: %w", name, err)
		}
	}
	return nil
}
