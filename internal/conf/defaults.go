package conf

import (
	"time"

	"github.com/spf13/viper"
)

// Sets default values for the configuration.
func setDefaultConfig() {
	viper.SetDefault("debug", false)

	viper.SetDefault("model.ref", "")
	viper.SetDefault("model.backend", "")
	viper.SetDefault("model.threads", 0)
	viper.SetDefault("model.usexnnpack", false)
	viper.SetDefault("model.inputsize", 224)
	viper.SetDefault("model.cachettl", 10*time.Minute)
	viper.SetDefault("model.onnxlibrary", "")

	viper.SetDefault("capture.device", "0")
	viper.SetDefault("capture.width", 224)
	viper.SetDefault("capture.height", 224)
	viper.SetDefault("capture.mirror", true)
	viper.SetDefault("capture.framestride", 10)
	viper.SetDefault("capture.refreshrate", 60.0)

	viper.SetDefault("themes", []map[string]string{
		{"match": "messy", "theme": "messy"},
		{"match": "clean", "theme": "clean"},
	})

	viper.SetDefault("logging.level", "info")
	viper.SetDefault("logging.file", "")
	viper.SetDefault("logging.nocolor", false)

	viper.SetDefault("http.enabled", true)
	viper.SetDefault("http.listen", "localhost:8080")

	viper.SetDefault("mqtt.enabled", false)
	viper.SetDefault("mqtt.broker", "tcp://localhost:1883")
	viper.SetDefault("mqtt.topic", "livelabel/results")
	viper.SetDefault("mqtt.clientid", "livelabel")
	viper.SetDefault("mqtt.retain", false)

	viper.SetDefault("telemetry.enabled", false)
	viper.SetDefault("telemetry.listen", "0.0.0.0:8090")

	viper.SetDefault("sentry.enabled", false)
	viper.SetDefault("sentry.dsn", "")
}
