package classify

import (
	"github.com/spf13/cobra"

	"github.com/tphakala/livelabel/internal/analysis"
	"github.com/tphakala/livelabel/internal/conf"
)

// Command creates the command for classifying a single image file.
func Command(settings *conf.Settings) *cobra.Command {
	return &cobra.Command{
		Use:   "classify [image.png|image.jpg]",
		Short: "Classify a single image",
		Long:  "Load the model, classify one PNG or JPEG image and print the ranked results.",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return analysis.FileAnalysis(cmd.Context(), settings, args[0], cmd.OutOrStdout())
		},
	}
}
