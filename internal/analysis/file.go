package analysis

import (
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/tphakala/livelabel/internal/conf"
	"github.com/tphakala/livelabel/internal/imagesrc"
	"github.com/tphakala/livelabel/internal/logger"
	"github.com/tphakala/livelabel/internal/ranker"
	"github.com/tphakala/livelabel/internal/session"
)

// FileAnalysis classifies one image file and writes the ranked results to w.
func FileAnalysis(ctx context.Context, settings *conf.Settings, path string, w io.Writer) error {
	img, format, err := imagesrc.FromFile(path)
	if err != nil {
		return err
	}
	GetLogger().Debug("decoded image",
		logger.String("path", path),
		logger.String("format", format),
		logger.Int("width", img.Bounds().Dx()),
		logger.Int("height", img.Bounds().Dy()))

	p, err := NewPipeline(settings, nil, nil)
	if err != nil {
		return err
	}
	defer func() { _ = p.Close() }()

	results, err := p.Controller.ClassifyOnce(ctx, imagesrc.Decoded(img))
	if err != nil {
		return err
	}
	return WriteResults(w, results)
}

// WriteResults prints one "label: probability" line per result with two
// decimals. The top pick is marked with an asterisk.
func WriteResults(w io.Writer, results []ranker.Result) error {
	var b strings.Builder
	for _, r := range results {
		marker := " "
		if r.TopPick {
			marker = "*"
		}
		fmt.Fprintf(&b, "%s %s: %.2f\n", marker, r.Label, r.Probability)
	}
	_, err := io.WriteString(w, b.String())
	return err
}

// consoleRenderer logs rendered outputs. Live results go to debug level,
// lifecycle messages and errors to info.
type consoleRenderer struct {
	log logger.Logger
}

func (c consoleRenderer) Render(out session.Output) {
	fields := []logger.Field{
		logger.String("source", out.Source),
		logger.String("state", out.State),
	}
	if top, ok := out.TopPick(); ok {
		fields = append(fields,
			logger.String("top_pick", top.Label),
			logger.String("probability", fmt.Sprintf("%.2f", top.Probability)),
			logger.String("theme", string(top.Theme)))
	}

	switch {
	case out.Error != "":
		c.log.Warn(out.Error, fields...)
	case out.Message != "":
		c.log.Info(out.Message, fields...)
	case out.Source == session.SourceUpload:
		c.log.Info("classified upload", fields...)
	default:
		c.log.Debug("classified frame", append(fields, logger.Uint64("frame", out.Frame))...)
	}
}
