package model

import (
	"context"
	"fmt"
	"io/fs"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"

	"github.com/patrickmn/go-cache"

	"github.com/tphakala/livelabel/internal/errors"
	"github.com/tphakala/livelabel/internal/httpclient"
	"github.com/tphakala/livelabel/internal/logger"
)

// Teachable Machine export file names, in lookup order.
var (
	tfliteModelNames = []string{"model_unquant.tflite", "model.tflite"}
	onnxModelNames   = []string{"model.onnx"}
	tfliteLabelNames = []string{"labels.txt", "metadata.json"}
	onnxLabelNames   = []string{"metadata.json", "labels.txt"}
)

// errArtifactNotFound marks a candidate file that does not exist, so the
// next candidate name can be tried.
var errArtifactNotFound = errors.NewStd("artifact not found")

// location is a resolved model reference.
type location struct {
	remote    bool
	base      string // base URL with trailing slash, or a directory
	modelName string // set when the reference names the model file itself
}

func isRemote(ref string) bool {
	return strings.HasPrefix(ref, "http://") || strings.HasPrefix(ref, "https://")
}

// resolveLocation interprets ref as a base URL, a directory or a model file.
func resolveLocation(ref string) (location, error) {
	if ref == "" {
		return location{}, fmt.Errorf("empty model reference")
	}

	if isRemote(ref) {
		u, err := url.Parse(ref)
		if err != nil {
			return location{}, fmt.Errorf("invalid model URL: %w", err)
		}
		if ext := path.Ext(u.Path); ext == ".tflite" || ext == ".onnx" {
			dir, file := path.Split(u.Path)
			u.Path = dir
			return location{remote: true, base: u.String(), modelName: file}, nil
		}
		if !strings.HasSuffix(u.Path, "/") {
			u.Path += "/"
		}
		return location{remote: true, base: u.String()}, nil
	}

	info, err := os.Stat(ref)
	if err != nil {
		return location{}, err
	}
	if info.IsDir() {
		return location{base: ref}, nil
	}
	return location{base: filepath.Dir(ref), modelName: filepath.Base(ref)}, nil
}

// resolveBackend picks the inference backend: explicit configuration wins,
// otherwise a model file extension decides, otherwise tflite.
func resolveBackend(configured string, loc location) string {
	if configured != "" {
		return configured
	}
	if strings.EqualFold(path.Ext(loc.modelName), ".onnx") {
		return BackendONNX
	}
	return BackendTFLite
}

// artifactSource reads artifacts from disk or over HTTP. Remote bodies are
// cached by URL so a reset and reload within the TTL does not refetch.
type artifactSource struct {
	client *httpclient.Client
	cache  *cache.Cache
	ttl    time.Duration
}

func newArtifactSource(client *httpclient.Client, ttl time.Duration) *artifactSource {
	if client == nil {
		client = httpclient.New(nil)
	}
	return &artifactSource{
		client: client,
		cache:  cache.New(ttl, 2*ttl),
		ttl:    ttl,
	}
}

// readFirst returns the first candidate artifact that exists.
func (s *artifactSource) readFirst(ctx context.Context, loc location, names []string) (name string, data []byte, err error) {
	for _, name := range names {
		data, err := s.read(ctx, loc, name)
		if errors.Is(err, errArtifactNotFound) {
			continue
		}
		if err != nil {
			return "", nil, err
		}
		return name, data, nil
	}
	return "", nil, fmt.Errorf("none of %s found at %s: %w", strings.Join(names, ", "), loc.base, errArtifactNotFound)
}

func (s *artifactSource) read(ctx context.Context, loc location, name string) ([]byte, error) {
	if !loc.remote {
		data, err := os.ReadFile(filepath.Join(loc.base, name))
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("%s: %w", name, errArtifactNotFound)
		}
		return data, err
	}

	target, err := url.JoinPath(loc.base, name)
	if err != nil {
		return nil, err
	}
	if cached, ok := s.cache.Get(target); ok {
		if data, ok := cached.([]byte); ok {
			GetLogger().Debug("artifact cache hit", logger.String("url", target))
			return data, nil
		}
	}

	start := time.Now()
	data, err := s.client.Fetch(ctx, target)
	if err != nil {
		var statusErr *httpclient.StatusError
		if errors.As(err, &statusErr) && statusErr.NotFound() {
			return nil, fmt.Errorf("%s: %w", name, errArtifactNotFound)
		}
		return nil, errors.New(err).
			Component("model").
			Category(errors.CategoryNetwork).
			NetworkContext(target, time.Since(start)).
			Build()
	}

	s.cache.Set(target, data, s.ttl)
	GetLogger().Debug("artifact downloaded",
		logger.String("url", target),
		logger.Int("bytes", len(data)),
		logger.Duration("elapsed", time.Since(start)))
	return data, nil
}
