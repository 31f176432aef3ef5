package imagesrc

import (
	"bytes"
	"context"
	"image"
	"image/color"
	"image/jpeg"
	"image/png"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/tphakala/livelabel/internal/errors"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func encodePNG(t *testing.T, w, h int) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	img.Set(0, 0, color.RGBA{R: 200, A: 255})
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return buf.Bytes()
}

func TestFromReaderDecodesSupportedFormats(t *testing.T) {
	t.Parallel()

	img, format, err := FromReader(bytes.NewReader(encodePNG(t, 3, 2)))
	require.NoError(t, err)
	assert.Equal(t, "png", format)
	assert.Equal(t, image.Rect(0, 0, 3, 2), img.Bounds())

	var buf bytes.Buffer
	require.NoError(t, jpeg.Encode(&buf, image.NewGray(image.Rect(0, 0, 8, 8)), nil))
	img, format, err = FromReader(&buf)
	require.NoError(t, err)
	assert.Equal(t, "jpeg", format)
	assert.Equal(t, 8, img.Bounds().Dx())
}

func TestFromReaderRejectsGarbage(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name  string
		input []byte
	}{
		{"empty", nil},
		{"text", []byte("definitely not an image")},
		{"truncated png", encodePNG(t, 4, 4)[:20]},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			_, _, err := FromReader(bytes.NewReader(tt.input))
			require.Error(t, err)
			require.ErrorIs(t, err, errors.ErrDecode)
			assert.True(t, errors.IsCategory(err, errors.CategoryImageDecode))
		})
	}
}

func TestFromFile(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	path := filepath.Join(dir, "upload.png")
	require.NoError(t, os.WriteFile(path, encodePNG(t, 5, 5), 0o600))

	img, _, err := FromFile(path)
	require.NoError(t, err)
	assert.Equal(t, 5, img.Bounds().Dy())

	_, _, err = FromFile(filepath.Join(dir, "missing.png"))
	require.ErrorIs(t, err, errors.ErrDecode)
}

func TestFromReaderRejectsOversizedUpload(t *testing.T) {
	t.Parallel()

	r := strings.NewReader(strings.Repeat("x", MaxUploadBytes+1))
	_, _, err := FromReader(r)
	require.ErrorIs(t, err, errors.ErrDecode)
}

func TestSourceReady(t *testing.T) {
	t.Parallel()

	img := image.NewRGBA(image.Rect(0, 0, 1, 1))
	got, err := Decoded(img).Ready(t.Context())
	require.NoError(t, err)
	assert.Same(t, img, got)

	_, err = Decoded(nil).Ready(t.Context())
	require.ErrorIs(t, err, errors.ErrDecode)
}

func TestPendingSourceWaitsForResolve(t *testing.T) {
	t.Parallel()

	src := Pending()

	ctx, cancel := context.WithTimeout(t.Context(), 20*time.Millisecond)
	defer cancel()
	_, err := src.Ready(ctx)
	require.ErrorIs(t, err, context.DeadlineExceeded)

	img := image.NewRGBA(image.Rect(0, 0, 1, 1))
	src.Resolve(img, nil)
	src.Resolve(nil, errors.NewStd("ignored"))

	got, err := src.Ready(t.Context())
	require.NoError(t, err)
	assert.Same(t, img, got)
}

func TestDecodeInBackground(t *testing.T) {
	t.Parallel()

	img, err := Decode(encodePNG(t, 2, 2)).Ready(t.Context())
	require.NoError(t, err)
	assert.Equal(t, 2, img.Bounds().Dx())

	_, err = Decode([]byte("nope")).Ready(t.Context())
	require.ErrorIs(t, err, errors.ErrDecode)
}
