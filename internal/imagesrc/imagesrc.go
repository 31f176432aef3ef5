// Package imagesrc decodes uploaded PNG and JPEG images and exposes them as
// sources that a session can await.
package imagesrc

import (
	"bytes"
	"context"
	"fmt"
	"image"
	_ "image/jpeg" // register decoder
	_ "image/png"  // register decoder
	"io"
	"os"
	"sync"

	"github.com/tphakala/livelabel/internal/errors"
)

// Limits applied before a full decode.
const (
	MaxUploadBytes = 32 << 20
	MaxPixels      = 40_000_000
)

// FromReader decodes a PNG or JPEG image from r. Any failure, including an
// oversized or unsupported input, wraps errors.ErrDecode.
func FromReader(r io.Reader) (image.Image, string, error) {
	data, err := io.ReadAll(io.LimitReader(r, MaxUploadBytes+1))
	if err != nil {
		return nil, "", errors.DecodeError(fmt.Errorf("read image: %w", err))
	}
	if len(data) > MaxUploadBytes {
		return nil, "", errors.DecodeError(fmt.Errorf("image exceeds %d bytes", MaxUploadBytes))
	}
	return FromBytes(data)
}

// FromBytes decodes an in-memory PNG or JPEG image.
func FromBytes(data []byte) (image.Image, string, error) {
	if len(data) == 0 {
		return nil, "", errors.DecodeError(fmt.Errorf("empty image"))
	}

	cfg, format, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		return nil, "", errors.DecodeError(err)
	}
	if cfg.Width <= 0 || cfg.Height <= 0 || cfg.Width*cfg.Height > MaxPixels {
		return nil, format, errors.DecodeError(fmt.Errorf("unsupported %s dimensions %dx%d", format, cfg.Width, cfg.Height))
	}

	img, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, format, errors.DecodeError(err)
	}
	return img, format, nil
}

// FromFile decodes the image stored at path.
func FromFile(path string) (image.Image, string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, "", errors.New(fmt.Errorf("%w: %w", errors.ErrDecode, err)).
			Component("imagesrc").
			Category(errors.CategoryFileIO).
			FileContext(path, 0).
			Build()
	}
	defer func() { _ = f.Close() }()
	return FromReader(f)
}

// Source is an image that may still be decoding. Ready blocks until the image
// is available, decoding fails or ctx ends.
type Source struct {
	done chan struct{}
	once sync.Once
	img  image.Image
	err  error
}

// Decoded returns a Source that is ready immediately.
func Decoded(img image.Image) *Source {
	s := &Source{done: make(chan struct{})}
	if img == nil {
		s.resolve(nil, errors.DecodeError(fmt.Errorf("nil image")))
	} else {
		s.resolve(img, nil)
	}
	return s
}

// Pending returns an unresolved Source; complete it with Resolve.
func Pending() *Source {
	return &Source{done: make(chan struct{})}
}

// Decode starts decoding data in the background and returns its Source.
func Decode(data []byte) *Source {
	s := Pending()
	go func() {
		img, _, err := FromBytes(data)
		s.resolve(img, err)
	}()
	return s
}

// Resolve completes a pending source. Later calls are ignored.
func (s *Source) Resolve(img image.Image, err error) {
	if err == nil && img == nil {
		err = errors.DecodeError(fmt.Errorf("nil image"))
	}
	s.resolve(img, err)
}

func (s *Source) resolve(img image.Image, err error) {
	s.once.Do(func() {
		s.img, s.err = img, err
		close(s.done)
	})
}

// Ready waits for the decoded image.
func (s *Source) Ready(ctx context.Context) (image.Image, error) {
	select {
	case <-s.done:
		return s.img, s.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}
