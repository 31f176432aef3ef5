package capture

import (
	"context"
	"fmt"
	"image"
	"sync"
)

// Still exposes a fixed image as a capture device. Every Refresh returns the
// same frame.
type Still struct {
	name string
	img  image.Image

	mu   sync.Mutex
	open bool
}

// NewStill wraps img as a device named name.
func NewStill(name string, img image.Image) *Still {
	return &Still{name: name, img: img}
}

// Name implements Device.
func (s *Still) Name() string { return "still:" + s.name }

// Open implements Device.
func (s *Still) Open(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if s.img == nil {
		return fmt.Errorf("still %q has no image", s.name)
	}
	s.mu.Lock()
	s.open = true
	s.mu.Unlock()
	return nil
}

// Refresh implements Device.
func (s *Still) Refresh() (image.Image, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.open {
		return nil, fmt.Errorf("still %q is closed", s.name)
	}
	return s.img, nil
}

// Close implements Device.
func (s *Still) Close() error {
	s.mu.Lock()
	s.open = false
	s.mu.Unlock()
	return nil
}
