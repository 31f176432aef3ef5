package session

import (
	"time"

	"github.com/tphakala/livelabel/internal/ranker"
)

// Output sources.
const (
	SourceLive   = "live"
	SourceUpload = "upload"
)

// StoppedMessage is shown once the live loop has fully stopped.
const StoppedMessage = "Webcam stopped"

// Output is one complete rendered view. Each render replaces the previous
// Output as a whole.
type Output struct {
	RunID   string          `json:"runId,omitempty"`
	Source  string          `json:"source"`
	State   string          `json:"state"`
	Results []ranker.Result `json:"results"`
	Message string          `json:"message,omitempty"`
	Error   string          `json:"error,omitempty"`
	Frame   uint64          `json:"frame,omitempty"`
	At      time.Time       `json:"at"`
}

// TopPick returns the highlighted result, if any.
func (o Output) TopPick() (ranker.Result, bool) {
	for _, r := range o.Results {
		if r.TopPick {
			return r, true
		}
	}
	return ranker.Result{}, false
}

// Renderer displays outputs. Render must not block for long; it is called
// from the frame loop.
type Renderer interface {
	Render(Output)
}

// RendererFunc adapts a function to Renderer.
type RendererFunc func(Output)

// Render implements Renderer.
func (f RendererFunc) Render(o Output) { f(o) }

// MultiRenderer fans every output out to each renderer in order.
type MultiRenderer []Renderer

// Render implements Renderer.
func (m MultiRenderer) Render(o Output) {
	for _, r := range m {
		if r != nil {
			r.Render(o)
		}
	}
}

type nopRenderer struct{}

func (nopRenderer) Render(Output) {}
