package mqtt

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/tphakala/livelabel/internal/errors"
	"github.com/tphakala/livelabel/internal/logger"
	"github.com/tphakala/livelabel/internal/ranker"
	"github.com/tphakala/livelabel/internal/session"
)

// Message is the JSON payload published for each rendered output.
type Message struct {
	RunID     string          `json:"runId,omitempty"`
	Source    string          `json:"source"`
	State     string          `json:"state"`
	TopPick   *ranker.Result  `json:"topPick,omitempty"`
	Results   []ranker.Result `json:"results"`
	Message   string          `json:"message,omitempty"`
	Error     string          `json:"error,omitempty"`
	Frame     uint64          `json:"frame,omitempty"`
	Timestamp time.Time       `json:"timestamp"`
}

// NewMessage converts a rendered output into its published form.
func NewMessage(out session.Output) Message {
	msg := Message{
		RunID:     out.RunID,
		Source:    out.Source,
		State:     out.State,
		Results:   out.Results,
		Message:   out.Message,
		Error:     out.Error,
		Frame:     out.Frame,
		Timestamp: out.At,
	}
	if msg.Results == nil {
		msg.Results = []ranker.Result{}
	}
	if top, ok := out.TopPick(); ok {
		msg.TopPick = &top
	}
	return msg
}

// Publisher is a session.Renderer that publishes outputs from its own
// goroutine. Render never blocks; while the queue is full the oldest queued
// output is discarded so the newest one is always published.
type Publisher struct {
	client Client
	topic  string
	queue  chan session.Output

	dropLog  rate.Sometimes
	errorLog rate.Sometimes

	mu     sync.Mutex
	closed bool
}

// NewPublisher returns a publisher writing to cfg.Topic through c.
func NewPublisher(c Client, cfg Config) *Publisher {
	size := cfg.QueueSize
	if size < 1 {
		size = DefaultConfig().QueueSize
	}
	return &Publisher{
		client:   c,
		topic:    cfg.Topic,
		queue:    make(chan session.Output, size),
		dropLog:  rate.Sometimes{First: 1, Interval: 10 * time.Second},
		errorLog: rate.Sometimes{First: 1, Interval: 10 * time.Second},
	}
}

// Render implements session.Renderer.
func (p *Publisher) Render(out session.Output) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return
	}
	select {
	case p.queue <- out:
		return
	default:
	}
	select {
	case <-p.queue:
	default:
	}
	p.queue <- out
	p.dropLog.Do(func() {
		GetLogger().Warn("MQTT publish queue full, dropped oldest output",
			logger.String("topic", p.topic),
			logger.String("source", out.Source))
	})
}

// Close stops accepting outputs. Run publishes what is already queued and
// returns.
func (p *Publisher) Close() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.closed {
		p.closed = true
		close(p.queue)
	}
}

// Run publishes queued outputs until Close is called or ctx is cancelled.
func (p *Publisher) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case out, ok := <-p.queue:
			if !ok {
				return nil
			}
			if err := p.publish(ctx, out); err != nil {
				if errors.Is(err, context.Canceled) {
					return nil
				}
				p.errorLog.Do(func() {
					GetLogger().Warn("failed to publish output",
						logger.String("topic", p.topic),
						logger.Error(err))
				})
			}
		}
	}
}

func (p *Publisher) publish(ctx context.Context, out session.Output) error {
	payload, err := json.Marshal(NewMessage(out))
	if err != nil {
		return errors.New(err).
			Component("mqtt").
			Category(errors.CategoryMQTTPublish).
			Build()
	}
	return p.client.Publish(ctx, p.topic, payload)
}
