// Package kafka mirrors incident events onto a Kafka topic so downstream
// systems (signage controllers, archives) can consume them.
package kafka

import (
	"context"
	"encoding/json"
	"strconv"
	"sync"
	"time"

	"github.com/linnemanlabs/go-core/log"
	"github.com/segmentio/kafka-go"

	"github.com/linnemanlabs/roadwatch/internal/incident"
)

// Writer is the subset of *kafka.Writer the mirror uses.
type Writer interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// Config configures the mirror.
type Config struct {
	Brokers []string
	Topic   string
	// Buffer bounds queued events; events beyond it are dropped.
	Buffer int
	// WriteTimeout bounds a single batch write.
	WriteTimeout time.Duration
}

// Envelope is the message value written for every event.
type Envelope struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data"`
	At    time.Time       `json:"at"`
}

// Mirror implements incident.Emitter by queueing events and writing them
// from a single background goroutine, so Emit never blocks on the broker.
type Mirror struct {
	writer  Writer
	timeout time.Duration
	logger  log.Logger
	now     func() time.Time

	mu     sync.Mutex
	closed bool
	queue  chan kafka.Message
	done   chan struct{}
}

// NewWriter builds a producer for cfg.
func NewWriter(cfg *Config) *kafka.Writer {
	return kafka.NewWriter(kafka.WriterConfig{
		Brokers:  cfg.Brokers,
		Topic:    cfg.Topic,
		Balancer: &kafka.LeastBytes{},
	})
}

// New starts a mirror writing through w.
func New(w Writer, cfg *Config, logger log.Logger) *Mirror {
	if logger == nil {
		logger = log.Nop()
	}
	buf := cfg.Buffer
	if buf <= 0 {
		buf = 1024
	}
	timeout := cfg.WriteTimeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	m := &Mirror{
		writer:  w,
		timeout: timeout,
		logger:  logger,
		now:     time.Now,
		queue:   make(chan kafka.Message, buf),
		done:    make(chan struct{}),
	}
	go m.run()
	return m
}

// Emit implements incident.Emitter. Events are keyed by incident ID so all
// events of one incident land on the same partition in order.
func (m *Mirror) Emit(ctx context.Context, name string, payload any) {
	data, err := json.Marshal(payload)
	if err != nil {
		m.logger.Error(ctx, err, "failed to encode mirrored event", "event", name)
		return
	}
	value, err := json.Marshal(Envelope{Event: name, Data: data, At: m.now().UTC()})
	if err != nil {
		m.logger.Error(ctx, err, "failed to encode mirrored event", "event", name)
		return
	}
	msg := kafka.Message{Key: eventKey(payload), Value: value}

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return
	}
	select {
	case m.queue <- msg:
	default:
		m.logger.Warn(ctx, "event mirror queue full, dropping event", "event", name)
	}
}

func eventKey(payload any) []byte {
	switch p := payload.(type) {
	case *incident.Incident:
		return []byte(strconv.FormatInt(p.ID, 10))
	case *incident.StatusUpdate:
		return []byte(strconv.FormatInt(p.ID, 10))
	}
	return nil
}

func (m *Mirror) run() {
	defer close(m.done)
	for msg := range m.queue {
		batch := []kafka.Message{msg}
	drain:
		for {
			select {
			case next, ok := <-m.queue:
				if !ok {
					break drain
				}
				batch = append(batch, next)
			default:
				break drain
			}
		}
		m.write(batch)
	}
}

func (m *Mirror) write(batch []kafka.Message) {
	ctx, cancel := context.WithTimeout(context.Background(), m.timeout)
	defer cancel()
	if err := m.writer.WriteMessages(ctx, batch...); err != nil {
		m.logger.Error(ctx, err, "failed to mirror events", "count", len(batch))
	}
}

// Close stops accepting events, flushes what is queued and closes the
// writer. It returns early with ctx's error if the flush does not finish.
func (m *Mirror) Close(ctx context.Context) error {
	m.mu.Lock()
	if !m.closed {
		m.closed = true
		close(m.queue)
	}
	m.mu.Unlock()

	select {
	case <-m.done:
	case <-ctx.Done():
		return ctx.Err()
	}
	return m.writer.Close()
}
