package kafka

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"
)

// maxBatch caps how many queued messages go out in one WriteMessages call.
const maxBatch = 100

var (
	ErrProducerClosed = errors.New("kafka producer is closed")
	ErrBufferFull     = errors.New("kafka producer buffer is full")
)

// Writer is the subset of *kafka.Writer the producer needs.
type Writer interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// Producer queues messages in memory and writes them from a single
// goroutine, draining whatever is queued into one batch per write. Publish
// never blocks; a full buffer is reported to the caller.
type Producer struct {
	w       Writer
	inbox   chan kafka.Message
	closeCh chan struct{}
	logger  *zap.Logger

	mu     sync.RWMutex
	closed bool
}

func NewProducer(brokers []string, buf int, logger *zap.Logger) *Producer {
	return NewProducerWithWriter(&kafka.Writer{
		Addr:                   kafka.TCP(brokers...),
		Balancer:               &kafka.Hash{},
		RequiredAcks:           kafka.RequireAll,
		AllowAutoTopicCreation: true,
		BatchSize:              maxBatch,
		BatchTimeout:           10 * time.Millisecond,
	}, buf, logger)
}

func NewProducerWithWriter(w Writer, buf int, logger *zap.Logger) *Producer {
	if buf < 1 {
		buf = 1
	}
	return &Producer{
		w:       w,
		inbox:   make(chan kafka.Message, buf),
		closeCh: make(chan struct{}),
		logger:  logger,
	}
}

func (p *Producer) Start() {
	go func() {
		defer close(p.closeCh)
		for m := range p.inbox {
			p.write(p.drain(m))
		}
		if err := p.w.Close(); err != nil {
			p.logger.Warn("closing kafka writer", zap.Error(err))
		}
	}()
}

// drain collects first plus everything already queued, up to maxBatch.
func (p *Producer) drain(first kafka.Message) []kafka.Message {
	batch := []kafka.Message{first}
	for len(batch) < maxBatch {
		select {
		case m, ok := <-p.inbox:
			if !ok {
				return batch
			}
			batch = append(batch, m)
		default:
			return batch
		}
	}
	return batch
}

func (p *Producer) write(batch []kafka.Message) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := p.w.WriteMessages(ctx, batch...); err != nil {
		p.logger.Error("kafka write failed",
			zap.Int("messages", len(batch)),
			zap.String("topic", batch[0].Topic),
			zap.ByteString("key", batch[0].Key),
			zap.Error(err),
		)
	}
}

func (p *Producer) Publish(topic string, key, value []byte, headers ...kafka.Header) error {
	p.mu.RLock()
	defer p.mu.RUnlock()

	if p.closed {
		return ErrProducerClosed
	}

	select {
	case p.inbox <- kafka.Message{
		Topic:   topic,
		Key:     key,
		Value:   value,
		Time:    time.Now(),
		Headers: headers,
	}:
		return nil
	default:
		return ErrBufferFull
	}
}

// Close stops accepting messages and waits until the queue is flushed or ctx
// expires.
func (p *Producer) Close(ctx context.Context) error {
	p.mu.Lock()
	if !p.closed {
		p.closed = true
		close(p.inbox)
	}
	p.mu.Unlock()

	select {
	case <-p.closeCh:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
