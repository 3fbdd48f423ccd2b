// Package producer wraps a sarama sync/async producer pair used to ship run
// outcome events.
package producer

import (
	"errors"
	"fmt"
	"reflect"
	"sync"
	"sync/atomic"
	"time"

	"github.com/IBM/sarama"
	"github.com/rs/zerolog"
)

const defaultClientID = "drip-mailer"

// Option customises the producer during construction.
type Option func(*options)

type options struct {
	config   *sarama.Config
	clientID string
}

// WithConfig supplies a preconfigured sarama config. It is cloned internally
// so the caller retains ownership.
func WithConfig(cfg *sarama.Config) Option {
	return func(o *options) {
		if cfg != nil {
			o.config = cfg
		}
	}
}

// WithClientID overrides the client id reported to the brokers.
func WithClientID(id string) Option {
	return func(o *options) {
		if id != "" {
			o.clientID = id
		}
	}
}

// Producer publishes keyed JSON payloads. Async publishes are fire and forget;
// their failures are logged and counted.
type Producer struct {
	logger zerolog.Logger

	client        sarama.Client
	syncProducer  sarama.SyncProducer
	asyncProducer sarama.AsyncProducer

	asyncFailures atomic.Int64

	closeOnce sync.Once
	closeErr  error
	wg        sync.WaitGroup
}

// New connects to brokers and starts the async error drain.
func New(brokers []string, logger zerolog.Logger, opts ...Option) (*Producer, error) {
	if len(brokers) == 0 {
		return nil, errors.New("kafka producer: at least one broker is required")
	}

	if reflect.ValueOf(logger).IsZero() {
		logger = zerolog.Nop()
	}

	settings := &options{
		config:   defaultConfig(),
		clientID: defaultClientID,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(settings)
		}
	}

	cfg := cloneConfig(settings.config)
	cfg.ClientID = settings.clientID

	client, err := sarama.NewClient(brokers, cfg)
	if err != nil {
		return nil, fmt.Errorf("kafka producer: create client: %w", err)
	}

	syncProd, err := sarama.NewSyncProducerFromClient(client)
	if err != nil {
		client.Close()
		return nil, fmt.Errorf("kafka producer: create sync producer: %w", err)
	}

	asyncProd, err := sarama.NewAsyncProducerFromClient(client)
	if err != nil {
		syncProd.Close()
		client.Close()
		return nil, fmt.Errorf("kafka producer: create async producer: %w", err)
	}

	p := &Producer{
		logger:        logger.With().Str("component", "kafka_producer").Logger(),
		client:        client,
		syncProducer:  syncProd,
		asyncProducer: asyncProd,
	}

	p.wg.Add(2)
	go p.drainErrors()
	go p.drainSuccesses()

	return p, nil
}

// PublishSync publishes a message and waits for the broker acknowledgement.
func (p *Producer) PublishSync(topic string, key []byte, headers map[string][]byte, payload []byte) error {
	msg, err := newMessage(topic, key, headers, payload)
	if err != nil {
		return err
	}
	if _, _, err := p.syncProducer.SendMessage(msg); err != nil {
		return fmt.Errorf("kafka producer: send sync: %w", err)
	}
	return nil
}

// PublishAsync enqueues a message without waiting. A full input buffer is
// reported instead of blocking the caller.
func (p *Producer) PublishAsync(topic string, key []byte, headers map[string][]byte, payload []byte) error {
	msg, err := newMessage(topic, key, headers, payload)
	if err != nil {
		return err
	}
	select {
	case p.asyncProducer.Input() <- msg:
		return nil
	default:
		p.asyncFailures.Add(1)
		return errors.New("kafka producer: async input buffer full")
	}
}

// AsyncFailures reports how many async publishes were dropped or rejected.
func (p *Producer) AsyncFailures() int64 {
	return p.asyncFailures.Load()
}

// Close flushes pending async messages and releases the client.
func (p *Producer) Close() error {
	p.closeOnce.Do(func() {
		var errs []error
		// AsyncClose would drop in-flight messages; Close flushes them.
		if err := p.asyncProducer.Close(); err != nil {
			errs = append(errs, err)
		}
		p.wg.Wait()
		if err := p.syncProducer.Close(); err != nil {
			errs = append(errs, err)
		}
		if err := p.client.Close(); err != nil && !errors.Is(err, sarama.ErrClosedClient) {
			errs = append(errs, err)
		}
		p.closeErr = errors.Join(errs...)
	})
	return p.closeErr
}

func (p *Producer) drainErrors() {
	defer p.wg.Done()
	for perr := range p.asyncProducer.Errors() {
		if perr == nil {
			continue
		}
		p.asyncFailures.Add(1)
		event := p.logger.Error().Err(perr.Err)
		if perr.Msg != nil {
			event = event.Str("topic", perr.Msg.Topic)
		}
		event.Msg("kafka producer async error")
	}
}

func (p *Producer) drainSuccesses() {
	defer p.wg.Done()
	for range p.asyncProducer.Successes() {
	}
}

func newMessage(topic string, key []byte, headers map[string][]byte, payload []byte) (*sarama.ProducerMessage, error) {
	if topic == "" {
		return nil, errors.New("kafka producer: topic is required")
	}
	msg := &sarama.ProducerMessage{
		Topic:     topic,
		Value:     sarama.ByteEncoder(payload),
		Headers:   toRecordHeaders(headers),
		Timestamp: time.Now(),
	}
	if len(key) > 0 {
		msg.Key = sarama.ByteEncoder(key)
	}
	return msg, nil
}

func toRecordHeaders(headers map[string][]byte) []sarama.RecordHeader {
	if len(headers) == 0 {
		return nil
	}
	out := make([]sarama.RecordHeader, 0, len(headers))
	for k, v := range headers {
		out = append(out, sarama.RecordHeader{
			Key:   []byte(k),
			Value: cloneBytes(v),
		})
	}
	return out
}

func cloneBytes(src []byte) []byte {
	if len(src) == 0 {
		return nil
	}
	dst := make([]byte, len(src))
	copy(dst, src)
	return dst
}

func defaultConfig() *sarama.Config {
	cfg := sarama.NewConfig()
	cfg.Version = sarama.V2_5_0_0
	cfg.Producer.RequiredAcks = sarama.WaitForLocal
	cfg.Producer.Retry.Max = 3
	cfg.Producer.Retry.Backoff = 250 * time.Millisecond
	cfg.Producer.Return.Errors = true
	cfg.Producer.Return.Successes = true
	cfg.Producer.Compression = sarama.CompressionSnappy
	cfg.Producer.Timeout = 10 * time.Second
	cfg.ChannelBufferSize = 1024
	cfg.Metadata.Full = false
	return cfg
}

func cloneConfig(cfg *sarama.Config) *sarama.Config {
	if cfg == nil {
		return defaultConfig()
	}
	cloned := *cfg
	return &cloned
}
