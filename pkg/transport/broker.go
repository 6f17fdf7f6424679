package transport

import (
	"context"
	"encoding/json"
	"fmt"
	"runtime/debug"
	"sync"
	"time"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"

	"github.com/fableworks/taskcore/pkg/log"
	"github.com/fableworks/taskcore/pkg/metrics"
)

const (
	// TaskTopic is the exchange dispatches are published to.
	TaskTopic = "taskcore.dispatch"
)

// Broker is the message-broker-backed transport, built on a watermill
// Pub/Sub. The default backend is the in-memory gochannel Pub/Sub; swapping
// in AMQP or Kafka is a matter of handing a different publisher/subscriber
// pair to NewBrokerWithPubSub. Delayed retries are republished after the
// delay; brokers with native delay support (delay exchanges, TTL plus
// dead-letter queues) can take that over.
type Broker struct {
	publisher  message.Publisher
	subscriber message.Subscriber
	workers    int

	wg     sync.WaitGroup
	ctx    context.Context
	cancel context.CancelFunc

	mu      sync.Mutex
	timers  map[*time.Timer]struct{}
	started bool
	stopped bool
}

// NewBroker creates a broker transport on an in-memory gochannel Pub/Sub.
func NewBroker(workers, queueCapacity int, logger watermill.LoggerAdapter) *Broker {
	if logger == nil {
		logger = log.NewWatermillAdapter(log.WithComponent("broker"))
	}
	pubsub := gochannel.NewGoChannel(
		gochannel.Config{
			OutputChannelBuffer: int64(queueCapacity),
		},
		logger,
	)
	return NewBrokerWithPubSub(pubsub, pubsub, workers)
}

// NewBrokerWithPubSub creates a broker transport over an existing
// publisher/subscriber pair.
func NewBrokerWithPubSub(pub message.Publisher, sub message.Subscriber, workers int) *Broker {
	if workers <= 0 {
		workers = 1
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Broker{
		publisher:  pub,
		subscriber: sub,
		workers:    workers,
		ctx:        ctx,
		cancel:     cancel,
		timers:     make(map[*time.Timer]struct{}),
	}
}

// Start subscribes to the task topic and spins up the consumer pool
func (b *Broker) Start(handler Handler) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.started {
		return fmt.Errorf("broker transport already started")
	}

	messages, err := b.subscriber.Subscribe(b.ctx, TaskTopic)
	if err != nil {
		return fmt.Errorf("failed to subscribe to %s: %w", TaskTopic, err)
	}
	b.started = true

	for i := 0; i < b.workers; i++ {
		b.wg.Add(1)
		go b.consume(messages, handler)
	}
	log.WithComponent("transport").Info().
		Int("workers", b.workers).
		Str("topic", TaskTopic).
		Msg("broker transport started")
	return nil
}

// consume delivers messages to the handler, acking each one. The message is
// acked even when the handler fails internally: outcome routing including
// redelivery goes through the state store and the retry manager, never
// through broker redelivery of the original message.
func (b *Broker) consume(messages <-chan *message.Message, handler Handler) {
	defer b.wg.Done()

	for msg := range messages {
		var d Dispatch
		if err := json.Unmarshal(msg.Payload, &d); err != nil {
			log.WithComponent("transport").Error().
				Err(err).
				Str("message_uuid", msg.UUID).
				Msg("dropping undecodable dispatch")
			msg.Ack()
			continue
		}
		b.deliver(d, handler)
		msg.Ack()
	}
}

func (b *Broker) deliver(d Dispatch, handler Handler) {
	defer func() {
		if r := recover(); r != nil {
			log.WithComponent("transport").Error().
				Str("task_id", d.TaskID).
				Interface("panic", r).
				Str("stack", string(debug.Stack())).
				Msg("handler panicked")
		}
	}()
	handler(b.ctx, d)
}

// Dispatch publishes d to the task topic
func (b *Broker) Dispatch(d Dispatch) error {
	payload, err := json.Marshal(d)
	if err != nil {
		return fmt.Errorf("failed to encode dispatch: %w", err)
	}
	msg := message.NewMessage(watermill.NewUUID(), payload)
	if err := b.publisher.Publish(TaskTopic, msg); err != nil {
		return fmt.Errorf("failed to publish dispatch: %w", err)
	}
	metrics.Dispatches.WithLabelValues(b.Name()).Inc()
	return nil
}

// DispatchDelayedRetry republishes d after the delay
func (b *Broker) DispatchDelayedRetry(d Dispatch, delay time.Duration) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.stopped {
		return fmt.Errorf("broker transport stopped")
	}

	var timer *time.Timer
	timer = time.AfterFunc(delay, func() {
		b.mu.Lock()
		delete(b.timers, timer)
		b.mu.Unlock()

		if err := b.Dispatch(d); err != nil {
			log.WithComponent("transport").Warn().
				Str("task_id", d.TaskID).
				Err(err).
				Msg("delayed retry publish failed")
		}
	})
	b.timers[timer] = struct{}{}
	return nil
}

// Stop closes the subscription and waits for the consumer pool
func (b *Broker) Stop() error {
	b.mu.Lock()
	if b.stopped {
		b.mu.Unlock()
		return nil
	}
	b.stopped = true
	for timer := range b.timers {
		timer.Stop()
	}
	b.timers = make(map[*time.Timer]struct{})
	b.mu.Unlock()

	b.cancel()
	if err := b.publisher.Close(); err != nil {
		log.WithComponent("transport").Warn().Err(err).Msg("publisher close failed")
	}
	b.wg.Wait()
	return nil
}

func (b *Broker) Name() string { return "broker" }
