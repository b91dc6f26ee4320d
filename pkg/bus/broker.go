package bus

import (
	"context"
	"fmt"
	"slices"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/wirehome/wirehome-go/pkg/log"
)

// Default broker limits.
const (
	DefaultMaxSubscribers = 1024
	DefaultFanOutLimit    = 16
	DefaultQueueSize      = 256
	DefaultWorkers        = 2
)

// BrokerConfig holds broker configuration.
type BrokerConfig struct {
	// MaxSubscribers is the maximum number of registered subscribers.
	MaxSubscribers int `yaml:"max_subscribers"`

	// FanOutLimit bounds how many subscribers receive one message concurrently.
	FanOutLimit int `yaml:"fan_out_limit"`

	// QueueSize is the capacity of the queue behind Enqueue.
	QueueSize int `yaml:"queue_size"`

	// Workers is the number of goroutines draining the queue.
	Workers int `yaml:"workers"`
}

// DefaultBrokerConfig returns the default broker configuration.
func DefaultBrokerConfig() BrokerConfig {
	return BrokerConfig{
		MaxSubscribers: DefaultMaxSubscribers,
		FanOutLimit:    DefaultFanOutLimit,
		QueueSize:      DefaultQueueSize,
		Workers:        DefaultWorkers,
	}
}

// Broker routes messages to the subscribers whose filter matches.
type Broker struct {
	mu          sync.RWMutex
	config      BrokerConfig
	subscribers map[string]*Subscriber
	logger      log.Logger

	// Queued dispatch
	runMu   sync.RWMutex
	queue   chan Message
	cancel  context.CancelFunc
	wg      sync.WaitGroup
	running atomic.Bool

	published atomic.Int64
	dropped   atomic.Int64
}

// NewBroker creates a broker. Non-positive config values are replaced by
// their defaults. The logger receives subscriber fault reports and broker
// state changes; nil disables both.
func NewBroker(config BrokerConfig, logger log.Logger) *Broker {
	if config.MaxSubscribers <= 0 {
		config.MaxSubscribers = DefaultMaxSubscribers
	}
	if config.FanOutLimit <= 0 {
		config.FanOutLimit = DefaultFanOutLimit
	}
	if config.QueueSize <= 0 {
		config.QueueSize = DefaultQueueSize
	}
	if config.Workers <= 0 {
		config.Workers = DefaultWorkers
	}
	if logger == nil {
		logger = log.NoopLogger{}
	}

	return &Broker{
		config:      config,
		subscribers: make(map[string]*Subscriber),
		logger:      logger,
		queue:       make(chan Message, config.QueueSize),
	}
}

// Config returns the effective broker configuration.
func (b *Broker) Config() BrokerConfig {
	return b.config
}

// Subscribe registers handler under a generated uid.
func (b *Broker) Subscribe(filter Filter, handler Handler) (*Subscriber, error) {
	return b.SubscribeWithUID(uuid.NewString(), filter, handler)
}

// SubscribeWithUID registers handler under uid. The uid must not be in use.
func (b *Broker) SubscribeWithUID(uid string, filter Filter, handler Handler) (*Subscriber, error) {
	sub, err := NewSubscriber(uid, filter, handler, b.logger)
	if err != nil {
		return nil, err
	}

	b.mu.Lock()
	if _, exists := b.subscribers[uid]; exists {
		b.mu.Unlock()
		return nil, fmt.Errorf("%w: %s", ErrDuplicateUID, uid)
	}
	if len(b.subscribers) >= b.config.MaxSubscribers {
		b.mu.Unlock()
		return nil, ErrResourceExhausted
	}
	b.subscribers[uid] = sub
	b.mu.Unlock()

	b.logState(log.StateEntitySubscription, uid, "", "registered", filter.String())
	return sub, nil
}

// Unsubscribe removes the subscriber with the given uid. Deliveries already
// running for it complete normally.
func (b *Broker) Unsubscribe(uid string) error {
	b.mu.Lock()
	_, exists := b.subscribers[uid]
	if exists {
		delete(b.subscribers, uid)
	}
	b.mu.Unlock()

	if !exists {
		return fmt.Errorf("%w: %s", ErrSubscriberNotFound, uid)
	}
	b.logState(log.StateEntitySubscription, uid, "registered", "removed", "")
	return nil
}

// Subscriber returns the subscriber registered under uid.
func (b *Broker) Subscriber(uid string) (*Subscriber, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	sub, exists := b.subscribers[uid]
	if !exists {
		return nil, fmt.Errorf("%w: %s", ErrSubscriberNotFound, uid)
	}
	return sub, nil
}

// Subscribers returns all registered subscribers ordered by uid.
func (b *Broker) Subscribers() []*Subscriber {
	b.mu.RLock()
	subs := make([]*Subscriber, 0, len(b.subscribers))
	for _, sub := range b.subscribers {
		subs = append(subs, sub)
	}
	b.mu.RUnlock()

	slices.SortFunc(subs, func(a, c *Subscriber) int {
		return strings.Compare(a.uid, c.uid)
	})
	return subs
}

// Count returns the number of registered subscribers.
func (b *Broker) Count() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subscribers)
}

// PublishedCount returns the number of messages routed so far.
func (b *Broker) PublishedCount() int64 {
	return b.published.Load()
}

// DroppedCount returns the number of queued messages discarded by Stop.
func (b *Broker) DroppedCount() int64 {
	return b.dropped.Load()
}

// Publish delivers msg to every matching subscriber and returns how many
// received it. Deliveries run concurrently, bounded by FanOutLimit, and
// Publish returns once all of them have finished. A failing handler never
// prevents delivery to the others.
func (b *Broker) Publish(ctx context.Context, msg Message) (int, error) {
	if msg == nil {
		return 0, fmt.Errorf("%w: nil message", ErrInvalidArgument)
	}
	if ctx == nil {
		ctx = context.Background()
	}

	targets := b.match(msg)
	b.published.Add(1)

	switch len(targets) {
	case 0:
		return 0, nil
	case 1:
		_ = targets[0].Deliver(ctx, msg)
		return 1, nil
	}

	var g errgroup.Group
	g.SetLimit(b.config.FanOutLimit)
	for _, sub := range targets {
		g.Go(func() error {
			return sub.Deliver(ctx, msg)
		})
	}
	// Deliver only fails on a nil message, which was rejected above.
	_ = g.Wait()

	return len(targets), nil
}

// match snapshots the subscribers whose filter matches msg.
func (b *Broker) match(msg Message) []*Subscriber {
	b.mu.RLock()
	defer b.mu.RUnlock()

	var targets []*Subscriber
	for _, sub := range b.subscribers {
		if sub.filter.Matches(msg) {
			targets = append(targets, sub)
		}
	}
	return targets
}

// Start launches the workers that drain the Enqueue queue.
func (b *Broker) Start() {
	b.runMu.Lock()
	defer b.runMu.Unlock()

	if b.running.Load() {
		return
	}

	ctx, cancel := context.WithCancel(context.Background())
	b.cancel = cancel
	b.running.Store(true)

	for i := 0; i < b.config.Workers; i++ {
		b.wg.Add(1)
		go b.dispatchLoop(ctx)
	}

	b.logState(log.StateEntityDispatcher, "", "stopped", "running", fmt.Sprintf("%d workers", b.config.Workers))
}

// Stop cancels the workers and waits for in-flight deliveries to return.
// Handlers observe the cancellation through their context. Messages still
// queued are discarded and counted in DroppedCount.
func (b *Broker) Stop() {
	b.runMu.Lock()
	if !b.running.Load() {
		b.runMu.Unlock()
		return
	}
	b.running.Store(false)
	b.cancel()
	b.runMu.Unlock()

	// Not under runMu: a handler may call Enqueue while we wait.
	b.wg.Wait()

	var dropped int64
drain:
	for {
		select {
		case <-b.queue:
			dropped++
		default:
			break drain
		}
	}
	b.dropped.Add(dropped)

	b.logState(log.StateEntityDispatcher, "", "running", "stopped", fmt.Sprintf("%d dropped", dropped))
}

// Running reports whether the queued dispatcher is active.
func (b *Broker) Running() bool {
	return b.running.Load()
}

// Enqueue hands msg to the background workers without waiting for delivery.
func (b *Broker) Enqueue(msg Message) error {
	if msg == nil {
		return fmt.Errorf("%w: nil message", ErrInvalidArgument)
	}

	b.runMu.RLock()
	defer b.runMu.RUnlock()

	if !b.running.Load() {
		return ErrNotRunning
	}

	select {
	case b.queue <- msg:
		return nil
	default:
		return ErrQueueFull
	}
}

func (b *Broker) dispatchLoop(ctx context.Context) {
	defer b.wg.Done()

	for {
		select {
		case <-ctx.Done():
			return
		case msg := <-b.queue:
			_, _ = b.Publish(ctx, msg)
		}
	}
}

func (b *Broker) logState(entity log.StateEntity, uid, oldState, newState, reason string) {
	b.logger.Log(log.Event{
		Timestamp:     time.Now(),
		SubscriberUID: uid,
		Category:      log.CategoryState,
		StateChange: &log.StateChangeEvent{
			Entity:   entity,
			OldState: oldState,
			NewState: newState,
			Reason:   reason,
		},
	})
}
