package logbook

import (
	"fmt"
	"reflect"
	"sync/atomic"
	"time"

	"github.com/hedzr/go-ringbuf/v2/mpmc"
)

// CollectorMetrics tracks collector throughput. All fields use atomic operations.
type CollectorMetrics struct {
	EntriesCollected   int64
	ErrorsOccurred     int64
	EntriesOverwritten int64
}

func (m *CollectorMetrics) incCollected() { atomic.AddInt64(&m.EntriesCollected, 1) }
func (m *CollectorMetrics) incErrors()    { atomic.AddInt64(&m.ErrorsOccurred, 1) }
func (m *CollectorMetrics) addOverwritten(n uint32) {
	atomic.AddInt64(&m.EntriesOverwritten, int64(n))
}

func (m *CollectorMetrics) snapshot() CollectorMetrics {
	return CollectorMetrics{
		EntriesCollected:   atomic.LoadInt64(&m.EntriesCollected),
		ErrorsOccurred:     atomic.LoadInt64(&m.ErrorsOccurred),
		EntriesOverwritten: atomic.LoadInt64(&m.EntriesOverwritten),
	}
}

// Collector drains a live entry feed into a bounded ring buffer so a consumer
// can process entries in batches (the JSON output of the CLI, for example)
// without holding up the feed. When the buffer is full the oldest entries are
// overwritten.
type Collector struct {
	feed    <-chan Entry
	buffer  mpmc.RichOverlappedRingBuffer[Entry]
	stop    chan struct{}
	done    chan struct{}
	onError func(error)
	metrics CollectorMetrics
	state   uint32
}

const (
	CollectorStateNotRunning uint32 = iota
	CollectorStateRunning
	CollectorStateStopping

	// MaxCollectorSize caps the ring buffer to catch misconfiguration.
	MaxCollectorSize uint32 = 64 * 1024
)

// NewCollector creates a collector reading from feed. onError receives
// buffer failures; if nil, the collector panics on them.
func NewCollector(feed <-chan Entry, size uint32, onError func(error)) (*Collector, error) {
	if feed == nil {
		return nil, fmt.Errorf("entry feed cannot be nil")
	}
	if size == 0 {
		return nil, fmt.Errorf("buffer size must be > 0")
	}
	if size > MaxCollectorSize {
		return nil, fmt.Errorf("buffer size %d exceeds maximum %d", size, MaxCollectorSize)
	}
	if onError == nil {
		onError = func(err error) {
			panic(fmt.Sprintf("logbook collector: %v", err))
		}
	}

	return &Collector{
		feed:    feed,
		buffer:  mpmc.NewOverlappedRingBuffer[Entry](size),
		stop:    make(chan struct{}),
		done:    make(chan struct{}),
		onError: onError,
		state:   CollectorStateNotRunning,
	}, nil
}

// Start begins collecting. It returns once the collecting goroutine runs.
func (c *Collector) Start() error {
	if !atomic.CompareAndSwapUint32(&c.state, CollectorStateNotRunning, CollectorStateRunning) {
		switch s := atomic.LoadUint32(&c.state); s {
		case CollectorStateRunning:
			return fmt.Errorf("collector is already running")
		case CollectorStateStopping:
			return fmt.Errorf("collector is stopping, wait for it to finish")
		default:
			return fmt.Errorf("collector is in unknown state %d", s)
		}
	}

	c.stop = make(chan struct{})
	c.done = make(chan struct{})
	started := make(chan struct{}, 1)

	go func() {
		started <- struct{}{}
		defer func() {
			close(c.done)
			atomic.StoreUint32(&c.state, CollectorStateNotRunning)
		}()
		for {
			select {
			case <-c.stop:
				return
			case e, ok := <-c.feed:
				if !ok {
					return
				}
				overwrites, err := c.buffer.EnqueueM(e)
				if err != nil {
					c.metrics.incErrors()
					c.onError(fmt.Errorf("unexpected buffer.Enqueue error: %w", err))
					return
				}
				c.metrics.addOverwritten(overwrites)
				c.metrics.incCollected()
			}
		}
	}()

	select {
	case <-started:
		return nil
	case <-time.After(time.Second):
		close(c.stop)
		<-c.done
		return fmt.Errorf("collector failed to start within 1s timeout")
	}
}

// Stop stops collecting and waits for the goroutine to exit. Stopping a
// collector that is not running is a no-op.
func (c *Collector) Stop() error {
	if !atomic.CompareAndSwapUint32(&c.state, CollectorStateRunning, CollectorStateStopping) {
		switch s := atomic.LoadUint32(&c.state); s {
		case CollectorStateNotRunning:
			return nil
		case CollectorStateStopping:
		default:
			return fmt.Errorf("collector is in unknown state %d", s)
		}
	} else {
		close(c.stop)
	}

	select {
	case <-c.done:
		return nil
	case <-time.After(5 * time.Second):
		<-c.done
		return fmt.Errorf("stop completed but exceeded 5s timeout")
	}
}

// Done is closed when the collecting goroutine exits, either on Stop or
// because the feed was closed.
func (c *Collector) Done() <-chan struct{} {
	return c.done
}

func (c *Collector) State() uint32 {
	return atomic.LoadUint32(&c.state)
}

func (c *Collector) Metrics() CollectorMetrics {
	return c.metrics.snapshot()
}

// ConsumerFunc consumes collected entries.
//
// For a non-nil entry, return the zero T to continue or a non-zero T to stop
// early with that result. A nil entry marks the end of the buffered entries;
// return the final result.
type ConsumerFunc[T any] func(e *Entry) (T, error)

// EntriesConsumerFunc accumulates every entry into a slice.
func EntriesConsumerFunc() ConsumerFunc[[]Entry] {
	var out []Entry
	return func(e *Entry) ([]Entry, error) {
		if e == nil {
			return out, nil
		}
		out = append(out, *e)
		return nil, nil
	}
}

// ConsumeEntries drains the buffered entries into consumer.
func ConsumeEntries[T any](c *Collector, consumer ConsumerFunc[T]) (T, error) {
	for !c.buffer.IsEmpty() {
		e, err := c.buffer.Dequeue()
		if err != nil {
			var zero T
			return zero, fmt.Errorf("buffer dequeue error: %w", err)
		}
		result, err := consumer(&e)
		if err != nil {
			return result, err
		}
		if !isZero(result) {
			return result, nil
		}
	}
	return consumer(nil)
}

func isZero[T any](v T) bool {
	var zero T
	return reflect.DeepEqual(v, zero)
}

// Drain returns all buffered entries in collection order.
func (c *Collector) Drain() ([]Entry, error) {
	return ConsumeEntries(c, EntriesConsumerFunc())
}
