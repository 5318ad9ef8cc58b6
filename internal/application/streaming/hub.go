// Package streaming implements C4, the Output Streaming Hub: a
// process-wide, execution-keyed pub/sub broadcaster with a bounded
// ring-buffer replay cache, so a subscriber joining mid-execution first
// receives the most recent cached events (up to the cache size) before
// continuing live.
package streaming

import (
	"container/ring"
	"sync"
	"time"

	"github.com/smilemakc/mbflow/internal/infrastructure/logger"
	"github.com/smilemakc/mbflow/pkg/models"
)

// DefaultCacheLines is the default per-execution ring buffer size (spec
// §4.4's "default 1,000 lines/EID").
const DefaultCacheLines = 1000

// DefaultGraceWindow is how long a topic survives after its terminal
// Completed event before teardown, giving late joiners a window to
// still fetch InitialLogs.
const DefaultGraceWindow = 5 * time.Minute

// Subscriber is a live handle a caller drains for events.
type Subscriber struct {
	ch     chan models.StreamEvent
	topic  *topic
	id     string
	closed bool
	mu     sync.Mutex
}

// Events returns the channel a subscriber should range over.
func (s *Subscriber) Events() <-chan models.StreamEvent { return s.ch }

// Close detaches the subscriber from its topic.
func (s *Subscriber) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	s.closed = true
	s.topic.removeSubscriber(s.id)
}

type topic struct {
	mu          sync.Mutex
	executionID string
	seq         int64
	cache       *ring.Ring
	cacheLen    int
	cacheCap    int
	subs        map[string]*Subscriber
	completedAt *time.Time
	log         *logger.Logger
}

func newTopic(executionID string, cap int, log *logger.Logger) *topic {
	return &topic{
		executionID: executionID,
		cache:       ring.New(cap),
		cacheCap:    cap,
		subs:        make(map[string]*Subscriber),
		log:         log,
	}
}

func (t *topic) removeSubscriber(id string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.subs, id)
}

// Hub is the process-wide, execution-keyed event broadcaster.
type Hub struct {
	mu         sync.Mutex
	topics     map[string]*topic
	cacheLines int
	grace      time.Duration
	log        *logger.Logger
}

// New creates a Hub. cacheLines <= 0 uses DefaultCacheLines; grace <= 0
// uses DefaultGraceWindow.
func New(log *logger.Logger, cacheLines int, grace time.Duration) *Hub {
	if cacheLines <= 0 {
		cacheLines = DefaultCacheLines
	}
	if grace <= 0 {
		grace = DefaultGraceWindow
	}
	return &Hub{topics: make(map[string]*topic), cacheLines: cacheLines, grace: grace, log: log}
}

func (h *Hub) topicFor(executionID string, create bool) *topic {
	h.mu.Lock()
	defer h.mu.Unlock()
	t, ok := h.topics[executionID]
	if !ok && create {
		t = newTopic(executionID, h.cacheLines, h.log)
		h.topics[executionID] = t
	}
	return t
}

// Publish appends event to executionID's topic (creating it on the first
// Started event) and fans it out to every current subscriber. Slow
// subscribers never block publish: delivery is best-effort, drop-oldest
// under backpressure. A drop is logged as a warning on the hub's logger;
// no event about the drop is sent to the subscriber.
func (h *Hub) Publish(executionID string, event models.StreamEvent) {
	create := event.Type == models.StreamEventStarted
	t := h.topicFor(executionID, create)
	if t == nil {
		// Event arrived for a topic that was never Started and isn't being
		// created now; there is nothing to publish into.
		return
	}

	t.mu.Lock()
	t.seq++
	event.Sequence = t.seq
	t.cache.Value = event
	t.cache = t.cache.Next()
	if t.cacheLen < t.cacheCap {
		t.cacheLen++
	}
	subs := make([]*Subscriber, 0, len(t.subs))
	for _, s := range t.subs {
		subs = append(subs, s)
	}
	if event.Type == models.StreamEventCompleted {
		now := time.Now()
		t.completedAt = &now
	}
	t.mu.Unlock()

	for _, s := range subs {
		select {
		case s.ch <- event:
		default:
			// Drop-oldest: make room by draining one, then push.
			select {
			case <-s.ch:
			default:
			}
			select {
			case s.ch <- event:
			default:
			}
			if h.log != nil {
				h.log.Warn("streaming subscriber backpressure drop", "executionId", executionID, "subscriber", s.id)
			}
		}
	}

	if event.Type == models.StreamEventCompleted {
		go h.scheduleTeardown(executionID)
	}
}

func (h *Hub) scheduleTeardown(executionID string) {
	time.Sleep(h.grace)
	h.mu.Lock()
	defer h.mu.Unlock()
	t, ok := h.topics[executionID]
	if !ok || t.completedAt == nil {
		return
	}
	if time.Since(*t.completedAt) >= h.grace {
		delete(h.topics, executionID)
	}
}

// Join atomically attaches a subscriber and replays every cached event
// for executionID (I3: replay-then-live ordering). Returns ErrTopicNotFound
// if the execution has no topic (it never started, or was already torn
// down past its grace window).
func (h *Hub) Join(executionID, subscriberID string) (*Subscriber, error) {
	t := h.topicFor(executionID, false)
	if t == nil {
		return nil, models.ErrTopicNotFound
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	sub := &Subscriber{ch: make(chan models.StreamEvent, t.cacheCap+16), topic: t, id: subscriberID}
	replay := make([]models.StreamEvent, 0, t.cacheLen)
	t.cache.Do(func(v interface{}) {
		if v == nil {
			return
		}
		replay = append(replay, v.(models.StreamEvent))
	})
	for _, e := range replay {
		select {
		case sub.ch <- e:
		default:
		}
	}
	t.subs[subscriberID] = sub
	return sub, nil
}

// Leave detaches a subscriber by ID, equivalent to calling Close on the
// Subscriber handle.
func (h *Hub) Leave(executionID, subscriberID string) {
	t := h.topicFor(executionID, false)
	if t == nil {
		return
	}
	t.removeSubscriber(subscriberID)
}

// Emit is an adapter satisfying supervisor.Emit, publishing straight to
// the hub.
func (h *Hub) Emit(executionID string) func(models.StreamEvent) {
	return func(event models.StreamEvent) {
		h.Publish(executionID, event)
	}
}
