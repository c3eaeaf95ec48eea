package webhook

import (
	"strings"
	"sync"
)

const (
	defaultSubscriberCapacity = 100
	defaultBacklogLimit       = 50
	defaultDedupeWindow       = 1024
)

// RouterOption customizes Router construction.
type RouterOption func(*Router)

// Router delivers webhook notifications to repo-specific subscribers with
// buffering, delivery-ID deduplication and bounded channel semantics. The
// forge redelivers on timeouts, so duplicates are a fact of life.
type Router struct {
	mu           sync.RWMutex
	subscribers  map[string]map[*subscriber]struct{}
	backlog      map[string][]Delivery
	recentIDs    map[string]struct{}
	recentOrder  []string
	channelSize  int
	backlogLimit int
	dedupeWindow int
	logger       Logger
}

// Subscription represents an active repo subscription.
type Subscription struct {
	Deliveries <-chan Delivery
	cancel     func()
}

// Close terminates the subscription.
func (s Subscription) Close() {
	if s.cancel != nil {
		s.cancel()
	}
}

// NewRouter constructs a router with sane defaults.
func NewRouter(opts ...RouterOption) *Router {
	r := &Router{
		subscribers:  map[string]map[*subscriber]struct{}{},
		backlog:      map[string][]Delivery{},
		recentIDs:    map[string]struct{}{},
		recentOrder:  make([]string, 0, defaultDedupeWindow),
		channelSize:  defaultSubscriberCapacity,
		backlogLimit: defaultBacklogLimit,
		dedupeWindow: defaultDedupeWindow,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(r)
		}
	}
	return r
}

// RouterWithLogger injects a logger for drop diagnostics.
func RouterWithLogger(logger Logger) RouterOption {
	return func(r *Router) {
		r.logger = logger
	}
}

// RouterWithSubscriberCapacity overrides the buffered channel size per
// subscriber.
func RouterWithSubscriberCapacity(size int) RouterOption {
	return func(r *Router) {
		if size > 0 {
			r.channelSize = size
		}
	}
}

// RouterWithBacklogLimit overrides the backlog size for pre-subscription
// buffering.
func RouterWithBacklogLimit(limit int) RouterOption {
	return func(r *Router) {
		if limit > 0 {
			r.backlogLimit = limit
		}
	}
}

// RouterWithDedupeWindow controls how many recent delivery IDs are retained.
func RouterWithDedupeWindow(size int) RouterOption {
	return func(r *Router) {
		if size > 0 {
			r.dedupeWindow = size
		}
	}
}

// Subscribe registers for deliveries from one repository. An empty repo
// subscribes to everything, draining all buffered backlogs.
func (r *Router) Subscribe(repo string) Subscription {
	key := normalizeRepo(repo)
	sub := newSubscriber(r.channelSize, r.logger)
	var backlog []Delivery
	r.mu.Lock()
	if r.subscribers[key] == nil {
		r.subscribers[key] = map[*subscriber]struct{}{}
	}
	r.subscribers[key][sub] = struct{}{}
	if key == "" {
		for repo, queue := range r.backlog {
			backlog = append(backlog, queue...)
			delete(r.backlog, repo)
		}
	} else if queue := r.backlog[key]; len(queue) > 0 {
		backlog = append(backlog, queue...)
		delete(r.backlog, key)
	}
	r.mu.Unlock()
	for _, delivery := range backlog {
		sub.deliver(delivery)
	}
	return Subscription{
		Deliveries: sub.channel(),
		cancel: func() {
			r.removeSubscriber(key, sub)
		},
	}
}

// HandleDelivery satisfies the Handler interface.
func (r *Router) HandleDelivery(d Delivery) error {
	r.Route(d)
	return nil
}

// Route fans the delivery out to subscribers, or buffers it when none are
// listening yet. Redelivered IDs are dropped.
func (r *Router) Route(d Delivery) {
	if d.ID != "" && r.isDuplicate(d.ID) {
		return
	}
	key := normalizeRepo(d.Repo)
	if key == "" {
		return
	}
	r.mu.RLock()
	subs := append(r.snapshotSubscribers(key), r.snapshotSubscribers("")...)
	r.mu.RUnlock()
	if len(subs) == 0 {
		r.bufferDelivery(key, d)
		return
	}
	for _, sub := range subs {
		sub.deliver(d)
	}
}

func (r *Router) snapshotSubscribers(key string) []*subscriber {
	live := r.subscribers[key]
	if len(live) == 0 {
		return nil
	}
	items := make([]*subscriber, 0, len(live))
	for sub := range live {
		items = append(items, sub)
	}
	return items
}

func (r *Router) removeSubscriber(key string, sub *subscriber) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if subs := r.subscribers[key]; subs != nil {
		delete(subs, sub)
		if len(subs) == 0 {
			delete(r.subscribers, key)
		}
	}
	sub.close()
}

func (r *Router) bufferDelivery(key string, d Delivery) {
	r.mu.Lock()
	defer r.mu.Unlock()
	queue := r.backlog[key]
	if len(queue) >= r.backlogLimit {
		queue = queue[1:]
		if r.logger != nil {
			r.logger.Printf("webhook: backlog drop for %s (limit %d)", key, r.backlogLimit)
		}
	}
	queue = append(queue, d)
	r.backlog[key] = queue
}

func (r *Router) isDuplicate(id string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.recentIDs[id]; ok {
		return true
	}
	r.recentIDs[id] = struct{}{}
	r.recentOrder = append(r.recentOrder, id)
	if len(r.recentOrder) > r.dedupeWindow {
		oldest := r.recentOrder[0]
		r.recentOrder = r.recentOrder[1:]
		delete(r.recentIDs, oldest)
	}
	return false
}

func normalizeRepo(repo string) string {
	return strings.TrimSpace(strings.ToLower(repo))
}

type subscriber struct {
	ch      chan Delivery
	logger  Logger
	closed  bool
	closeMu sync.Mutex
}

func newSubscriber(capacity int, logger Logger) *subscriber {
	if capacity <= 0 {
		capacity = defaultSubscriberCapacity
	}
	return &subscriber{
		ch:     make(chan Delivery, capacity),
		logger: logger,
	}
}

func (s *subscriber) channel() <-chan Delivery {
	return s.ch
}

// deliver enqueues d, evicting the oldest buffered delivery when the
// subscriber is full. Holding closeMu keeps the send ordered against close.
func (s *subscriber) deliver(d Delivery) {
	s.closeMu.Lock()
	defer s.closeMu.Unlock()
	if s.closed {
		return
	}
	select {
	case s.ch <- d:
		return
	default:
	}
	select {
	case oldest := <-s.ch:
		s.logDrop(oldest, "queue overflow")
	default:
	}
	select {
	case s.ch <- d:
	default:
		s.logDrop(d, "queue overflow")
	}
}

func (s *subscriber) logDrop(d Delivery, reason string) {
	if s.logger == nil {
		return
	}
	s.logger.Printf("webhook: dropped %s %s (%s)", d.Event, d.ID, reason)
}

func (s *subscriber) close() {
	s.closeMu.Lock()
	if s.closed {
		s.closeMu.Unlock()
		return
	}
	s.closed = true
	close(s.ch)
	s.closeMu.Unlock()
}
