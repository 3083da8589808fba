package store

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/aidanlsb/dendrite/internal/model"
)

type loadFunc func(ctx context.Context, path model.DocPath) (Snapshot, error)

// hub fans snapshots out to subscribers. Every subscription has its own
// goroutine and unbounded queue, so a slow subscriber never blocks a writer
// and never loses or reorders snapshots.
type hub struct {
	logger *slog.Logger
	load   loadFunc

	mu       sync.Mutex
	subs     map[string]map[*subscription]struct{}
	versions map[string]int64 // last published version per path; 0 after delete
}

func newHub(load loadFunc, logger *slog.Logger) *hub {
	return &hub{
		logger:   logger,
		load:     load,
		subs:     make(map[string]map[*subscription]struct{}),
		versions: make(map[string]int64),
	}
}

type event struct {
	snap Snapshot
	err  error
}

type subscription struct {
	path     model.DocPath
	onUpdate func(Snapshot)
	onError  func(error)

	closed   atomic.Bool
	done     chan struct{}
	stopOnce sync.Once
	signal   chan struct{}

	mu    sync.Mutex
	queue []event

	// owned by the delivery goroutine
	delivered int64
	seen      bool
}

func (h *hub) subscribe(path model.DocPath, onUpdate func(Snapshot), onError func(error)) Unsubscribe {
	s := &subscription{
		path:     path,
		onUpdate: onUpdate,
		onError:  onError,
		done:     make(chan struct{}),
		signal:   make(chan struct{}, 1),
	}

	key := path.String()
	h.mu.Lock()
	if h.subs[key] == nil {
		h.subs[key] = make(map[*subscription]struct{})
	}
	h.subs[key][s] = struct{}{}
	h.mu.Unlock()

	go s.run(h.load)

	return func() {
		s.stop()
		h.remove(key, s)
	}
}

func (h *hub) remove(key string, s *subscription) {
	h.mu.Lock()
	defer h.mu.Unlock()
	delete(h.subs[key], s)
	if len(h.subs[key]) == 0 {
		delete(h.subs, key)
	}
}

// publish queues snap for every subscriber of its path.
func (h *hub) publish(snap Snapshot) {
	key := snap.Path.String()
	h.mu.Lock()
	if snap.Exists {
		h.versions[key] = snap.Note.Version
	} else {
		h.versions[key] = 0
	}
	targets := h.targets(key)
	h.mu.Unlock()

	for _, s := range targets {
		s.enqueue(event{snap: snap})
	}
}

// fail reports err to every subscriber of path.
func (h *hub) fail(path model.DocPath, err error) {
	h.logger.Debug("subscription failed", "path", path.String(), "error", err)
	h.mu.Lock()
	targets := h.targets(path.String())
	h.mu.Unlock()
	for _, s := range targets {
		s.enqueue(event{err: err})
	}
}

func (h *hub) targets(key string) []*subscription {
	out := make([]*subscription, 0, len(h.subs[key]))
	for s := range h.subs[key] {
		out = append(out, s)
	}
	return out
}

// watched returns the subscribed paths with the last published version of each.
func (h *hub) watched() map[model.DocPath]int64 {
	h.mu.Lock()
	defer h.mu.Unlock()
	out := make(map[model.DocPath]int64, len(h.subs))
	for key, set := range h.subs {
		for s := range set {
			out[s.path] = h.versions[key]
			break
		}
	}
	return out
}

func (h *hub) closeAll() {
	h.mu.Lock()
	var all []*subscription
	for _, set := range h.subs {
		for s := range set {
			all = append(all, s)
		}
	}
	h.subs = make(map[string]map[*subscription]struct{})
	h.mu.Unlock()

	for _, s := range all {
		s.stop()
	}
}

func (s *subscription) stop() {
	s.stopOnce.Do(func() {
		s.closed.Store(true)
		close(s.done)
	})
}

func (s *subscription) enqueue(ev event) {
	if s.closed.Load() {
		return
	}
	s.mu.Lock()
	s.queue = append(s.queue, ev)
	s.mu.Unlock()
	select {
	case s.signal <- struct{}{}:
	default:
	}
}

func (s *subscription) pop() (event, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.queue) == 0 {
		return event{}, false
	}
	ev := s.queue[0]
	s.queue = s.queue[1:]
	return ev, true
}

func (s *subscription) run(load loadFunc) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() {
		select {
		case <-s.done:
			cancel()
		case <-ctx.Done():
		}
	}()

	snap, err := load(ctx, s.path)
	if !s.handle(event{snap: snap, err: err}) {
		return
	}

	for {
		select {
		case <-s.done:
			return
		case <-s.signal:
		}
		for {
			ev, ok := s.pop()
			if !ok {
				break
			}
			if !s.handle(ev) {
				return
			}
		}
	}
}

// handle delivers one event and reports whether the subscription is still live.
func (s *subscription) handle(ev event) bool {
	if s.closed.Load() {
		return false
	}
	if ev.err != nil {
		s.closed.Store(true)
		if s.onError != nil {
			s.onError(ev.err)
		}
		return false
	}

	snap := ev.snap
	if snap.Exists {
		// A write can land between registration and the initial read, in
		// which case the queued copy of it is already delivered.
		if s.seen && snap.Note.Version <= s.delivered {
			return true
		}
		s.delivered = snap.Note.Version
	} else {
		s.delivered = 0
	}
	s.seen = true
	if s.onUpdate != nil {
		s.onUpdate(snap)
	}
	return true
}
