package log

import (
	"context"
	"log/slog"
	"sync"
)

// backlogSize is how many recent records are kept for late subscribers.
const backlogSize = 50

// subscriberBuffer bounds each subscriber channel; slow readers drop records.
const subscriberBuffer = 64

// state is shared between a handler and the handlers derived from it via
// WithAttrs and WithGroup.
type state struct {
	mu     sync.Mutex
	logs   []slog.Record
	subs   map[int]chan slog.Record
	nextID int
}

// RecordHandler is a slog.Handler that remembers recent records and fans them
// out to subscribers, such as the portal's event stream.
type RecordHandler struct {
	slog.Handler
	*state
}

// NewRecordHandler wraps handler.
func NewRecordHandler(handler slog.Handler) *RecordHandler {
	return &RecordHandler{
		Handler: handler,
		state:   &state{subs: map[int]chan slog.Record{}},
	}
}

// Handle stores the record, sends it to subscribers, then passes it on.
func (h *RecordHandler) Handle(ctx context.Context, r slog.Record) error {
	h.mu.Lock()
	h.logs = append(h.logs, r.Clone())
	if len(h.logs) > backlogSize {
		h.logs = h.logs[1:]
	}
	for _, ch := range h.subs {
		select {
		case ch <- r.Clone():
		default:
		}
	}
	h.mu.Unlock()

	return h.Handler.Handle(ctx, r)
}

func (h *RecordHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return &RecordHandler{Handler: h.Handler.WithAttrs(attrs), state: h.state}
}

func (h *RecordHandler) WithGroup(name string) slog.Handler {
	return &RecordHandler{Handler: h.Handler.WithGroup(name), state: h.state}
}

// Logs returns a copy of the stored records, oldest first.
func (h *RecordHandler) Logs() []slog.Record {
	h.mu.Lock()
	defer h.mu.Unlock()
	out := make([]slog.Record, len(h.logs))
	copy(out, h.logs)
	return out
}

// Subscribe returns a channel receiving every record handled from now on,
// and a function that unsubscribes and closes the channel.
func (h *RecordHandler) Subscribe() (<-chan slog.Record, func()) {
	h.mu.Lock()
	defer h.mu.Unlock()

	id := h.nextID
	h.nextID++
	ch := make(chan slog.Record, subscriberBuffer)
	h.subs[id] = ch

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			h.mu.Lock()
			defer h.mu.Unlock()
			delete(h.subs, id)
			close(ch)
		})
	}
}

// Init installs a RecordHandler around handler as the default logger and
// returns it.
func Init(handler slog.Handler) *RecordHandler {
	h := NewRecordHandler(handler)
	slog.SetDefault(slog.New(h))
	return h
}
