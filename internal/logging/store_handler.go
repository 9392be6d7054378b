package logging

import (
	"context"
	"log/slog"
	"time"

	"invoicedesk/internal/domain"
)

// EntryAppender persists log entries, e.g. the logs collection of the backup database.
type EntryAppender interface {
	AppendLog(ctx context.Context, e domain.LogEntry) error
}

// StoreHandler forwards records to next and, asynchronously, to an EntryAppender.
// Persistence failures are dropped; the console handler always sees the record.
type StoreHandler struct {
	next     slog.Handler
	store    EntryAppender
	source   string
	minLevel slog.Level
	timeout  time.Duration
	// attrs уже с префиксом группы, действовавшей при WithAttrs
	attrs map[string]any
	group string
}

func NewStoreHandler(next slog.Handler, store EntryAppender, source string, minLevel slog.Level) *StoreHandler {
	return &StoreHandler{next: next, store: store, source: source, minLevel: minLevel, timeout: 5 * time.Second}
}

func (h *StoreHandler) Enabled(ctx context.Context, l slog.Level) bool {
	return l >= h.minLevel || h.next.Enabled(ctx, l)
}

func (h *StoreHandler) Handle(ctx context.Context, r slog.Record) error {
	if r.Level >= h.minLevel {
		entry := h.entry(r)
		go func() {
			ctx, cancel := context.WithTimeout(context.Background(), h.timeout)
			defer cancel()
			_ = h.store.AppendLog(ctx, entry)
		}()
	}
	if h.next.Enabled(ctx, r.Level) {
		return h.next.Handle(ctx, r)
	}
	return nil
}

func (h *StoreHandler) entry(r slog.Record) domain.LogEntry {
	attrs := make(map[string]any, len(h.attrs)+r.NumAttrs())
	for k, v := range h.attrs {
		attrs[k] = v
	}
	r.Attrs(func(a slog.Attr) bool {
		flatten(attrs, h.group, a)
		return true
	})
	ts := r.Time
	if ts.IsZero() {
		ts = time.Now()
	}
	return domain.LogEntry{
		Level:     r.Level.String(),
		Message:   r.Message,
		Attrs:     attrs,
		Source:    h.source,
		Timestamp: ts.UTC(),
	}
}

func joinKey(prefix, k string) string {
	if prefix == "" {
		return k
	}
	return prefix + "." + k
}

// flatten stores a under prefix; group values become dotted keys.
func flatten(dst map[string]any, prefix string, a slog.Attr) {
	v := a.Value.Resolve()
	if v.Kind() == slog.KindGroup {
		// группа без ключа встраивается в текущий уровень
		if a.Key != "" {
			prefix = joinKey(prefix, a.Key)
		}
		for _, ga := range v.Group() {
			flatten(dst, prefix, ga)
		}
		return
	}
	if a.Key == "" {
		return
	}
	dst[joinKey(prefix, a.Key)] = attrValue(v)
}

// errors are not bson-encodable, store their text
func attrValue(v slog.Value) any {
	if err, ok := v.Any().(error); ok {
		return err.Error()
	}
	return v.Any()
}

func (h *StoreHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	cp := *h
	cp.next = h.next.WithAttrs(attrs)
	cp.attrs = make(map[string]any, len(h.attrs)+len(attrs))
	for k, v := range h.attrs {
		cp.attrs[k] = v
	}
	for _, a := range attrs {
		flatten(cp.attrs, h.group, a)
	}
	return &cp
}

func (h *StoreHandler) WithGroup(name string) slog.Handler {
	if name == "" {
		return h
	}
	cp := *h
	cp.next = h.next.WithGroup(name)
	cp.group = joinKey(h.group, name)
	return &cp
}
