// Package scanner feeds decoded product identifiers into a drafting session.
package scanner

import (
	"context"
	"errors"
	"image"
	"io"
	"strings"
	"sync"

	"invoicedesk/internal/domain"
	"invoicedesk/internal/logging"
)

// Source decodes identifiers from some input and reports them through callbacks.
type Source interface {
	OnDecode(fn func(text string))
	OnError(fn func(err error))
	Start(ctx context.Context) error
	Stop() error
}

// ErrAlreadyStarted Start called twice without Stop
var ErrAlreadyStarted = errors.New("scanner already started")

// IsIgnorable reports errors meaning "no code in this frame".
func IsIgnorable(err error) bool {
	if err == nil {
		return false
	}
	msg := strings.ReplaceAll(strings.ToLower(err.Error()), " ", "")
	return strings.Contains(msg, "notfound")
}

// ImageDecoder decodes a single frame, see qr.MultiDecoder.
type ImageDecoder interface {
	Decode(img image.Image) (string, error)
}

// FrameSource decodes every frame received on a channel until the channel is
// closed, the context is cancelled or Stop is called.
type FrameSource struct {
	frames  <-chan image.Image
	decoder ImageDecoder

	mu       sync.Mutex
	onDecode func(string)
	onError  func(error)
	cancel   context.CancelFunc
	done     chan struct{}
}

func NewFrameSource(frames <-chan image.Image, decoder ImageDecoder) *FrameSource {
	return &FrameSource{frames: frames, decoder: decoder}
}

var _ Source = (*FrameSource)(nil)

func (s *FrameSource) OnDecode(fn func(string)) {
	s.mu.Lock()
	s.onDecode = fn
	s.mu.Unlock()
}

func (s *FrameSource) OnError(fn func(error)) {
	s.mu.Lock()
	s.onError = fn
	s.mu.Unlock()
}

// Start begins decoding in a background goroutine.
func (s *FrameSource) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cancel != nil {
		return ErrAlreadyStarted
	}
	ctx, cancel := context.WithCancel(ctx)
	s.cancel = cancel
	s.done = make(chan struct{})
	go s.loop(ctx, s.done)
	return nil
}

func (s *FrameSource) loop(ctx context.Context, done chan struct{}) {
	defer close(done)
	for {
		select {
		case <-ctx.Done():
			return
		case img, ok := <-s.frames:
			if !ok {
				return
			}
			s.handle(img)
		}
	}
}

func (s *FrameSource) handle(img image.Image) {
	text, err := s.decoder.Decode(img)
	s.mu.Lock()
	onDecode, onError := s.onDecode, s.onError
	s.mu.Unlock()
	switch {
	case err != nil && IsIgnorable(err):
	case err != nil:
		if onError != nil {
			onError(err)
		}
	case text != "" && onDecode != nil:
		onDecode(text)
	}
}

// Stop cancels decoding and waits for the goroutine to exit.
func (s *FrameSource) Stop() error {
	s.mu.Lock()
	cancel, done := s.cancel, s.done
	s.cancel, s.done = nil, nil
	s.mu.Unlock()
	if cancel == nil {
		return nil
	}
	cancel()
	<-done
	return nil
}

// ReaderDecoder decodes a whole uploaded image.
type ReaderDecoder interface {
	DecodeReader(r io.Reader) (string, error)
}

// Lookup resolves decoded text to a catalog item.
type Lookup interface {
	Lookup(ctx context.Context, text string) (*domain.CatalogItem, error)
}

// CartTarget receives scanned products, e.g. a drafting session.
type CartTarget interface {
	AddProduct(item domain.CatalogItem) (domain.LineItem, error)
}

// Adapter connects decode results to a session cart.
type Adapter struct {
	lookup Lookup
	log    logging.Logger
}

func NewAdapter(lookup Lookup, log logging.Logger) *Adapter {
	if log == nil {
		log = logging.Nop()
	}
	return &Adapter{lookup: lookup, log: log}
}

// Scan resolves text and adds one unit of the product to target.
func (a *Adapter) Scan(ctx context.Context, target CartTarget, text string) (domain.LineItem, error) {
	item, err := a.lookup.Lookup(ctx, text)
	if err != nil {
		return domain.LineItem{}, err
	}
	li, err := target.AddProduct(*item)
	if err != nil {
		return domain.LineItem{}, err
	}
	a.log.Info("product scanned", "product_id", item.ID, "quantity", li.Quantity)
	return li, nil
}

// ScanImage decodes a single image and scans the result.
func (a *Adapter) ScanImage(ctx context.Context, dec ReaderDecoder, target CartTarget, r io.Reader) (domain.LineItem, error) {
	text, err := dec.DecodeReader(r)
	if err != nil {
		if IsIgnorable(err) {
			return domain.LineItem{}, domain.NewValidationError(map[string]string{"image": "no code found in image"})
		}
		return domain.LineItem{}, err
	}
	return a.Scan(ctx, target, text)
}

// Event outcome of one decoded frame, delivered to Attach's callback.
type Event struct {
	Text     string           `json:"text,omitempty"`
	LineItem *domain.LineItem `json:"line_item,omitempty"`
	Warning  string           `json:"warning,omitempty"`
}

// Attach wires src callbacks so decoded text is added to target. Unknown
// products and decode failures become warnings; scanning continues.
func (a *Adapter) Attach(ctx context.Context, src Source, target CartTarget, emit func(Event)) {
	src.OnDecode(func(text string) {
		li, err := a.Scan(ctx, target, text)
		if err != nil {
			a.log.Warn("scan rejected", "text", text, "error", err)
			emit(Event{Text: text, Warning: err.Error()})
			return
		}
		emit(Event{Text: text, LineItem: &li})
	})
	src.OnError(func(err error) {
		a.log.Warn("scanner error", "error", err)
		emit(Event{Warning: err.Error()})
	})
}
