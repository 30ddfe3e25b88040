// Package adrelay forwards ad related notifications of a remote media
// client to an application delegate.
//
// The relay never keeps its delegate alive: it holds a weak pointer and
// silently drops events once the delegate has been collected. Callers must
// therefore keep their own reference to the delegate for as long as they
// want callbacks.
package adrelay

import (
	"io"
	"reflect"
	"runtime"
	"sync"
	"weak"

	"github.com/rs/zerolog"
	"go2tv.app/castads/admeta"
	"go2tv.app/castads/castprotocol"
)

// EventSource is a remote media client event stream.
type EventSource interface {
	Subscribe(l castprotocol.Listener) castprotocol.Subscription
}

// Option configures a Relay.
type Option func(*Relay)

// WithNamespaces replaces the namespaces on which adMeta messages are
// accepted.
func WithNamespaces(namespaces ...string) Option {
	return func(r *Relay) {
		r.namespaces = make(map[string]struct{}, len(namespaces))
		for _, ns := range namespaces {
			r.namespaces[ns] = struct{}{}
		}
	}
}

// WithLogger sets the relay logger.
func WithLogger(l zerolog.Logger) Option {
	return func(r *Relay) {
		r.Logger = l
	}
}

// Relay turns ad events into delegate callbacks.
type Relay struct {
	Logger      zerolog.Logger
	LogOutput   io.Writer
	initLogOnce sync.Once

	namespaces map[string]struct{}

	mu         sync.Mutex
	delegate   func() any
	source     EventSource
	sub        castprotocol.Subscription
	gen        uint64
	cleanup    runtime.Cleanup
	hasCleanup bool
}

// NewRelay returns a detached relay without a delegate.
func NewRelay(opts ...Option) *Relay {
	r := &Relay{}
	WithNamespaces(castprotocol.CustomReceiverNamespace, castprotocol.MediaNamespace)(r)
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Log returns the zerolog logger, initializing it lazily if LogOutput is set.
func (r *Relay) Log() *zerolog.Logger {
	if r.LogOutput != nil {
		r.initLogOnce.Do(func() {
			r.Logger = zerolog.New(r.LogOutput).With().Timestamp().Logger()
		})
	}
	return &r.Logger
}

// SetDelegate points r at d without retaining it. d may implement any of
// AdPlayHandler, AdEndedHandler and AdMetaHandler. A nil d clears the
// delegate.
func SetDelegate[T any](r *Relay, d *T) {
	if d == nil {
		r.ClearDelegate()
		return
	}

	wp := weak.Make(d)
	r.mu.Lock()
	r.delegate = func() any {
		if p := wp.Value(); p != nil {
			return p
		}
		return nil
	}
	r.mu.Unlock()
}

// ClearDelegate removes the delegate.
func (r *Relay) ClearDelegate() {
	r.mu.Lock()
	r.delegate = nil
	r.mu.Unlock()
}

// HasDelegate reports whether a delegate is set and still alive.
func (r *Relay) HasDelegate() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.currentDelegate() != nil
}

func (r *Relay) currentDelegate() any {
	if r.delegate == nil {
		return nil
	}
	return r.delegate()
}

// Attach subscribes r to src. Attaching to the source r is already attached
// to does nothing; attaching to another source replaces the subscription.
// Sources of a non comparable type, such as func adapters, are never
// considered the same and are resubscribed.
func (r *Relay) Attach(src EventSource) {
	if src == nil {
		r.Detach()
		return
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if r.sub != nil && sameSource(r.source, src) {
		r.Log().Debug().Str("Method", "Attach").Msg("already attached")
		return
	}
	r.detachLocked()

	r.gen++
	gen := r.gen
	wr := weak.Make(r)
	sub := src.Subscribe(func(ev castprotocol.Event) {
		if rr := wr.Value(); rr != nil {
			rr.deliver(gen, ev)
		}
	})

	r.source = src
	r.sub = sub
	// The source only sees a weak pointer, so a relay dropped while attached
	// can still be collected; cancel its subscription when that happens.
	r.cleanup = runtime.AddCleanup(r, func(s castprotocol.Subscription) { s.Cancel() }, sub)
	r.hasCleanup = true
	r.Log().Debug().Str("Method", "Attach").Uint64("Generation", gen).Msg("attached")
}

func sameSource(a, b EventSource) bool {
	if a == nil || b == nil {
		return false
	}
	if !reflect.TypeOf(a).Comparable() || !reflect.TypeOf(b).Comparable() {
		return false
	}
	return a == b
}

// Detach cancels the current subscription. It is safe to call repeatedly.
func (r *Relay) Detach() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.detachLocked()
}

func (r *Relay) detachLocked() {
	if r.sub == nil {
		return
	}

	r.sub.Cancel()
	r.sub = nil
	r.source = nil
	r.gen++
	if r.hasCleanup {
		r.cleanup.Stop()
		r.hasCleanup = false
	}
	r.Log().Debug().Str("Method", "Detach").Msg("detached")
}

// Attached reports whether r currently holds a subscription.
func (r *Relay) Attached() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.sub != nil
}

// Close detaches the relay.
func (r *Relay) Close() error {
	r.Detach()
	return nil
}

func (r *Relay) deliver(gen uint64, ev castprotocol.Event) {
	r.mu.Lock()
	if gen != r.gen || r.sub == nil {
		r.mu.Unlock()
		return
	}
	d := r.currentDelegate()
	r.mu.Unlock()

	r.dispatch(d, ev)
}

// HandleEvent dispatches ev to the current delegate.
func (r *Relay) HandleEvent(ev castprotocol.Event) {
	r.mu.Lock()
	d := r.currentDelegate()
	r.mu.Unlock()

	r.dispatch(d, ev)
}

func (r *Relay) dispatch(d any, ev castprotocol.Event) {
	switch ev.Kind {
	case castprotocol.EventCustomMessage:
		if !r.isAdMeta(ev) {
			return
		}
		meta := admeta.ParseAdMeta(adMetaPayload(ev.Payload))
		r.Log().Debug().Str("Method", "dispatch").Str("Namespace", ev.Namespace).Int("Companions", len(meta.Companions)).Msg("ad metadata")
		if h, ok := d.(AdMetaHandler); ok {
			h.OnAdMeta(&meta)
		}
	case castprotocol.EventAdBreakBegin:
		r.Log().Debug().Str("Method", "dispatch").Msg("ad break begin")
		if h, ok := d.(AdPlayHandler); ok {
			h.OnAdPlay()
		}
	case castprotocol.EventAdBreakEnd:
		r.Log().Debug().Str("Method", "dispatch").Msg("ad break end")
		if h, ok := d.(AdEndedHandler); ok {
			h.OnAdEnded()
		}
	}
}

func (r *Relay) isAdMeta(ev castprotocol.Event) bool {
	if ev.Type != castprotocol.AdMetaType {
		return false
	}
	_, ok := r.namespaces[ev.Namespace]
	return ok
}

// adMetaPayload unwraps {"type":"adMeta","adMeta":{...}} envelopes.
func adMetaPayload(body map[string]any) map[string]any {
	if inner, ok := admeta.Payload(body).Object(castprotocol.AdMetaType); ok {
		return inner
	}
	return body
}
