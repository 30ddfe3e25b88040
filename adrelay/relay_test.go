package adrelay

import (
	"runtime"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go2tv.app/castads/admeta"
	"go2tv.app/castads/castprotocol"
)

type fakeSource struct {
	mu        sync.Mutex
	listeners map[int]castprotocol.Listener
	retired   []castprotocol.Listener
	next      int
}

func newFakeSource() *fakeSource {
	return &fakeSource{listeners: make(map[int]castprotocol.Listener)}
}

type fakeSub struct {
	src *fakeSource
	id  int
}

func (s fakeSub) Cancel() {
	s.src.mu.Lock()
	defer s.src.mu.Unlock()
	if l, ok := s.src.listeners[s.id]; ok {
		s.src.retired = append(s.src.retired, l)
		delete(s.src.listeners, s.id)
	}
}

func (f *fakeSource) Subscribe(l castprotocol.Listener) castprotocol.Subscription {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.next++
	f.listeners[f.next] = l
	return fakeSub{src: f, id: f.next}
}

func (f *fakeSource) active() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.listeners)
}

func (f *fakeSource) emit(ev castprotocol.Event) {
	f.mu.Lock()
	ls := make([]castprotocol.Listener, 0, len(f.listeners))
	for _, l := range f.listeners {
		ls = append(ls, l)
	}
	f.mu.Unlock()
	for _, l := range ls {
		l(ev)
	}
}

// emitLate delivers to listeners whose subscription was already cancelled,
// as a source with an event in flight would.
func (f *fakeSource) emitLate(ev castprotocol.Event) {
	f.mu.Lock()
	ls := append([]castprotocol.Listener(nil), f.retired...)
	f.mu.Unlock()
	for _, l := range ls {
		l(ev)
	}
}

type recorder struct {
	calls []string
	metas []*admeta.AdMeta
}

func (r *recorder) OnAdPlay()  { r.calls = append(r.calls, "play") }
func (r *recorder) OnAdEnded() { r.calls = append(r.calls, "ended") }
func (r *recorder) OnAdMeta(m *admeta.AdMeta) {
	r.calls = append(r.calls, "meta")
	r.metas = append(r.metas, m)
}

type playOnly struct {
	plays []time.Time
}

func (p *playOnly) OnAdPlay() { p.plays = append(p.plays, time.Now()) }

// sourceFunc adapts a function to EventSource. Its dynamic type is not
// comparable.
type sourceFunc func(castprotocol.Listener) castprotocol.Subscription

func (f sourceFunc) Subscribe(l castprotocol.Listener) castprotocol.Subscription { return f(l) }

func adMetaEvent(ns string, payload map[string]any) castprotocol.Event {
	return castprotocol.Event{
		Kind:      castprotocol.EventCustomMessage,
		Namespace: ns,
		Type:      castprotocol.AdMetaType,
		Payload:   payload,
	}
}

func TestRelayForwardsAdMetaOnly(t *testing.T) {
	src := newFakeSource()
	r := NewRelay()
	d := &recorder{}
	SetDelegate(r, d)
	r.Attach(src)

	src.emit(adMetaEvent(castprotocol.CustomReceiverNamespace, map[string]any{
		"adId":       "abc123",
		"skipOffset": 5.0,
		"companions": []any{map[string]any{"width": 300.0, "height": 250.0}},
	}))

	require.Equal(t, []string{"meta"}, d.calls)
	meta := d.metas[0]
	assert.Equal(t, "abc123", *meta.AdID)
	assert.Equal(t, 5, meta.SkipOffsetSeconds)
	require.Len(t, meta.Companions, 1)
	assert.Equal(t, 300, meta.Companions[0].Width)
	runtime.KeepAlive(d)
	runtime.KeepAlive(r)
}

func TestRelayUnwrapsAdMetaEnvelope(t *testing.T) {
	r := NewRelay()
	d := &recorder{}
	SetDelegate(r, d)

	r.HandleEvent(adMetaEvent(castprotocol.CustomReceiverNamespace, map[string]any{
		"type":   "adMeta",
		"adMeta": map[string]any{"title": "wrapped"},
	}))

	require.Len(t, d.metas, 1)
	assert.Equal(t, "wrapped", *d.metas[0].Title)
}

func TestRelayMalformedMetaStillDelivered(t *testing.T) {
	r := NewRelay()
	d := &recorder{}
	SetDelegate(r, d)

	r.HandleEvent(adMetaEvent(castprotocol.MediaNamespace, map[string]any{"podCount": "many", "companions": 7.0}))

	require.Len(t, d.metas, 1)
	assert.Zero(t, d.metas[0].PodCount)
	assert.NotNil(t, d.metas[0].Companions)
}

func TestRelayAdBreakBoundaries(t *testing.T) {
	src := newFakeSource()
	r := NewRelay()
	d := &recorder{}
	SetDelegate(r, d)
	r.Attach(src)

	src.emit(castprotocol.Event{Kind: castprotocol.EventAdBreakBegin})
	src.emit(castprotocol.Event{Kind: castprotocol.EventStatus})
	src.emit(castprotocol.Event{Kind: castprotocol.EventAdBreakEnd})
	src.emit(castprotocol.Event{Kind: castprotocol.EventDisconnected})

	assert.Equal(t, []string{"play", "ended"}, d.calls)
	runtime.KeepAlive(r)
}

func TestRelayIgnoresOtherCustomMessages(t *testing.T) {
	r := NewRelay()
	d := &recorder{}
	SetDelegate(r, d)

	r.HandleEvent(adMetaEvent("urn:x-cast:com.example.other", map[string]any{"adId": "x"}))
	r.HandleEvent(castprotocol.Event{
		Kind:      castprotocol.EventCustomMessage,
		Namespace: castprotocol.CustomReceiverNamespace,
		Type:      "PING",
	})

	assert.Empty(t, d.calls)
}

func TestRelayCustomNamespaces(t *testing.T) {
	r := NewRelay(WithNamespaces("urn:x-cast:com.example.ads"))
	d := &recorder{}
	SetDelegate(r, d)

	r.HandleEvent(adMetaEvent(castprotocol.CustomReceiverNamespace, nil))
	r.HandleEvent(adMetaEvent("urn:x-cast:com.example.ads", nil))

	assert.Equal(t, []string{"meta"}, d.calls)
}

func TestRelayPartialDelegate(t *testing.T) {
	r := NewRelay()
	d := &playOnly{}
	SetDelegate(r, d)

	require.NotPanics(t, func() {
		r.HandleEvent(adMetaEvent(castprotocol.CustomReceiverNamespace, map[string]any{}))
		r.HandleEvent(castprotocol.Event{Kind: castprotocol.EventAdBreakBegin})
		r.HandleEvent(castprotocol.Event{Kind: castprotocol.EventAdBreakEnd})
	})
	assert.Len(t, d.plays, 1)
}

func TestRelayNoDelegate(t *testing.T) {
	src := newFakeSource()
	r := NewRelay()
	r.Attach(src)

	require.False(t, r.HasDelegate())
	require.NotPanics(t, func() {
		src.emit(castprotocol.Event{Kind: castprotocol.EventAdBreakBegin})
		src.emit(adMetaEvent(castprotocol.CustomReceiverNamespace, map[string]any{"adId": "x"}))
	})
	runtime.KeepAlive(r)
}

func TestRelayDelegateFuncs(t *testing.T) {
	r := NewRelay()
	var ended int
	fns := &DelegateFuncs{Ended: func() { ended++ }}
	SetDelegate(r, fns)

	r.HandleEvent(castprotocol.Event{Kind: castprotocol.EventAdBreakBegin})
	r.HandleEvent(castprotocol.Event{Kind: castprotocol.EventAdBreakEnd})
	r.HandleEvent(adMetaEvent(castprotocol.CustomReceiverNamespace, nil))

	assert.Equal(t, 1, ended)
	runtime.KeepAlive(fns)
}

func TestRelayClearDelegate(t *testing.T) {
	r := NewRelay()
	d := &recorder{}
	SetDelegate(r, d)
	r.ClearDelegate()

	r.HandleEvent(castprotocol.Event{Kind: castprotocol.EventAdBreakBegin})
	assert.Empty(t, d.calls)

	SetDelegate(r, d)
	SetDelegate[recorder](r, nil)
	assert.False(t, r.HasDelegate())
}

func TestRelayAttachIsIdempotent(t *testing.T) {
	src := newFakeSource()
	r := NewRelay()
	d := &recorder{}
	SetDelegate(r, d)

	r.Attach(src)
	r.Attach(src)
	require.Equal(t, 1, src.active())

	src.emit(castprotocol.Event{Kind: castprotocol.EventAdBreakBegin})
	assert.Equal(t, []string{"play"}, d.calls)
	runtime.KeepAlive(r)
}

func TestRelayAttachFuncSourceTwice(t *testing.T) {
	backing := newFakeSource()
	src := sourceFunc(backing.Subscribe)
	r := NewRelay()
	d := &recorder{}
	SetDelegate(r, d)

	require.NotPanics(t, func() {
		r.Attach(src)
		r.Attach(src)
	})
	require.True(t, r.Attached())
	require.Equal(t, 1, backing.active())

	backing.emit(castprotocol.Event{Kind: castprotocol.EventAdBreakBegin})
	assert.Equal(t, []string{"play"}, d.calls)

	r.Detach()
	assert.Zero(t, backing.active())
	runtime.KeepAlive(r)
}

func TestRelayAttachReplacesSource(t *testing.T) {
	first := newFakeSource()
	second := newFakeSource()
	r := NewRelay()
	d := &recorder{}
	SetDelegate(r, d)

	r.Attach(first)
	r.Attach(second)

	assert.Zero(t, first.active())
	assert.Equal(t, 1, second.active())

	first.emitLate(castprotocol.Event{Kind: castprotocol.EventAdBreakBegin})
	second.emit(castprotocol.Event{Kind: castprotocol.EventAdBreakEnd})
	assert.Equal(t, []string{"ended"}, d.calls)
	runtime.KeepAlive(r)
}

func TestRelayDetachTwice(t *testing.T) {
	src := newFakeSource()
	r := NewRelay()
	r.Attach(src)

	require.NotPanics(t, func() {
		r.Detach()
		r.Detach()
	})
	assert.False(t, r.Attached())
	assert.Zero(t, src.active())
	require.NoError(t, r.Close())
}

func TestRelayDropsLateDeliveryAfterDetach(t *testing.T) {
	src := newFakeSource()
	r := NewRelay()
	d := &recorder{}
	SetDelegate(r, d)
	r.Attach(src)
	r.Detach()

	src.emitLate(castprotocol.Event{Kind: castprotocol.EventAdBreakBegin})
	assert.Empty(t, d.calls)

	// Re-attaching to the same source must not revive the old listener.
	r.Attach(src)
	src.emitLate(castprotocol.Event{Kind: castprotocol.EventAdBreakBegin})
	assert.Empty(t, d.calls)
	src.emit(castprotocol.Event{Kind: castprotocol.EventAdBreakBegin})
	assert.Equal(t, []string{"play"}, d.calls)
	runtime.KeepAlive(r)
}

func TestRelayAttachNilDetaches(t *testing.T) {
	src := newFakeSource()
	r := NewRelay()
	r.Attach(src)
	r.Attach(nil)

	assert.False(t, r.Attached())
	assert.Zero(t, src.active())
}

func TestRelayDropsCollectedDelegate(t *testing.T) {
	src := newFakeSource()
	r := NewRelay()
	r.Attach(src)

	func() {
		d := &recorder{}
		SetDelegate(r, d)
		require.True(t, r.HasDelegate())
	}()

	require.Eventually(t, func() bool {
		runtime.GC()
		return !r.HasDelegate()
	}, 2*time.Second, 10*time.Millisecond)

	require.NotPanics(t, func() {
		src.emit(castprotocol.Event{Kind: castprotocol.EventAdBreakBegin})
		src.emit(adMetaEvent(castprotocol.CustomReceiverNamespace, map[string]any{"adId": "gone"}))
	})
	runtime.KeepAlive(r)
}

func TestRelayCollectedWhileAttachedUnsubscribes(t *testing.T) {
	src := newFakeSource()

	func() {
		r := NewRelay()
		r.Attach(src)
		require.Equal(t, 1, src.active())
	}()

	require.Eventually(t, func() bool {
		runtime.GC()
		return src.active() == 0
	}, 2*time.Second, 10*time.Millisecond)
}

func TestRelayWithMediaEvents(t *testing.T) {
	events := castprotocol.NewMediaEvents()
	r := NewRelay()
	d := &recorder{}
	SetDelegate(r, d)
	r.Attach(events)
	defer r.Close()

	require.Equal(t, 1, events.Subscribers())
	r.Detach()
	assert.Zero(t, events.Subscribers())
	runtime.KeepAlive(d)
}
