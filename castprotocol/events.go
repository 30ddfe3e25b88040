package castprotocol

import (
	"bytes"
	"encoding/json"
	"io"
	"sync"

	"github.com/buger/jsonparser"
	"github.com/rs/zerolog"
	pb "github.com/vishen/go-chromecast/cast/proto"
)

const (
	ConnectionNamespace = "urn:x-cast:com.google.cast.tp.connection"
	HeartbeatNamespace  = "urn:x-cast:com.google.cast.tp.heartbeat"
	ReceiverNamespace   = "urn:x-cast:com.google.cast.receiver"
	MediaNamespace      = "urn:x-cast:com.google.cast.media"
	// CustomReceiverNamespace is where the JW receiver broadcasts its
	// status, including ad metadata and ad break state.
	CustomReceiverNamespace = "urn:x-cast:jw.custom.receiver"

	// AdMetaType is the Event.Type of ad metadata custom messages.
	AdMetaType = "adMeta"
)

// EventKind classifies events delivered by MediaEvents.
type EventKind int

const (
	EventStatus EventKind = iota
	EventCustomMessage
	EventAdBreakBegin
	EventAdBreakEnd
	EventDisconnected
)

func (k EventKind) String() string {
	switch k {
	case EventStatus:
		return "status"
	case EventCustomMessage:
		return "customMessage"
	case EventAdBreakBegin:
		return "adBreakBegin"
	case EventAdBreakEnd:
		return "adBreakEnd"
	case EventDisconnected:
		return "disconnected"
	}
	return "unknown"
}

// Event is a remote media client notification.
type Event struct {
	Kind      EventKind
	Namespace string
	// Type is the "type" field of the message body.
	Type string
	// Payload is the decoded body of a custom message.
	Payload map[string]any
	// Status is set for EventStatus.
	Status *MediaStatus
}

// Listener receives events on the delivering goroutine.
type Listener func(Event)

// Subscription is returned by Subscribe. Cancel is idempotent.
type Subscription interface {
	Cancel()
}

// MediaEvents turns the raw cast message stream of one device into Events
// and fans them out to subscribers. Messages are expected one at a time.
type MediaEvents struct {
	Logger      zerolog.Logger
	LogOutput   io.Writer
	initLogOnce sync.Once

	mu        sync.Mutex
	listeners map[uint64]Listener
	nextID    uint64

	// Only touched from HandleMessage.
	adPlaying  bool
	lastAdMeta []byte
}

// NewMediaEvents returns an event source with no subscribers.
func NewMediaEvents() *MediaEvents {
	return &MediaEvents{
		listeners: make(map[uint64]Listener),
		Logger:    zerolog.Nop(),
	}
}

// Log returns the zerolog logger, initializing it lazily if LogOutput is set.
func (e *MediaEvents) Log() *zerolog.Logger {
	if e.LogOutput != nil {
		e.initLogOnce.Do(func() {
			e.Logger = zerolog.New(e.LogOutput).With().Timestamp().Logger()
		})
	}
	return &e.Logger
}

type subscription struct {
	once   sync.Once
	events *MediaEvents
	id     uint64
}

func (s *subscription) Cancel() {
	s.once.Do(func() {
		s.events.mu.Lock()
		delete(s.events.listeners, s.id)
		s.events.mu.Unlock()
	})
}

// Subscribe registers l for every following event.
func (e *MediaEvents) Subscribe(l Listener) Subscription {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.nextID++
	e.listeners[e.nextID] = l
	return &subscription{events: e, id: e.nextID}
}

// Subscribers returns the number of active subscriptions.
func (e *MediaEvents) Subscribers() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.listeners)
}

func (e *MediaEvents) publish(ev Event) {
	e.mu.Lock()
	ls := make([]Listener, 0, len(e.listeners))
	for _, l := range e.listeners {
		ls = append(ls, l)
	}
	e.mu.Unlock()

	e.Log().Debug().Str("Method", "publish").Str("Kind", ev.Kind.String()).Str("Namespace", ev.Namespace).Str("Type", ev.Type).Int("Listeners", len(ls)).Msg("event")
	for _, l := range ls {
		l(ev)
	}
}

// HandleMessage translates one cast message. It has the signature of a
// go-chromecast message func.
func (e *MediaEvents) HandleMessage(msg *pb.CastMessage) {
	if msg == nil {
		return
	}

	ns := msg.GetNamespace()
	data := []byte(msg.GetPayloadUtf8())
	msgType, _ := jsonparser.GetString(data, "type")

	switch ns {
	case HeartbeatNamespace, ReceiverNamespace:
		return
	case ConnectionNamespace:
		if msgType == "CLOSE" {
			e.adPlaying = false
			e.lastAdMeta = nil
			e.publish(Event{Kind: EventDisconnected, Namespace: ns, Type: msgType})
		}
		return
	}

	if msgType == "MEDIA_STATUS" {
		e.handleMediaStatus(ns, data)
		return
	}

	if ns == MediaNamespace {
		e.publish(Event{Kind: EventStatus, Namespace: ns, Type: msgType})
		return
	}

	var payload map[string]any
	if err := json.Unmarshal(data, &payload); err != nil {
		e.Log().Debug().Str("Method", "HandleMessage").Str("Namespace", ns).Err(err).Msg("non JSON custom message dropped")
		return
	}
	e.publish(Event{Kind: EventCustomMessage, Namespace: ns, Type: msgType, Payload: payload})
}

func (e *MediaEvents) handleMediaStatus(ns string, data []byte) {
	var msg mediaStatusMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		e.Log().Debug().Str("Method", "handleMediaStatus").Str("Namespace", ns).Err(err).Msg("malformed MEDIA_STATUS")
		return
	}

	var status *MediaStatus
	if len(msg.Status) > 0 {
		status = &msg.Status[0]
	}

	// Metadata first, so a delegate knows what is about to play.
	var adMeta []byte
	if status != nil {
		if v, dt, _, err := jsonparser.Get(status.CustomData, AdMetaType); err == nil && dt == jsonparser.Object {
			adMeta = v
		}
	}
	switch {
	case adMeta == nil:
		e.lastAdMeta = nil
	case !bytes.Equal(adMeta, e.lastAdMeta):
		e.lastAdMeta = append([]byte(nil), adMeta...)
		var payload map[string]any
		if err := json.Unmarshal(adMeta, &payload); err == nil {
			e.publish(Event{Kind: EventCustomMessage, Namespace: ns, Type: AdMetaType, Payload: payload})
		}
	}

	playing := status != nil && status.BreakStatus != nil
	if playing != e.adPlaying {
		e.adPlaying = playing
		kind := EventAdBreakEnd
		if playing {
			kind = EventAdBreakBegin
		}
		e.publish(Event{Kind: kind, Namespace: ns, Type: msg.Type})
	}

	e.publish(Event{Kind: EventStatus, Namespace: ns, Type: msg.Type, Status: status})
}
