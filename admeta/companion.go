package admeta

// AdCompanion is a companion creative shown alongside an ad.
type AdCompanion struct {
	Width           int                 `json:"width"`
	Height          int                 `json:"height"`
	MimeType        *string             `json:"type,omitempty"`
	SourceURL       *string             `json:"source,omitempty"`
	Trackers        map[string][]string `json:"trackers"`
	ClickThroughURL *string             `json:"clickthrough,omitempty"`
}

// TrackerURLs returns the tracking URLs registered for event.
func (c AdCompanion) TrackerURLs(event string) []string {
	return c.Trackers[event]
}

// ParseCompanion builds an AdCompanion from a companion object, substituting
// defaults for anything missing or malformed.
func ParseCompanion(payload map[string]any) AdCompanion {
	p := Payload(payload)

	return AdCompanion{
		Width:           p.Int("width"),
		Height:          p.Int("height"),
		MimeType:        p.String("type"),
		SourceURL:       p.String("source"),
		Trackers:        p.StringLists("trackers"),
		ClickThroughURL: p.String("clickthrough", "clickThrough"),
	}
}

// ParseCompanions parses a companions array in order. Elements that are not
// objects are skipped. The result is never nil.
func ParseCompanions(payloads []any) []AdCompanion {
	out := make([]AdCompanion, 0, len(payloads))
	for _, e := range payloads {
		obj, ok := asObject(e)
		if !ok {
			continue
		}
		out = append(out, ParseCompanion(obj))
	}
	return out
}
