// Package admeta maps the ad metadata a cast receiver publishes into typed
// records. Parsing never fails: malformed fields fall back to their zero
// value so that ad metadata can never interrupt playback.
package admeta

import "encoding/json"

// AdMeta describes one ad within a pod or waterfall.
// A nil string pointer means the payload did not carry that field.
type AdMeta struct {
	AdType             *string       `json:"adType,omitempty"`
	AdID               *string       `json:"adId,omitempty"`
	Tag                *string       `json:"tag,omitempty"`
	Client             *string       `json:"client,omitempty"`
	WaterfallItemIndex int           `json:"wItem"`
	WaterfallCount     int           `json:"wCount"`
	SequenceIndex      int           `json:"sequence"`
	PodCount           int           `json:"podCount"`
	CreativeType       *string       `json:"creativeType,omitempty"`
	SkipOffsetSeconds  int           `json:"skipOffset"`
	SkipMessage        *string       `json:"skipMessage,omitempty"`
	SkipButtonText     *string       `json:"skipText,omitempty"`
	DisplayMessage     *string       `json:"message,omitempty"`
	ClickThroughURL    *string       `json:"clickThrough,omitempty"`
	Title              *string       `json:"title,omitempty"`
	Companions         []AdCompanion `json:"companions"`
}

// ParseAdMeta builds an AdMeta from an ad metadata object. Older receivers
// use lowercase keys, those are accepted when the camelCase key is unusable.
func ParseAdMeta(payload map[string]any) AdMeta {
	p := Payload(payload)
	companions, _ := p.List("companions")

	return AdMeta{
		AdType:             p.String("adType", "linear"),
		AdID:               p.String("adId", "id"),
		Tag:                p.String("tag"),
		Client:             p.String("client"),
		WaterfallItemIndex: p.Int("wItem", "witem"),
		WaterfallCount:     p.Int("wCount", "wcount"),
		SequenceIndex:      p.Int("sequence"),
		PodCount:           p.Int("podCount", "podcount"),
		CreativeType:       p.String("creativeType", "creativetype"),
		SkipOffsetSeconds:  p.Int("skipOffset", "skipoffset"),
		SkipMessage:        p.String("skipMessage"),
		SkipButtonText:     p.String("skipText"),
		DisplayMessage:     p.String("message"),
		ClickThroughURL:    p.String("clickThrough", "clickthrough"),
		Title:              p.String("title"),
		Companions:         ParseCompanions(companions),
	}
}

// ParseAdMetaJSON decodes data as a JSON object and parses it. Input that is
// not a JSON object yields an AdMeta with every field defaulted.
func ParseAdMetaJSON(data []byte) AdMeta {
	var payload map[string]any
	if err := json.Unmarshal(data, &payload); err != nil {
		payload = nil
	}
	return ParseAdMeta(payload)
}

// Skippable reports whether the ad advertises a positive skip offset.
func (m AdMeta) Skippable() bool {
	return m.SkipOffsetSeconds > 0
}
