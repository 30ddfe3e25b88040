package castprotocol

import "encoding/json"

// mediaStatusMessage is the part of a MEDIA_STATUS message the event
// translation cares about.
type mediaStatusMessage struct {
	Type   string        `json:"type"`
	Status []MediaStatus `json:"status"`
}

// MediaStatus is a single entry of a MEDIA_STATUS message.
type MediaStatus struct {
	MediaSessionId int             `json:"mediaSessionId"`
	PlayerState    string          `json:"playerState"` // "PLAYING", "PAUSED", "IDLE", "BUFFERING"
	CurrentTime    float32         `json:"currentTime"`
	Media          *MediaInfo      `json:"media,omitempty"`
	BreakStatus    *AdBreakStatus  `json:"breakStatus,omitempty"`
	CustomData     json.RawMessage `json:"customData,omitempty"`
}

// AdBreakStatus is present while the receiver is playing an ad break.
type AdBreakStatus struct {
	CurrentBreakTime     float32 `json:"currentBreakTime"`
	CurrentBreakClipTime float32 `json:"currentBreakClipTime"`
	BreakId              string  `json:"breakId"`
	BreakClipId          string  `json:"breakClipId"`
	WhenSkippable        float32 `json:"whenSkippable"`
}

// MediaInfo is the loaded media as the receiver reports it, including the
// ad breaks it scheduled. Receivers only send it on some status messages.
type MediaInfo struct {
	ContentId   string          `json:"contentId"`
	ContentType string          `json:"contentType"`
	Duration    float64         `json:"duration,omitempty"`
	Breaks      []BreakInfo     `json:"breaks,omitempty"`
	BreakClips  []BreakClipInfo `json:"breakClips,omitempty"`
}

// BreakInfo is one ad break of the receiver's schedule. Position is in
// seconds, -1 for a post-roll.
type BreakInfo struct {
	Id           string   `json:"id"`
	Position     float64  `json:"position"`
	Duration     float64  `json:"duration,omitempty"`
	BreakClipIds []string `json:"breakClipIds,omitempty"`
	IsWatched    bool     `json:"isWatched"`
}

// BreakClipInfo is a single ad of a break.
type BreakClipInfo struct {
	Id              string  `json:"id"`
	Title           string  `json:"title,omitempty"`
	ContentId       string  `json:"contentId,omitempty"`
	ContentUrl      string  `json:"contentUrl,omitempty"`
	ContentType     string  `json:"contentType,omitempty"`
	ClickThroughUrl string  `json:"clickThroughUrl,omitempty"`
	Duration        float64 `json:"duration,omitempty"`
}

// Break returns the scheduled break with id, or nil.
func (m *MediaInfo) Break(id string) *BreakInfo {
	if m == nil {
		return nil
	}
	for i := range m.Breaks {
		if m.Breaks[i].Id == id {
			return &m.Breaks[i]
		}
	}
	return nil
}

// AdPosition reports the playing break clip as a 1-based index within its
// break together with the number of clips in that break. ok is false
// outside a break or when the status carries no schedule for it.
func (s *MediaStatus) AdPosition() (index, count int, ok bool) {
	if s == nil || s.BreakStatus == nil {
		return 0, 0, false
	}

	b := s.Media.Break(s.BreakStatus.BreakId)
	if b == nil {
		return 0, 0, false
	}

	for i, id := range b.BreakClipIds {
		if id == s.BreakStatus.BreakClipId {
			return i + 1, len(b.BreakClipIds), true
		}
	}
	return 0, 0, false
}
