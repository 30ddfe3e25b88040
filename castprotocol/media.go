package castprotocol

// MediaItem is the media object of a LOAD request. CustomData carries the
// advertising schedule the receiver turns into ad breaks.
type MediaItem struct {
	ContentId   string           `json:"contentId"`
	ContentType string           `json:"contentType"`
	StreamType  string           `json:"streamType"`
	Metadata    *MediaMeta       `json:"metadata,omitempty"`
	CustomData  *MediaCustomData `json:"customData,omitempty"`
}

// GenericMetadataType is the metadataType of GenericMediaMetadata.
const GenericMetadataType = 0

// MediaMeta contains metadata about the media.
type MediaMeta struct {
	MetadataType int    `json:"metadataType"`
	Title        string `json:"title,omitempty"`
}

// MediaCustomData is the receiver specific part of a LOAD request.
type MediaCustomData struct {
	Advertising *Advertising `json:"advertising,omitempty"`
}

// Advertising describes which ad client the receiver should use and where
// ad breaks go.
type Advertising struct {
	Client   string             `json:"client"` // "vast" or "googima"
	Schedule map[string]AdBreak `json:"schedule,omitempty"`
}

// AdBreak is one scheduled break. Offset is "pre", "post", a number of
// seconds, "hh:mm:ss" or a percentage such as "50%".
type AdBreak struct {
	Offset string `json:"offset"`
	Tag    string `json:"tag"`
}

// NewAdvertising returns a schedule with a single break at offset.
func NewAdvertising(client, tag, offset string) *Advertising {
	if client == "" {
		client = "vast"
	}
	if offset == "" {
		offset = "pre"
	}
	return &Advertising{
		Client: client,
		Schedule: map[string]AdBreak{
			"adbreak1": {Offset: offset, Tag: tag},
		},
	}
}
