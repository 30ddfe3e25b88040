package castprotocol

import (
	"fmt"
	"sync/atomic"

	"github.com/vishen/go-chromecast/cast"
)

const (
	// DefaultMediaReceiverAppID is the Default Media Receiver.
	DefaultMediaReceiverAppID = "CC1AD845"

	defaultSender   = "sender-0"
	defaultReceiver = "receiver-0"
)

// Request ID counter for Chromecast messages
var requestIDCounter int32

func nextRequestID() int {
	return int(atomic.AddInt32(&requestIDCounter, 1))
}

// payloadSender is the subset of cast.Conn the loaders need.
type payloadSender interface {
	Send(requestID int, payload cast.Payload, sourceID, destinationID, namespace string) error
}

// LoadPayload is a LOAD command whose media may carry an ad schedule.
type LoadPayload struct {
	Type        string    `json:"type"`
	RequestId   int       `json:"requestId"`
	Media       MediaItem `json:"media"`
	CurrentTime int       `json:"currentTime"`
	Autoplay    bool      `json:"autoplay"`
}

// SetRequestId implements cast.Payload interface
func (p *LoadPayload) SetRequestId(id int) {
	p.RequestId = id
}

// LaunchPayload asks the platform receiver to start an application.
type LaunchPayload struct {
	Type      string `json:"type"`
	RequestId int    `json:"requestId"`
	AppId     string `json:"appId"`
}

// SetRequestId implements cast.Payload interface
func (p *LaunchPayload) SetRequestId(id int) {
	p.RequestId = id
}

// CustomPayload is a free-form JSON object sent on a custom namespace.
type CustomPayload map[string]any

// SetRequestId implements cast.Payload interface
func (p CustomPayload) SetRequestId(id int) {
	p["requestId"] = id
}

var (
	_ cast.Payload = (*LoadPayload)(nil)
	_ cast.Payload = (*LaunchPayload)(nil)
	_ cast.Payload = CustomPayload(nil)
)

// LaunchReceiver asks the device to start appID.
func LaunchReceiver(conn payloadSender, appID string) error {
	payload := &LaunchPayload{Type: "LAUNCH", AppId: appID}
	requestID := nextRequestID()
	payload.SetRequestId(requestID)

	if err := conn.Send(requestID, payload, defaultSender, defaultReceiver, ReceiverNamespace); err != nil {
		return fmt.Errorf("launch receiver %s: %w", appID, err)
	}
	return nil
}

// LoadMedia sends a LOAD command to the media receiver identified by
// transportId. title may be empty and ads may be nil for content without an
// ad schedule.
func LoadMedia(conn payloadSender, transportId, mediaURL, contentType, title string, startTime int, ads *Advertising) error {
	if transportId == "" {
		return fmt.Errorf("load media: empty transport id")
	}

	media := MediaItem{
		ContentId:   mediaURL,
		ContentType: contentType,
		StreamType:  "BUFFERED",
	}
	if title != "" {
		media.Metadata = &MediaMeta{MetadataType: GenericMetadataType, Title: title}
	}
	if ads != nil {
		media.CustomData = &MediaCustomData{Advertising: ads}
	}

	payload := &LoadPayload{
		Type:        "LOAD",
		Media:       media,
		CurrentTime: startTime,
		Autoplay:    true,
	}

	requestID := nextRequestID()
	payload.SetRequestId(requestID)

	if err := conn.Send(requestID, payload, defaultSender, transportId, MediaNamespace); err != nil {
		return fmt.Errorf("send load: %w", err)
	}

	return nil
}

// SendCustom sends payload on namespace to the receiver app at transportId.
func SendCustom(conn payloadSender, transportId, namespace string, payload CustomPayload) error {
	if payload == nil {
		payload = CustomPayload{}
	}

	requestID := nextRequestID()
	payload.SetRequestId(requestID)

	if err := conn.Send(requestID, payload, defaultSender, transportId, namespace); err != nil {
		return fmt.Errorf("send custom message on %s: %w", namespace, err)
	}
	return nil
}
