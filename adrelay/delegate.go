package adrelay

import "go2tv.app/castads/admeta"

// AdPlayHandler is notified when the receiver starts an ad break.
type AdPlayHandler interface {
	OnAdPlay()
}

// AdEndedHandler is notified when the receiver ends an ad break.
type AdEndedHandler interface {
	OnAdEnded()
}

// AdMetaHandler receives ad metadata published by the receiver.
type AdMetaHandler interface {
	OnAdMeta(meta *admeta.AdMeta)
}

// DelegateFuncs adapts plain functions to the handler interfaces.
// Nil fields are skipped.
type DelegateFuncs struct {
	Play  func()
	Ended func()
	Meta  func(meta *admeta.AdMeta)
}

func (d *DelegateFuncs) OnAdPlay() {
	if d.Play != nil {
		d.Play()
	}
}

func (d *DelegateFuncs) OnAdEnded() {
	if d.Ended != nil {
		d.Ended()
	}
}

func (d *DelegateFuncs) OnAdMeta(meta *admeta.AdMeta) {
	if d.Meta != nil {
		d.Meta(meta)
	}
}
