package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	"github.com/skratchdot/open-golang/open"
	"go2tv.app/castads/admeta"
	"go2tv.app/castads/castprotocol"
	"go2tv.app/castads/tracking"
)

const trackerTimeout = 15 * time.Second

// adPrinter is the relay delegate of the CLI.
type adPrinter struct {
	mu      sync.Mutex
	out     io.Writer
	opts    options
	pinger  *tracking.Pinger
	openURL func(string) error
	// break clip last reported by OnStatus
	lastClip string
}

func newAdPrinter(out io.Writer, opts options, pinger *tracking.Pinger) *adPrinter {
	return &adPrinter{
		out:     out,
		opts:    opts,
		pinger:  pinger,
		openURL: open.Run,
	}
}

func (p *adPrinter) OnAdPlay() {
	p.mu.Lock()
	defer p.mu.Unlock()
	fmt.Fprintln(p.out, "Ad break started")
}

func (p *adPrinter) OnAdEnded() {
	p.mu.Lock()
	defer p.mu.Unlock()
	fmt.Fprintln(p.out, "Ad break ended")
}

func (p *adPrinter) OnAdMeta(meta *admeta.AdMeta) {
	p.mu.Lock()
	if p.opts.json {
		b, err := json.Marshal(meta)
		if err == nil {
			fmt.Fprintln(p.out, string(b))
		}
	} else {
		fmt.Fprintln(p.out, describe(meta))
	}
	p.mu.Unlock()

	if p.opts.openClick && meta.ClickThroughURL != nil && p.openURL != nil {
		if err := p.openURL(*meta.ClickThroughURL); err != nil {
			fmt.Fprintf(p.out, "Could not open clickthrough: %s\n", err)
		}
	}

	if p.opts.fireTrackers && p.pinger != nil {
		// Delegate callbacks run on the event goroutine, pings must not
		// hold it up.
		go func() {
			ctx, cancel := context.WithTimeout(context.Background(), trackerTimeout)
			defer cancel()
			_ = p.pinger.FireAll(ctx, meta, tracking.EventCreativeView)
		}()
	}
}

// OnStatus prints the ad's position within its break whenever the
// receiver moves to another break clip.
func (p *adPrinter) OnStatus(ev castprotocol.Event) {
	if ev.Kind != castprotocol.EventStatus {
		return
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	index, count, ok := ev.Status.AdPosition()
	if !ok {
		p.lastClip = ""
		return
	}
	if clip := ev.Status.BreakStatus.BreakClipId; clip != p.lastClip {
		p.lastClip = clip
		if p.opts.json {
			fmt.Fprintf(p.out, `{"adPosition":%d,"adCount":%d}`+"\n", index, count)
			return
		}
		fmt.Fprintf(p.out, "Ad %d of %d\n", index, count)
	}
}

func describe(meta *admeta.AdMeta) string {
	var b strings.Builder

	b.WriteString("Ad")
	if meta.Title != nil {
		fmt.Fprintf(&b, " %q", *meta.Title)
	}
	if meta.AdID != nil {
		fmt.Fprintf(&b, " id=%s", *meta.AdID)
	}
	if meta.Client != nil {
		fmt.Fprintf(&b, " client=%s", *meta.Client)
	}
	if meta.PodCount > 0 {
		fmt.Fprintf(&b, " pod=%d/%d", meta.SequenceIndex, meta.PodCount)
	}
	if meta.WaterfallCount > 0 {
		fmt.Fprintf(&b, " waterfall=%d/%d", meta.WaterfallItemIndex, meta.WaterfallCount)
	}
	if meta.Skippable() {
		fmt.Fprintf(&b, " skippable after %ds", meta.SkipOffsetSeconds)
	}
	if len(meta.Companions) > 0 {
		fmt.Fprintf(&b, " companions=%d", len(meta.Companions))
	}

	return b.String()
}
