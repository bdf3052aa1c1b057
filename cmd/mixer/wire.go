package main

import (
	"fmt"
	"time"

	"github.com/ndimixer/mixer/pkg/browser"
	"github.com/ndimixer/mixer/pkg/channel"
	"github.com/ndimixer/mixer/pkg/compositor"
	"github.com/ndimixer/mixer/pkg/config"
	"github.com/ndimixer/mixer/pkg/filter"
	"github.com/ndimixer/mixer/pkg/ingest"
	"github.com/ndimixer/mixer/pkg/videoio"
)

// captureInterval is the polling rate of a browser overlay's screenshot
// loop; independent of the channel's own render period (spec §4.2 samples
// the latest captured frame, never blocking the render loop on capture).
const captureInterval = 33 * time.Millisecond

func toBindings(filters []config.Filter, stage filter.Stage) []filter.Binding {
	bindings := make([]filter.Binding, 0, len(filters))
	for _, f := range filters {
		bindings = append(bindings, filter.Binding{Descriptor: f.Name, Stage: stage, Params: f.Params})
	}
	return bindings
}

// overlayHandle pairs a running capture task with the URL it serves, since
// the status endpoint needs the URL but Overlay keeps its config private.
type overlayHandle struct {
	overlay *browser.Overlay
	url     string
}

// runningChannel groups one channel.Channel with the ingest and overlay
// tasks feeding its layer mailboxes, so the server command can start and
// stop an entire channel's worth of background work as one unit.
type runningChannel struct {
	ch        *channel.Channel
	ingest    *ingest.Ingest // nil when the channel has no [channel.ndi_input]
	ndiSource string         // configured substring, for status reporting
	overlays  []overlayHandle
	sender    videoio.Sender
}

// buildChannel wires one [[channel]] config entry into a ready-to-start
// channel.Channel plus its feeder tasks, per SPEC_FULL.md §2's process
// shape: one channel.Channel, its ingest, and its overlay capture tasks per
// configured channel.
func buildChannel(chCfg config.Channel, backend compositor.Backend, chain *filter.Chain, browserPool *browser.Pool) (*runningChannel, error) {
	rc := &runningChannel{}
	var layers []channel.LayerSpec

	if chCfg.NDIInput != nil {
		source := videoio.NewGstSource(chCfg.Width, chCfg.Height)
		in := ingest.New(source, chCfg.NDIInput.Source, chCfg.Width, chCfg.Height)
		rc.ingest = in
		rc.ndiSource = chCfg.NDIInput.Source
		layers = append(layers, channel.LayerSpec{
			Name:     "ndi_input",
			Kind:     channel.KindNetworkVideo,
			ZIndex:   chCfg.NDIInput.ZIndex,
			Opacity:  chCfg.NDIInput.Opacity,
			Mailbox:  in.Mailbox,
			Bindings: toBindings(chCfg.NDIInput.Filter, filter.StageInput),
		})
	}

	if browserPool != nil {
		for _, ov := range chCfg.BrowserOverlay {
			overlay := browser.NewOverlay(browserPool, browser.Config{
				URL:            ov.URL,
				Width:          ov.Width,
				Height:         ov.Height,
				CSS:            ov.CSS,
				ReloadInterval: time.Duration(ov.ReloadInterval) * time.Second,
			})
			rc.overlays = append(rc.overlays, overlayHandle{overlay: overlay, url: ov.URL})
			layers = append(layers, channel.LayerSpec{
				Name:     ov.URL,
				Kind:     channel.KindBrowserOverlay,
				ZIndex:   ov.ZIndex,
				Opacity:  ov.Opacity,
				Mailbox:  overlay.Mailbox,
				Bindings: toBindings(ov.Filter, filter.StageOverlay),
			})
		}
	}

	ch, err := channel.New(channel.Config{
		Name:       chCfg.Name,
		OutputName: chCfg.OutputName,
		Width:      chCfg.Width,
		Height:     chCfg.Height,
		FrameRate:  chCfg.FrameRate,
		Layers:     layers,
		Filters:    toBindings(chCfg.Filter, filter.StageChannel),
	}, backend, chain)
	if err != nil {
		return nil, fmt.Errorf("channel %q: %w", chCfg.Name, err)
	}
	rc.ch = ch

	sender, err := videoio.NewGstSender(chCfg.OutputName, chCfg.Width, chCfg.Height, chCfg.FrameRate)
	if err != nil {
		return nil, fmt.Errorf("channel %q: output %q: %w", chCfg.Name, chCfg.OutputName, err)
	}
	rc.sender = sender

	return rc, nil
}

// Start brings up the channel's render loop, send thread, ingest, and
// overlay capture tasks. Overlay start failures are logged and skipped
// rather than fatal: a broken overlay degrades to its layer holding black,
// same as a disconnected network-video input.
func (rc *runningChannel) Start(logger func(event, detail string)) {
	rc.ch.Start()
	rc.ch.StartSend(rc.sender)
	if rc.ingest != nil {
		rc.ingest.Start()
	}
	for _, h := range rc.overlays {
		if err := h.overlay.Start(captureInterval); err != nil {
			logger("overlay start failed", h.url+": "+err.Error())
		}
	}
}

// addTo registers every stage of rc with sup, in the shutdown order from
// spec §5: ingest/overlay capture first, then the channel's own render and
// send threads.
func (rc *runningChannel) addTo(sup *channel.Supervisor, name string) {
	if rc.ingest != nil {
		sup.Add(name+":ingest", rc.ingest.Stop)
	}
	for _, h := range rc.overlays {
		sup.Add(name+":overlay:"+h.url, h.overlay.Stop)
	}
	sup.Add(name+":render", rc.ch.Stop)
	sup.Add(name+":send", rc.ch.StopSend)
}
