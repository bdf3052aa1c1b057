package main

import (
	"fmt"
	"time"

	"github.com/ndimixer/mixer/pkg/filter"
	"github.com/ndimixer/mixer/pkg/server"
)

// statusSource adapts the running mixer's channels into server.Source,
// computing a fresh snapshot on every GET /status rather than caching one
// (spec §6 "HTTP status endpoint").
type statusSource struct {
	compositorName string
	startedAt      time.Time
	channels       []*runningChannel
}

func (s *statusSource) Status() server.Status {
	out := server.Status{
		Version:       GetMixerVersion(),
		UptimeSeconds: int64(time.Since(s.startedAt).Seconds()),
		Compositor:    s.compositorName,
	}
	for _, rc := range s.channels {
		out.Channels = append(out.Channels, s.channelStatus(rc))
	}
	return out
}

func (s *statusSource) channelStatus(rc *runningChannel) server.ChannelStatus {
	cfg := rc.ch.Config()
	chain := rc.ch.Chain()

	cs := server.ChannelStatus{
		Name:         cfg.Name,
		OutputName:   cfg.OutputName,
		Resolution:   fmt.Sprintf("%dx%d", cfg.Width, cfg.Height),
		FrameRate:    cfg.FrameRate,
		FramesOutput: rc.ch.Counters.FramesOutput.Load(),
	}

	if rc.ingest != nil {
		cs.NDIInput = &server.NDIInputStatus{
			Source:         rc.ndiSource,
			Connected:      rc.ingest.Connected(),
			FramesReceived: rc.ingest.FramesReceived(),
		}
	}

	for _, h := range rc.overlays {
		cs.BrowserOverlays = append(cs.BrowserOverlays, server.OverlayStatus{
			URL:    h.url,
			Loaded: h.overlay.Loaded(),
		})
	}

	cs.Filters = append(cs.Filters, bindingStatuses(cfg.Filters, chain)...)
	for _, layer := range rc.ch.Layers() {
		cs.Filters = append(cs.Filters, bindingStatuses(layer.Bindings, chain)...)
	}

	return cs
}

func bindingStatuses(bindings []filter.Binding, chain *filter.Chain) []server.FilterStatus {
	out := make([]server.FilterStatus, 0, len(bindings))
	for _, b := range bindings {
		out = append(out, server.FilterStatus{
			Name:    b.Descriptor,
			Stage:   string(b.Stage),
			Enabled: chain.Enabled(b.Descriptor),
		})
	}
	return out
}
