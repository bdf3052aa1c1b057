package server

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fixedStatus() Status {
	return Status{
		Version:       "test",
		UptimeSeconds: 42,
		Compositor:    "cpu",
		Channels: []ChannelStatus{
			{
				Name: "main", OutputName: "mixer-out", Resolution: "1920x1080", FrameRate: 30,
				NDIInput:        &NDIInputStatus{Source: "Cam", Connected: true, FramesReceived: 100},
				BrowserOverlays: []OverlayStatus{{URL: "https://example.com", Loaded: true}},
				FramesOutput:    101,
				Filters:         []FilterStatus{{Name: "vignette", Stage: "channel", Enabled: true}},
			},
		},
	}
}

func TestStatusHandlerIncludesSingularAliasForOneOverlay(t *testing.T) {
	srv := New(SourceFunc(fixedStatus))
	req := httptest.NewRequest(http.MethodGet, "/status", nil)
	rec := httptest.NewRecorder()
	srv.router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))

	var got Status
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	require.NotNil(t, got.Channels[0].BrowserOverlay)
	assert.Equal(t, "https://example.com", got.Channels[0].BrowserOverlay.URL)
}

func TestStatusHandlerOmitsAliasForMultipleOverlays(t *testing.T) {
	status := fixedStatus()
	status.Channels[0].BrowserOverlays = append(status.Channels[0].BrowserOverlays, OverlayStatus{URL: "https://example.com/2"})

	srv := New(SourceFunc(func() Status { return status }))
	req := httptest.NewRequest(http.MethodGet, "/status", nil)
	rec := httptest.NewRecorder()
	srv.router.ServeHTTP(rec, req)

	var got Status
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	assert.Nil(t, got.Channels[0].BrowserOverlay)
}
