package browser

import (
	"bytes"
	"fmt"
	"image"
	"image/color"
	"image/png"
	"sync/atomic"
	"time"

	"github.com/go-co-op/gocron/v2"
	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/proto"
	"github.com/rs/zerolog/log"

	"github.com/ndimixer/mixer/pkg/frame"
)

// captureLogInterval throttles failed-capture warnings so a page stuck in a
// bad state doesn't flood the log every frame.
const captureLogInterval = 5 * time.Second

// Config describes one browser overlay layer.
type Config struct {
	URL            string
	Width          int
	Height         int
	CSS            string
	ReloadInterval time.Duration // 0 disables periodic reload
}

// Overlay runs one capture task against a pooled page: navigate, inject
// CSS, repeatedly screenshot the transparent viewport, decode to
// straight-alpha RGBA8, publish to Mailbox. An independent reload timer
// re-navigates the page every ReloadInterval when configured.
type Overlay struct {
	cfg     Config
	pool    *Pool
	Mailbox *frame.Mailbox

	loaded    atomic.Bool
	scheduler gocron.Scheduler
	stop      chan struct{}
	done      chan struct{}
}

// NewOverlay prepares (but does not start) a capture task for cfg.
func NewOverlay(pool *Pool, cfg Config) *Overlay {
	return &Overlay{
		cfg:     cfg,
		pool:    pool,
		Mailbox: &frame.Mailbox{},
		stop:    make(chan struct{}),
		done:    make(chan struct{}),
	}
}

// Loaded reports whether the page's navigation last succeeded.
func (o *Overlay) Loaded() bool { return o.loaded.Load() }

// Start opens a page, navigates, and begins the capture loop plus the
// reload timer (if configured) as cooperative goroutines — browser capture
// is not on the real-time thread-per-path path, per spec §5.
func (o *Overlay) Start(captureInterval time.Duration) error {
	page, err := o.pool.GetPage()
	if err != nil {
		return fmt.Errorf("overlay: get page: %w", err)
	}

	if err := page.SetViewport(&proto.EmulationSetDeviceMetricsOverride{
		Width: o.cfg.Width, Height: o.cfg.Height, DeviceScaleFactor: 1,
	}); err != nil {
		o.pool.PutPage(page)
		return fmt.Errorf("overlay: set viewport: %w", err)
	}

	if err := o.navigate(page); err != nil {
		log.Warn().Str("url", o.cfg.URL).Err(err).Msg("overlay initial navigation failed")
	}

	if o.cfg.ReloadInterval > 0 {
		sched, err := gocron.NewScheduler()
		if err != nil {
			o.pool.PutPage(page)
			return fmt.Errorf("overlay: new scheduler: %w", err)
		}
		o.scheduler = sched
		_, err = sched.NewJob(
			gocron.DurationJob(o.cfg.ReloadInterval),
			gocron.NewTask(func() { o.reload(page) }),
		)
		if err != nil {
			o.pool.PutPage(page)
			return fmt.Errorf("overlay: schedule reload: %w", err)
		}
		sched.Start()
	}

	go o.captureLoop(page, captureInterval)
	return nil
}

// Stop halts the capture loop and reload timer and returns the page to
// the pool.
func (o *Overlay) Stop() {
	close(o.stop)
	<-o.done
	if o.scheduler != nil {
		_ = o.scheduler.Shutdown()
	}
}

func (o *Overlay) navigate(page *rod.Page) error {
	if err := page.Navigate(o.cfg.URL); err != nil {
		o.loaded.Store(false)
		return err
	}
	if o.cfg.CSS != "" {
		if _, err := page.Eval(injectCSSJS, o.cfg.CSS); err != nil {
			o.loaded.Store(false)
			return fmt.Errorf("overlay: inject css: %w", err)
		}
	}
	o.loaded.Store(true)
	return nil
}

// reload re-navigates on the existing page. Reload during capture is
// tolerated; a failed reload logs and leaves the last good frame in place
// (spec §4.2).
func (o *Overlay) reload(page *rod.Page) {
	if err := o.navigate(page); err != nil {
		log.Warn().Str("url", o.cfg.URL).Err(err).Msg("overlay reload failed")
	}
}

func (o *Overlay) captureLoop(page *rod.Page, interval time.Duration) {
	defer close(o.done)
	defer o.pool.PutPage(page)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	var lastWarn time.Time
	for {
		select {
		case <-o.stop:
			return
		case <-ticker.C:
		}

		f, err := o.captureOnce(page)
		if err != nil {
			// Failed captures are skipped; they never crash the source.
			if time.Since(lastWarn) >= captureLogInterval {
				log.Warn().Str("url", o.cfg.URL).Err(err).Msg("overlay capture failed, skipping frame")
				lastWarn = time.Now()
			}
			continue
		}
		o.Mailbox.Publish(f)
	}
}

func (o *Overlay) captureOnce(page *rod.Page) (frame.Frame, error) {
	shot, err := page.Screenshot(true, &proto.PageCaptureScreenshot{
		Format:      proto.PageCaptureScreenshotFormatPng,
		FromSurface: true,
	})
	if err != nil {
		return frame.Frame{}, fmt.Errorf("overlay: screenshot: %w", err)
	}

	img, err := png.Decode(bytes.NewReader(shot))
	if err != nil {
		return frame.Frame{}, fmt.Errorf("overlay: decode png: %w", err)
	}
	return decodeStraightAlpha(img, o.cfg.Width, o.cfg.Height), nil
}

// decodeStraightAlpha converts a decoded PNG (typically image.NRGBA, which
// is already straight, non-premultiplied alpha) into the frame.Frame the
// rest of the pipeline expects. The capture is taken at viewport size so
// this never needs to scale, only letterbox when sizes disagree (spec's
// letterbox-at-origin rule for mismatched overlay dimensions).
func decodeStraightAlpha(img image.Image, width, height int) frame.Frame {
	out := frame.NewFrame(width, height, frame.FormatRGBA8Straight)
	bounds := img.Bounds()

	for y := 0; y < height && y < bounds.Dy(); y++ {
		for x := 0; x < width && x < bounds.Dx(); x++ {
			c := color.NRGBAModel.Convert(img.At(bounds.Min.X+x, bounds.Min.Y+y)).(color.NRGBA)
			out.SetPixelAt(x, y, c.R, c.G, c.B, c.A)
		}
	}
	return out
}

const injectCSSJS = `(css) => {
	const style = document.createElement('style');
	style.textContent = css;
	document.head.appendChild(style);
}`
