// Package browser drives headless Chrome via go-rod to capture transparent
// screenshots of HTML overlays, one capture task per configured overlay,
// each publishing straight-alpha RGBA8 frames to its own single-slot
// mailbox (spec §4.2).
package browser

import (
	"fmt"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/rod/lib/proto"
)

const defaultPagePoolSize = 32

var emptyTarget = proto.TargetCreateTarget{URL: "about:blank"}

// Pool manages one managed/launched Chrome instance and a pool of pages
// reused across overlay capture tasks, mirroring the browser-pool pattern
// used for crawler pages elsewhere in this stack.
type Pool struct {
	launcher *launcher.Launcher
	browser  *rod.Browser
	pagePool rod.Pool[rod.Page]
}

// New launches (or attaches to, when launcherURL is set) a headless Chrome
// instance and prepares its page pool.
func New(launcherURL string) (*Pool, error) {
	p := &Pool{pagePool: rod.NewPagePool(defaultPagePoolSize)}

	if launcherURL != "" {
		l, err := launcher.NewManaged(launcherURL)
		if err != nil {
			return nil, fmt.Errorf("browser: error initializing launcher: %w", err)
		}
		p.launcher = l

		client, err := l.Client()
		if err != nil {
			return nil, fmt.Errorf("browser: error getting launcher client: %w", err)
		}
		p.browser = rod.New().Client(client)
	} else {
		p.browser = rod.New()
	}

	if err := p.browser.Connect(); err != nil {
		return nil, fmt.Errorf("browser: error connecting to browser: %w", err)
	}
	return p, nil
}

// GetPage opens a fresh blank page from the pool, ready for Navigate.
func (p *Pool) GetPage() (*rod.Page, error) {
	page, err := p.pagePool.Get(func() (*rod.Page, error) {
		return p.browser.Page(emptyTarget)
	})
	if err != nil {
		return nil, fmt.Errorf("browser: error getting page: %w", err)
	}
	return page, nil
}

// PutPage returns a page to the pool for reuse by the next overlay capture.
func (p *Pool) PutPage(page *rod.Page) {
	if page == nil {
		return
	}
	p.pagePool.Put(page)
}

// Close releases the browser connection.
func (p *Pool) Close() error {
	return p.browser.Close()
}
