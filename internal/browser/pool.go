// Package browser manages a bounded, rotating pool of long-lived headless
// browser instances shared by many concurrent page acquisitions.
//
// Lock ordering: the pool mutex guards membership only (slot map, page
// ownership). Slow browser I/O — launching, navigating, closing — always
// happens outside the lock.
package browser

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/rod/lib/launcher/flags"
	"github.com/go-rod/rod/lib/proto"
	"github.com/google/uuid"

	"github.com/hszk-dev/mediagate/internal/infrastructure/metrics"
)

var (
	ErrPoolClosed    = errors.New("browser pool is closed")
	ErrUnknownPage   = errors.New("page does not belong to this pool")
	ErrLaunchFailure = errors.New("failed to launch browser")
)

// Config controls pool sizing and rotation.
type Config struct {
	MaxConcurrency     int           // max live browsers
	MaxPagesPerBrowser int           // pages served before rotation
	TTL                time.Duration // browser age before rotation
	SweepInterval      time.Duration
	ExecutablePath     string
	Headless           bool
	ExtraArgs          []string
}

// DefaultConfig returns production defaults matching the rotation policy.
func DefaultConfig() Config {
	return Config{
		MaxConcurrency:     3,
		MaxPagesPerBrowser: 30,
		TTL:                30 * time.Minute,
		SweepInterval:      5 * time.Minute,
		Headless:           true,
	}
}

// slot tracks one live browser and the pages lent out from it.
type slot struct {
	id          string
	launcher    *launcher.Launcher
	browser     *rod.Browser
	createdAt   time.Time
	pagesServed int
	pages       map[proto.TargetTargetID]*rod.Page
}

// needsRotation reports whether the slot tripped a rotation trigger.
func (s *slot) needsRotation(now time.Time, cfg Config) bool {
	if cfg.TTL > 0 && now.Sub(s.createdAt) > cfg.TTL {
		return true
	}
	return cfg.MaxPagesPerBrowser > 0 && s.pagesServed > cfg.MaxPagesPerBrowser
}

// Pool owns all browser processes; pages are lent to callers and must be
// returned with ReleasePage or discarded with DestroyPage.
type Pool struct {
	cfg    Config
	logger *slog.Logger

	mu        sync.Mutex
	slots     map[string]*slot
	pageOwner map[proto.TargetTargetID]string
	launching int
	closed    bool

	stopCh chan struct{}
	wg     sync.WaitGroup

	acquired atomic.Int64
	rotated  atomic.Int64

	// Seams over the real browser process operations, swapped in tests.
	launchFn func(context.Context) (*slot, error)
	closeFn  func(*slot)
	pingFn   func(*slot) error
}

// NewPool creates an empty pool; browsers launch lazily on demand.
func NewPool(cfg Config, logger *slog.Logger) *Pool {
	if logger == nil {
		logger = slog.Default()
	}
	p := &Pool{
		cfg:       cfg,
		logger:    logger,
		slots:     make(map[string]*slot),
		pageOwner: make(map[proto.TargetTargetID]string),
		stopCh:    make(chan struct{}),
	}
	p.launchFn = p.launchSlot
	p.closeFn = p.closeSlot
	p.pingFn = p.pingSlot
	if cfg.SweepInterval > 0 {
		p.wg.Add(1)
		go p.sweepLoop()
	}
	return p
}

// AcquirePage returns a blank page from a pooled browser, launching or
// rotating browsers per the allocation policy.
func (p *Pool) AcquirePage(ctx context.Context) (*rod.Page, error) {
	s, err := p.pickSlot(ctx)
	if err != nil {
		return nil, err
	}

	page, err := s.browser.Page(proto.TargetCreateTarget{URL: "about:blank"})
	if err != nil {
		// The browser may have died between selection and page creation.
		p.removeSlot(s.id)
		go p.closeFn(s)
		return nil, fmt.Errorf("create page: %w", err)
	}

	p.mu.Lock()
	s.pages[page.TargetID] = page
	s.pagesServed++
	p.pageOwner[page.TargetID] = s.id
	p.mu.Unlock()

	p.acquired.Add(1)
	metrics.PagesAcquiredTotal.Inc()
	return page, nil
}

// pickSlot selects or creates the browser to serve the next page:
// launch below MaxConcurrency, otherwise least-loaded, rotating it first if
// a trigger tripped.
func (p *Pool) pickSlot(ctx context.Context) (*slot, error) {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil, ErrPoolClosed
	}

	if len(p.slots)+p.launching < p.cfg.MaxConcurrency {
		p.launching++
		p.mu.Unlock()

		s, err := p.launchFn(ctx)

		p.mu.Lock()
		p.launching--
		if err != nil {
			p.mu.Unlock()
			return nil, err
		}
		if p.closed {
			p.mu.Unlock()
			go p.closeFn(s)
			return nil, ErrPoolClosed
		}
		p.slots[s.id] = s
		p.mu.Unlock()
		metrics.BrowsersLive.Set(float64(p.browserCount()))
		return s, nil
	}

	s := p.leastLoadedLocked()
	if s == nil {
		p.mu.Unlock()
		return nil, ErrLaunchFailure
	}

	if !s.needsRotation(time.Now(), p.cfg) {
		p.mu.Unlock()
		return s, nil
	}
	p.mu.Unlock()

	return p.rotateSlot(ctx, s)
}

// leastLoadedLocked returns the slot with the fewest currently-held pages.
func (p *Pool) leastLoadedLocked() *slot {
	var best *slot
	for _, s := range p.slots {
		if best == nil || len(s.pages) < len(best.pages) {
			best = s
		}
	}
	return best
}

// rotateSlot closes the tripped browser before launching its replacement, so
// the pool never holds more than MaxConcurrency live browsers. On relaunch
// failure the caller is served by whichever browser is still live.
func (p *Pool) rotateSlot(ctx context.Context, old *slot) (*slot, error) {
	p.mu.Lock()
	if _, ok := p.slots[old.id]; !ok {
		// Someone else rotated it already; serve from what is live now.
		s := p.leastLoadedLocked()
		p.mu.Unlock()
		if s == nil {
			return nil, ErrLaunchFailure
		}
		return s, nil
	}
	delete(p.slots, old.id)
	for tid := range old.pages {
		delete(p.pageOwner, tid)
	}
	// Reserve the freed capacity so concurrent acquisitions cannot launch
	// into it while the replacement is starting.
	p.launching++
	p.mu.Unlock()

	p.closeFn(old)

	fresh, err := p.launchFn(ctx)

	p.mu.Lock()
	p.launching--
	if err != nil {
		s := p.leastLoadedLocked()
		p.mu.Unlock()
		p.logger.Warn("browser rotation relaunch failed",
			slog.String("browser_id", old.id),
			slog.String("error", err.Error()),
		)
		if s == nil {
			return nil, err
		}
		return s, nil
	}
	if p.closed {
		p.mu.Unlock()
		go p.closeFn(fresh)
		return nil, ErrPoolClosed
	}
	p.slots[fresh.id] = fresh
	p.mu.Unlock()

	p.rotated.Add(1)
	metrics.BrowsersRotatedTotal.Inc()
	p.logger.Info("browser rotated",
		slog.String("old_browser_id", old.id),
		slog.String("new_browser_id", fresh.id),
	)
	return fresh, nil
}

// launchSlot starts a new browser process and connects to it.
func (p *Pool) launchSlot(ctx context.Context) (*slot, error) {
	l := launcher.New().
		Headless(p.cfg.Headless).
		Set(flags.NoSandbox)
	if p.cfg.ExecutablePath != "" {
		l = l.Bin(p.cfg.ExecutablePath)
	}

	l.Set("disable-blink-features", "AutomationControlled")
	l.Set("disable-dev-shm-usage")
	l.Set("disable-background-timer-throttling")
	l.Set("disable-component-update")
	l.Set("no-first-run")
	for _, arg := range p.cfg.ExtraArgs {
		name, value, _ := strings.Cut(strings.TrimLeft(arg, "-"), "=")
		l.Set(flags.Flag(name), value)
	}

	controlURL, err := l.Launch()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrLaunchFailure, err)
	}

	b := rod.New().ControlURL(controlURL).Context(ctx)
	if err := b.Connect(); err != nil {
		l.Kill()
		return nil, fmt.Errorf("%w: connect: %v", ErrLaunchFailure, err)
	}

	s := &slot{
		id:        uuid.NewString(),
		launcher:  l,
		browser:   b,
		createdAt: time.Now(),
		pages:     make(map[proto.TargetTargetID]*rod.Page),
	}
	p.logger.Info("browser launched", slog.String("browser_id", s.id))
	return s, nil
}

// ReleasePage returns a page to idle: blank navigation plus a JS heap purge.
// If the reset fails the page is destroyed instead.
func (p *Pool) ReleasePage(page *rod.Page) {
	p.mu.Lock()
	_, known := p.pageOwner[page.TargetID]
	p.mu.Unlock()
	if !known {
		return
	}

	if err := p.resetPage(page); err != nil {
		p.logger.Debug("page reset failed, destroying",
			slog.String("error", err.Error()),
		)
		p.DestroyPage(page)
	}
}

func (p *Pool) resetPage(page *rod.Page) error {
	if err := page.Navigate("about:blank"); err != nil {
		return err
	}
	return proto.HeapProfilerCollectGarbage{}.Call(page)
}

// DestroyPage removes the page from the reverse map and closes it.
func (p *Pool) DestroyPage(page *rod.Page) {
	p.mu.Lock()
	ownerID, ok := p.pageOwner[page.TargetID]
	if ok {
		delete(p.pageOwner, page.TargetID)
		if s, live := p.slots[ownerID]; live {
			delete(s.pages, page.TargetID)
		}
	}
	p.mu.Unlock()

	_ = page.Close()
}

// Terminate closes one browser, forcing a process kill when graceful close
// fails. Returns false for unknown browser ids.
func (p *Pool) Terminate(browserID string) bool {
	s := p.removeSlot(browserID)
	if s == nil {
		return false
	}
	p.closeFn(s)
	return true
}

// removeSlot detaches a slot and its page ownership from the pool.
func (p *Pool) removeSlot(browserID string) *slot {
	p.mu.Lock()
	defer p.mu.Unlock()
	s, ok := p.slots[browserID]
	if !ok {
		return nil
	}
	delete(p.slots, browserID)
	for tid := range s.pages {
		delete(p.pageOwner, tid)
	}
	metrics.BrowsersLive.Set(float64(len(p.slots)))
	return s
}

// closeSlot closes a detached slot: graceful browser close first, then a
// forced process kill.
func (p *Pool) closeSlot(s *slot) {
	if err := s.browser.Close(); err != nil {
		p.logger.Warn("graceful browser close failed, killing process",
			slog.String("browser_id", s.id),
			slog.String("error", err.Error()),
		)
	}
	s.launcher.Kill()
}

// pingSlot checks that the browser still answers on its control connection.
func (p *Pool) pingSlot(s *slot) error {
	_, err := proto.BrowserGetVersion{}.Call(s.browser)
	return err
}

// CloseAll shuts the pool down and closes every browser.
func (p *Pool) CloseAll() {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return
	}
	p.closed = true
	close(p.stopCh)
	slots := make([]*slot, 0, len(p.slots))
	for _, s := range p.slots {
		slots = append(slots, s)
	}
	p.slots = make(map[string]*slot)
	p.pageOwner = make(map[proto.TargetTargetID]string)
	p.mu.Unlock()

	for _, s := range slots {
		p.closeFn(s)
	}
	p.wg.Wait()
	metrics.BrowsersLive.Set(0)
}

// sweepLoop periodically rotates qualifying idle browsers out and removes
// browsers that no longer answer, standing in for disconnect events.
func (p *Pool) sweepLoop() {
	defer p.wg.Done()
	ticker := time.NewTicker(p.cfg.SweepInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			p.sweep()
		case <-p.stopCh:
			return
		}
	}
}

func (p *Pool) sweep() {
	now := time.Now()

	p.mu.Lock()
	var idleRotatable, all []*slot
	for _, s := range p.slots {
		all = append(all, s)
		if len(s.pages) == 0 && s.needsRotation(now, p.cfg) {
			idleRotatable = append(idleRotatable, s)
		}
	}
	p.mu.Unlock()

	for _, s := range idleRotatable {
		if removed := p.removeSlot(s.id); removed != nil {
			p.rotated.Add(1)
			metrics.BrowsersRotatedTotal.Inc()
			p.closeFn(removed)
			p.logger.Info("idle browser rotated out", slog.String("browser_id", s.id))
		}
	}

	for _, s := range all {
		if err := p.pingFn(s); err != nil {
			if removed := p.removeSlot(s.id); removed != nil {
				p.logger.Warn("browser disconnected, removed from pool",
					slog.String("browser_id", s.id),
				)
				p.closeFn(removed)
			}
		}
	}
}

func (p *Pool) browserCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.slots)
}

// SlotStats describes one live browser.
type SlotStats struct {
	ID          string  `json:"id"`
	AgeSeconds  float64 `json:"age_seconds"`
	PagesHeld   int     `json:"pages_held"`
	PagesServed int     `json:"pages_served"`
}

// Stats is a point-in-time snapshot of the pool.
type Stats struct {
	Browsers      int         `json:"browsers"`
	PagesHeld     int         `json:"pages_held"`
	TotalAcquired int64       `json:"total_acquired"`
	TotalRotated  int64       `json:"total_rotated"`
	Slots         []SlotStats `json:"slots"`
}

func (p *Pool) Stats() Stats {
	p.mu.Lock()
	defer p.mu.Unlock()
	now := time.Now()
	st := Stats{
		Browsers:      len(p.slots),
		TotalAcquired: p.acquired.Load(),
		TotalRotated:  p.rotated.Load(),
	}
	for _, s := range p.slots {
		st.PagesHeld += len(s.pages)
		st.Slots = append(st.Slots, SlotStats{
			ID:          s.id,
			AgeSeconds:  now.Sub(s.createdAt).Seconds(),
			PagesHeld:   len(s.pages),
			PagesServed: s.pagesServed,
		})
	}
	return st
}

// ProcessInfo describes the OS process behind one browser.
type ProcessInfo struct {
	BrowserID  string  `json:"browser_id"`
	PID        int     `json:"pid"`
	AgeSeconds float64 `json:"age_seconds"`
}

func (p *Pool) ProcessInfo() []ProcessInfo {
	p.mu.Lock()
	defer p.mu.Unlock()
	now := time.Now()
	out := make([]ProcessInfo, 0, len(p.slots))
	for _, s := range p.slots {
		out = append(out, ProcessInfo{
			BrowserID:  s.id,
			PID:        s.launcher.PID(),
			AgeSeconds: now.Sub(s.createdAt).Seconds(),
		})
	}
	return out
}
