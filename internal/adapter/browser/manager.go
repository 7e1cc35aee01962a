// Package browser owns the headless-browser lifecycle and the context-slot
// pool the scraper draws from. One browser process is shared by all scrapes;
// contexts are recycled through slots so a crashed target never takes the
// whole process down with it.
package browser

import (
	"fmt"
	"log/slog"
	"sync"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/launcher"

	"github.com/fairyhunter13/ai-deep-researcher/internal/domain"
)

// Manager serialises access to the single browser instance. Get never hands
// out a disconnected handle; Relaunch swaps the instance and bumps the
// generation counter so holders of stale handles can tell.
type Manager struct {
	Bin      string
	Headless bool

	mu         sync.Mutex
	browser    *rod.Browser
	launch     *launcher.Launcher
	generation uint64
	stopped    bool
}

// NewManager returns an unstarted manager. bin may be empty to let the
// launcher resolve a system browser.
func NewManager(bin string, headless bool) *Manager {
	return &Manager{Bin: bin, Headless: headless}
}

// Start force-launches the browser.
func (m *Manager) Start(ctx domain.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.stopped {
		return fmt.Errorf("op=browser.Start: %w: manager is stopped", domain.ErrBrowserClosed)
	}
	if m.browser != nil {
		return nil
	}
	return m.launchLocked(ctx, "initial start")
}

// Get returns a connected browser handle and its generation, relaunching
// first when the current instance is gone or unhealthy.
func (m *Manager) Get(ctx domain.Context) (*rod.Browser, uint64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.stopped {
		return nil, 0, fmt.Errorf("op=browser.Get: %w: manager is stopped", domain.ErrBrowserClosed)
	}
	if m.browser != nil {
		if _, err := m.browser.Version(); err == nil {
			return m.browser, m.generation, nil
		}
		slog.Warn("browser handle unhealthy, relaunching",
			slog.Uint64("generation", m.generation))
	}
	if err := m.relaunchLocked(ctx, "get found no healthy browser"); err != nil {
		return nil, 0, err
	}
	return m.browser, m.generation, nil
}

// Generation returns the current handle generation.
func (m *Manager) Generation() uint64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.generation
}

// Relaunch replaces the browser instance. With force=false it is a no-op
// while the current instance still answers a version probe, so concurrent
// callers reacting to the same crash trigger a single relaunch.
func (m *Manager) Relaunch(ctx domain.Context, reason string, force bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.stopped {
		return fmt.Errorf("op=browser.Relaunch: %w: manager is stopped", domain.ErrBrowserClosed)
	}
	if !force && m.browser != nil {
		if _, err := m.browser.Version(); err == nil {
			return nil
		}
	}
	return m.relaunchLocked(ctx, reason)
}

// Stop tears the browser down. Safe to call more than once.
func (m *Manager) Stop() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.stopped {
		return
	}
	m.stopped = true
	m.closeLocked()
	slog.Info("browser manager stopped", slog.Uint64("generation", m.generation))
}

func (m *Manager) relaunchLocked(ctx domain.Context, reason string) error {
	m.closeLocked()
	if err := m.launchLocked(ctx, reason); err != nil {
		return err
	}
	return nil
}

func (m *Manager) closeLocked() {
	if m.browser != nil {
		// Teardown of a possibly dead browser; errors carry no signal.
		_ = m.browser.Close()
		m.browser = nil
	}
	if m.launch != nil {
		m.launch.Kill()
		m.launch = nil
	}
}

func (m *Manager) launchLocked(ctx domain.Context, reason string) error {
	l := launcher.New().Headless(m.Headless)
	if m.Bin != "" {
		l = l.Bin(m.Bin)
	}
	controlURL, err := l.Launch()
	if err != nil {
		return fmt.Errorf("op=browser.launch: %w", err)
	}
	b := rod.New().ControlURL(controlURL).Context(ctx)
	if err := b.Connect(); err != nil {
		l.Kill()
		return fmt.Errorf("op=browser.connect: %w", err)
	}
	m.browser = b
	m.launch = l
	m.generation++
	gen := m.generation
	go m.watchDisconnect(b, gen)
	slog.Info("browser launched",
		slog.Uint64("generation", gen),
		slog.String("reason", reason))
	return nil
}

// watchDisconnect drains the CDP event stream; the channel closes when the
// connection drops, which is the only disconnect signal rod exposes. One
// observer per generation, logs once and exits.
func (m *Manager) watchDisconnect(b *rod.Browser, gen uint64) {
	for range b.Event() {
	}
	slog.Warn("browser disconnected", slog.Uint64("generation", gen))
}
