package browser

import (
	"sync"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/proto"
)

// slot is one incognito browser context shared by concurrent scrapes.
// refs counts the scrapes currently using it; a retired slot is destroyed
// by whichever release drops refs to zero.
type slot struct {
	id      uint64
	browser *rod.Browser
	router  *rod.HijackRouter
	refs    int
	retired bool
}

// slotPool hands out the active slot, creating a fresh one when none exists
// or the active one was retired. The create factory is passed per acquire
// so it can carry the caller's context, and so the pool's reference counting
// is testable without a live browser.
type slotPool struct {
	mu     sync.Mutex
	nextID uint64
	active *slot
}

// acquire returns the active slot with one reference taken. A new ref never
// lands on a retired slot: retirement and acquisition share the pool lock.
func (p *slotPool) acquire(create func() (*rod.Browser, *rod.HijackRouter, error)) (*slot, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.active == nil || p.active.retired {
		b, router, err := create()
		if err != nil {
			return nil, err
		}
		p.nextID++
		p.active = &slot{id: p.nextID, browser: b, router: router}
	}
	p.active.refs++
	return p.active, nil
}

// release drops one reference. The last release of a retired slot destroys
// its context.
func (p *slotPool) release(s *slot) {
	p.mu.Lock()
	s.refs--
	destroy := s.retired && s.refs == 0
	p.mu.Unlock()
	if destroy {
		destroySlot(s)
	}
}

// retire marks the slot dead for future acquirers and clears it from the
// active position. The context is destroyed immediately only when no scrape
// still holds a reference.
func (p *slotPool) retire(s *slot) {
	p.mu.Lock()
	if s.retired {
		p.mu.Unlock()
		return
	}
	s.retired = true
	if p.active == s {
		p.active = nil
	}
	destroy := s.refs == 0
	p.mu.Unlock()
	if destroy {
		destroySlot(s)
	}
}

// shutdown retires whatever slot is active.
func (p *slotPool) shutdown() {
	p.mu.Lock()
	s := p.active
	p.mu.Unlock()
	if s != nil {
		p.retire(s)
	}
}

func destroySlot(s *slot) {
	if s.router != nil {
		_ = s.router.Stop()
	}
	if s.browser != nil {
		_ = proto.TargetDisposeBrowserContext{
			BrowserContextID: s.browser.BrowserContextID,
		}.Call(s.browser)
	}
}
