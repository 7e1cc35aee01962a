package browser

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/proto"
	"github.com/go-rod/stealth"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/fairyhunter13/ai-deep-researcher/internal/domain"
	"github.com/fairyhunter13/ai-deep-researcher/pkg/textx"
)

const (
	defaultNavTimeout = 15 * time.Second
	defaultMinChars   = 500
	desktopUserAgent  = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/124.0.0.0 Safari/537.36"
)

// Scraper fetches rendered page text through a shared browser. PDFs are
// delegated to the PDF service before a page is ever opened.
type Scraper struct {
	Manager *Manager
	PDF     domain.PDFService

	NavTimeout time.Duration
	MinChars   int

	pool slotPool
}

// NewScraper wires a scraper onto mgr. pdf may be nil when PDF handling is
// done by the caller.
func NewScraper(mgr *Manager, pdf domain.PDFService, navTimeout time.Duration, minChars int) *Scraper {
	if navTimeout <= 0 {
		navTimeout = defaultNavTimeout
	}
	if minChars <= 0 {
		minChars = defaultMinChars
	}
	return &Scraper{Manager: mgr, PDF: pdf, NavTimeout: navTimeout, MinChars: minChars}
}

// Shutdown retires the active context slot.
func (s *Scraper) Shutdown() {
	s.pool.shutdown()
}

// Scrape returns the visible text of url, or nil for expected navigation
// failures: timeouts, aborted downloads, and pages below the minimum length.
func (s *Scraper) Scrape(ctx domain.Context, url, hintTitle string) (*domain.Document, error) {
	tracer := otel.Tracer("browser.scraper")
	ctx, span := tracer.Start(ctx, "scraper.Scrape")
	defer span.End()
	span.SetAttributes(attribute.String("scrape.url", url))

	if s.PDF != nil && s.PDF.IsPDFURL(ctx, url) {
		doc, outcome, err := s.PDF.Extract(ctx, url, hintTitle)
		span.SetAttributes(attribute.String("scrape.pdf_outcome", string(outcome)))
		if err != nil && expectedNavFailure(err) {
			// The caller's deadline cut the extraction short; to the
			// caller that is a miss, and its own PDF fallback applies.
			return nil, nil
		}
		return doc, err
	}

	var lastErr error
	for attempt := 0; attempt < 2; attempt++ {
		doc, err := s.scrapeOnce(ctx, url, hintTitle)
		if err == nil {
			return doc, nil
		}
		lastErr = err
		if !errors.Is(err, domain.ErrBrowserClosed) {
			break
		}
		if attempt == 1 {
			break
		}
		// A closed target on the first try usually means the context died
		// under us; the retry acquires a fresh slot. When the whole browser
		// went away the relaunch below replaces it (no-op while healthy).
		if rerr := s.Manager.Relaunch(ctx, "target closed during scrape", false); rerr != nil {
			return nil, rerr
		}
	}
	if expectedNavFailure(lastErr) {
		slog.Debug("scrape miss", slog.String("url", url), slog.Any("error", lastErr))
		return nil, nil
	}
	return nil, lastErr
}

func (s *Scraper) scrapeOnce(ctx domain.Context, url, hintTitle string) (*domain.Document, error) {
	if strings.HasSuffix(strings.ToLower(strings.TrimRight(url, "/")), ".pdf") {
		// Navigating to a raw PDF would start a download instead of a page.
		return nil, nil
	}

	sl, err := s.pool.acquire(func() (*rod.Browser, *rod.HijackRouter, error) {
		return s.newSlotContext(ctx)
	})
	if err != nil {
		return nil, err
	}
	defer s.pool.release(sl)

	page, err := stealth.Page(sl.browser)
	if err != nil {
		if isTargetClosed(err) {
			s.pool.retire(sl)
			return nil, fmt.Errorf("%w: %v", domain.ErrBrowserClosed, err)
		}
		return nil, err
	}
	defer func() { _ = page.Close() }()

	doc, err := s.readPage(ctx, page, url, hintTitle)
	if err != nil && errors.Is(err, domain.ErrBrowserClosed) {
		s.pool.retire(sl)
	}
	return doc, err
}

// newSlotContext builds an incognito context with the stealth request
// profile: images, media, fonts and stylesheets are refused at the network
// layer so article pages render their text fast.
func (s *Scraper) newSlotContext(ctx domain.Context) (*rod.Browser, *rod.HijackRouter, error) {
	b, _, err := s.Manager.Get(ctx)
	if err != nil {
		return nil, nil, err
	}
	ictx, err := b.Incognito()
	if err != nil {
		return nil, nil, err
	}
	router := ictx.HijackRequests()
	err = router.Add("*", "", func(h *rod.Hijack) {
		switch h.Request.Type() {
		case proto.NetworkResourceTypeImage,
			proto.NetworkResourceTypeMedia,
			proto.NetworkResourceTypeFont,
			proto.NetworkResourceTypeStylesheet:
			h.Response.Fail(proto.NetworkErrorReasonBlockedByClient)
		default:
			h.ContinueRequest(&proto.FetchContinueRequest{})
		}
	})
	if err != nil {
		return nil, nil, err
	}
	go router.Run()
	return ictx, router, nil
}

func (s *Scraper) readPage(ctx domain.Context, page *rod.Page, url, hintTitle string) (*domain.Document, error) {
	if err := page.SetUserAgent(&proto.NetworkSetUserAgentOverride{
		UserAgent:      desktopUserAgent,
		AcceptLanguage: "en-US,en;q=0.9",
	}); err != nil {
		return nil, classifyPageErr(err)
	}
	if err := page.SetViewport(&proto.EmulationSetDeviceMetricsOverride{
		Width: 1366, Height: 768, DeviceScaleFactor: 1,
	}); err != nil {
		return nil, classifyPageErr(err)
	}

	nctx, cancel := context.WithTimeout(ctx, s.NavTimeout)
	defer cancel()
	p := page.Context(nctx)

	if err := s.navigate(p, url); err != nil {
		return nil, err
	}
	if _, err := p.Element("body"); err != nil {
		return nil, classifyPageErr(err)
	}
	rendered, err := p.HTML()
	if err != nil {
		return nil, classifyPageErr(err)
	}

	text, htmlTitle := ExtractText(rendered)
	text = textx.SanitizeText(text)
	if len(text) < s.MinChars {
		return nil, nil
	}

	pageTitle := ""
	if info, ierr := p.Info(); ierr == nil {
		pageTitle = info.Title
	}
	title := resolveTitle(hintTitle, pageTitle, htmlTitle, url)

	return &domain.Document{
		PageContent: text,
		Metadata:    domain.DocumentMetadata{Source: url, Title: title},
	}, nil
}

// navigate waits for DOMContentLoaded; HTTP/2 protocol errors get one retry
// that settles for the navigation commit only.
func (s *Scraper) navigate(p *rod.Page, url string) error {
	wait := p.WaitNavigation(proto.PageLifecycleEventNameDOMContentLoaded)
	err := p.Navigate(url)
	if err == nil {
		wait()
		return nil
	}
	if isHTTP2ProtocolErr(err) {
		slog.Debug("http2 protocol error, retrying with commit wait", slog.String("url", url))
		if rerr := p.Navigate(url); rerr != nil {
			return classifyPageErr(rerr)
		}
		return nil
	}
	return classifyPageErr(err)
}

func resolveTitle(hint, pageTitle, htmlTitle, url string) string {
	for _, t := range []string{hint, pageTitle, htmlTitle} {
		if s := strings.TrimSpace(t); s != "" {
			return s
		}
	}
	return url
}

func classifyPageErr(err error) error {
	if isTargetClosed(err) {
		return fmt.Errorf("%w: %v", domain.ErrBrowserClosed, err)
	}
	return err
}

// isTargetClosed matches the error texts rod produces when a page, context
// or the whole browser connection has gone away.
func isTargetClosed(err error) bool {
	if err == nil {
		return false
	}
	msg := strings.ToLower(err.Error())
	for _, probe := range []string{
		"target closed",
		"context closed",
		"session closed",
		"browser closed",
		"target crashed",
		"cannot find context",
		"use of closed network connection",
	} {
		if strings.Contains(msg, probe) {
			return true
		}
	}
	return false
}

func isHTTP2ProtocolErr(err error) bool {
	return err != nil && strings.Contains(err.Error(), "ERR_HTTP2_PROTOCOL_ERROR")
}

// expectedNavFailure reports whether err is a navigation outcome the caller
// treats as "no document": deadline hits, aborted loads (downloads trigger
// net::ERR_ABORTED), unresolvable hosts and refused connections.
func expectedNavFailure(err error) bool {
	if err == nil {
		return true
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	msg := err.Error()
	for _, probe := range []string{
		"net::ERR_ABORTED",
		"net::ERR_NAME_NOT_RESOLVED",
		"net::ERR_CONNECTION_REFUSED",
		"net::ERR_CONNECTION_RESET",
		"net::ERR_CONNECTION_TIMED_OUT",
		"net::ERR_TIMED_OUT",
		"net::ERR_CERT_",
	} {
		if strings.Contains(msg, probe) {
			return true
		}
	}
	return false
}
