// Package pdf implements PDF detection and extraction: a streaming primary
// path through a model endpoint with URL context, and an in-memory fallback
// parser used by the background worker.
package pdf

import (
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"

	"github.com/gabriel-vasile/mimetype"

	"github.com/fairyhunter13/ai-deep-researcher/internal/domain"
)

const probeRangeBytes = 1024

// IsPDFURL probes rawURL with three escalating checks: path suffix, a HEAD
// request, then a 1 KB ranged GET sniffed by content. The first positive
// signal short-circuits; every probe failure counts as "not a PDF".
func (s *Service) IsPDFURL(ctx domain.Context, rawURL string) bool {
	if hasPDFSuffix(rawURL) {
		return true
	}
	if ok, decided := s.headProbe(ctx, rawURL); decided {
		return ok
	}
	return s.rangedProbe(ctx, rawURL)
}

func hasPDFSuffix(rawURL string) bool {
	u, err := url.Parse(rawURL)
	if err != nil {
		return strings.HasSuffix(strings.ToLower(rawURL), ".pdf")
	}
	return strings.HasSuffix(strings.ToLower(strings.TrimRight(u.Path, "/")), ".pdf")
}

// headProbe returns (isPDF, decided). decided=false means the HEAD response
// was inconclusive and the caller should fall through to the ranged GET.
func (s *Service) headProbe(ctx domain.Context, rawURL string) (bool, bool) {
	pctx, cancel := s.probeContext(ctx)
	defer cancel()

	req, err := http.NewRequestWithContext(pctx, http.MethodHead, rawURL, nil)
	if err != nil {
		return false, true
	}
	resp, err := s.httpClient().Do(req)
	if err != nil {
		return false, false
	}
	defer func() { _ = resp.Body.Close() }()

	ct := strings.ToLower(resp.Header.Get("Content-Type"))
	if strings.Contains(ct, "application/pdf") {
		return true, true
	}
	// An explicit non-PDF content type is a real answer; a missing or
	// generic one is not.
	if ct != "" && !strings.Contains(ct, "octet-stream") {
		return false, true
	}
	return false, false
}

func (s *Service) rangedProbe(ctx domain.Context, rawURL string) bool {
	pctx, cancel := s.probeContext(ctx)
	defer cancel()

	req, err := http.NewRequestWithContext(pctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return false
	}
	req.Header.Set("Range", "bytes=0-1023")
	resp, err := s.httpClient().Do(req)
	if err != nil {
		slog.Debug("pdf probe failed", slog.String("url", rawURL), slog.Any("error", err))
		return false
	}
	defer func() { _ = resp.Body.Close() }()

	buf, err := io.ReadAll(io.LimitReader(resp.Body, probeRangeBytes))
	if err != nil || len(buf) == 0 {
		return false
	}
	return sniffPDF(buf)
}

func sniffPDF(buf []byte) bool {
	if strings.HasPrefix(string(buf), "%PDF-") {
		return true
	}
	return mimetype.Detect(buf).Is("application/pdf")
}
