package pdf

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/ledongthuc/pdf"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/fairyhunter13/ai-deep-researcher/internal/domain"
)

// maxPDFBytes caps the download; arXiv-sized papers stay far below this.
const maxPDFBytes = 64 << 20

// ExtractInMemory downloads the PDF and parses its page text locally. It is
// the background worker's executor and needs no model. Returns the document
// and the page count.
func (s *Service) ExtractInMemory(ctx domain.Context, rawURL, title string) (*domain.Document, int, error) {
	tracer := otel.Tracer("pdf.extract")
	ctx, span := tracer.Start(ctx, "pdf.ExtractInMemory")
	defer span.End()
	span.SetAttributes(attribute.String("pdf.url", rawURL))

	timeout := s.DownloadTimeout
	if timeout <= 0 {
		timeout = defaultDownloadTimeout
	}
	dctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	raw, err := s.download(dctx, rawURL)
	if err != nil {
		return nil, 0, fmt.Errorf("op=pdf.ExtractInMemory: download: %w", err)
	}

	text, pages, err := parsePages(raw)
	if err != nil {
		return nil, 0, fmt.Errorf("op=pdf.ExtractInMemory: parse: %w", err)
	}
	if strings.TrimSpace(text) == "" {
		return nil, pages, fmt.Errorf("op=pdf.ExtractInMemory: %w: no extractable text in %d pages", domain.ErrNotPDF, pages)
	}

	doc := s.buildDocument(rawURL, title, text, "in_memory", false, "")
	span.SetAttributes(attribute.Int("pdf.pages", pages), attribute.Int("pdf.chars", len(text)))
	return doc, pages, nil
}

func (s *Service) download(ctx domain.Context, rawURL string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/pdf,*/*")
	resp, err := s.httpClient().Do(req)
	if err != nil {
		return nil, err
	}
	defer func() { _ = resp.Body.Close() }()
	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusPartialContent {
		return nil, fmt.Errorf("unexpected status %d", resp.StatusCode)
	}
	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxPDFBytes))
	if err != nil {
		return nil, err
	}
	if !sniffPDF(raw) {
		return nil, fmt.Errorf("%w: content is not a pdf", domain.ErrNotPDF)
	}
	return raw, nil
}

// parsePages extracts per-page plain text and joins the non-empty pages
// with blank lines.
func parsePages(raw []byte) (string, int, error) {
	reader, err := pdf.NewReader(bytes.NewReader(raw), int64(len(raw)))
	if err != nil {
		return "", 0, err
	}
	total := reader.NumPage()

	var pages []string
	for i := 1; i <= total; i++ {
		page := reader.Page(i)
		if page.V.IsNull() {
			continue
		}
		content, perr := page.GetPlainText(nil)
		if perr != nil {
			// A single damaged page should not sink the document.
			continue
		}
		if t := strings.TrimSpace(content); t != "" {
			pages = append(pages, t)
		}
	}
	return strings.Join(pages, "\n\n"), total, nil
}

// ExtractDeadline reports how long an in-memory run may take; the worker
// uses it to size the job lease.
func (s *Service) ExtractDeadline() time.Duration {
	if s.DownloadTimeout > 0 {
		return s.DownloadTimeout
	}
	return defaultDownloadTimeout
}
