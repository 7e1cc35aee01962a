package domain

import (
	"fmt"
	"strings"
)

// Research document model. These are plain tagged records; the JSON tags are
// the wire shape used both for structured model output and for checkpoints.

type OutlineSubsection struct {
	Title       string `json:"title"`
	Description string `json:"description"`
}

type OutlineSection struct {
	SectionTitle string              `json:"section_title"`
	Description  string              `json:"description"`
	Subsections  []OutlineSubsection `json:"subsections,omitempty"`
}

type Outline struct {
	DocumentTitle       string           `json:"document_title"`
	DocumentDescription string           `json:"document_description"`
	Sections            []OutlineSection `json:"sections"`
}

type Expert struct {
	Name       string `json:"name"`
	Profession string `json:"profession"`
	Role       string `json:"role"`
}

type Perspectives struct {
	Experts []Expert `json:"experts"`
}

// ContentSection is one finalised document section. Citations are source
// URLs, ordered by first appearance and duplicate-free.
type ContentSection struct {
	SectionTitle string   `json:"section_title"`
	Content      string   `json:"content"`
	Citations    []string `json:"citations"`
}

type CompleteDocument struct {
	Title    string           `json:"title"`
	Sections []ContentSection `json:"sections"`
}

// Markdown renders the document: the title as an H1, each section as an H2
// with its content, then a References section listing de-duplicated citations
// numbered in order of first appearance.
func (d CompleteDocument) Markdown() string {
	var b strings.Builder
	b.WriteString("# " + d.Title + "\n")
	for _, s := range d.Sections {
		b.WriteString("\n## " + s.SectionTitle + "\n\n")
		b.WriteString(strings.TrimRight(s.Content, "\n"))
		b.WriteString("\n")
	}
	b.WriteString("\n## References\n\n")
	seen := make(map[string]bool)
	n := 0
	for _, s := range d.Sections {
		for _, c := range s.Citations {
			if c == "" || seen[c] {
				continue
			}
			seen[c] = true
			n++
			fmt.Fprintf(&b, "[%d] %s\n", n, c)
		}
	}
	if n == 0 {
		b.WriteString("No references provided.\n")
	}
	return b.String()
}

// FallbackSectionText is substituted for a section whose generation failed
// repeatedly. The document still completes with every outline section
// present.
func FallbackSectionText(sectionTitle string) string {
	return fmt.Sprintf("Could not generate section content for '%s' due to repeated generation failures.", sectionTitle)
}

// Document is a scraped or extracted source passed between the scraper, the
// PDF service, the tools and the vector store.
type Document struct {
	PageContent string           `json:"page_content"`
	Metadata    DocumentMetadata `json:"metadata"`
}

type DocumentMetadata struct {
	Source            string `json:"source"`
	Title             string `json:"title"`
	ContentType       string `json:"content_type,omitempty"`
	IsPDF             bool   `json:"is_pdf,omitempty"`
	PartialPDFContent bool   `json:"partial_pdf_content,omitempty"`
	ExtractionMethod  string `json:"extraction_method,omitempty"`
	ProcessedAt       string `json:"processed_at,omitempty"`
	PdfJobID          string `json:"pdf_job_id,omitempty"`
}

// SearchResult is one hit from the external web-search API.
type SearchResult struct {
	URL         string
	Title       string
	Description string
}

// PdfOutcome classifies a primary-path PDF extraction.
type PdfOutcome string

const (
	PdfComplete       PdfOutcome = "complete"
	PdfPartialTimeout PdfOutcome = "partial_timeout"
	PdfQueuedFallback PdfOutcome = "queued"
	PdfFailed         PdfOutcome = "failed"
)
