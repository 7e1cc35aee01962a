package domain

import (
	"strings"
	"testing"
)

func TestCompleteDocumentMarkdown_SectionOrderFollowsOutline(t *testing.T) {
	outline := Outline{
		DocumentTitle: "BBR vs Cubic",
		Sections: []OutlineSection{
			{SectionTitle: "Background"},
			{SectionTitle: "Methodology"},
			{SectionTitle: "Results"},
		},
	}
	doc := CompleteDocument{Title: outline.DocumentTitle}
	for _, s := range outline.Sections {
		doc.Sections = append(doc.Sections, ContentSection{SectionTitle: s.SectionTitle, Content: "x", Citations: nil})
	}

	md := doc.Markdown()
	if !strings.HasPrefix(md, "# BBR vs Cubic\n") {
		t.Fatalf("missing H1 title, got %q", md[:40])
	}
	prev := -1
	for _, s := range outline.Sections {
		idx := strings.Index(md, "## "+s.SectionTitle+"\n")
		if idx < 0 {
			t.Fatalf("section %q not rendered", s.SectionTitle)
		}
		if idx < prev {
			t.Fatalf("section %q rendered out of outline order", s.SectionTitle)
		}
		prev = idx
	}
}

func TestCompleteDocumentMarkdown_ReferencesNumberedByFirstAppearance(t *testing.T) {
	doc := CompleteDocument{
		Title: "T",
		Sections: []ContentSection{
			{SectionTitle: "A", Content: "a", Citations: []string{"https://x.test/1", "https://x.test/2"}},
			{SectionTitle: "B", Content: "b", Citations: []string{"https://x.test/2", "https://x.test/3"}},
		},
	}
	md := doc.Markdown()
	refs := md[strings.Index(md, "## References"):]
	wantOrder := []string{"[1] https://x.test/1", "[2] https://x.test/2", "[3] https://x.test/3"}
	pos := -1
	for _, w := range wantOrder {
		i := strings.Index(refs, w)
		if i < 0 {
			t.Fatalf("missing reference line %q in %q", w, refs)
		}
		if i < pos {
			t.Fatalf("reference %q out of order", w)
		}
		pos = i
	}
	if strings.Count(refs, "https://x.test/2") != 1 {
		t.Fatalf("duplicate citation not de-duplicated: %q", refs)
	}
}

func TestCompleteDocumentMarkdown_NoReferences(t *testing.T) {
	doc := CompleteDocument{Title: "T", Sections: []ContentSection{{SectionTitle: "A", Content: "a"}}}
	md := doc.Markdown()
	if !strings.Contains(md, "## References\n\nNo references provided.\n") {
		t.Fatalf("missing no-references sentinel, got %q", md)
	}
}
