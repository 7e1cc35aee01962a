package browser

import (
	"strings"
	"testing"
)

func TestExtractTextJoinsVisibleNodes(t *testing.T) {
	page := `<html><head><title>My Page</title><style>.x{color:red}</style></head>
<body>
<script>var hidden = "nope";</script>
<h1>Heading</h1>
<p>First <b>paragraph</b> text.</p>
<div>Second   block with
spill</div>
<noscript>fallback junk</noscript>
</body></html>`

	text, title := ExtractText(page)
	if title != "My Page" {
		t.Fatalf("title = %q, want %q", title, "My Page")
	}
	want := "Heading\nFirst paragraph text.\nSecond block with spill"
	if text != want {
		t.Fatalf("text = %q, want %q", text, want)
	}
	if strings.Contains(text, "hidden") || strings.Contains(text, "color:red") || strings.Contains(text, "junk") {
		t.Fatalf("invisible content leaked into %q", text)
	}
}

func TestExtractTextListItemsOnOwnLines(t *testing.T) {
	text, _ := ExtractText(`<ul><li>one</li><li>two</li></ul>`)
	if text != "one\ntwo" {
		t.Fatalf("text = %q", text)
	}
}

func TestExtractTextEmptyDocument(t *testing.T) {
	text, title := ExtractText("")
	if text != "" || title != "" {
		t.Fatalf("got %q / %q for empty input", text, title)
	}
}

func TestExtractTextInlineElementsKeepSpacing(t *testing.T) {
	text, _ := ExtractText(`<p>linked <a href="/x">words</a> continue</p>`)
	if text != "linked words continue" {
		t.Fatalf("text = %q", text)
	}
}
