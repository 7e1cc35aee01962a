package validate

import (
	"regexp"
	"strings"
)

// VisualKind names a recognised visualization fence type.
type VisualKind string

const (
	VisualChartJSON VisualKind = "chartjson"
	VisualMermaid   VisualKind = "mermaid"
)

// VisualBlock is one fenced visualization block. Start/End are byte offsets
// of the whole fenced block (opening fence through the closing fence line,
// including its trailing newline when present), suitable for splicing.
type VisualBlock struct {
	Kind  VisualKind
	Body  string
	Raw   string
	Start int
	End   int
}

// VisualIssue pairs an invalid block with the validator's reason.
type VisualIssue struct {
	Block  VisualBlock
	Reason string
}

var (
	visualOpenRe  = regexp.MustCompile("(?mi)^```(chartjson|mermaid)[ \t]*\r?\n")
	visualCloseRe = regexp.MustCompile("(?m)^```[ \t]*(?:\r?\n|$)")
)

// ExtractVisualBlocks scans md for chartjson/mermaid fenced blocks. The info
// string match is case-insensitive with optional trailing whitespace; any
// other deviation is not a visual block. Blocks never overlap: scanning
// resumes after each closed block.
func ExtractVisualBlocks(md string) []VisualBlock {
	var blocks []VisualBlock
	off := 0
	for off < len(md) {
		loc := visualOpenRe.FindStringSubmatchIndex(md[off:])
		if loc == nil {
			break
		}
		openStart := off + loc[0]
		bodyStart := off + loc[1]
		kind := VisualKind(strings.ToLower(md[off+loc[2] : off+loc[3]]))

		closeLoc := visualCloseRe.FindStringIndex(md[bodyStart:])
		if closeLoc == nil {
			// Unterminated fence: not a visual block.
			off = bodyStart
			continue
		}
		bodyEnd := bodyStart + closeLoc[0]
		blockEnd := bodyStart + closeLoc[1]

		body := strings.TrimRight(md[bodyStart:bodyEnd], "\r\n")
		blocks = append(blocks, VisualBlock{
			Kind:  kind,
			Body:  body,
			Raw:   md[openStart:blockEnd],
			Start: openStart,
			End:   blockEnd,
		})
		off = blockEnd
	}
	return blocks
}

// ValidateVisualBlock validates one block with the validator for its kind.
func ValidateVisualBlock(b VisualBlock) error {
	switch b.Kind {
	case VisualChartJSON:
		return ValidateChartJSON(b.Body)
	case VisualMermaid:
		return ValidateMermaid(b.Body)
	}
	return nil
}

// CheckVisuals extracts and validates all visual blocks, returning one issue
// per invalid block in document order.
func CheckVisuals(md string) []VisualIssue {
	var issues []VisualIssue
	for _, b := range ExtractVisualBlocks(md) {
		if err := ValidateVisualBlock(b); err != nil {
			issues = append(issues, VisualIssue{Block: b, Reason: err.Error()})
		}
	}
	return issues
}
