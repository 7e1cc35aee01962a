package validate

import (
	"fmt"
	"regexp"
	"strings"
)

var mermaidHeaderRe = regexp.MustCompile(`^(graph|flowchart)\s+(TB|TD|BT|RL|LR)\b|^(sequenceDiagram|classDiagram|stateDiagram-v2|stateDiagram|erDiagram|journey|gantt|pie|mindmap|timeline|quadrantChart|gitGraph|requirementDiagram)\b`)

var mermaidUnsafeRe = regexp.MustCompile(`(?i)<script|onerror=|onload=|javascript:`)

// mermaidArrowRe detects edge lines in flow-style diagrams; those lines must
// carry an even number of | characters (edge labels are |text| pairs).
var mermaidArrowRe = regexp.MustCompile(`-->|---|-\.->|-\.-|==>|===|--[xo](\s|$)|\bo--|\bx--`)

// mermaidSingleDashArrowRe catches -> where a flow diagram requires -->.
var mermaidSingleDashArrowRe = regexp.MustCompile(`(^|[^-<.=])->`)

// mermaidTrailingLabelRe catches an identifier glued onto a closing bracket,
// a frequent model typo (e.g. "A[Label]B --> C").
var mermaidTrailingLabelRe = regexp.MustCompile(`[\])}][A-Za-z0-9]`)

var mermaidRiskyLabelRe = regexp.MustCompile(`[/&()\\,:;<>]|[^\x00-\x7F]`)

var mermaidLabelPatterns = []*regexp.Regexp{
	regexp.MustCompile(`\[([^\[\]]*)\]`),
	regexp.MustCompile(`\(([^()]*)\)`),
	regexp.MustCompile(`\{([^{}]*)\}`),
}

// ValidateMermaid applies the structural checks for mermaid diagram text.
// The checks are deliberately heuristic: they catch the malformations the
// renderer chokes on without reimplementing the grammar.
func ValidateMermaid(body string) error {
	if strings.Contains(body, "```") {
		return fmt.Errorf("mermaid body contains nested triple backticks.")
	}
	for _, r := range body {
		if r < 0x20 && r != '\n' && r != '\r' && r != '\t' {
			return fmt.Errorf("mermaid body contains control characters.")
		}
	}
	if mermaidUnsafeRe.MatchString(body) {
		return fmt.Errorf("mermaid body contains unsafe content.")
	}

	header := firstNonCommentLine(body)
	if header == "" {
		return fmt.Errorf("mermaid body is empty.")
	}
	if !mermaidHeaderRe.MatchString(header) {
		return fmt.Errorf("mermaid first line %q is not a recognised diagram header.", header)
	}
	flowStyle := strings.HasPrefix(header, "graph") || strings.HasPrefix(header, "flowchart")

	if err := checkMermaidBalance(body); err != nil {
		return err
	}

	lines := strings.Split(body, "\n")
	for i, line := range lines {
		trimmed := strings.TrimSpace(line)
		if trimmed == "" || strings.HasPrefix(trimmed, "%%") {
			continue
		}
		if strings.Count(line, `"`)%2 != 0 {
			return fmt.Errorf("mermaid line %d has an unbalanced double quote (labels must not span lines).", i+1)
		}
		if mermaidArrowRe.MatchString(line) && strings.Count(line, "|")%2 != 0 {
			return fmt.Errorf("mermaid line %d has an odd number of | characters on an edge.", i+1)
		}
		if flowStyle && mermaidSingleDashArrowRe.MatchString(stripMermaidQuotes(line)) {
			return fmt.Errorf("mermaid line %d uses a single-dash arrow -> (use -->).", i+1)
		}
		if mermaidTrailingLabelRe.MatchString(stripMermaidQuotes(line)) {
			return fmt.Errorf("mermaid line %d has an identifier glued to a closing bracket.", i+1)
		}
		if flowStyle {
			if err := checkMermaidLabels(line, i+1); err != nil {
				return err
			}
		}
	}
	return nil
}

func firstNonCommentLine(body string) string {
	for _, line := range strings.Split(body, "\n") {
		t := strings.TrimSpace(line)
		if t == "" || strings.HasPrefix(t, "%%") {
			continue
		}
		return t
	}
	return ""
}

// checkMermaidBalance verifies (), [] and {} balance across the body,
// skipping double-quoted segments.
func checkMermaidBalance(body string) error {
	var stack []rune
	pairs := map[rune]rune{')': '(', ']': '[', '}': '{'}
	inQuote := false
	for _, r := range body {
		switch {
		case r == '"':
			inQuote = !inQuote
		case inQuote:
		case r == '(' || r == '[' || r == '{':
			stack = append(stack, r)
		case r == ')' || r == ']' || r == '}':
			if len(stack) == 0 || stack[len(stack)-1] != pairs[r] {
				return fmt.Errorf("mermaid body has unbalanced %c.", r)
			}
			stack = stack[:len(stack)-1]
		}
	}
	if len(stack) > 0 {
		return fmt.Errorf("mermaid body has an unclosed %c.", stack[len(stack)-1])
	}
	return nil
}

// checkMermaidLabels rejects risky characters in unquoted node labels.
func checkMermaidLabels(line string, n int) error {
	for _, re := range mermaidLabelPatterns {
		for _, m := range re.FindAllStringSubmatch(line, -1) {
			label := m[1]
			if label == "" {
				continue
			}
			if strings.HasPrefix(label, `"`) && strings.HasSuffix(label, `"`) && len(label) >= 2 {
				continue
			}
			if mermaidRiskyLabelRe.MatchString(label) {
				return fmt.Errorf("mermaid line %d label %q contains risky characters and is not double-quoted.", n, label)
			}
		}
	}
	return nil
}

// stripMermaidQuotes blanks double-quoted segments so arrow and bracket
// heuristics do not fire on label text.
func stripMermaidQuotes(line string) string {
	var b strings.Builder
	inQuote := false
	for _, r := range line {
		if r == '"' {
			inQuote = !inQuote
			b.WriteRune(r)
			continue
		}
		if inQuote {
			b.WriteRune(' ')
		} else {
			b.WriteRune(r)
		}
	}
	return b.String()
}
