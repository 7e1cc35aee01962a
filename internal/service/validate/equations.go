package validate

import (
	"fmt"
	"regexp"
	"strings"
)

// DelimStyle names the delimiter pair an equation span was extracted with.
type DelimStyle string

const (
	DelimInlineDollar DelimStyle = "inline_dollar"
	DelimDoubleDollar DelimStyle = "double_dollar"
	DelimBracket      DelimStyle = "bracket"
	DelimParen        DelimStyle = "paren"
)

// Wrap re-wraps a repaired expression in the style's original delimiters.
func (s DelimStyle) Wrap(expr string) string {
	switch s {
	case DelimDoubleDollar:
		return "$$" + expr + "$$"
	case DelimBracket:
		return `\[` + expr + `\]`
	case DelimParen:
		return `\(` + expr + `\)`
	default:
		return "$" + expr + "$"
	}
}

// EquationSpan is one extracted math span. Start/End are byte offsets of the
// raw span including delimiters; Expression excludes them.
type EquationSpan struct {
	Expression string
	Style      DelimStyle
	Raw        string
	Start      int
	End        int
}

// EquationIssue pairs an invalid span with the validator's reason.
type EquationIssue struct {
	Span   EquationSpan
	Reason string
}

// DefaultEquationMaxChars bounds a single equation's length.
const DefaultEquationMaxChars = 2000

var (
	displayDollarRe = regexp.MustCompile(`(?s)\$\$(.+?)\$\$`)
	bracketRe       = regexp.MustCompile(`(?s)\\\[(.+?)\\\]`)
	parenRe         = regexp.MustCompile(`(?s)\\\((.+?)\\\)`)

	equationUnsafeRe = regexp.MustCompile(`(?i)<script|javascript:|data:text/`)
	macroCommandRe   = regexp.MustCompile(`\\(newcommand|renewcommand|providecommand|DeclareMathOperator|DeclareRobustCommand|def|let|catcode|csname|input|include|write)\b`)
	htmlTagRe        = regexp.MustCompile(`<[a-zA-Z][a-zA-Z0-9]*(\s|>|/)`)
	commandTokenRe   = regexp.MustCompile(`\\([a-zA-Z]+)`)
)

// argCommands are LaTeX commands that must be followed by an argument group.
var argCommands = map[string]bool{
	"frac": true, "dfrac": true, "tfrac": true, "cfrac": true,
	"binom": true, "sqrt": true, "stackrel": true, "overset": true,
	"underset": true, "text": true, "mathrm": true, "mathbf": true,
	"boldsymbol": true, "operatorname": true,
}

// ExtractEquations finds equation spans in all four delimiter styles,
// skipping anything inside code fences or inline code. Display styles are
// consumed first so their dollars are never reinterpreted as inline math.
// An inline $…$ pair that would cross a line break is not extracted.
func ExtractEquations(md string) []EquationSpan {
	mask := CodeMask(md)
	consumed := make([]bool, len(md))
	var spans []EquationSpan

	collect := func(re *regexp.Regexp, style DelimStyle) {
		for _, loc := range re.FindAllStringSubmatchIndex(md, -1) {
			start, end := loc[0], loc[1]
			if regionMasked(mask, start, end) || regionMasked(consumed, start, end) {
				continue
			}
			if start > 0 && md[start-1] == '\\' && style == DelimDoubleDollar {
				continue
			}
			spans = append(spans, EquationSpan{
				Expression: md[loc[2]:loc[3]],
				Style:      style,
				Raw:        md[start:end],
				Start:      start,
				End:        end,
			})
			markRange(consumed, start, end)
		}
	}
	collect(displayDollarRe, DelimDoubleDollar)
	collect(bracketRe, DelimBracket)
	collect(parenRe, DelimParen)
	spans = append(spans, extractInlineDollar(md, mask, consumed)...)

	sortSpansByStart(spans)
	return spans
}

// extractInlineDollar pairs single unescaped dollars within one line.
func extractInlineDollar(md string, mask, consumed []bool) []EquationSpan {
	var spans []EquationSpan
	lineStart := 0
	for lineStart <= len(md) {
		nl := strings.IndexByte(md[lineStart:], '\n')
		lineEnd := len(md)
		if nl >= 0 {
			lineEnd = lineStart + nl
		}
		i := lineStart
		for i < lineEnd {
			if md[i] != '$' || mask[i] || consumed[i] || isEscaped(md, i) {
				i++
				continue
			}
			// Skip $$ runs; those belong to display math.
			if i+1 < lineEnd && md[i+1] == '$' {
				i += 2
				continue
			}
			j := i + 1
			closing := -1
			for j < lineEnd {
				if md[j] == '$' && !mask[j] && !consumed[j] && !isEscaped(md, j) {
					if j+1 < lineEnd && md[j+1] == '$' {
						j += 2
						continue
					}
					closing = j
					break
				}
				j++
			}
			if closing < 0 || closing == i+1 {
				i++
				continue
			}
			spans = append(spans, EquationSpan{
				Expression: md[i+1 : closing],
				Style:      DelimInlineDollar,
				Raw:        md[i : closing+1],
				Start:      i,
				End:        closing + 1,
			})
			markRange(consumed, i, closing+1)
			i = closing + 1
		}
		if nl < 0 {
			break
		}
		lineStart = lineEnd + 1
	}
	return spans
}

func isEscaped(s string, i int) bool {
	n := 0
	for j := i - 1; j >= 0 && s[j] == '\\'; j-- {
		n++
	}
	return n%2 == 1
}

func regionMasked(mask []bool, start, end int) bool {
	for i := start; i < end && i < len(mask); i++ {
		if mask[i] {
			return true
		}
	}
	return false
}

func sortSpansByStart(spans []EquationSpan) {
	for i := 1; i < len(spans); i++ {
		for j := i; j > 0 && spans[j-1].Start > spans[j].Start; j-- {
			spans[j-1], spans[j] = spans[j], spans[j-1]
		}
	}
}

// ValidateEquation applies the ordered structural checks to one span. The
// first failing check's reason is returned.
func ValidateEquation(span EquationSpan, maxChars int) error {
	if maxChars <= 0 {
		maxChars = DefaultEquationMaxChars
	}
	expr := span.Expression

	// 1. Non-empty and bounded.
	if strings.TrimSpace(expr) == "" {
		return fmt.Errorf("Equation is empty.")
	}
	if len(expr) > maxChars {
		return fmt.Errorf("Equation exceeds the maximum length of %d characters.", maxChars)
	}
	// 2. Unsafe content.
	if equationUnsafeRe.MatchString(expr) {
		return fmt.Errorf("Equation contains unsafe content.")
	}
	// 3. Macro definitions.
	if m := macroCommandRe.FindStringSubmatch(expr); m != nil {
		return fmt.Errorf("Equation contains macro definition command \\%s.", m[1])
	}
	// 4. Control characters.
	for _, r := range expr {
		if r < 0x20 && r != '\n' && r != '\r' && r != '\t' {
			return fmt.Errorf("Equation contains control characters.")
		}
	}
	// 5. Trailing lone backslash.
	if trailingBackslashes(expr)%2 == 1 {
		return fmt.Errorf("Equation ends with a trailing backslash.")
	}
	// 6. Bare % comment.
	if hasBarePercent(expr) {
		return fmt.Errorf("Equation contains an unescaped %% comment character.")
	}
	// 7. Inline-specific shape.
	if span.Style == DelimInlineDollar {
		if strings.ContainsAny(expr, "\n") {
			return fmt.Errorf("Inline equation spans multiple lines.")
		}
		if strings.Contains(expr, "$$") {
			return fmt.Errorf("Inline equation contains $$.")
		}
	}
	// 8. Brace balance (escaped braces do not count).
	if err := checkBraceBalance(expr); err != nil {
		return err
	}
	// 9. \begin/\end environment matching.
	if err := checkEnvironments(expr); err != nil {
		return err
	}
	// 10. \left/\right count balance.
	if c := countCommand(expr, "left") - countCommand(expr, "right"); c != 0 {
		return fmt.Errorf("Unbalanced \\left and \\right delimiters.")
	}
	// 11. Double scripts at the same brace depth.
	if err := checkDoubleScripts(expr); err != nil {
		return err
	}
	// 12. Commands that require arguments.
	if err := checkArgCommands(expr); err != nil {
		return err
	}
	// 13. HTML/XML open tags.
	if htmlTagRe.MatchString(expr) {
		return fmt.Errorf("Equation contains HTML tags.")
	}
	return nil
}

// CheckEquations extracts and validates every span, returning one issue per
// invalid span in document order.
func CheckEquations(md string, maxChars int) []EquationIssue {
	var issues []EquationIssue
	for _, span := range ExtractEquations(md) {
		if err := ValidateEquation(span, maxChars); err != nil {
			issues = append(issues, EquationIssue{Span: span, Reason: err.Error()})
		}
	}
	return issues
}

func trailingBackslashes(s string) int {
	s = strings.TrimRight(s, " \t\n\r")
	n := 0
	for i := len(s) - 1; i >= 0 && s[i] == '\\'; i-- {
		n++
	}
	return n
}

func hasBarePercent(s string) bool {
	for i := 0; i < len(s); i++ {
		if s[i] == '%' && !isEscaped(s, i) {
			return true
		}
	}
	return false
}

func checkBraceBalance(s string) error {
	depth := 0
	for i := 0; i < len(s); i++ {
		switch s[i] {
		case '{':
			if !isEscaped(s, i) {
				depth++
			}
		case '}':
			if !isEscaped(s, i) {
				depth--
				if depth < 0 {
					return fmt.Errorf("Unexpected closing brace.")
				}
			}
		}
	}
	if depth > 0 {
		return fmt.Errorf("Unclosed brace group.")
	}
	return nil
}

var envRe = regexp.MustCompile(`\\(begin|end)\{([^}]*)\}`)

func checkEnvironments(s string) error {
	var stack []string
	for _, m := range envRe.FindAllStringSubmatch(s, -1) {
		kind, name := m[1], strings.TrimSpace(m[2])
		if name == "" {
			return fmt.Errorf("Environment name is empty.")
		}
		if kind == "begin" {
			stack = append(stack, name)
			continue
		}
		if len(stack) == 0 {
			return fmt.Errorf("\\end{%s} without matching \\begin.", name)
		}
		top := stack[len(stack)-1]
		if top != name {
			return fmt.Errorf("\\begin{%s} closed by \\end{%s}.", top, name)
		}
		stack = stack[:len(stack)-1]
	}
	if len(stack) > 0 {
		return fmt.Errorf("\\begin{%s} is never closed.", stack[len(stack)-1])
	}
	return nil
}

func countCommand(s, name string) int {
	n := 0
	for _, m := range commandTokenRe.FindAllStringSubmatch(s, -1) {
		if m[1] == name {
			n++
		}
	}
	return n
}

// checkDoubleScripts tracks ^ and _ per brace depth. The script argument
// does not reset the flag, so x^2^3 and x^{2}^{3} are both rejected while
// x^2+y^2 and x^{2^3} pass.
func checkDoubleScripts(s string) error {
	type flags struct{ super, sub bool }
	depth := 0
	state := map[int]*flags{0: {}}
	at := func(d int) *flags {
		if state[d] == nil {
			state[d] = &flags{}
		}
		return state[d]
	}
	i := 0
	for i < len(s) {
		c := s[i]
		switch {
		case c == '{' && !isEscaped(s, i):
			depth++
			state[depth] = &flags{}
			i++
		case c == '}' && !isEscaped(s, i):
			if depth > 0 {
				depth--
			}
			i++
		case c == '^' || c == '_':
			f := at(depth)
			if c == '^' {
				if f.super {
					return fmt.Errorf("Double superscript at the same group depth.")
				}
				f.super = true
			} else {
				if f.sub {
					return fmt.Errorf("Double subscript at the same group depth.")
				}
				f.sub = true
			}
			i++
			// Consume the script argument without resetting the flags: a
			// brace group is handled by the depth tracking above; a single
			// command or character is skipped here.
			for i < len(s) && (s[i] == ' ' || s[i] == '\t') {
				i++
			}
			if i < len(s) && s[i] != '{' {
				if s[i] == '\\' {
					if m := commandTokenRe.FindStringIndex(s[i:]); m != nil && m[0] == 0 {
						i += m[1]
					} else {
						i += 2
					}
				} else {
					i++
				}
			}
		case c == ' ' || c == '\t' || c == '\n' || c == '\r':
			i++
		default:
			f := at(depth)
			f.super, f.sub = false, false
			if c == '\\' {
				if m := commandTokenRe.FindStringIndex(s[i:]); m != nil && m[0] == 0 {
					i += m[1]
					continue
				}
				i += 2
				continue
			}
			i++
		}
	}
	return nil
}

func checkArgCommands(s string) error {
	for _, loc := range commandTokenRe.FindAllStringSubmatchIndex(s, -1) {
		name := s[loc[2]:loc[3]]
		if !argCommands[name] {
			continue
		}
		rest := s[loc[1]:]
		rest = strings.TrimLeft(rest, " \t\n\r")
		if rest == "" || (rest[0] != '{' && rest[0] != '[') {
			return fmt.Errorf("Command \\%s must be followed by an argument group.", name)
		}
	}
	return nil
}
