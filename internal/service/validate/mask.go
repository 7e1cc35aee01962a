// Package validate implements structural validation of generated markdown:
// chart-JSON and mermaid visual blocks, and LaTeX equation spans. Validators
// are pure; they report invalid spans with byte offsets and precise reasons
// so the repair loop can splice fixes back in.
package validate

import "strings"

// CodeMask reports, per byte of md, whether that byte lies inside a fenced
// code block or an inline code span. Equation extraction never looks inside
// masked regions.
func CodeMask(md string) []bool {
	mask := make([]bool, len(md))
	inFence := false
	off := 0
	for off <= len(md) {
		end := strings.IndexByte(md[off:], '\n')
		var line string
		var next int
		if end < 0 {
			line = md[off:]
			next = len(md) + 1
		} else {
			line = md[off : off+end]
			next = off + end + 1
		}
		trimmed := strings.TrimLeft(line, " \t")
		if strings.HasPrefix(trimmed, "```") {
			// Fence delimiter lines and everything between them are masked.
			markRange(mask, off, next)
			inFence = !inFence
		} else if inFence {
			markRange(mask, off, next)
		} else {
			maskInlineCode(mask, line, off)
		}
		if next > len(md) {
			break
		}
		off = next
	}
	return mask
}

func markRange(mask []bool, start, end int) {
	if end > len(mask) {
		end = len(mask)
	}
	for i := start; i < end; i++ {
		mask[i] = true
	}
}

// maskInlineCode masks `code` spans within a single line. A span opens with a
// run of n backticks and closes at the next run of exactly n backticks.
func maskInlineCode(mask []bool, line string, base int) {
	i := 0
	for i < len(line) {
		if line[i] != '`' {
			i++
			continue
		}
		n := 0
		for i+n < len(line) && line[i+n] == '`' {
			n++
		}
		close := findBacktickRun(line[i+n:], n)
		if close < 0 {
			i += n
			continue
		}
		markRange(mask, base+i, base+i+n+close+n)
		i += n + close + n
	}
}

// findBacktickRun returns the offset of the first run of exactly n backticks
// in s, or -1.
func findBacktickRun(s string, n int) int {
	for i := 0; i < len(s); {
		if s[i] != '`' {
			i++
			continue
		}
		run := 0
		for i+run < len(s) && s[i+run] == '`' {
			run++
		}
		if run == n {
			return i
		}
		i += run
	}
	return -1
}
