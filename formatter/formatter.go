// Package formatter renders pipeline diagnostics and proof reports for
// terminal output. Diagnostics are printed rustc-style, with the offending
// source lines and a tilde underline beneath the reported span.
package formatter

import (
	"fmt"
	"strings"
	"unicode"

	"github.com/fatih/color"

	"github.com/quanta-labs/qprove/internal/diag"
)

const tabWidth = 8

var (
	errorStyle   = color.New(color.FgRed, color.Bold)
	warningStyle = color.New(color.FgHiYellow, color.Bold)
	infoStyle    = color.New(color.FgHiBlue, color.Bold)
	ruleStyle    = color.New(color.FgYellow, color.Bold)
	fileStyle    = color.New(color.FgCyan, color.Bold)
	lineStyle    = color.New(color.FgHiBlue, color.Bold)
	messageStyle = color.New(color.FgRed, color.Bold)
	hintStyle    = color.New(color.FgGreen, color.Bold)
	passStyle    = color.New(color.FgGreen, color.Bold)
	failStyle    = color.New(color.FgRed, color.Bold)
	dimStyle     = color.New(color.FgWhite)
)

// FormatDiagnostics renders every diagnostic against its source file.
// lines holds the file's content split on newlines; it may be nil, in
// which case snippets are omitted and only headers and messages print.
func FormatDiagnostics(diags []*diag.Diagnostic, lines []string) string {
	var builder strings.Builder
	for _, d := range diags {
		builder.WriteString(formatDiagnostic(d, lines))
		builder.WriteString("\n")
	}
	return builder.String()
}

func formatDiagnostic(d *diag.Diagnostic, lines []string) string {
	span := d.Span
	endLine := span.EndLine
	if endLine == 0 {
		endLine = span.Line
	}
	maxLineNumWidth := len(fmt.Sprintf("%d", endLine))
	padding := strings.Repeat(" ", maxLineNumWidth+1)

	var builder strings.Builder
	builder.WriteString(header(d, maxLineNumWidth))

	if isValidLineRange(span.Line, endLine, lines) {
		commonIndent := findCommonIndent(lines[span.Line-1 : endLine])
		builder.WriteString(codeSnippet(lines, span.Line, endLine, maxLineNumWidth, commonIndent, padding))
		builder.WriteString(underlineAndMessage(d, padding, lines, commonIndent))
	} else {
		builder.WriteString(lineStyle.Sprintf("%s= ", padding))
		builder.WriteString(messageStyle.Sprintf("%s\n", d.Message))
	}

	if d.Hint != "" {
		builder.WriteString(hintStyle.Sprint("hint: "))
		builder.WriteString(dimStyle.Sprintf("%s\n", d.Hint))
	}
	return builder.String()
}

func header(d *diag.Diagnostic, maxLineNumWidth int) string {
	var out string
	switch d.Severity {
	case diag.SeverityError:
		out = errorStyle.Sprint("error")
	case diag.SeverityWarning:
		out = warningStyle.Sprint("warning")
	default:
		out = infoStyle.Sprint("info")
	}
	out += ruleStyle.Sprintf("[%s/%s]\n", d.Stage, d.Rule)

	padding := strings.Repeat(" ", maxLineNumWidth)
	out += lineStyle.Sprintf("%s--> ", padding)
	out += fileStyle.Sprintf("%s:%d:%d\n", d.Span.File, d.Span.Line, d.Span.Column)
	return out
}

func codeSnippet(lines []string, startLine, endLine, maxLineNumWidth int, commonIndent, padding string) string {
	out := lineStyle.Sprintf("%s|\n", padding)
	for i := startLine; i <= endLine; i++ {
		if i-1 < 0 || i-1 >= len(lines) {
			continue
		}
		line := strings.TrimPrefix(lines[i-1], commonIndent)
		lineNum := fmt.Sprintf("%*d", maxLineNumWidth, i)
		out += lineStyle.Sprintf("%s | ", lineNum)
		out += fmt.Sprintf("%s\n", line)
	}
	return out
}

func underlineAndMessage(d *diag.Diagnostic, padding string, lines []string, commonIndent string) string {
	span := d.Span
	endLine := span.EndLine
	if endLine == 0 {
		endLine = span.Line
	}
	endColumn := span.EndColumn
	if endColumn == 0 {
		endColumn = span.Column
	}

	out := lineStyle.Sprintf("%s| ", padding)

	commonIndentWidth := calculateVisualColumn(commonIndent, len(commonIndent)+1)
	underlineStart := calculateVisualColumn(lines[span.Line-1], span.Column) - commonIndentWidth
	if underlineStart < 0 {
		underlineStart = 0
	}
	underlineEnd := calculateVisualColumn(lines[endLine-1], endColumn) - commonIndentWidth
	underlineLength := underlineEnd - underlineStart + 1
	if underlineLength < 1 {
		underlineLength = 1
	}

	out += strings.Repeat(" ", underlineStart)
	out += messageStyle.Sprintf("%s\n", strings.Repeat("~", underlineLength))
	out += lineStyle.Sprintf("%s= ", padding)
	out += messageStyle.Sprintf("%s\n", d.Message)
	return out
}

func isValidLineRange(startLine, endLine int, lines []string) bool {
	return startLine > 0 &&
		endLine > 0 &&
		startLine <= endLine &&
		startLine <= len(lines) &&
		endLine <= len(lines)
}

// calculateVisualColumn converts a byte column into a display column,
// expanding tab characters.
func calculateVisualColumn(line string, column int) int {
	if column < 0 {
		return 0
	}
	visual := 0
	for i, ch := range line {
		if i+1 == column {
			break
		}
		if ch == '\t' {
			visual += tabWidth - (visual % tabWidth)
		} else {
			visual++
		}
	}
	return visual
}

// findCommonIndent finds the indent shared by every non-empty line so
// snippets can be shifted left without losing relative alignment.
func findCommonIndent(lines []string) string {
	var first []rune
	for _, line := range lines {
		trimmed := strings.TrimLeftFunc(line, unicode.IsSpace)
		if trimmed != "" {
			first = []rune(line[:len(line)-len(trimmed)])
			break
		}
	}
	if len(first) == 0 {
		return ""
	}

	for _, line := range lines {
		trimmed := strings.TrimLeftFunc(line, unicode.IsSpace)
		if trimmed == "" {
			continue
		}
		indent := []rune(line[:len(line)-len(trimmed)])
		first = commonPrefix(first, indent)
		if len(first) == 0 {
			break
		}
	}
	return string(first)
}

func commonPrefix(a, b []rune) []rune {
	n := len(a)
	if len(b) < n {
		n = len(b)
	}
	for i := 0; i < n; i++ {
		if a[i] != b[i] {
			return a[:i]
		}
	}
	return a[:n]
}
