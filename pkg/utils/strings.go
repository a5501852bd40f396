package utils

import (
	"fmt"
	"strings"
)

// SanitizeFilename removes characters that are invalid in filenames.
func SanitizeFilename(name string) string {
	invalid := []string{"/", "\\", ":", "*", "?", "\"", "<", ">", "|"}
	result := name
	for _, char := range invalid {
		result = strings.ReplaceAll(result, char, "_")
	}
	result = strings.TrimSpace(result)
	result = strings.Trim(result, ".")
	return result
}

// TruncateString shortens s to maxLen runes, appending "..." when cut.
func TruncateString(s string, maxLen int) string {
	runes := []rune(s)
	if len(runes) <= maxLen {
		return s
	}
	if maxLen <= 3 {
		return string(runes[:maxLen])
	}
	return string(runes[:maxLen-3]) + "..."
}

// PageCounter numbers pages with enough leading zeros for the total,
// so lexical file order matches page order.
type PageCounter struct {
	current int
	width   int
}

func NewPageCounter(total int) *PageCounter {
	width := len(fmt.Sprintf("%d", total))
	if width < 3 {
		width = 3
	}
	return &PageCounter{width: width}
}

// Next returns the next zero-padded page number, starting at "001".
func (c *PageCounter) Next() string {
	c.current++
	return fmt.Sprintf("%0*d", c.width, c.current)
}

// Format renders an arbitrary page index with the counter's padding.
func (c *PageCounter) Format(n int) string {
	return fmt.Sprintf("%0*d", c.width, n)
}
