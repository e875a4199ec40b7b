package tui

import (
	"strings"

	"github.com/mattn/go-runewidth"
)

// wrapSegments joins segments with sep, breaking lines so none exceeds
// width cells. A segment is never split; one wider than width gets its own line.
func wrapSegments(segments []string, sep string, width int) []string {
	if len(segments) == 0 {
		return nil
	}
	sepWidth := runewidth.StringWidth(sep)
	var lines []string
	var line strings.Builder
	lineWidth := 0
	for _, seg := range segments {
		segWidth := runewidth.StringWidth(seg)
		if lineWidth > 0 && width > 0 && lineWidth+sepWidth+segWidth > width {
			lines = append(lines, line.String())
			line.Reset()
			lineWidth = 0
		}
		if lineWidth > 0 {
			line.WriteString(sep)
			lineWidth += sepWidth
		}
		line.WriteString(seg)
		lineWidth += segWidth
	}
	return append(lines, line.String())
}
