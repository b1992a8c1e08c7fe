package stt

import (
	"fmt"
	"strings"
	"time"
)

// Cue is one timed subtitle block.
type Cue struct {
	Start time.Duration
	End   time.Duration
	Text  string
}

// FormatSRT renders cues as SubRip text, numbering from 1.
func FormatSRT(cues []Cue) string {
	var b strings.Builder
	n := 0
	for _, c := range cues {
		text := strings.TrimSpace(c.Text)
		if text == "" {
			continue
		}
		end := c.End
		if end < c.Start {
			end = c.Start
		}
		if n > 0 {
			b.WriteString("\n")
		}
		n++
		fmt.Fprintf(&b, "%d\n%s --> %s\n%s\n", n, srtTimestamp(c.Start), srtTimestamp(end), text)
	}
	return b.String()
}

// srtTimestamp formats d as HH:MM:SS,mmm.
func srtTimestamp(d time.Duration) string {
	if d < 0 {
		d = 0
	}
	ms := d.Milliseconds()
	h := ms / 3_600_000
	ms -= h * 3_600_000
	m := ms / 60_000
	ms -= m * 60_000
	s := ms / 1000
	ms -= s * 1000
	return fmt.Sprintf("%02d:%02d:%02d,%03d", h, m, s, ms)
}
