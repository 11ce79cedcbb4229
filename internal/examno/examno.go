// Package examno derives the next exam number from the most recent one.
package examno

import (
	"fmt"
	"strconv"
	"strings"
)

// Prefix starts every generated exam number.
const Prefix = "EX"

// Next returns the exam number following last for the given year,
// formatted EX-<year>-<NNN>. Numbering restarts at 1 when last is empty
// or its suffix after the final "-" is not an integer.
func Next(year int, last string) string {
	n := 1
	if last != "" {
		suffix := last[strings.LastIndex(last, "-")+1:]
		if v, err := strconv.Atoi(strings.TrimSpace(suffix)); err == nil {
			n = v + 1
		}
	}
	return Format(year, n)
}

// Format renders an exam number with a zero-padded sequence.
func Format(year, seq int) string {
	return fmt.Sprintf("%s-%d-%03d", Prefix, year, seq)
}
