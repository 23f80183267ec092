package waterfall

import (
	"fmt"
	"math"

	"golang.org/x/text/language"
	"golang.org/x/text/message"
)

// HumanDuration renders a duration given in seconds as milliseconds with two
// decimals and thousands separators, e.g. "1,234.50ms".
func HumanDuration(seconds float64) string {
	p := message.NewPrinter(language.English)
	return p.Sprintf("%.2fms", seconds*1000)
}

// ToPercent renders a fraction as a CSS percentage with three decimals.
func ToPercent(v float64) string {
	return fmt.Sprintf("%.3f%%", v*100)
}

// Clamp limits v to [lo, hi]. NaN clamps to lo.
func Clamp(v, lo, hi float64) float64 {
	if math.IsNaN(v) || v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

// Label colors used by PillColor.
const (
	ColorText    = "textColor"
	ColorWhite   = "white"
	ColorGray300 = "gray300"
)

// PillColor picks the duration label color. Inset labels sit on the bar, so
// they contrast with it: gray over a hatch pattern, white over a solid fill.
func PillColor(display DurationDisplay, hatch bool) string {
	if display != DisplayInset {
		return ColorText
	}
	if hatch {
		return ColorGray300
	}
	return ColorWhite
}
