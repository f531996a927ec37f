// Package chart renders a value series as a sampled horizontal bar chart of
// asterisks, used for both portfolio and single stock performance.
package chart

import (
	"fmt"
	"math"
	"strings"
	"time"
)

const (
	// MaxLines caps the number of sampled points.
	MaxLines = 30
	// starsPerScale is the target number of stars of the largest bar.
	starsPerScale = 50

	dateLayout = "Jan 02 2006"
)

// Point is one dated value.
type Point struct {
	Date  time.Time
	Value float64
}

// Sample keeps every ceil(n/MaxLines)-th point, starting with the first.
func Sample(points []Point) []Point {
	if len(points) == 0 {
		return nil
	}
	interval := int(math.Ceil(float64(len(points)) / MaxLines))
	out := make([]Point, 0, MaxLines)
	for i := 0; i < len(points); i += interval {
		out = append(out, points[i])
	}
	return out
}

// Scale is the value of one star: ceil(max/50), at least 1.
func Scale(points []Point) int {
	maxValue := 0.0
	for _, p := range points {
		maxValue = math.Max(maxValue, p.Value)
	}
	return max(1, int(math.Ceil(maxValue/starsPerScale)))
}

// Stars is floor(value/scale), never negative.
func Stars(value float64, scale int) int {
	return max(0, int(math.Floor(value/float64(scale))))
}

// Render samples points, scales them on the sampled maximum and writes one
// "Jan 02 2006: ***" line per sample, followed by the scale legend.
func Render(points []Point) string {
	sampled := Sample(points)
	scale := Scale(sampled)

	var b strings.Builder
	for _, p := range sampled {
		b.WriteString(p.Date.Format(dateLayout))
		b.WriteString(": ")
		b.WriteString(strings.Repeat("*", Stars(p.Value, scale)))
		b.WriteByte('\n')
	}
	fmt.Fprintf(&b, "Scale: * = %d USD.\n", scale)
	return b.String()
}
