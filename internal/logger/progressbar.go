package logger

import (
	"fmt"
	"strings"
	"sync"

	"github.com/fatih/color"
)

// ProgressBar renders "[=====     ] 5/10 (50%)".
type ProgressBar struct {
	mu          sync.RWMutex
	current     int
	total       int
	width       int
	enableColor bool
	prefix      string
}

// NewProgressBar creates a bar of width cells. Width below 1 becomes 10.
func NewProgressBar(total, width int, enableColor bool) *ProgressBar {
	if width < 1 {
		width = 10
	}
	return &ProgressBar{total: total, width: width, enableColor: enableColor}
}

// Update sets the current value.
func (pb *ProgressBar) Update(current int) {
	pb.mu.Lock()
	defer pb.mu.Unlock()
	pb.current = current
}

// Increment adds one.
func (pb *ProgressBar) Increment() {
	pb.mu.Lock()
	defer pb.mu.Unlock()
	pb.current++
}

// SetPrefix sets text rendered before the bar.
func (pb *ProgressBar) SetPrefix(prefix string) {
	pb.mu.Lock()
	defer pb.mu.Unlock()
	pb.prefix = prefix
}

// Percentage is current/total clamped to 0..100.
func (pb *ProgressBar) Percentage() int {
	pb.mu.RLock()
	defer pb.mu.RUnlock()
	return pb.percentage()
}

func (pb *ProgressBar) percentage() int {
	if pb.total <= 0 {
		return 0
	}
	p := pb.current * 100 / pb.total
	if p < 0 {
		return 0
	}
	if p > 100 {
		return 100
	}
	return p
}

// Render draws the bar.
func (pb *ProgressBar) Render() string {
	pb.mu.RLock()
	defer pb.mu.RUnlock()

	perc := pb.percentage()
	filled := perc * pb.width / 100

	var sb strings.Builder
	sb.WriteString(pb.prefix)
	sb.WriteByte('[')
	sb.WriteString(strings.Repeat("=", filled))
	sb.WriteString(strings.Repeat(" ", pb.width-filled))
	sb.WriteByte(']')
	fmt.Fprintf(&sb, " %d/%d (%d%%)", pb.current, pb.total, perc)

	out := sb.String()
	if !pb.enableColor {
		return out
	}
	if perc >= 100 {
		return color.New(color.FgGreen).Sprint(out)
	}
	return color.New(color.FgCyan).Sprint(out)
}
