package status

import (
	"fmt"
	"io"
	"strings"
	"sync"
	"time"
	"unicode/utf8"
)

const (
	// boxWidth is the width of the summary box
	boxWidth = 60
	// maxWarningsToShow is the number of warnings listed in the summary box
	maxWarningsToShow = 5
)

// Console writes timestamped status lines to a writer.
type Console struct {
	mu  sync.Mutex
	out io.Writer
	now func() time.Time
}

// NewConsole creates a Console writing to out.
func NewConsole(out io.Writer) *Console {
	return &Console{out: out, now: time.Now}
}

// Report writes one line.
//
//nolint:errcheck // writing to stdout; errors are not recoverable
func (c *Console) Report(message string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	fmt.Fprintf(c.out, "[%s] %s\n", c.now().Format("15:04:05"), message)
}

// Summary is the content of the final summary box.
type Summary struct {
	Title    string
	Lines    []string
	Warnings []string
}

// PrintSummary writes a formatted box with the run summary.
func (c *Console) PrintSummary(s Summary) {
	var sb strings.Builder
	for _, line := range s.Lines {
		sb.WriteString(line)
		sb.WriteString("\n")
	}
	if len(s.Warnings) > 0 {
		sb.WriteString("\nWarnings:\n")
		count := min(len(s.Warnings), maxWarningsToShow)
		for i := 0; i < count; i++ {
			sb.WriteString(fmt.Sprintf("  • %s\n", s.Warnings[i]))
		}
		if len(s.Warnings) > maxWarningsToShow {
			sb.WriteString(fmt.Sprintf("  ... and %d more\n", len(s.Warnings)-maxWarningsToShow))
		}
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	c.printBox(s.Title, strings.TrimRight(sb.String(), "\n"))
}

// printBox prints a formatted box with a title and content
//
//nolint:errcheck // writing to stdout; errors are not recoverable
func (c *Console) printBox(title string, content string) {
	border := strings.Repeat("─", boxWidth-2)
	fmt.Fprintf(c.out, "┌%s┐\n", border)
	fmt.Fprintf(c.out, "│ %s │\n", pad(title, boxWidth-4))
	fmt.Fprintf(c.out, "├%s┤\n", border)

	for _, line := range strings.Split(content, "\n") {
		fmt.Fprintf(c.out, "│ %s │\n", pad(line, boxWidth-4))
	}

	fmt.Fprintf(c.out, "└%s┘\n", border)
}

// pad truncates or right-pads s to width runes. Cyrillic names are multi-byte.
func pad(s string, width int) string {
	n := utf8.RuneCountInString(s)
	if n > width {
		r := []rune(s)
		return string(r[:width-3]) + "..."
	}
	return s + strings.Repeat(" ", width-n)
}
