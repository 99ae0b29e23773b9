package cmd

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/mattn/go-runewidth"
)

var (
	headerStyle = lipgloss.NewStyle().Bold(true)
	okStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("42"))
	warnStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("214"))
	errorStyle  = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("196"))
	dimStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("241"))
	keyStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("39"))
)

// table renders left-aligned columns padded by display width, so wide
// runes in summaries line up. Rows wider than maxWidth have their last
// column truncated.
type table struct {
	header   []string
	rows     [][]string
	maxWidth int
}

func newTable(header ...string) *table {
	return &table{header: header, maxWidth: termWidth(os.Stdout)}
}

func (t *table) add(cols ...string) {
	t.rows = append(t.rows, cols)
}

func (t *table) write(w io.Writer) {
	widths := make([]int, len(t.header))
	for _, row := range append([][]string{t.header}, t.rows...) {
		for i, col := range row {
			if i < len(widths) {
				widths[i] = max(widths[i], runewidth.StringWidth(col))
			}
		}
	}

	line := func(row []string, style *lipgloss.Style) {
		var b strings.Builder
		used := 0
		for i, col := range row {
			if i == len(row)-1 {
				if t.maxWidth > 0 && used+runewidth.StringWidth(col) > t.maxWidth {
					col = runewidth.Truncate(col, max(t.maxWidth-used, 1), "…")
				}
				b.WriteString(col)
				break
			}
			cell := runewidth.FillRight(col, widths[i]) + "  "
			b.WriteString(cell)
			used += widths[i] + 2
		}
		out := strings.TrimRight(b.String(), " ")
		if style != nil {
			out = style.Render(out)
		}
		fmt.Fprintln(w, out)
	}

	line(t.header, &headerStyle)
	for _, row := range t.rows {
		line(row, nil)
	}
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}

// readLine reads up to a newline without buffering past it, so later
// reads from the same file see the remaining input.
func readLine(r io.Reader) (string, error) {
	var line []byte
	buf := make([]byte, 1)
	for {
		n, err := r.Read(buf)
		if n > 0 {
			if buf[0] == '\n' {
				break
			}
			line = append(line, buf[0])
		}
		if err != nil {
			if err == io.EOF && len(line) > 0 {
				break
			}
			return "", err
		}
	}
	return strings.TrimRight(string(line), "\r"), nil
}

// formatSize renders a byte count with a binary unit.
func formatSize(n int64) string {
	const unit = 1024
	if n < unit {
		return fmt.Sprintf("%dB", n)
	}
	div, exp := int64(unit), 0
	for v := n / unit; v >= unit; v /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f%ciB", float64(n)/float64(div), "KMGTPE"[exp])
}
