package channels

import (
	"context"
	"fmt"
	"io"
	"strings"
	"sync"

	"hfbot/core/notify"
)

const DefaultWidth = 78

// Console prints wrapped announcements, each followed by a separator line.
type Console struct {
	Writer io.Writer
	Width  int
	mu     sync.Mutex
}

func (c *Console) Name() string { return "console" }

func (c *Console) Dispatch(ctx context.Context, message *notify.Message) (string, error) {
	width := c.Width
	if width <= 0 {
		width = DefaultWidth
	}

	var b strings.Builder
	if message.Recipient != "" {
		b.WriteString("@" + message.Recipient + "\n")
	}

	for _, line := range Wrap(message.Text, width) {
		b.WriteString(line + "\n")
	}

	b.WriteString("---\n")

	c.mu.Lock()
	defer c.mu.Unlock()
	if _, err := io.WriteString(c.Writer, b.String()); err != nil {
		return "", err
	}

	return "", nil
}

// Wrap splits text into lines no longer than width, breaking at spaces.
// Words longer than width get a line of their own.
func Wrap(text string, width int) []string {
	lines := make([]string, 0)
	var line strings.Builder
	for _, word := range strings.Fields(text) {
		switch {
		case line.Len() == 0:
			line.WriteString(word)
		case line.Len()+1+len(word) <= width:
			fmt.Fprintf(&line, " %s", word)
		default:
			lines = append(lines, line.String())
			line.Reset()
			line.WriteString(word)
		}
	}

	if line.Len() > 0 {
		lines = append(lines, line.String())
	}

	return lines
}
