// Package channel defines where bot utterances go. The runtime speaks
// to an OutputChannel and never to a terminal or transport directly.
package channel

import (
	"context"
	"fmt"
	"io"
	"os"
	"sync"
)

// OutputChannel delivers bot messages to the user.
type OutputChannel interface {
	// Name identifies the channel in logs.
	Name() string
	// SendText delivers one bot utterance to the user behind the
	// session.
	SendText(ctx context.Context, sessionID, text string) error
}

// Console writes bot messages to a writer, one per line, prefixed so
// interleaved shell output stays readable.
type Console struct {
	mu  sync.Mutex
	out io.Writer
}

// NewConsole creates a console channel writing to stdout.
func NewConsole() *Console {
	return &Console{out: os.Stdout}
}

// NewConsoleWriter creates a console channel writing to w.
func NewConsoleWriter(w io.Writer) *Console {
	return &Console{out: w}
}

func (c *Console) Name() string { return "console" }

func (c *Console) SendText(_ context.Context, _ string, text string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, err := fmt.Fprintf(c.out, "bot> %s\n", text)
	return err
}

// Collector buffers messages for inspection. Tests and request-scoped
// transports read the collected batch after a turn completes.
type Collector struct {
	mu       sync.Mutex
	messages []string
}

// NewCollector creates an empty collector.
func NewCollector() *Collector {
	return &Collector{}
}

func (c *Collector) Name() string { return "collector" }

func (c *Collector) SendText(_ context.Context, _ string, text string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.messages = append(c.messages, text)
	return nil
}

// Messages returns a copy of everything sent so far.
func (c *Collector) Messages() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]string, len(c.messages))
	copy(out, c.messages)
	return out
}

// Drain returns the buffered messages and clears the buffer.
func (c *Collector) Drain() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := c.messages
	c.messages = nil
	return out
}
