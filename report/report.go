// Package report provides Reporters for forktest runs: plain text, go test subtests, and an
// in-memory collector.
package report

import (
	"fmt"
	"io"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/toejough/forktest/internal/core"
)

// Collector keeps every record and the summary in memory.
type Collector struct {
	mu       sync.Mutex
	records  []core.Record
	summary  core.Summary
	finished bool
}

// Finish stores the summary.
func (c *Collector) Finish(summary core.Summary) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.summary = summary
	c.finished = true
}

// Record returns the record for the named test.
func (c *Collector) Record(test string) (core.Record, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	for _, record := range c.records {
		if record.Test == test {
			return record, true
		}
	}

	return core.Record{}, false
}

// Records returns the records in the order they were reported.
func (c *Collector) Records() []core.Record {
	c.mu.Lock()
	defer c.mu.Unlock()

	return append([]core.Record(nil), c.records...)
}

// Report stores record.
func (c *Collector) Report(record core.Record) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.records = append(c.records, record)
}

// Summary returns the run summary, and whether the run has finished.
func (c *Collector) Summary() (core.Summary, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.summary, c.finished
}

// TB reports each test as a subtest of a go test.
type TB struct {
	t *testing.T
}

// NewTB creates a reporter that runs one subtest of t per record.
func NewTB(t *testing.T) *TB {
	return &TB{t: t}
}

// Finish logs the summary.
func (r *TB) Finish(summary core.Summary) {
	r.t.Helper()
	r.t.Log(summary.String())
}

// Report runs a subtest named after the test, failing it unless the test passed.
func (r *TB) Report(record core.Record) {
	r.t.Helper()
	r.t.Run(record.Test, func(t *testing.T) {
		t.Helper()

		if record.Message != "" && record.Outcome == core.Pass {
			t.Log(record.Message)
		}

		if record.Outcome == core.Pass {
			return
		}

		t.Errorf("%s%s", record.Outcome, details(record))
	})
}

// Text writes one line per test and a summary line, with failure details indented below.
type Text struct {
	w       io.Writer
	verbose bool
	styles  map[core.Outcome]lipgloss.Style
	dim     lipgloss.Style

	mu sync.Mutex
}

// TextOption configures a Text reporter.
type TextOption func(*Text)

// NewText creates a text reporter writing to w. Colors are used only when w is a terminal.
func NewText(w io.Writer, opts ...TextOption) *Text {
	renderer := lipgloss.NewRenderer(w)
	bold := renderer.NewStyle().Bold(true)

	text := &Text{
		w: w,
		styles: map[core.Outcome]lipgloss.Style{
			core.Pass:    bold.Foreground(lipgloss.Color("2")),
			core.Fail:    bold.Foreground(lipgloss.Color("1")),
			core.Crashed: bold.Foreground(lipgloss.Color("5")),
			core.Timeout: bold.Foreground(lipgloss.Color("3")),
			core.Error:   bold.Foreground(lipgloss.Color("1")),
		},
		dim: renderer.NewStyle().Faint(true),
	}

	for _, opt := range opts {
		opt(text)
	}

	return text
}

// Verbose makes the reporter also print the output of passing tests.
func Verbose() TextOption {
	return func(t *Text) {
		t.verbose = true
	}
}

// Finish writes the summary line.
func (r *Text) Finish(summary core.Summary) {
	r.mu.Lock()
	defer r.mu.Unlock()

	outcome := core.Pass
	if !summary.OK() {
		outcome = core.Fail
	}

	_, _ = fmt.Fprintf(r.w, "%s %s\n", r.styles[outcome].Render(strings.ToUpper(outcome.String())), summary)
}

// Report writes the line for one test.
func (r *Text) Report(record core.Record) {
	r.mu.Lock()
	defer r.mu.Unlock()

	label := strings.ToUpper(record.Outcome.String())
	if style, ok := r.styles[record.Outcome]; ok {
		label = style.Render(label)
	}

	_, _ = fmt.Fprintf(r.w, "--- %s: %s/%s %s\n", label, record.Suite, record.Test,
		r.dim.Render(fmt.Sprintf("(%s)", record.Duration.Round(time.Millisecond))))

	if record.Outcome == core.Pass && !r.verbose {
		return
	}

	detail := strings.TrimPrefix(details(record), "\n")
	if detail != "" {
		_, _ = fmt.Fprintln(r.w, indent(detail))
	}
}

func details(record core.Record) string {
	var builder strings.Builder

	for _, violation := range record.Violations {
		builder.WriteString("\n")
		builder.WriteString(violation.String())
	}

	if record.Message != "" {
		builder.WriteString("\n")
		builder.WriteString(record.Message)
	}

	return builder.String()
}

func indent(text string) string {
	lines := strings.Split(text, "\n")
	for index, line := range lines {
		lines[index] = "    " + line
	}

	return strings.Join(lines, "\n")
}
