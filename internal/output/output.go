// Package output provides output formatting for the CLI.
package output

import (
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"strings"
	"time"

	"github.com/fatih/color"

	"github.com/ham-dashboard/ham-client/internal/dispatch"
	"github.com/ham-dashboard/ham-client/internal/errors"
	"github.com/ham-dashboard/ham-client/internal/events"
)

// Format represents the output format mode.
type Format string

const (
	FormatDefault Format = "default"
	FormatCompact Format = "compact"
	FormatJSON    Format = "json"
)

// ParseFormat maps a flag value to a Format. The empty string is the default.
func ParseFormat(s string) (Format, error) {
	switch Format(strings.ToLower(s)) {
	case "", FormatDefault:
		return FormatDefault, nil
	case FormatCompact:
		return FormatCompact, nil
	case FormatJSON:
		return FormatJSON, nil
	}
	return "", errors.CreateWithMessage(errors.CodeInvalidArgument, fmt.Sprintf("unknown output format %q", s)).WithPath("output")
}

// Config holds output configuration.
type Config struct {
	Format      Format
	ShowHeaders bool
	MaxItems    int
	NoColor     bool
}

// DefaultConfig returns the default output configuration.
func DefaultConfig() *Config {
	return &Config{
		Format:      FormatDefault,
		ShowHeaders: true,
	}
}

// Result represents a structured result for JSON output.
type Result struct {
	Success bool   `json:"success"`
	Command string `json:"command,omitempty"`
	Data    any    `json:"data,omitempty"`
	Error   string `json:"error,omitempty"`
	Code    string `json:"code,omitempty"`
	Count   int    `json:"count,omitempty"`
	Summary string `json:"summary,omitempty"`
	Message string `json:"message,omitempty"`
}

// Printer writes command results in the configured format.
type Printer struct {
	cfg    Config
	out    io.Writer
	errOut io.Writer
}

// New creates a Printer. A nil cfg is DefaultConfig.
func New(cfg *Config, out, errOut io.Writer) *Printer {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	return &Printer{cfg: *cfg, out: out, errOut: errOut}
}

// Config returns the printer configuration.
func (p *Printer) Config() Config { return p.cfg }

// IsJSON returns true if JSON output mode is enabled.
func (p *Printer) IsJSON() bool { return p.cfg.Format == FormatJSON }

func (p *Printer) printJSON(v any) {
	b, err := json.Marshal(v)
	if err != nil {
		b, _ = json.Marshal(Result{Success: false, Error: err.Error()})
	}
	fmt.Fprintln(p.out, string(b))
}

// Data outputs data in the configured format.
func (p *Printer) Data(data any, opts ...Option) {
	o := &options{}
	for _, opt := range opts {
		opt(o)
	}

	switch p.cfg.Format {
	case FormatJSON:
		p.printJSON(Result{Success: true, Command: o.command, Data: data, Count: o.count, Summary: o.summary})
	case FormatCompact:
		if o.summary != "" {
			fmt.Fprintln(p.out, o.summary)
		}
		p.printCompact(data)
	default:
		if o.summary != "" && p.cfg.ShowHeaders {
			fmt.Fprintln(p.out, o.summary)
		}
		p.printIndented(data)
	}
}

// Message outputs a simple message.
func (p *Printer) Message(msg string) {
	if p.cfg.Format == FormatJSON {
		p.printJSON(Result{Success: true, Message: msg})
		return
	}
	fmt.Fprintln(p.out, msg)
}

// Error outputs an error. JSON errors go to stdout so a consumer reads one
// document per invocation.
func (p *Printer) Error(err error) {
	code := errors.GetCode(err)
	msg := err.Error()
	if e := (*errors.Error)(nil); errors.As(err, &e) {
		msg = e.Message
		if e.Cause != nil {
			msg += ": " + e.Cause.Error()
		}
		if e.Path != "" {
			msg = e.Path + ": " + msg
		}
	}

	switch p.cfg.Format {
	case FormatJSON:
		p.printJSON(Result{Success: false, Error: msg, Code: code})
	case FormatCompact:
		if code != "" {
			fmt.Fprintf(p.errOut, "[%s] %s\n", code, msg)
		} else {
			fmt.Fprintln(p.errOut, msg)
		}
	default:
		label := p.paint(color.FgRed, "Error")
		if code != "" {
			fmt.Fprintf(p.errOut, "%s [%s]: %s\n", label, code, msg)
		} else {
			fmt.Fprintf(p.errOut, "%s: %s\n", label, msg)
		}
	}
}

// List outputs a list of items.
func List[T any](p *Printer, items []T, opts ...ListOption[T]) {
	o := &listOptions[T]{}
	for _, opt := range opts {
		opt(o)
	}

	count := len(items)
	displayItems := items
	if p.cfg.MaxItems > 0 && count > p.cfg.MaxItems {
		displayItems = items[:p.cfg.MaxItems]
	}

	switch p.cfg.Format {
	case FormatJSON:
		p.printJSON(Result{Success: true, Command: o.command, Data: items, Count: count})
	case FormatCompact:
		if o.title != "" && p.cfg.ShowHeaders {
			fmt.Fprintf(p.out, "%s: %d\n", o.title, count)
		}
		for i, item := range displayItems {
			if o.formatter != nil {
				fmt.Fprintln(p.out, o.formatter(item, i))
			} else {
				p.printCompact(item)
			}
		}
		if p.cfg.MaxItems > 0 && count > p.cfg.MaxItems {
			fmt.Fprintf(p.out, "+%d more\n", count-p.cfg.MaxItems)
		}
	default:
		if o.title != "" && p.cfg.ShowHeaders {
			fmt.Fprintf(p.out, "%s: %d\n\n", o.title, count)
		}
		for i, item := range displayItems {
			if o.formatter != nil {
				fmt.Fprintln(p.out, o.formatter(item, i))
			} else {
				p.printIndented(item)
			}
		}
		if p.cfg.MaxItems > 0 && count > p.cfg.MaxItems {
			fmt.Fprintf(p.out, "\n... and %d more\n", count-p.cfg.MaxItems)
		}
	}
}

// FieldRow is one rendered field of an entity.
type FieldRow struct {
	Field   string           `json:"field"`
	Logging bool             `json:"logging,omitempty"`
	Display dispatch.Display `json:"display"`
}

// Fields outputs the rendered fields of one entity.
func (p *Printer) Fields(entityID string, rows []FieldRow, opts ...Option) {
	o := &options{}
	for _, opt := range opts {
		opt(o)
	}

	switch p.cfg.Format {
	case FormatJSON:
		p.printJSON(Result{
			Success: true,
			Command: o.command,
			Data:    map[string]any{"entity_id": entityID, "fields": rows},
			Count:   len(rows),
		})
	case FormatCompact:
		for _, r := range rows {
			fmt.Fprintf(p.out, "%s.%s=%s\n", entityID, r.Field, strings.ReplaceAll(r.Display.Text, "\n", " "))
		}
	default:
		if p.cfg.ShowHeaders {
			header := entityID
			if o.summary != "" {
				header += " (" + o.summary + ")"
			}
			fmt.Fprintln(p.out, p.paint(color.Bold, header))
		}
		width := 0
		for _, r := range rows {
			width = max(width, len(r.Field))
		}
		for _, r := range rows {
			marker := " "
			if r.Logging {
				marker = "*"
			}
			fmt.Fprintf(p.out, "%s %-*s  %s  %s\n", marker, width, r.Field, p.Badge(r.Display), p.paint(color.FgHiBlack, "["+string(r.Display.Tag)+"]"))
		}
	}
}

// Badge formats a display for a terminal: badges and booleans in their
// color, blocks indented under the field, links with their target.
func (p *Printer) Badge(d dispatch.Display) string {
	text := d.Text
	switch d.Kind {
	case dispatch.KindBadge:
		switch d.Color {
		case dispatch.ColorGreen:
			text = p.paint(color.FgGreen, text)
		case dispatch.ColorRed:
			text = p.paint(color.FgRed, text)
		default:
			text = p.paint(color.FgCyan, text)
		}
	case dispatch.KindCode:
		text = p.paint(color.FgYellow, text)
	case dispatch.KindBlock:
		text = "\n    " + strings.ReplaceAll(text, "\n", "\n    ")
	case dispatch.KindLink:
		if d.Emphasis != "" {
			text += " (" + d.Emphasis + ")"
		}
		if d.Action != nil {
			if d.Action.Disabled || d.Action.URL == "" {
				text += " " + p.paint(color.FgHiBlack, d.Action.Label+": unavailable")
			} else {
				text += " " + p.paint(color.Underline, d.Action.URL)
			}
		}
	}
	return text
}

// Event outputs one received event.
func (p *Printer) Event(ev events.Event, at time.Time) {
	switch p.cfg.Format {
	case FormatJSON:
		p.printJSON(map[string]any{"type": ev.Type, "time": at.UTC().Format(time.RFC3339Nano), "payload": ev.Payload})
	case FormatCompact:
		b, _ := json.Marshal(ev.Payload)
		fmt.Fprintf(p.out, "%s %s %s\n", at.Format(time.RFC3339), ev.Type, b)
	default:
		fmt.Fprintf(p.out, "%s %s\n", p.paint(color.FgHiBlack, FormatTime(at)), p.paint(color.Bold, ev.Type))
		b, _ := json.MarshalIndent(ev.Payload, "  ", "  ")
		fmt.Fprintf(p.out, "  %s\n", b)
	}
}

func (p *Printer) paint(attr color.Attribute, s string) string {
	c := color.New(attr)
	if p.cfg.NoColor {
		c.DisableColor()
	} else {
		c.EnableColor()
	}
	return c.Sprint(s)
}

// Options

type options struct {
	command string
	count   int
	summary string
}

// Option configures output options.
type Option func(*options)

// WithCommand sets the command name for the output.
func WithCommand(cmd string) Option {
	return func(o *options) { o.command = cmd }
}

// WithCount sets the count for the output.
func WithCount(n int) Option {
	return func(o *options) { o.count = n }
}

// WithSummary sets the summary for the output.
func WithSummary(s string) Option {
	return func(o *options) { o.summary = s }
}

type listOptions[T any] struct {
	title     string
	command   string
	formatter func(T, int) string
}

// ListOption configures list output options.
type ListOption[T any] func(*listOptions[T])

// ListTitle sets the title for list output.
func ListTitle[T any](title string) ListOption[T] {
	return func(o *listOptions[T]) { o.title = title }
}

// ListCommand sets the command name for list output.
func ListCommand[T any](cmd string) ListOption[T] {
	return func(o *listOptions[T]) { o.command = cmd }
}

// ListFormatter sets the item formatter for list output.
func ListFormatter[T any](f func(T, int) string) ListOption[T] {
	return func(o *listOptions[T]) { o.formatter = f }
}

// Helper functions

func (p *Printer) printCompact(data any) {
	switch v := data.(type) {
	case []any:
		for _, item := range v {
			p.printCompactItem(item)
		}
	default:
		p.printCompactItem(data)
	}
}

func (p *Printer) printCompactItem(item any) {
	switch v := item.(type) {
	case string:
		fmt.Fprintln(p.out, v)
	case map[string]any:
		p.printCompactMap(v)
	default:
		if m := structToMap(item); m != nil {
			p.printCompactMap(m)
			return
		}
		fmt.Fprintf(p.out, "%v\n", item)
	}
}

// structToMap converts a struct to map[string]any via JSON marshaling.
// Returns nil if the conversion fails or the result is not a map.
func structToMap(item any) map[string]any {
	data, err := json.Marshal(item)
	if err != nil {
		return nil
	}
	var m map[string]any
	if err := json.Unmarshal(data, &m); err != nil {
		return nil
	}
	return m
}

// printCompactMap handles compact output for map types.
func (p *Printer) printCompactMap(v map[string]any) {
	// Entity
	if id, ok := v["id"].(string); ok {
		if state, ok := v["state"]; ok {
			fmt.Fprintf(p.out, "%s=%v\n", id, state)
			return
		}
	}
	// Tracked entity
	if haid, ok := v["haid"].(string); ok {
		if values, ok := v["tracked_values"].([]any); ok {
			fmt.Fprintf(p.out, "%s tracked=%d\n", haid, len(values))
			return
		}
	}
	keys := make([]string, 0, len(v))
	for k := range v {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	var pairs []string
	for _, k := range keys {
		if v[k] != nil {
			pairs = append(pairs, fmt.Sprintf("%s=%v", k, v[k]))
		}
		if len(pairs) >= 5 {
			break
		}
	}
	fmt.Fprintln(p.out, strings.Join(pairs, " "))
}

func (p *Printer) printIndented(data any) {
	if s, ok := data.(string); ok {
		fmt.Fprintln(p.out, s)
		return
	}
	jsonBytes, _ := json.MarshalIndent(data, "", "  ")
	fmt.Fprintln(p.out, string(jsonBytes))
}

// FormatTime formats a time for display.
func FormatTime(t time.Time) string {
	return t.Local().Format(dispatch.TimeLayout)
}
