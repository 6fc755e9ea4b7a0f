package handlers

import (
	"slices"
	"strings"
	"sync"
)

// CommandDefinition describes a CLI command and its handler.
type CommandDefinition struct {
	// Name is the command name (e.g., "entity", "watch").
	Name string

	// Usage is a short description of what the command does.
	Usage string

	// ArgsUsage describes the expected arguments (e.g., "<entity_id> [seconds]").
	ArgsUsage string

	// Category groups related commands (e.g., "entities", "tracking", "stream").
	Category string

	// Handler is the function that executes the command.
	Handler Handler
}

// CommandRegistry holds commands in registration order.
type CommandRegistry struct {
	mu     sync.RWMutex
	byName map[string]*CommandDefinition
	names  []string
}

// NewCommandRegistry creates an empty registry.
func NewCommandRegistry() *CommandRegistry {
	return &CommandRegistry{byName: make(map[string]*CommandDefinition)}
}

// Register adds commands. A command whose name is taken replaces the
// earlier one and keeps its position.
func (r *CommandRegistry) Register(cmds ...*CommandDefinition) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, cmd := range cmds {
		if _, taken := r.byName[cmd.Name]; !taken {
			r.names = append(r.names, cmd.Name)
		}
		r.byName[cmd.Name] = cmd
	}
}

// Get returns the command called name.
func (r *CommandRegistry) Get(name string) (*CommandDefinition, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	cmd, ok := r.byName[name]
	return cmd, ok
}

// All returns every command in registration order.
func (r *CommandRegistry) All() []*CommandDefinition {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*CommandDefinition, 0, len(r.names))
	for _, name := range r.names {
		out = append(out, r.byName[name])
	}
	return out
}

// InCategory returns the commands of one category sorted by name.
func (r *CommandRegistry) InCategory(category string) []*CommandDefinition {
	out := slices.DeleteFunc(r.All(), func(cmd *CommandDefinition) bool {
		return cmd.Category != category
	})
	slices.SortFunc(out, func(a, b *CommandDefinition) int {
		return strings.Compare(a.Name, b.Name)
	})
	return out
}

// Categories returns the categories in order of first appearance.
func (r *CommandRegistry) Categories() []string {
	var out []string
	for _, cmd := range r.All() {
		if !slices.Contains(out, cmd.Category) {
			out = append(out, cmd.Category)
		}
	}
	return out
}

// Cmd is a convenience function for creating a CommandDefinition.
func Cmd(name, usage, argsUsage, category string, handler Handler) *CommandDefinition {
	return &CommandDefinition{
		Name:      name,
		Usage:     usage,
		ArgsUsage: argsUsage,
		Category:  category,
		Handler:   handler,
	}
}

// Command categories.
const (
	CategoryEntities = "entities"
	CategoryTracking = "tracking"
	CategoryStream   = "stream"
)

// Commands returns a registry holding every ham-client command.
func Commands() *CommandRegistry {
	r := NewCommandRegistry()
	r.Register(
		Cmd("entities", "List entities, optionally filtered by a glob", "[pattern]", CategoryEntities, HandleEntities),
		Cmd("entity", "Show an entity with its fields rendered by type", "<entity_id>", CategoryEntities, HandleEntity),
		Cmd("field-types", "List field types and their arguments", "[type]", CategoryEntities, HandleFieldTypes),

		Cmd("tracked", "List tracked entities", "", CategoryTracking, HandleTracked),
		Cmd("track", "Track an entity with inferred field types", "<entity_id>", CategoryTracking, HandleTrack),
		Cmd("untrack", "Stop tracking an entity", "<entity_id>", CategoryTracking, HandleUntrack),
		Cmd("set-type", "Change the type of a tracked field", "<entity_id> <field> <type> [arg=value...]", CategoryTracking, HandleSetType),
		Cmd("log-start", "Start logging a tracked field", "<entity_id> <field>", CategoryTracking, HandleLogStart),
		Cmd("log-stop", "Stop logging a tracked field", "<entity_id> <field>", CategoryTracking, HandleLogStop),

		Cmd("watch", "Follow the live state of an entity", "<entity_id> [seconds]", CategoryStream, HandleWatch),
		Cmd("events", "Print pushed events of one type", "<event_type> [seconds]", CategoryStream, HandleEvents),
	)
	return r
}
