package command

import (
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync/atomic"
)

var (
	errEmptyName       = errors.New("command has no name")
	errNilHandler      = errors.New("command has no handler")
	errNegativeMinArgs = errors.New("negative min args")
	errMaxBelowMin     = errors.New("max args below min args")
)

type unknownPermissionError struct{ Tag string }

func (e *unknownPermissionError) Error() string {
	return fmt.Sprintf("unknown permission tag %q", e.Tag)
}

// table is an immutable snapshot of the registry. Lookups read whichever
// snapshot is current; Load swaps in a fresh one atomically.
type table struct {
	byName   map[string]*Command // includes aliases
	commands []*Command          // canonical, sorted by name
}

// Registry resolves command names and aliases to descriptors.
type Registry struct {
	current atomic.Pointer[table]
}

// NewRegistry builds a registry from the given commands. Invalid descriptors
// and duplicate names are skipped with a warning; the rest register normally.
func NewRegistry(commands []*Command) *Registry {
	r := &Registry{}
	r.Load(commands)
	return r
}

// Load replaces the registry contents in one atomic swap. In-flight lookups
// finish against the old snapshot.
func (r *Registry) Load(commands []*Command) {
	t := &table{byName: make(map[string]*Command)}

	for _, cmd := range commands {
		if err := cmd.validate(); err != nil {
			slog.Warn("skipping invalid command", "command", cmd.Name, "error", err)
			continue
		}
		if _, taken := t.byName[cmd.Name]; taken {
			slog.Warn("skipping duplicate command name", "command", cmd.Name)
			continue
		}

		t.byName[cmd.Name] = cmd
		t.commands = append(t.commands, cmd)

		for _, alias := range cmd.Aliases {
			if _, taken := t.byName[alias]; taken {
				slog.Warn("skipping duplicate alias", "command", cmd.Name, "alias", alias)
				continue
			}
			t.byName[alias] = cmd
		}
	}

	sort.Slice(t.commands, func(i, j int) bool {
		return t.commands[i].Name < t.commands[j].Name
	})

	r.current.Store(t)
	slog.Info("command registry loaded", "commands", len(t.commands), "lookup_entries", len(t.byName))
}

// Resolve finds a command by canonical name or alias.
func (r *Registry) Resolve(name string) (*Command, bool) {
	cmd, ok := r.current.Load().byName[name]
	return cmd, ok
}

// All returns every registered command, sorted by name.
func (r *Registry) All() []*Command {
	return r.current.Load().commands
}

// ByCategory returns the commands in one category, sorted by name.
func (r *Registry) ByCategory(category string) []*Command {
	var out []*Command
	for _, cmd := range r.current.Load().commands {
		if cmd.Category == category {
			out = append(out, cmd)
		}
	}
	return out
}

// Categories returns the distinct categories in use, sorted.
func (r *Registry) Categories() []string {
	seen := make(map[string]bool)
	for _, cmd := range r.current.Load().commands {
		seen[cmd.Category] = true
	}
	out := make([]string, 0, len(seen))
	for c := range seen {
		out = append(out, c)
	}
	sort.Strings(out)
	return out
}

// Len returns the number of canonical commands.
func (r *Registry) Len() int {
	return len(r.current.Load().commands)
}
