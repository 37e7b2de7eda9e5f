package command

import (
	"context"
	"testing"
)

func noopHandler(_ context.Context, _ *Request) error { return nil }

func TestRegistry_ResolveNameAndAlias(t *testing.T) {
	r := NewRegistry([]*Command{
		{Name: "ping", Aliases: []string{"p"}, Category: CategoryGeneral, Handler: noopHandler},
		{Name: "help", Category: CategoryGeneral, Handler: noopHandler},
	})

	if _, ok := r.Resolve("ping"); !ok {
		t.Error("canonical name not resolved")
	}
	if cmd, ok := r.Resolve("p"); !ok || cmd.Name != "ping" {
		t.Error("alias not resolved to canonical command")
	}
	if _, ok := r.Resolve("nope"); ok {
		t.Error("unknown name resolved")
	}
	if got := r.Len(); got != 2 {
		t.Errorf("Len = %d, want 2", got)
	}
}

func TestRegistry_InvalidCommandsSkipped(t *testing.T) {
	r := NewRegistry([]*Command{
		{Name: "good", Handler: noopHandler},
		{Name: "", Handler: noopHandler},                                       // no name
		{Name: "nohandler"},                                                    // no handler
		{Name: "badargs", Handler: noopHandler, MinArgs: 2, MaxArgs: 1},        // max below min
		{Name: "badperm", Handler: noopHandler, Permissions: []string{"root"}}, // unknown tag
	})

	if got := r.Len(); got != 1 {
		t.Fatalf("Len = %d, want only the valid command", got)
	}
	if _, ok := r.Resolve("good"); !ok {
		t.Error("valid command was dropped")
	}
}

func TestRegistry_DuplicatesSkipped(t *testing.T) {
	r := NewRegistry([]*Command{
		{Name: "ping", Handler: noopHandler},
		{Name: "ping", Handler: noopHandler},
		{Name: "other", Aliases: []string{"ping"}, Handler: noopHandler},
	})

	if got := r.Len(); got != 2 {
		t.Fatalf("Len = %d, want 2", got)
	}
	// The clashing alias is dropped, the command itself stays.
	if cmd, ok := r.Resolve("ping"); !ok || cmd.Name != "ping" {
		t.Error("first registration must win the name")
	}
	if _, ok := r.Resolve("other"); !ok {
		t.Error("command with clashing alias should still register")
	}
}

func TestRegistry_LoadSwapsAtomically(t *testing.T) {
	r := NewRegistry([]*Command{{Name: "old", Handler: noopHandler}})

	r.Load([]*Command{{Name: "new", Handler: noopHandler}})

	if _, ok := r.Resolve("old"); ok {
		t.Error("old command survived reload")
	}
	if _, ok := r.Resolve("new"); !ok {
		t.Error("new command missing after reload")
	}
}

func TestRegistry_Categories(t *testing.T) {
	r := NewRegistry([]*Command{
		{Name: "a", Category: CategoryOwner, Handler: noopHandler},
		{Name: "b", Category: CategoryGeneral, Handler: noopHandler},
		{Name: "c", Category: CategoryGeneral, Handler: noopHandler},
	})

	cats := r.Categories()
	if len(cats) != 2 || cats[0] != CategoryGeneral || cats[1] != CategoryOwner {
		t.Errorf("Categories = %v, want [general owner]", cats)
	}
	if got := len(r.ByCategory(CategoryGeneral)); got != 2 {
		t.Errorf("general commands = %d, want 2", got)
	}
}
