package commands

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/nextlevelbuilder/waclaw/internal/command"
)

func pingCommand(d Deps) *command.Command {
	return &command.Command{
		Name:        "ping",
		Description: "Check that the bot is alive",
		Usage:       "!ping",
		Category:    command.CategoryGeneral,
		Cooldown:    3 * time.Second,
		Handler: func(ctx context.Context, req *command.Request) error {
			uptime := time.Since(d.StartedAt).Round(time.Second)
			return req.Reply(ctx, fmt.Sprintf("pong! up %s", uptime))
		},
	}
}

func helpCommand(d Deps) *command.Command {
	return &command.Command{
		Name:        "help",
		Aliases:     []string{"menu", "commands"},
		Description: "List commands or show usage for one",
		Usage:       "!help [command]",
		Category:    command.CategoryGeneral,
		Cooldown:    5 * time.Second,
		MaxArgs:     1,
		Handler: func(ctx context.Context, req *command.Request) error {
			if len(req.Args) == 1 {
				return replyCommandHelp(ctx, d, req, strings.ToLower(req.Args[0]))
			}
			return replyCommandList(ctx, d, req)
		},
	}
}

func replyCommandHelp(ctx context.Context, d Deps, req *command.Request, name string) error {
	cmd, ok := d.Registry.Resolve(name)
	if !ok {
		return req.Reply(ctx, "No such command: "+name)
	}

	var b strings.Builder
	fmt.Fprintf(&b, "*%s* — %s\n", cmd.Name, cmd.Description)
	fmt.Fprintf(&b, "Usage: %s", cmd.Usage)
	if len(cmd.Aliases) > 0 {
		fmt.Fprintf(&b, "\nAliases: %s", strings.Join(cmd.Aliases, ", "))
	}
	if cmd.Cooldown > 0 {
		fmt.Fprintf(&b, "\nCooldown: %s", cmd.Cooldown)
	}
	return req.Reply(ctx, b.String())
}

func replyCommandList(ctx context.Context, d Deps, req *command.Request) error {
	var b strings.Builder
	b.WriteString("*Available commands*\n")
	for _, category := range d.Registry.Categories() {
		fmt.Fprintf(&b, "\n_%s_\n", category)
		for _, cmd := range d.Registry.ByCategory(category) {
			fmt.Fprintf(&b, "  %s%s — %s\n", d.Cfg.Prefix(), cmd.Name, cmd.Description)
		}
	}
	b.WriteString("\nSend !help <command> for details.")
	return req.Reply(ctx, b.String())
}

func statsCommand(d Deps) *command.Command {
	return &command.Command{
		Name:        "stats",
		Description: "Show your usage stats",
		Usage:       "!stats",
		Category:    command.CategoryGeneral,
		Cooldown:    10 * time.Second,
		Handler: func(ctx context.Context, req *command.Request) error {
			u := req.User
			var b strings.Builder
			fmt.Fprintf(&b, "*Stats for %s*\n", displayName(u.Name, u.ID))
			fmt.Fprintf(&b, "Messages: %d\n", u.MessageCount)
			fmt.Fprintf(&b, "Commands: %d\n", u.CommandCount)
			fmt.Fprintf(&b, "Warnings: %d\n", u.Warnings)
			if u.Premium {
				b.WriteString("Premium: yes\n")
			}
			fmt.Fprintf(&b, "Rate limit violations (last hour): %d", d.Limiter.ViolationCount(u.ID))
			return req.Reply(ctx, b.String())
		},
	}
}

func displayName(name, id string) string {
	if name != "" {
		return name
	}
	return id
}
