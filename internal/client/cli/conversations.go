package cli

import (
	"context"
	"fmt"

	"chatlink/internal/config"
	"chatlink/internal/prefs"
)

func (a *App) listConversations(ctx context.Context) {
	convs, err := a.chats.Conversations(ctx)
	if err != nil {
		fmt.Fprintf(a.out, "error: %v\n", err)
		return
	}
	if len(convs) == 0 {
		fmt.Fprintln(a.out, "No conversations")
		return
	}
	for _, c := range convs {
		fmt.Fprintf(a.out, "%-38s %s\n", c.ID, c.Title)
	}
}

func (a *App) openConversation(ctx context.Context, id string) {
	msgs, err := a.chats.Select(ctx, id)
	if err != nil {
		fmt.Fprintf(a.out, "error: %v\n", err)
		return
	}
	for _, m := range msgs {
		fmt.Fprintf(a.out, "%s %s: %s\n", m.SentAt.Local().Format("15:04"), m.Sender, m.Body)
	}
}

func (a *App) send(ctx context.Context, text string) {
	open := a.chats.Open()
	if open == "" {
		fmt.Fprintln(a.out, "No conversation open, use: open <id>")
		return
	}
	if err := a.chats.Send(ctx, open, text); err != nil {
		fmt.Fprintf(a.out, "error: %v\n", err)
	}
}

// env with no arguments lists the known environments; with a name it
// switches and persists the selection. Server URLs take effect on the
// next start.
func (a *App) env(ctx context.Context, args []string) {
	if len(args) == 0 {
		current := a.cfg.Environment
		for _, name := range a.cfg.EnvironmentNames() {
			marker := "  "
			if name == current {
				marker = "* "
			}
			fmt.Fprintln(a.out, marker+name)
		}
		return
	}

	if err := a.cfg.SetEnvironment(args[0]); err != nil {
		fmt.Fprintf(a.out, "error: %v\n", err)
		return
	}
	if a.prefs != nil {
		if err := a.prefs.Set(ctx, prefs.KeyEnvironment, args[0]); err != nil {
			a.log.Warn(ctx, "failed to persist environment", "error", err)
		}
	}
	fmt.Fprintf(a.out, "Environment switched to %s (restart to apply server URLs)\n", args[0])
}

// RestoreEnvironment applies a previously persisted environment selection.
func RestoreEnvironment(ctx context.Context, cfg *config.Config, repo prefs.Repository) {
	name, err := repo.Get(ctx, prefs.KeyEnvironment)
	if err != nil || name == "" {
		return
	}
	_ = cfg.SetEnvironment(name)
}
