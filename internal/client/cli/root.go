package cli

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"strings"

	"chatlink/internal/lifecycle"
)

// Root runs the command loop until EOF or an exit command.
func (a *App) Root(ctx context.Context) {
	fmt.Fprintln(a.out, "Welcome to chatlink (type 'help' for commands)")
	scanner := bufio.NewScanner(os.Stdin)

	for {
		fmt.Fprintf(a.out, "chatlink %s> ", a.getStatus())
		if !scanner.Scan() {
			return
		}
		parts := strings.Fields(scanner.Text())
		if len(parts) == 0 {
			continue
		}

		cmd := parts[0]
		args := parts[1:]

		switch cmd {
		case "help":
			if a.isLoggedIn() {
				fmt.Fprintln(a.out, "Available commands: status, convs, open <id>, send <text>, upload <path>, env [name], bg, fg, notifications, tls <host[:port]>, logout, exit")
			} else {
				fmt.Fprintln(a.out, "Available commands: login, env [name], status, tls <host[:port]>, exit")
			}

		case "login":
			a.Login(ctx)
		case "logout":
			a.Logout(ctx)
		case "status":
			a.status()
		case "env":
			a.env(ctx, args)
		case "convs", "list":
			a.listConversations(ctx)
		case "open":
			if len(args) == 0 {
				fmt.Fprintln(a.out, "Usage: open <conversation-id>")
				continue
			}
			a.openConversation(ctx, args[0])
		case "send":
			if len(args) == 0 {
				fmt.Fprintln(a.out, "Usage: send <text>")
				continue
			}
			a.send(ctx, strings.Join(args, " "))
		case "upload":
			if len(args) == 0 {
				fmt.Fprintln(a.out, "Usage: upload <path>")
				continue
			}
			a.upload(ctx, args[0])
		case "bg":
			a.source.Emit(lifecycle.Background)
			fmt.Fprintln(a.out, "Background signalled")
		case "fg":
			a.source.Emit(lifecycle.Foreground)
			fmt.Fprintln(a.out, "Foreground signalled")
		case "notifications":
			a.notifications()
		case "tls":
			if len(args) == 0 {
				fmt.Fprintln(a.out, "Usage: tls <host[:port]>")
				continue
			}
			a.tlsReport(args[0])
		case "exit", "quit":
			fmt.Fprintln(a.out, "Bye!")
			return
		default:
			fmt.Fprintln(a.out, "Unknown command:", cmd)
		}
	}
}

func (a *App) status() {
	fmt.Fprintf(a.out, "environment: %s\n", a.cfg.Environment)
	fmt.Fprintf(a.out, "connection:  %s\n", a.orch.State())

	st := a.sessions.Current()
	if st.Authenticated {
		fmt.Fprintf(a.out, "session:     %s (expires %s)\n", st.User.Username, st.ExpiresAt.Local().Format("15:04:05"))
	} else {
		fmt.Fprintln(a.out, "session:     not logged in")
	}
	if open := a.chats.Open(); open != "" {
		fmt.Fprintf(a.out, "open:        %s\n", open)
	}
}

func (a *App) notifications() {
	recent := a.notes.Recent()
	if len(recent) == 0 {
		fmt.Fprintln(a.out, "No notifications")
		return
	}
	for _, n := range recent {
		fmt.Fprintf(a.out, "[%s] %s %s\n", n.Level, n.Timestamp.Local().Format("15:04:05"), n.Text)
	}
}
