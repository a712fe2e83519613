package cli

import (
	"context"
	"errors"
	"fmt"

	"chatlink/internal/auth"
	"chatlink/internal/notify"
)

func (a *App) Login(ctx context.Context) {
	env, err := a.cfg.Env()
	if err != nil {
		fmt.Fprintf(a.out, "error: %v\n", err)
		return
	}

	username, err := GetSimpleText(a.reader, "Enter username", a.out)
	if err != nil {
		fmt.Fprintf(a.out, "error: %v\n", err)
		return
	}

	password, err := GetPassword(a.out)
	if err != nil {
		fmt.Fprintf(a.out, "error: %v\n", err)
		return
	}
	defer wipe(password)

	st, err := a.sessions.Login(ctx, username, string(password), env.TenantID)
	if err != nil {
		if errors.Is(err, auth.ErrInvalidCredentials) {
			fmt.Fprintln(a.out, "Login failed: invalid credentials")
		} else {
			fmt.Fprintf(a.out, "Login failed: %v\n", err)
		}
		a.notes.Publish(notify.Error, fmt.Sprintf("Login failed: %v", err))
		return
	}

	fmt.Fprintf(a.out, "Logged in as %s\n", st.User.Username)

	if err := a.startConnection(ctx); err != nil {
		fmt.Fprintf(a.out, "Connection failed: %v\n", err)
	}
}

func (a *App) Logout(ctx context.Context) {
	if err := a.orch.Stop(ctx); err != nil {
		a.log.Warn(ctx, "failed to stop connection on logout", "error", err)
	}
	if err := a.sessions.Logout(ctx); err != nil {
		fmt.Fprintf(a.out, "Logout failed: %v\n", err)
		return
	}
	fmt.Fprintln(a.out, "Logged out")
}

func wipe(b []byte) {
	for i := range b {
		b[i] = 0
	}
}
