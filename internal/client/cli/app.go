// Package cli is the interactive REPL frontend of the chatlink client.
// It drives the session manager, the connection orchestrator and the chat
// and media services from typed commands.
package cli

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"time"

	"chatlink/internal/chat"
	"chatlink/internal/config"
	"chatlink/internal/conn"
	"chatlink/internal/lifecycle"
	"chatlink/internal/logging"
	"chatlink/internal/media"
	"chatlink/internal/notify"
	"chatlink/internal/prefs"
	"chatlink/internal/session"

	"github.com/sethvargo/go-retry"
)

// sessionService is the slice of *session.Manager the REPL needs.
type sessionService interface {
	Login(ctx context.Context, username, password, tenantID string) (session.State, error)
	Logout(ctx context.Context) error
	Current() session.State
}

// connService is the slice of *conn.Orchestrator the REPL needs.
type connService interface {
	Start(ctx context.Context) error
	Stop(ctx context.Context) error
	State() conn.State
}

// chatService is the slice of *chat.Service the REPL needs.
type chatService interface {
	Conversations(ctx context.Context) ([]chat.Conversation, error)
	Select(ctx context.Context, conversationID string) ([]chat.Message, error)
	Send(ctx context.Context, conversationID, body string) error
	Open() string
}

// uploadService is the slice of *media.Uploader the REPL needs.
type uploadService interface {
	UploadOne(ctx context.Context, item media.Item) (media.AttachmentRef, error)
}

type App struct {
	cfg      *config.Config
	sessions sessionService
	orch     connService
	chats    chatService
	uploads  uploadService
	notes    *notify.Center
	source   *lifecycle.ManualSource
	prefs    prefs.Repository
	log      logging.Logger

	reader *bufio.Reader
	out    io.Writer

	// base delay of the start-connection backoff, shortened in tests
	retryBase time.Duration
}

func NewApp(
	cfg *config.Config,
	sessions sessionService,
	orch connService,
	chats chatService,
	uploads uploadService,
	notes *notify.Center,
	source *lifecycle.ManualSource,
	repo prefs.Repository,
	log logging.Logger,
) *App {
	if log == nil {
		log = logging.NewNopLogger()
	}
	return &App{
		cfg:       cfg,
		sessions:  sessions,
		orch:      orch,
		chats:     chats,
		uploads:   uploads,
		notes:     notes,
		source:    source,
		prefs:     repo,
		log:       log,
		reader:    bufio.NewReader(os.Stdin),
		out:       os.Stdout,
		retryBase: 500 * time.Millisecond,
	}
}

func (a *App) Run(ctx context.Context) {
	a.Root(ctx)
}

func (a *App) isLoggedIn() bool {
	return a.sessions.Current().Authenticated
}

// startConnection brings the hub link up with capped exponential backoff.
// The orchestrator itself never retries a failed fresh start; the caller
// owns that policy.
func (a *App) startConnection(ctx context.Context) error {
	b := retry.WithCappedDuration(5*time.Second, retry.NewExponential(a.retryBase))
	b = retry.WithMaxRetries(4, b)

	return retry.Do(ctx, b, func(ctx context.Context) error {
		if err := a.orch.Start(ctx); err != nil {
			a.log.Warn(ctx, "connection start failed, retrying", "error", err)
			return retry.RetryableError(err)
		}
		return nil
	})
}

func (a *App) getStatus() string {
	s := ""
	if st := a.sessions.Current(); st.Authenticated {
		s = st.User.Username + " "
	}
	return fmt.Sprintf("(%s%s)", s, a.orch.State())
}
