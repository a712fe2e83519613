// Package chat is the conversation data layer. It fetches conversation
// lists and message history over the hub, mirrors them into the local
// sqlite cache, and serves the connection orchestrator as its reload hook.
package chat

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"chatlink/internal/hub"
	"chatlink/internal/logging"
	"chatlink/internal/prefs"
)

// Health is the eager connection check run before a conversation is
// opened. *conn.Orchestrator satisfies this.
type Health interface {
	EnsureLive(ctx context.Context) error
}

type Service struct {
	tr     hub.Transport
	cache  *Cache
	prefs  prefs.Repository
	health Health
	log    logging.Logger

	mu       sync.Mutex
	openConv string
}

// SetHealth installs the connection health check after construction. The
// orchestrator needs the service as its reload hook and the service needs
// the orchestrator for Select, so one side is wired late.
func (s *Service) SetHealth(h Health) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.health = h
}

func NewService(tr hub.Transport, cache *Cache, repo prefs.Repository, health Health, log logging.Logger) *Service {
	if log == nil {
		log = logging.NewNopLogger()
	}
	s := &Service{
		tr:     tr,
		cache:  cache,
		prefs:  repo,
		health: health,
		log:    log,
	}
	s.tr.On("ReceiveMessage", s.onReceiveMessage)
	return s
}

// Conversations fetches the conversation list from the hub and refreshes
// the cache. On transport failure the cached snapshot is returned instead.
func (s *Service) Conversations(ctx context.Context) ([]Conversation, error) {
	raw, err := s.tr.Invoke(ctx, "GetConversations")
	if err != nil {
		s.log.Warn(ctx, "conversation fetch failed, serving cache", "error", err)
		return s.cache.Conversations(ctx)
	}

	var convs []Conversation
	if err := json.Unmarshal(raw, &convs); err != nil {
		return nil, fmt.Errorf("failed to decode conversations: %w", err)
	}
	if err := s.cache.ReplaceConversations(ctx, convs); err != nil {
		return nil, err
	}
	return convs, nil
}

// History fetches the message history of one conversation and refreshes
// its cached copy. Falls back to the cache on transport failure.
func (s *Service) History(ctx context.Context, conversationID string) ([]Message, error) {
	raw, err := s.tr.Invoke(ctx, "GetMessageHistory", conversationID)
	if err != nil {
		s.log.Warn(ctx, "history fetch failed, serving cache", "conversation", conversationID, "error", err)
		return s.cache.Messages(ctx, conversationID)
	}

	var msgs []Message
	if err := json.Unmarshal(raw, &msgs); err != nil {
		return nil, fmt.Errorf("failed to decode messages: %w", err)
	}
	if err := s.cache.ReplaceMessages(ctx, conversationID, msgs); err != nil {
		return nil, err
	}
	return msgs, nil
}

// Select opens a conversation: it first forces the connection live (a
// suspended or reconnecting link is woken up before the fetch), then loads
// history and remembers the selection.
func (s *Service) Select(ctx context.Context, conversationID string) ([]Message, error) {
	s.mu.Lock()
	health := s.health
	s.mu.Unlock()
	if health != nil {
		if err := health.EnsureLive(ctx); err != nil {
			return nil, err
		}
	}

	msgs, err := s.History(ctx, conversationID)
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	s.openConv = conversationID
	s.mu.Unlock()

	if s.prefs != nil {
		if err := s.prefs.Set(ctx, prefs.KeyLastConversation, conversationID); err != nil {
			s.log.Warn(ctx, "failed to persist conversation selection", "error", err)
		}
	}
	return msgs, nil
}

// Send posts a message to the currently addressed conversation.
func (s *Service) Send(ctx context.Context, conversationID, body string) error {
	if _, err := s.tr.Invoke(ctx, "SendMessage", conversationID, body); err != nil {
		return fmt.Errorf("failed to send message: %w", err)
	}
	return nil
}

// Open returns the currently selected conversation id, "" when none.
func (s *Service) Open() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.openConv
}

// RestoreSelection loads the last open conversation from preferences.
func (s *Service) RestoreSelection(ctx context.Context) string {
	if s.prefs == nil {
		return ""
	}
	id, err := s.prefs.Get(ctx, prefs.KeyLastConversation)
	if err != nil {
		s.log.Warn(ctx, "failed to restore conversation selection", "error", err)
		return ""
	}
	s.mu.Lock()
	s.openConv = id
	s.mu.Unlock()
	return id
}

// ReloadAll is the orchestrator's post-recovery hook: refresh the
// conversation list and, when a conversation is open, its history. Event
// registrations live in the transport and survive reconnects on their own.
func (s *Service) ReloadAll(ctx context.Context) error {
	if _, err := s.Conversations(ctx); err != nil {
		return fmt.Errorf("reload: %w", err)
	}
	if open := s.Open(); open != "" {
		if _, err := s.History(ctx, open); err != nil {
			return fmt.Errorf("reload: %w", err)
		}
	}
	return nil
}

func (s *Service) onReceiveMessage(raw json.RawMessage) {
	var m Message
	if err := json.Unmarshal(raw, &m); err != nil {
		s.log.Warn(context.Background(), "dropping malformed incoming message", "error", err)
		return
	}
	if err := s.cache.AppendMessage(context.Background(), m); err != nil {
		s.log.Error(context.Background(), "failed to cache incoming message", "id", m.ID, "error", err)
	}
}
