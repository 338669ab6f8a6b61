package store

import (
	"context"
	"strings"

	"github.com/google/uuid"

	"github.com/norbi07011/zzp-werkplsats-nowy-sub005/internal/bus"
	"github.com/norbi07011/zzp-werkplsats-nowy-sub005/internal/domain"
)

// ChatMessages returns the selected team's chat log in display order.
func (s *Store) ChatMessages() []domain.ChatMessage {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]domain.ChatMessage(nil), s.chat...)
}

// RefreshChat reloads the bounded history window for the current
// selection.
func (s *Store) RefreshChat(ctx context.Context) error {
	return s.refreshChat(ctx, s.scope())
}

func (s *Store) refreshChat(ctx context.Context, sc scope) error {
	if sc.teamID == "" {
		return nil
	}
	messages, err := s.deps.Chat.ListRecentMessages(ctx, sc.teamID, s.opts.ChatHistoryLimit)
	if err != nil {
		return s.backendFail("loading chat", "could not load chat history", err)
	}
	s.mu.Lock()
	if !s.current(sc) {
		s.mu.Unlock()
		return nil
	}
	s.chat = messages
	s.mu.Unlock()
	s.emit(EventChat, sc.teamID)
	return nil
}

// AddChatMessage appends the message locally first and persists it
// afterwards: chat is the one optimistic entity, send responsiveness
// beats read-after-write here. A failed write removes the local entry
// again.
func (s *Store) AddChatMessage(ctx context.Context, text string) error {
	sc := s.scope()
	if sc.teamID == "" {
		return s.reject("select a team before chatting")
	}
	text = strings.TrimSpace(text)
	if text == "" {
		return s.reject("message text is required")
	}
	member, ok := s.Member()
	if !ok {
		return s.reject("you are not a member of this team")
	}

	msg := domain.ChatMessage{
		ID:          uuid.NewString(),
		TeamID:      sc.teamID,
		MemberID:    member.UserID,
		DisplayName: member.DisplayName,
		Text:        text,
		CreatedAt:   s.now().UTC(),
		Pending:     true,
	}
	s.mu.Lock()
	if !s.current(sc) {
		s.mu.Unlock()
		return s.reject("team changed while sending")
	}
	s.chat = append(s.chat, msg)
	s.mu.Unlock()
	s.emit(EventChat, sc.teamID)

	persisted := msg
	persisted.Pending = false
	if err := s.deps.Chat.AppendMessage(ctx, &persisted); err != nil {
		s.removeChatMessage(sc, msg.ID)
		return s.backendFail("sending message", "could not send the message", err)
	}
	s.confirmChatMessage(sc, persisted)
	s.publish(ctx, bus.Event{Table: bus.TableChat, Op: bus.OpInsert, TeamID: sc.teamID, EntityID: persisted.ID, Message: &persisted})
	return nil
}

// ingestChatEvent applies one pushed insert. The local member's own
// inserts are skipped: they were already applied optimistically, and
// applying the echo would show the sender their message twice.
func (s *Store) ingestChatEvent(event bus.Event) {
	if event.Op != bus.OpInsert || event.Message == nil {
		return
	}
	msg := *event.Message
	if msg.MemberID == s.principal.UserID {
		return
	}
	s.mu.Lock()
	if s.teamID != msg.TeamID || s.closed {
		s.mu.Unlock()
		return
	}
	for _, existing := range s.chat {
		if existing.ID == msg.ID {
			s.mu.Unlock()
			return
		}
	}
	msg.Pending = false
	s.chat = append(s.chat, msg)
	s.mu.Unlock()
	s.emit(EventChat, msg.TeamID)
}

func (s *Store) removeChatMessage(sc scope, id string) {
	s.mu.Lock()
	if !s.current(sc) {
		s.mu.Unlock()
		return
	}
	kept := s.chat[:0]
	for _, m := range s.chat {
		if m.ID != id {
			kept = append(kept, m)
		}
	}
	s.chat = kept
	s.mu.Unlock()
	s.emit(EventChat, sc.teamID)
}

func (s *Store) confirmChatMessage(sc scope, msg domain.ChatMessage) {
	s.mu.Lock()
	if !s.current(sc) {
		s.mu.Unlock()
		return
	}
	for i := range s.chat {
		if s.chat[i].ID == msg.ID {
			s.chat[i] = msg
			break
		}
	}
	s.mu.Unlock()
	s.emit(EventChat, sc.teamID)
}
