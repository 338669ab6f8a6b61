package store

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/norbi07011/zzp-werkplsats-nowy-sub005/internal/bus"
	"github.com/norbi07011/zzp-werkplsats-nowy-sub005/internal/domain"
)

func chatFixture(f *fixture, userID, name string, role domain.MembershipRole) *Store {
	p := Principal{UserID: userID, DisplayName: name, Role: domain.RoleWorker}
	if role == domain.MembershipLeader {
		p.Role = domain.RoleLeader
	}
	s := f.store(p)
	if err := s.SelectTeam(context.Background(), "team-1"); err != nil {
		panic(err)
	}
	return s
}

func TestAddChatMessageAppearsOnceForSender(t *testing.T) {
	f := newFixture()
	f.backend.addRoster("team-1", leaderEntry("team-1", "u1", "Piet"))
	s := chatFixture(f, "u1", "Piet", domain.MembershipLeader)
	defer s.Close()

	if err := s.AddChatMessage(context.Background(), "hello"); err != nil {
		t.Fatalf("AddChatMessage: %v", err)
	}
	messages := s.ChatMessages()
	if len(messages) != 1 {
		t.Fatalf("expected exactly one message, got %d", len(messages))
	}
	if messages[0].Pending {
		t.Fatal("message still pending after confirmed write")
	}
}

func TestChatEchoSuppressionAcrossTwoClients(t *testing.T) {
	f := newFixture()
	f.backend.addRoster("team-1", leaderEntry("team-1", "u1", "Piet"), workerEntry("team-1", "u2", "Anna"))

	sender := chatFixture(f, "u1", "Piet", domain.MembershipLeader)
	defer sender.Close()
	receiver := chatFixture(f, "u2", "Anna", domain.MembershipMember)
	defer receiver.Close()

	if err := sender.AddChatMessage(context.Background(), "hello"); err != nil {
		t.Fatalf("AddChatMessage: %v", err)
	}

	deadline := time.After(2 * time.Second)
	for {
		if msgs := receiver.ChatMessages(); len(msgs) == 1 {
			if msgs[0].Text != "hello" || msgs[0].MemberID != "u1" {
				t.Fatalf("unexpected delivered message: %+v", msgs[0])
			}
			break
		}
		select {
		case <-deadline:
			t.Fatal("receiver never got the message")
		case <-time.After(10 * time.Millisecond):
		}
	}

	// The sender already applied its message optimistically; the push
	// echo must not produce a second copy.
	time.Sleep(50 * time.Millisecond)
	if msgs := sender.ChatMessages(); len(msgs) != 1 {
		t.Fatalf("sender sees %d copies of its own message", len(msgs))
	}
}

func TestChatIngestionIsIdempotent(t *testing.T) {
	f := newFixture()
	f.backend.addRoster("team-1", workerEntry("team-1", "u2", "Anna"))
	s := chatFixture(f, "u2", "Anna", domain.MembershipMember)
	defer s.Close()

	msg := &domain.ChatMessage{ID: "m1", TeamID: "team-1", MemberID: "u9", DisplayName: "Joris", Text: "koffie?", CreatedAt: time.Now().UTC()}
	event := bus.Event{Table: bus.TableChat, Op: bus.OpInsert, TeamID: "team-1", EntityID: "m1", Message: msg}
	s.ingestChatEvent(event)
	s.ingestChatEvent(event)

	if msgs := s.ChatMessages(); len(msgs) != 1 {
		t.Fatalf("duplicate delivery produced %d copies", len(msgs))
	}
}

func TestChatIgnoresEventsForOtherTeams(t *testing.T) {
	f := newFixture()
	f.backend.addRoster("team-1", workerEntry("team-1", "u2", "Anna"))
	s := chatFixture(f, "u2", "Anna", domain.MembershipMember)
	defer s.Close()

	msg := &domain.ChatMessage{ID: "m1", TeamID: "team-9", MemberID: "u9", Text: "verkeerd kanaal"}
	s.ingestChatEvent(bus.Event{Table: bus.TableChat, Op: bus.OpInsert, TeamID: "team-9", Message: msg})

	if msgs := s.ChatMessages(); len(msgs) != 0 {
		t.Fatalf("message from another team applied: %+v", msgs)
	}
}

func TestFailedSendRemovesOptimisticEntry(t *testing.T) {
	f := newFixture()
	f.backend.addRoster("team-1", workerEntry("team-1", "u2", "Anna"))
	s := chatFixture(f, "u2", "Anna", domain.MembershipMember)
	defer s.Close()

	f.backend.chatAppendErr = errors.New("connection reset")
	if err := s.AddChatMessage(context.Background(), "hallo"); !errors.Is(err, ErrMutationFailed) {
		t.Fatalf("expected ErrMutationFailed, got %v", err)
	}
	if msgs := s.ChatMessages(); len(msgs) != 0 {
		t.Fatalf("optimistic entry kept after failed write: %+v", msgs)
	}
	if len(s.Notices()) == 0 {
		t.Fatal("expected a user-visible notice")
	}
}

func TestBlankChatMessageRejectedLocally(t *testing.T) {
	f := newFixture()
	f.backend.addRoster("team-1", workerEntry("team-1", "u2", "Anna"))
	s := chatFixture(f, "u2", "Anna", domain.MembershipMember)
	defer s.Close()

	if err := s.AddChatMessage(context.Background(), "   "); !errors.Is(err, ErrMutationFailed) {
		t.Fatalf("expected ErrMutationFailed, got %v", err)
	}
	if msgs := s.ChatMessages(); len(msgs) != 0 {
		t.Fatalf("blank message applied: %+v", msgs)
	}
}
