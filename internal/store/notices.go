package store

import "time"

const noticeLimit = 50

// Notice is a transient user-visible message about a failed operation.
type Notice struct {
	Level   string    `json:"level"`
	Message string    `json:"message"`
	At      time.Time `json:"at"`
}

// Notices returns the recent notice feed, oldest first.
func (s *Store) Notices() []Notice {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]Notice(nil), s.notices...)
}

func (s *Store) addNotice(level, message string) {
	s.mu.Lock()
	s.notices = append(s.notices, Notice{Level: level, Message: message, At: s.now().UTC()})
	if len(s.notices) > noticeLimit {
		s.notices = s.notices[len(s.notices)-noticeLimit:]
	}
	teamID := s.teamID
	s.mu.Unlock()
	s.emit(EventNotice, teamID)
}

// reject records a local validation failure. No round trip was made.
func (s *Store) reject(message string) error {
	s.addNotice("warn", message)
	return ErrMutationFailed
}

// backendFail records a failed remote call. The snapshot is untouched
// and there is no automatic retry.
func (s *Store) backendFail(op, message string, err error) error {
	s.logger.Warn(op+" failed", "error", err)
	s.addNotice("error", message)
	return ErrMutationFailed
}
