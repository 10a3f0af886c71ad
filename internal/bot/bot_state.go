package bot

import (
	"sync"

	"github.com/rs/zerolog/log"
)

// sessionRegistry holds the live session of every user that has messaged
// the bot since startup. Sessions are created lazily and live until Shutdown.
type sessionRegistry struct {
	mu       sync.Mutex
	sessions map[int64]*UserSession
	create   func(userId int64) *UserSession
}

func newSessionRegistry(create func(userId int64) *UserSession) *sessionRegistry {
	return &sessionRegistry{
		sessions: make(map[int64]*UserSession),
		create:   create,
	}
}

// get returns the user's session, starting one on first contact.
func (r *sessionRegistry) get(userId int64) *UserSession {
	r.mu.Lock()
	defer r.mu.Unlock()

	session, ok := r.sessions[userId]
	if !ok {
		session = r.create(userId)
		r.sessions[userId] = session
		log.Info().Int64("userId", userId).Int("sessions", len(r.sessions)).Msg("new user session created")
	}
	return session
}

// stopAll stops every worker. Workers are stopped outside the lock since
// each waits for its current estimate to finish.
func (r *sessionRegistry) stopAll() {
	r.mu.Lock()
	sessions := make([]*UserSession, 0, len(r.sessions))
	for _, s := range r.sessions {
		sessions = append(sessions, s)
	}
	r.mu.Unlock()

	var wg sync.WaitGroup
	for _, s := range sessions {
		wg.Add(1)
		go func() {
			defer wg.Done()
			s.Stop()
		}()
	}
	wg.Wait()
	log.Info().Int("count", len(sessions)).Msg("stopped all session workers")
}
