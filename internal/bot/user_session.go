package bot

import (
	"context"
	"fmt"
	"sync"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/rs/zerolog/log"
)

const (
	messageText  = "text"
	messagePhoto = "photo"

	// inboxSize is how many messages a user can queue while an estimate runs.
	inboxSize = 10

	// Telegram clears the typing indicator after about 5 seconds.
	typingRefresh = 4 * time.Second
)

// SessionMessage is one update queued for a user's worker.
type SessionMessage struct {
	Type    string // messageText or messagePhoto
	Ctx     context.Context
	Message *tgbotapi.Message

	// Done is closed once the message was handled or dropped.
	Done chan struct{}
}

func (m SessionMessage) finish() {
	if m.Done != nil {
		close(m.Done)
	}
}

// MessageHandler handles messages taken off a session's inbox.
type MessageHandler interface {
	HandleSessionMessage(ctx context.Context, session *UserSession, msg SessionMessage)
}

// UserSession runs one user's messages on a single worker goroutine, so a
// user's photos are estimated in the order they were sent while different
// users proceed in parallel.
type UserSession struct {
	userId  int64
	sender  BotAPI
	handler MessageHandler

	inbox  chan SessionMessage
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// newUserSession creates a session and starts its worker.
func newUserSession(userId int64, sender BotAPI, handler MessageHandler) *UserSession {
	ctx, cancel := context.WithCancel(context.Background())
	s := &UserSession{
		userId:  userId,
		sender:  sender,
		handler: handler,
		inbox:   make(chan SessionMessage, inboxSize),
		ctx:     ctx,
		cancel:  cancel,
	}
	s.wg.Add(1)
	go s.work()
	return s
}

func (s *UserSession) work() {
	defer s.wg.Done()
	for {
		select {
		case <-s.ctx.Done():
			s.drain()
			return
		case msg := <-s.inbox:
			s.handle(msg)
		}
	}
}

// drain releases SendSync callers whose messages will never be handled.
func (s *UserSession) drain() {
	for {
		select {
		case msg := <-s.inbox:
			msg.finish()
		default:
			return
		}
	}
}

func (s *UserSession) handle(msg SessionMessage) {
	defer msg.finish()
	defer func() {
		if r := recover(); r != nil {
			log.Error().Int64("userId", s.userId).Interface("panic", r).Msg("session handler panicked")
		}
	}()
	s.handler.HandleSessionMessage(msg.Ctx, s, msg)
}

// Send queues msg without waiting for it to be handled. Messages sent to a
// stopped session are dropped.
func (s *UserSession) Send(msg SessionMessage) {
	if s.ctx.Err() != nil {
		msg.finish()
		return
	}
	select {
	case s.inbox <- msg:
	case <-s.ctx.Done():
		msg.finish()
	}
}

// SendSync queues msg and blocks until it was handled or dropped.
func (s *UserSession) SendSync(msg SessionMessage) {
	msg.Done = make(chan struct{})
	s.Send(msg)
	<-msg.Done
}

// Stop cancels the worker and waits for the current message to finish.
func (s *UserSession) Stop() {
	s.cancel()
	s.wg.Wait()
}

// keepTyping shows the typing indicator until ctx is done.
func (s *UserSession) keepTyping(ctx context.Context) {
	ticker := time.NewTicker(typingRefresh)
	defer ticker.Stop()
	for {
		// sendChatAction answers with a bool, so it goes through Request
		if _, err := s.sender.Request(tgbotapi.NewChatAction(s.userId, tgbotapi.ChatTyping)); err != nil {
			log.Debug().Err(err).Int64("userId", s.userId).Msg("failed to send typing action")
		}
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

// send delivers a Markdown message to the user. Failures are logged only;
// there is nobody else to tell.
func (s *UserSession) send(text string, disablePreview bool) tgbotapi.Message {
	msg := tgbotapi.NewMessage(s.userId, text)
	msg.ParseMode = tgbotapi.ModeMarkdown
	msg.DisableWebPagePreview = disablePreview

	sent, err := s.sender.Send(msg)
	if err != nil {
		log.Error().Err(fmt.Errorf("failed to send reply message: %w", err)).Int64("userId", s.userId).Send()
		return sent
	}
	log.Debug().Int64("userId", s.userId).Int("messageId", sent.MessageID).Msg("sent message")
	return sent
}

// reply formats text with formatReplyText and sends it.
func (s *UserSession) reply(text string, a ...any) tgbotapi.Message {
	return s.send(formatReplyText(text, a...), false)
}

// replyWithoutPreview sends already formatted text with link previews off,
// so listing URLs don't expand into cards.
func (s *UserSession) replyWithoutPreview(text string) tgbotapi.Message {
	return s.send(text, true)
}

func (s *UserSession) replyWithError(err error) tgbotapi.Message {
	log.Error().Err(err).Int64("userId", s.userId).Msg("command failed")
	return s.send(formatReplyText(MsgUnexpectedErr, escapeMarkdown(err.Error())), false)
}
