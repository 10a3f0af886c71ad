package bot

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/raine/price-estimator-bot/internal/estimator"
	"github.com/raine/price-estimator-bot/internal/storage"
	"github.com/raine/price-estimator-bot/internal/vision"
	"github.com/rs/zerolog/log"
)

// historyLimit is how many estimates /history shows.
const historyLimit = 10

// BotAPI defines the interface for Telegram bot API operations.
type BotAPI interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
	Request(c tgbotapi.Chattable) (*tgbotapi.APIResponse, error)
	GetFileDirectURL(fileID string) (string, error)
}

// Estimator produces price estimates for photos.
type Estimator interface {
	EstimateDetailed(ctx context.Context, img vision.Image, title string) (estimator.Result, estimator.Outcome)
}

// Store is the subset of storage the bot needs.
type Store interface {
	IsUserAllowed(telegramID int64) (bool, error)
	AddAllowedUser(telegramID, addedBy int64) error
	RemoveAllowedUser(telegramID int64) error
	GetAllowedUsers() ([]storage.AllowedUser, error)
	RecentEstimatesByUser(userID int64, limit int) ([]storage.EstimateRecord, error)
}

// Bot is the main Telegram bot handler.
type Bot struct {
	tg        BotAPI
	state     *sessionRegistry
	store     Store
	estimator Estimator
	adminID   int64
}

// NewBot creates a new Bot instance.
func NewBot(tg BotAPI, store Store, est Estimator, adminID int64) *Bot {
	bot := &Bot{
		tg:        tg,
		store:     store,
		estimator: est,
		adminID:   adminID,
	}
	bot.state = newSessionRegistry(func(userId int64) *UserSession {
		return newUserSession(userId, tg, bot)
	})
	return bot
}

// Shutdown stops all session workers.
func (b *Bot) Shutdown() {
	b.state.stopAll()
}

// HandleUpdate is the main message router.
// It dispatches messages to the appropriate session worker for sequential processing.
func (b *Bot) HandleUpdate(ctx context.Context, update tgbotapi.Update) {
	b.dispatchUpdate(ctx, update, false)
}

// handleUpdateSync is like HandleUpdate but waits for message processing to complete.
// Used in tests where we need synchronous behavior.
func (b *Bot) handleUpdateSync(ctx context.Context, update tgbotapi.Update) {
	b.dispatchUpdate(ctx, update, true)
}

// dispatchUpdate routes updates to the appropriate session worker.
// If sync is true, it waits for message processing to complete.
func (b *Bot) dispatchUpdate(ctx context.Context, update tgbotapi.Update, sync bool) {
	if update.Message == nil || update.Message.From == nil {
		return
	}
	userId := update.Message.From.ID

	// Check if user is allowed (admin always allowed)
	// MUST run before a session is created, or random user IDs would each get a worker
	if userId != b.adminID {
		allowed, err := b.store.IsUserAllowed(userId)
		if err != nil {
			log.Error().Err(err).Int64("user_id", userId).Msg("whitelist check failed")
			return // Fail closed
		}
		if !allowed {
			return // Silent drop
		}
	}

	session := b.state.get(userId)
	log.Info().Str("text", update.Message.Text).Str("caption", update.Message.Caption).Msg("got message")

	msg := SessionMessage{Type: messageText, Ctx: ctx, Message: update.Message}
	if len(update.Message.Photo) > 0 {
		msg.Type = messagePhoto
	}

	if sync {
		session.SendSync(msg)
	} else {
		session.Send(msg)
	}
}

// HandleSessionMessage implements MessageHandler interface.
// This is called by the session worker goroutine for sequential processing.
func (b *Bot) HandleSessionMessage(ctx context.Context, session *UserSession, msg SessionMessage) {
	switch msg.Type {
	case messagePhoto:
		b.handlePhotoMessage(ctx, session, msg.Message)
	case messageText:
		b.handleCommand(ctx, session, msg.Message)
	}
}

// handlePhotoMessage downloads the largest photo size and replies with an
// estimate. The caption is used as the item title.
func (b *Bot) handlePhotoMessage(ctx context.Context, session *UserSession, message *tgbotapi.Message) {
	photo := largestPhoto(message.Photo)

	typingCtx, stopTyping := context.WithCancel(ctx)
	defer stopTyping()
	go session.keepTyping(typingCtx)

	file, err := downloadFileID(ctx, b.tg.GetFileDirectURL, photo.FileID)
	if err != nil {
		log.Error().Err(err).Int64("userId", session.userId).Msg("failed to download photo")
		session.reply(MsgPhotoDownloadFail)
		return
	}

	// The photo is sent inline; the direct file URL embeds the bot token.
	img := vision.Image{Content: file.Data, MIMEType: file.MIMEType}
	title := strings.TrimSpace(message.Caption)

	res, outcome := b.estimator.EstimateDetailed(estimator.WithUserID(ctx, session.userId), img, title)
	log.Info().
		Int64("userId", session.userId).
		Str("title", title).
		Str("outcome", string(outcome)).
		Msg("estimate ready")

	stopTyping()
	session.replyWithoutPreview(formatEstimate(res))
}

// handleCommand processes bot commands.
// Called from session worker - no locking needed.
func (b *Bot) handleCommand(ctx context.Context, session *UserSession, message *tgbotapi.Message) {
	command, args := parseCommand(message.Text)
	switch command {
	case "/start":
		session.reply(MsgStartPrompt)
	case "/help":
		session.reply(MsgHelp)
	case "/history":
		b.handleHistoryCommand(session)
	case "/admin":
		b.handleAdminCommand(session, args)
	default:
		session.reply(MsgSendPhoto)
	}
}

func (b *Bot) handleHistoryCommand(session *UserSession) {
	records, err := b.store.RecentEstimatesByUser(session.userId, historyLimit)
	if err != nil {
		session.replyWithError(err)
		return
	}
	session.replyWithoutPreview(formatHistory(records))
}

// handleAdminCommand handles /admin command with subcommands.
// Only the admin user can use this command.
func (b *Bot) handleAdminCommand(session *UserSession, parts []string) {
	if session.userId != b.adminID {
		return // Silent drop for non-admin users
	}

	if len(parts) < 2 || parts[0] != "users" {
		session.reply(MsgAdminUsage)
		return
	}
	b.handleAdminUsersCommand(session, parts[1], parts[2:])
}

// handleAdminUsersCommand handles /admin users subcommands.
func (b *Bot) handleAdminUsersCommand(session *UserSession, action string, args []string) {
	switch action {
	case "add":
		if len(args) < 1 {
			session.reply(MsgAdminUserAddUsage)
			return
		}
		userID, err := strconv.ParseInt(args[0], 10, 64)
		if err != nil {
			session.reply(MsgAdminUserInvalidID)
			return
		}
		if err := b.store.AddAllowedUser(userID, session.userId); err != nil {
			session.replyWithError(err)
			return
		}
		session.reply(MsgAdminUserAdded, userID)

	case "remove":
		if len(args) < 1 {
			session.reply(MsgAdminUserRemoveUsage)
			return
		}
		userID, err := strconv.ParseInt(args[0], 10, 64)
		if err != nil {
			session.reply(MsgAdminUserInvalidID)
			return
		}
		if err := b.store.RemoveAllowedUser(userID); err != nil {
			session.replyWithError(err)
			return
		}
		session.reply(MsgAdminUserRemoved, userID)

	case "list":
		users, err := b.store.GetAllowedUsers()
		if err != nil {
			session.replyWithError(err)
			return
		}
		if len(users) == 0 {
			session.reply(MsgAdminNoUsers)
			return
		}
		var sb strings.Builder
		sb.WriteString(MsgAdminAllowedUsers)
		for _, u := range users {
			sb.WriteString(fmt.Sprintf("• `%d` (added %s)\n", u.TelegramID, u.AddedAt.Format("2006-01-02")))
		}
		session.replyWithoutPreview(strings.TrimSuffix(sb.String(), "\n"))

	default:
		session.reply(MsgAdminUsage)
	}
}

// largestPhoto returns the photo size with the most pixels. Telegram lists
// sizes smallest first, but that order is not guaranteed.
func largestPhoto(sizes []tgbotapi.PhotoSize) tgbotapi.PhotoSize {
	best := sizes[0]
	for _, s := range sizes[1:] {
		if s.Width*s.Height > best.Width*best.Height {
			best = s
		}
	}
	return best
}
