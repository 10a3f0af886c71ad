package bot

import (
	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/rs/zerolog/log"
)

// menuCommands is the command menu Telegram shows next to the input field.
// /admin stays out of it.
var menuCommands = []tgbotapi.BotCommand{
	{Command: "start", Description: "Start estimating prices"},
	{Command: "help", Description: "How price estimates work"},
	{Command: "history", Description: "Show your recent estimates"},
}

// RegisterCommands publishes the command menu. Failure only costs the menu,
// so it is logged and startup continues.
func RegisterCommands(tg BotAPI) {
	if _, err := tg.Request(tgbotapi.NewSetMyCommands(menuCommands...)); err != nil {
		log.Error().Err(err).Msg("failed to set bot commands")
		return
	}
	log.Info().Int("count", len(menuCommands)).Msg("registered bot commands")
}
