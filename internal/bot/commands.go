package bot

import (
	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

// Fixed replies
const (
	WelcomeText = `Welcome! 👋

Send me any text message and I will echo it back.
Use /help to see the list of commands.`

	HelpText = `List of commands
- /start to show the welcome message
- /help to show this list

Any other text message is echoed back as is.`

	UnsupportedText = "Sorry, I can only echo text messages."
)

// DefaultRules returns the reply rules in evaluation order: the first match wins.
func DefaultRules() []Rule {
	return []Rule{
		{Name: "start", Match: IsCommand("start"), Reply: Fixed(WelcomeText)},
		{Name: "help", Match: IsCommand("help"), Reply: Fixed(HelpText)},
		{Name: "echo", Match: HasText, Reply: Echo},
		{Name: "unsupported", Match: Always, Reply: Fixed(UnsupportedText)},
	}
}

// IsCommand matches a message carrying the given bot command, with or without @botname
func IsCommand(command string) func(*tgbotapi.Message) bool {
	return func(message *tgbotapi.Message) bool {
		return message.IsCommand() && message.Command() == command
	}
}

// HasText matches any message with text
func HasText(message *tgbotapi.Message) bool {
	return message.Text != ""
}

// Always matches every message
func Always(*tgbotapi.Message) bool {
	return true
}

// Fixed replies with the same text regardless of the message
func Fixed(text string) func(*tgbotapi.Message) string {
	return func(*tgbotapi.Message) string {
		return text
	}
}

// Echo replies with the message's own text
func Echo(message *tgbotapi.Message) string {
	return message.Text
}
