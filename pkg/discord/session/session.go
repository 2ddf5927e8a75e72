package session

import (
	"fmt"

	"github.com/bwmarrin/discordgo"

	"github.com/small-frappuccino/tasbot/pkg/errutil"
	"github.com/small-frappuccino/tasbot/pkg/log"
)

// Error messages
const (
	ErrSessionCreationFailed   = "failed to create Discord session: %w"
	ErrSessionConnectionFailed = "failed to connect to Discord: %w"
)

// Intents the bot needs: guild structure, members for role checks and
// message content for payment screenshots posted in ticket channels.
const Intents = discordgo.IntentsGuilds |
	discordgo.IntentsGuildMembers |
	discordgo.IntentsGuildMessages |
	discordgo.IntentMessageContent

var (
	newSession   = discordgo.New
	openSession  = func(s *discordgo.Session) error { return s.Open() }
	closeSession = func(s *discordgo.Session) error { return s.Close() }
)

// NewDiscordSession creates the session and opens the gateway connection.
func NewDiscordSession(token string) (*discordgo.Session, error) {
	logger := log.DiscordLogger()

	if token == "" {
		logger.Error("❌ Discord bot token is empty. Set BOT_TOKEN before starting the bot.")
		return nil, fmt.Errorf("discord bot token is empty")
	}

	var s *discordgo.Session
	if err := errutil.HandleDiscordError("create_session", func() error {
		var sessionErr error
		s, sessionErr = newSession("Bot " + token)
		return sessionErr
	}); err != nil {
		return nil, fmt.Errorf(ErrSessionCreationFailed, err)
	}

	logger.Info("✅ Discord session created")
	s.Identify.Intents = Intents

	logger.Info("🔗 Connecting to Discord...")
	if err := errutil.HandleDiscordError("connect", func() error { return openSession(s) }); err != nil {
		_ = closeSession(s)
		return nil, fmt.Errorf(ErrSessionConnectionFailed, err)
	}

	logger.Info("✅ Connected to Discord")
	return s, nil
}
