package dashboards

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/bwmarrin/discordgo"
)

// BoardStore persists the ids of messages the bot keeps one copy of;
// storage.Store implements it.
type BoardStore interface {
	GetConfig(ctx context.Context, key string) (string, bool, error)
	SetConfig(ctx context.Context, key, value, kind string) error
}

// pinned is a message edited in place across refreshes and restarts. Its id
// lives in configuracoes under key.
type pinned struct {
	session *discordgo.Session
	store   BoardStore
	key     string
}

// publish edits the stored message, or posts a new one when there is none or
// Discord no longer knows it. It reports whether a new message was posted.
func (p pinned) publish(ctx context.Context, channelID string, embeds []*discordgo.MessageEmbed, components []discordgo.MessageComponent) (bool, error) {
	id, ok, err := p.store.GetConfig(ctx, p.key)
	if err != nil {
		return false, fmt.Errorf("read %s: %w", p.key, err)
	}
	if ok && id != "" {
		edit := &discordgo.MessageEdit{ID: id, Channel: channelID, Embeds: &embeds}
		if len(components) > 0 {
			edit.Components = &components
		}
		_, err := p.session.ChannelMessageEditComplex(edit)
		if err == nil {
			return false, nil
		}
		if !isUnknownMessage(err) {
			return false, fmt.Errorf("edit %s: %w", p.key, err)
		}
	}

	msg, err := p.session.ChannelMessageSendComplex(channelID, &discordgo.MessageSend{Embeds: embeds, Components: components})
	if err != nil {
		return false, fmt.Errorf("post %s: %w", p.key, err)
	}
	return true, p.store.SetConfig(ctx, p.key, msg.ID, "string")
}

func isUnknownMessage(err error) bool {
	var rest *discordgo.RESTError
	return errors.As(err, &rest) && rest.Response != nil && rest.Response.StatusCode == http.StatusNotFound
}
