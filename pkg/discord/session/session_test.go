package session

import (
	"errors"
	"testing"

	"github.com/bwmarrin/discordgo"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type gateway struct {
	token   string
	created bool
	opened  bool
	closed  bool
}

func stubGateway(t *testing.T, createErr, openErr error) (*gateway, *discordgo.Session) {
	t.Helper()
	g := &gateway{}
	s := &discordgo.Session{}

	prevNew, prevOpen, prevClose := newSession, openSession, closeSession
	t.Cleanup(func() { newSession, openSession, closeSession = prevNew, prevOpen, prevClose })

	newSession = func(token string) (*discordgo.Session, error) {
		g.token, g.created = token, true
		if createErr != nil {
			return nil, createErr
		}
		return s, nil
	}
	openSession = func(*discordgo.Session) error { g.opened = true; return openErr }
	closeSession = func(*discordgo.Session) error { g.closed = true; return nil }
	return g, s
}

func TestNewDiscordSession(t *testing.T) {
	tests := []struct {
		name      string
		token     string
		createErr error
		openErr   error
		wantErr   string
		want      gateway
	}{
		{name: "empty token", token: "", wantErr: "token is empty"},
		{
			name: "create fails", token: "abc", createErr: errors.New("boom"),
			wantErr: "failed to create", want: gateway{token: "Bot abc", created: true},
		},
		{
			name: "connect fails closes", token: "abc", openErr: errors.New("gateway down"),
			wantErr: "failed to connect", want: gateway{token: "Bot abc", created: true, opened: true, closed: true},
		},
		{name: "ok", token: "abc", want: gateway{token: "Bot abc", created: true, opened: true}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			g, s := stubGateway(t, tt.createErr, tt.openErr)

			got, err := NewDiscordSession(tt.token)
			assert.Equal(t, tt.want, *g)
			if tt.wantErr != "" {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.wantErr)
				assert.Nil(t, got)
				return
			}
			require.NoError(t, err)
			assert.Same(t, s, got)
			assert.Equal(t, Intents, got.Identify.Intents)
			assert.NotZero(t, got.Identify.Intents&discordgo.IntentMessageContent)
		})
	}
}
