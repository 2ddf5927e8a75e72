// Package discordtest fakes the Discord REST API for handler tests.
package discordtest

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"mime"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync"
	"testing"

	"github.com/bwmarrin/discordgo"
)

// Identifiers used by the fake guild.
const (
	BotID   = "bot"
	GuildID = "guild"
	OwnerID = "owner"
)

// Call is one recorded REST request.
type Call struct {
	Method string
	Path   string
	// Body is the JSON payload; for multipart requests it is the payload_json part.
	Body  []byte
	Files []string
}

// Decode unmarshals the payload into v.
func (c Call) Decode(v any) error { return json.Unmarshal(c.Body, v) }

// Fake is an in-memory Discord API.
type Fake struct {
	Server *httptest.Server

	mu       sync.Mutex
	calls    []Call
	seq      int
	channels map[string]*discordgo.Channel
	messages map[string]*discordgo.Message
}

type rewrite struct {
	target *url.URL
	next   http.RoundTripper
}

func (r rewrite) RoundTrip(req *http.Request) (*http.Response, error) {
	out := req.Clone(req.Context())
	out.URL.Scheme = r.target.Scheme
	out.URL.Host = r.target.Host
	out.Host = r.target.Host
	return r.next.RoundTrip(out)
}

// New starts the fake and returns a session wired to it. The state already
// holds the bot user and a guild owned by OwnerID.
func New(t *testing.T) (*discordgo.Session, *Fake) {
	t.Helper()
	f := &Fake{
		channels: make(map[string]*discordgo.Channel),
		messages: make(map[string]*discordgo.Message),
	}
	f.Server = httptest.NewServer(http.HandlerFunc(f.serve))
	t.Cleanup(f.Server.Close)

	target, err := url.Parse(f.Server.URL)
	if err != nil {
		t.Fatalf("parse fake url: %v", err)
	}

	s, err := discordgo.New("Bot test-token")
	if err != nil {
		t.Fatalf("create session: %v", err)
	}
	s.Client = &http.Client{Transport: rewrite{target: target, next: http.DefaultTransport}}
	s.State.User = &discordgo.User{ID: BotID, Username: "tasbot", Bot: true}
	if err := s.State.GuildAdd(&discordgo.Guild{ID: GuildID, OwnerID: OwnerID, Name: "T.A.S Mania"}); err != nil {
		t.Fatalf("add guild: %v", err)
	}
	return s, f
}

// AddChannel registers a text channel in the fake and in the session state.
func (f *Fake) AddChannel(s *discordgo.Session, id, name string) *discordgo.Channel {
	ch := &discordgo.Channel{ID: id, GuildID: GuildID, Name: name, Type: discordgo.ChannelTypeGuildText}
	f.mu.Lock()
	f.channels[id] = ch
	f.mu.Unlock()
	if s != nil {
		_ = s.State.ChannelAdd(ch)
	}
	return ch
}

// Calls returns a copy of the recorded calls.
func (f *Fake) Calls() []Call {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]Call, len(f.calls))
	copy(out, f.calls)
	return out
}

// Find returns recorded calls whose method matches and whose path contains fragment.
func (f *Fake) Find(method, fragment string) []Call {
	var out []Call
	for _, c := range f.Calls() {
		if c.Method == method && strings.Contains(c.Path, fragment) {
			out = append(out, c)
		}
	}
	return out
}

// Reset forgets recorded calls.
func (f *Fake) Reset() {
	f.mu.Lock()
	f.calls = nil
	f.mu.Unlock()
}

// Sent is the decodable part of an outgoing message. Components stay raw
// because discordgo cannot unmarshal its component interface.
type Sent struct {
	Content    string                    `json:"content"`
	Embeds     []*discordgo.MessageEmbed `json:"embeds"`
	Components []json.RawMessage         `json:"components"`
	Flags      discordgo.MessageFlags    `json:"flags"`
	Title      string                    `json:"title"`
	CustomID   string                    `json:"custom_id"`

	Choices []*discordgo.ApplicationCommandOptionChoice `json:"choices"`
}

// HasCustomID reports whether any component carries customID.
func (m Sent) HasCustomID(customID string) bool {
	needle := `"custom_id":"` + customID + `"`
	for _, c := range m.Components {
		if strings.Contains(string(c), needle) {
			return true
		}
	}
	return false
}

// Response is a decoded interaction callback.
type Response struct {
	Type discordgo.InteractionResponseType `json:"type"`
	Data *Sent                             `json:"data"`
}

// InteractionResponses decodes every interaction callback.
func (f *Fake) InteractionResponses() []Response {
	var out []Response
	for _, c := range f.Find(http.MethodPost, "/callback") {
		var r Response
		if err := c.Decode(&r); err == nil {
			out = append(out, r)
		}
	}
	return out
}

// ChannelMessages decodes the messages posted to channelID.
func (f *Fake) ChannelMessages(channelID string) []Sent {
	return f.decodeAll(http.MethodPost, "channels/"+channelID+"/messages")
}

// Edits decodes the message edits sent to channelID.
func (f *Fake) Edits(channelID string) []Sent {
	return f.decodeAll(http.MethodPatch, "channels/"+channelID+"/messages")
}

// Followups decodes the webhook follow-up messages.
func (f *Fake) Followups() []Sent {
	return f.decodeAll(http.MethodPost, "webhooks/")
}

func (f *Fake) decodeAll(method, fragment string) []Sent {
	var out []Sent
	for _, c := range f.Find(method, fragment) {
		var m Sent
		if err := c.Decode(&m); err == nil {
			out = append(out, m)
		}
	}
	return out
}

// errUnknownMessage makes serve answer 404 like Discord does for deleted messages.
var errUnknownMessage = &discordgo.APIErrorMessage{Code: discordgo.ErrCodeUnknownMessage, Message: "Unknown Message"}

func (f *Fake) nextID(prefix string) string {
	f.seq++
	return fmt.Sprintf("%s%d", prefix, f.seq)
}

func (f *Fake) serve(w http.ResponseWriter, r *http.Request) {
	body, files := readBody(r)

	f.mu.Lock()
	f.calls = append(f.calls, Call{Method: r.Method, Path: r.URL.Path, Body: body, Files: files})
	resp := f.respondLocked(r.Method, r.URL.Path, body)
	f.mu.Unlock()

	if resp == nil {
		w.WriteHeader(http.StatusNoContent)
		return
	}
	if resp == errUnknownMessage {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusNotFound)
		_, _ = io.WriteString(w, `{"message": "Unknown Message", "code": 10008}`)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(resp)
}

func (f *Fake) respondLocked(method, path string, body []byte) any {
	parts := strings.Split(strings.Trim(path, "/"), "/")
	// Drop the api/v9 prefix.
	for len(parts) > 0 && (parts[0] == "api" || strings.HasPrefix(parts[0], "v")) {
		parts = parts[1:]
	}
	if len(parts) == 0 {
		return map[string]any{}
	}

	switch {
	case parts[0] == "interactions":
		return nil
	case parts[0] == "channels" && len(parts) >= 3 && parts[2] == "messages" && method == http.MethodPost:
		var m Sent
		_ = json.Unmarshal(body, &m)
		msg := &discordgo.Message{ID: f.nextID("m"), ChannelID: parts[1], Content: m.Content, Embeds: m.Embeds}
		f.messages[msg.ID] = msg
		return msg
	case parts[0] == "channels" && len(parts) == 4 && parts[2] == "messages" && method == http.MethodPatch:
		if msg, ok := f.messages[parts[3]]; ok {
			return msg
		}
		if parts[3] == "clicked" {
			return &discordgo.Message{ID: parts[3], ChannelID: parts[1]}
		}
		return errUnknownMessage
	case parts[0] == "channels" && len(parts) == 2 && method == http.MethodDelete:
		ch := f.channels[parts[1]]
		delete(f.channels, parts[1])
		if ch == nil {
			ch = &discordgo.Channel{ID: parts[1]}
		}
		return ch
	case parts[0] == "channels" && len(parts) == 2:
		if ch, ok := f.channels[parts[1]]; ok {
			return ch
		}
		return &discordgo.Channel{ID: parts[1], GuildID: GuildID}
	case parts[0] == "guilds" && len(parts) == 3 && parts[2] == "channels" && method == http.MethodPost:
		var data discordgo.GuildChannelCreateData
		_ = json.Unmarshal(body, &data)
		ch := &discordgo.Channel{
			ID:                   f.nextID("c"),
			GuildID:              parts[1],
			Name:                 data.Name,
			Topic:                data.Topic,
			Type:                 data.Type,
			ParentID:             data.ParentID,
			PermissionOverwrites: data.PermissionOverwrites,
		}
		f.channels[ch.ID] = ch
		return ch
	case parts[0] == "guilds" && len(parts) == 3 && parts[2] == "channels":
		out := make([]*discordgo.Channel, 0, len(f.channels))
		for _, ch := range f.channels {
			out = append(out, ch)
		}
		return out
	case parts[0] == "applications" && method == http.MethodGet:
		return []*discordgo.ApplicationCommand{}
	case parts[0] == "applications" && method == http.MethodPost:
		var cmd discordgo.ApplicationCommand
		_ = json.Unmarshal(body, &cmd)
		cmd.ID = f.nextID("cmd")
		return &cmd
	case parts[0] == "webhooks":
		return &discordgo.Message{ID: f.nextID("m")}
	}
	return map[string]any{}
}

func readBody(r *http.Request) ([]byte, []string) {
	raw, _ := io.ReadAll(r.Body)
	mediaType, params, err := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if err != nil || !strings.HasPrefix(mediaType, "multipart/") {
		return raw, nil
	}

	var payload []byte
	var files []string
	mr := multipart.NewReader(bytes.NewReader(raw), params["boundary"])
	for {
		part, err := mr.NextPart()
		if err != nil {
			break
		}
		data, _ := io.ReadAll(part)
		if part.FormName() == "payload_json" {
			payload = data
		} else if name := part.FileName(); name != "" {
			files = append(files, name)
		}
	}
	return payload, files
}
