package core

import (
	"time"

	"github.com/bwmarrin/discordgo"

	"github.com/small-frappuccino/tasbot/pkg/theme"
)

// ResponseType define tipos de resposta padronizados
type ResponseType int

const (
	ResponseSuccess ResponseType = iota
	ResponseError
	ResponseWarning
	ResponseInfo
	ResponseLoading
)

// Prefix returns the emoji used in plain text replies.
func (rt ResponseType) Prefix() string {
	switch rt {
	case ResponseSuccess:
		return "✅ "
	case ResponseError:
		return "❌ "
	case ResponseWarning:
		return "⚠️ "
	case ResponseInfo:
		return "ℹ️ "
	case ResponseLoading:
		return "⏳ "
	default:
		return ""
	}
}

// Color returns the theme color for the type.
func (rt ResponseType) Color() int {
	switch rt {
	case ResponseSuccess:
		return theme.Success()
	case ResponseError:
		return theme.Error()
	case ResponseWarning:
		return theme.Warning()
	case ResponseInfo:
		return theme.Info()
	case ResponseLoading:
		return theme.Loading()
	default:
		return theme.Muted()
	}
}

// Responder envia respostas de interação
type Responder struct {
	session *discordgo.Session
}

// NewResponder cria um novo responder
func NewResponder(session *discordgo.Session) *Responder {
	return &Responder{session: session}
}

func flagsFor(ephemeral bool) discordgo.MessageFlags {
	if ephemeral {
		return discordgo.MessageFlagsEphemeral
	}
	return 0
}

// Respond sends a channel message response with data.
func (r *Responder) Respond(i *discordgo.InteractionCreate, data *discordgo.InteractionResponseData) error {
	return r.session.InteractionRespond(i.Interaction, &discordgo.InteractionResponse{
		Type: discordgo.InteractionResponseChannelMessageWithSource,
		Data: data,
	})
}

// Text envia uma resposta de texto com o prefixo do tipo
func (r *Responder) Text(i *discordgo.InteractionCreate, rt ResponseType, message string, ephemeral bool) error {
	return r.Respond(i, &discordgo.InteractionResponseData{
		Content: rt.Prefix() + message,
		Flags:   flagsFor(ephemeral),
	})
}

// Error envia uma resposta de erro ephemeral
func (r *Responder) Error(i *discordgo.InteractionCreate, message string) error {
	return r.Text(i, ResponseError, message, true)
}

// Ephemeral envia uma resposta ephemeral simples
func (r *Responder) Ephemeral(i *discordgo.InteractionCreate, message string) error {
	return r.Respond(i, &discordgo.InteractionResponseData{Content: message, Flags: discordgo.MessageFlagsEphemeral})
}

// Embed envia uma resposta com embed e componentes opcionais
func (r *Responder) Embed(i *discordgo.InteractionCreate, embed *discordgo.MessageEmbed, ephemeral bool, components ...discordgo.MessageComponent) error {
	return r.Respond(i, &discordgo.InteractionResponseData{
		Embeds:     []*discordgo.MessageEmbed{embed},
		Components: components,
		Flags:      flagsFor(ephemeral),
	})
}

// Defer adia a resposta (para processamento longo)
func (r *Responder) Defer(i *discordgo.InteractionCreate, ephemeral bool) error {
	return r.session.InteractionRespond(i.Interaction, &discordgo.InteractionResponse{
		Type: discordgo.InteractionResponseDeferredChannelMessageWithSource,
		Data: &discordgo.InteractionResponseData{Flags: flagsFor(ephemeral)},
	})
}

// Update edita a mensagem que contém o componente clicado
func (r *Responder) Update(i *discordgo.InteractionCreate, data *discordgo.InteractionResponseData) error {
	return r.session.InteractionRespond(i.Interaction, &discordgo.InteractionResponse{
		Type: discordgo.InteractionResponseUpdateMessage,
		Data: data,
	})
}

// Modal abre um modal
func (r *Responder) Modal(i *discordgo.InteractionCreate, customID, title string, inputs ...discordgo.TextInput) error {
	rows := make([]discordgo.MessageComponent, 0, len(inputs))
	for _, in := range inputs {
		rows = append(rows, discordgo.ActionsRow{Components: []discordgo.MessageComponent{in}})
	}
	return r.session.InteractionRespond(i.Interaction, &discordgo.InteractionResponse{
		Type: discordgo.InteractionResponseModal,
		Data: &discordgo.InteractionResponseData{
			CustomID:   customID,
			Title:      title,
			Components: rows,
		},
	})
}

// FollowUp envia uma mensagem de follow-up
func (r *Responder) FollowUp(i *discordgo.InteractionCreate, params *discordgo.WebhookParams) (*discordgo.Message, error) {
	return r.session.FollowupMessageCreate(i.Interaction, true, params)
}

// Autocomplete envia uma resposta de autocomplete
func (r *Responder) Autocomplete(i *discordgo.InteractionCreate, choices []*discordgo.ApplicationCommandOptionChoice) error {
	if len(choices) > 25 {
		choices = choices[:25]
	}
	return r.session.InteractionRespond(i.Interaction, &discordgo.InteractionResponse{
		Type: discordgo.InteractionApplicationCommandAutocompleteResult,
		Data: &discordgo.InteractionResponseData{Choices: choices},
	})
}

// --- Context shortcuts ---
// After the first response every reply becomes a follow-up.

func (c *Context) send(data *discordgo.InteractionResponseData) error {
	if c.responded {
		_, err := c.responder.FollowUp(c.Interaction, &discordgo.WebhookParams{
			Content:    data.Content,
			Embeds:     data.Embeds,
			Components: data.Components,
			Files:      data.Files,
			Flags:      data.Flags,
		})
		return err
	}
	c.responded = true
	return c.responder.Respond(c.Interaction, data)
}

// Respond sends data as the response (or a follow-up when already answered).
func (c *Context) Respond(data *discordgo.InteractionResponseData) error { return c.send(data) }

// Reply sends a public text message.
func (c *Context) Reply(message string) error {
	return c.send(&discordgo.InteractionResponseData{Content: message})
}

// Ephemeral sends a text only the caller sees.
func (c *Context) Ephemeral(message string) error {
	return c.send(&discordgo.InteractionResponseData{Content: message, Flags: discordgo.MessageFlagsEphemeral})
}

// Success sends an ephemeral ✅ message.
func (c *Context) Success(message string) error {
	return c.Ephemeral(ResponseSuccess.Prefix() + message)
}

// Fail sends an ephemeral ❌ message.
func (c *Context) Fail(message string) error { return c.Ephemeral(ResponseError.Prefix() + message) }

// Embed sends embed with optional components.
func (c *Context) Embed(embed *discordgo.MessageEmbed, ephemeral bool, components ...discordgo.MessageComponent) error {
	return c.send(&discordgo.InteractionResponseData{
		Embeds:     []*discordgo.MessageEmbed{embed},
		Components: components,
		Flags:      flagsFor(ephemeral),
	})
}

// Defer acknowledges the interaction; later replies are follow-ups.
func (c *Context) Defer(ephemeral bool) error {
	if c.responded {
		return nil
	}
	c.responded = true
	return c.responder.Defer(c.Interaction, ephemeral)
}

// Update replaces the message holding the clicked component.
func (c *Context) Update(data *discordgo.InteractionResponseData) error {
	c.responded = true
	return c.responder.Update(c.Interaction, data)
}

// Modal opens a modal. It must be the first response.
func (c *Context) Modal(customID, title string, inputs ...discordgo.TextInput) error {
	c.responded = true
	return c.responder.Modal(c.Interaction, customID, title, inputs...)
}

// Autocomplete answers an autocomplete request.
func (c *Context) Autocomplete(choices []*discordgo.ApplicationCommandOptionChoice) error {
	c.responded = true
	return c.responder.Autocomplete(c.Interaction, choices)
}

// EmbedBuilder constrói embeds padronizados com o rodapé da marca
type EmbedBuilder struct {
	Footer string
	now    func() time.Time
}

// NewEmbedBuilder creates a builder that stamps footer on every embed.
func NewEmbedBuilder(footer string) EmbedBuilder {
	return EmbedBuilder{Footer: footer, now: time.Now}
}

// Build cria um embed com cor, rodapé e timestamp
func (b EmbedBuilder) Build(title, description string, color int, fields ...*discordgo.MessageEmbedField) *discordgo.MessageEmbed {
	now := time.Now
	if b.now != nil {
		now = b.now
	}
	e := &discordgo.MessageEmbed{
		Title:       title,
		Description: description,
		Color:       color,
		Fields:      fields,
		Timestamp:   now().Format(time.RFC3339),
	}
	if b.Footer != "" {
		e.Footer = &discordgo.MessageEmbedFooter{Text: b.Footer}
	}
	return e
}

// Success cria um embed de sucesso
func (b EmbedBuilder) Success(title, description string) *discordgo.MessageEmbed {
	return b.Build(title, description, theme.Success())
}

// Error cria um embed de erro
func (b EmbedBuilder) Error(title, description string) *discordgo.MessageEmbed {
	return b.Build(title, description, theme.Error())
}

// Info cria um embed informativo
func (b EmbedBuilder) Info(title, description string) *discordgo.MessageEmbed {
	return b.Build(title, description, theme.Info())
}

// Warning cria um embed de aviso
func (b EmbedBuilder) Warning(title, description string) *discordgo.MessageEmbed {
	return b.Build(title, description, theme.Warning())
}

// Field is a shorthand for an embed field.
func Field(name, value string, inline bool) *discordgo.MessageEmbedField {
	if value == "" {
		value = "-"
	}
	return &discordgo.MessageEmbedField{Name: name, Value: value, Inline: inline}
}
