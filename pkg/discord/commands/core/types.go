package core

import (
	"context"
	"log/slog"

	"github.com/bwmarrin/discordgo"

	"github.com/small-frappuccino/tasbot/pkg/files"
)

// Command representa um comando slash
type Command interface {
	Name() string
	Description() string
	Options() []*discordgo.ApplicationCommandOption
	Handle(ctx *Context) error
	RequiresGuild() bool
	Permission() PermissionLevel
}

// SubCommand representa um subcomando dentro de um comando maior
type SubCommand interface {
	Name() string
	Description() string
	Options() []*discordgo.ApplicationCommandOption
	Handle(ctx *Context) error
	Permission() PermissionLevel
}

// ComponentFunc trata botões, selects e modais roteados pelo custom_id.
type ComponentFunc func(ctx *Context, id CustomID) error

// PermissionLevel define níveis de permissão, em ordem crescente.
type PermissionLevel int

const (
	PermissionNone PermissionLevel = iota
	PermissionTransporter
	PermissionStaff
	PermissionAdmin
)

func (p PermissionLevel) String() string {
	switch p {
	case PermissionTransporter:
		return "transporter"
	case PermissionStaff:
		return "staff"
	case PermissionAdmin:
		return "admin"
	default:
		return "none"
	}
}

// SettingsSource supplies the current settings snapshot.
type SettingsSource interface {
	Snapshot() files.Settings
}

// Context fornece contexto unificado para execução de comandos e componentes
type Context struct {
	context.Context

	Session     *discordgo.Session
	Interaction *discordgo.InteractionCreate
	Settings    files.Settings
	Logger      *slog.Logger
	GuildID     string
	ChannelID   string
	UserID      string
	Username    string
	Member      *discordgo.Member
	Level       PermissionLevel

	responder *Responder
	responded bool
}

// Can reports whether the caller holds at least level.
func (c *Context) Can(level PermissionLevel) bool { return c.Level >= level }

// Options returns an extractor over the slash command options (subcommand aware).
func (c *Context) Options() *OptionExtractor {
	return NewOptionExtractor(GetSubCommandOptions(c.Interaction))
}

// Responded reports whether the interaction already got its initial response.
func (c *Context) Responded() bool { return c.responded }

// CommandError representa erros de comando que devem ser mostrados ao usuário
type CommandError struct {
	Message   string
	Ephemeral bool
	Code      string
}

func (e *CommandError) Error() string {
	return e.Message
}

// NewCommandError cria um novo erro de comando
func NewCommandError(message string, ephemeral bool) *CommandError {
	return &CommandError{
		Message:   message,
		Ephemeral: ephemeral,
	}
}

// ValidationError representa erros de validação de entrada
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return e.Message
}

// NewValidationError cria um novo erro de validação
func NewValidationError(field, message string) *ValidationError {
	return &ValidationError{
		Field:   field,
		Message: message,
	}
}
