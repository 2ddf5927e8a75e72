package core

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"maps"
	"slices"
	"time"

	"github.com/bwmarrin/discordgo"

	"github.com/small-frappuccino/tasbot/pkg/log"
)

// InteractionTimeout bounds the work done for one interaction.
const InteractionTimeout = 30 * time.Second

const genericErrorMessage = "Ocorreu um erro ao processar sua solicitação. Tente novamente."

type componentRoute struct {
	level PermissionLevel
	fn    ComponentFunc
}

// CommandRegistry gerencia registro de comandos e handlers de componentes
type CommandRegistry struct {
	commands     map[string]Command
	components   map[string]componentRoute
	autocomplete map[string]func(ctx *Context, focused *discordgo.ApplicationCommandInteractionDataOption) ([]*discordgo.ApplicationCommandOptionChoice, error)
}

func NewCommandRegistry() *CommandRegistry {
	return &CommandRegistry{
		commands:     make(map[string]Command),
		components:   make(map[string]componentRoute),
		autocomplete: make(map[string]func(*Context, *discordgo.ApplicationCommandInteractionDataOption) ([]*discordgo.ApplicationCommandOptionChoice, error)),
	}
}

// Register registra um comando no registry
func (r *CommandRegistry) Register(cmd Command) {
	r.commands[cmd.Name()] = cmd
}

// RegisterComponent routes every custom_id starting with "handler:" to fn.
// Buttons, select menus and modal submits share the same table.
func (r *CommandRegistry) RegisterComponent(handler string, level PermissionLevel, fn ComponentFunc) {
	r.components[handler] = componentRoute{level: level, fn: fn}
}

// GetCommand retorna um comando pelo nome
func (r *CommandRegistry) GetCommand(name string) (Command, bool) {
	cmd, exists := r.commands[name]
	return cmd, exists
}

// CommandNames returns the registered command names, sorted.
func (r *CommandRegistry) CommandNames() []string {
	return slices.Sorted(maps.Keys(r.commands))
}

// ContextBuilder creates contexts for interaction handling
type ContextBuilder struct {
	session  *discordgo.Session
	settings SettingsSource
	checker  *PermissionChecker
	logger   *slog.Logger
}

// NewContextBuilder creates a new context builder
func NewContextBuilder(session *discordgo.Session, settings SettingsSource, checker *PermissionChecker) *ContextBuilder {
	return &ContextBuilder{
		session:  session,
		settings: settings,
		checker:  checker,
		logger:   log.DiscordLogger(),
	}
}

// BuildContext creates a complete context for one interaction
func (cb *ContextBuilder) BuildContext(parent context.Context, i *discordgo.InteractionCreate, responder *Responder) *Context {
	ctx := &Context{
		Context:     parent,
		Session:     cb.session,
		Interaction: i,
		GuildID:     i.GuildID,
		ChannelID:   i.ChannelID,
		Member:      i.Member,
		responder:   responder,
	}
	if u := interactionUser(i); u != nil {
		ctx.UserID = u.ID
		ctx.Username = u.Username
	}
	if cb.settings != nil {
		ctx.Settings = cb.settings.Snapshot()
	}
	if cb.checker != nil {
		ctx.Level = cb.checker.Level(i.GuildID, i.Member)
	}
	ctx.Logger = cb.logger.With("interaction", i.ID, "guild_id", ctx.GuildID, "user_id", ctx.UserID)
	return ctx
}

// CommandRouter gerencia o roteamento de interações
type CommandRouter struct {
	registry       *CommandRegistry
	contextBuilder *ContextBuilder
	responder      *Responder
	permChecker    *PermissionChecker
	base           context.Context
}

// NewCommandRouter cria um novo roteador de comandos
func NewCommandRouter(session *discordgo.Session, settings SettingsSource, checker *PermissionChecker) *CommandRouter {
	return &CommandRouter{
		registry:       NewCommandRegistry(),
		contextBuilder: NewContextBuilder(session, settings, checker),
		responder:      NewResponder(session),
		permChecker:    checker,
		base:           context.Background(),
	}
}

// SetBaseContext sets the parent of every interaction context.
func (cr *CommandRouter) SetBaseContext(ctx context.Context) { cr.base = ctx }

// RegisterCommand registra um comando
func (cr *CommandRouter) RegisterCommand(cmd Command) {
	cr.registry.Register(cmd)
}

// RegisterComponent registra um handler de componentes por prefixo de custom_id
func (cr *CommandRouter) RegisterComponent(handler string, level PermissionLevel, fn ComponentFunc) {
	cr.registry.RegisterComponent(handler, level, fn)
}

// RegisterAutocomplete registra um handler de autocomplete
func (cr *CommandRouter) RegisterAutocomplete(commandName string, fn func(*Context, *discordgo.ApplicationCommandInteractionDataOption) ([]*discordgo.ApplicationCommandOptionChoice, error)) {
	cr.registry.autocomplete[commandName] = fn
}

// GetRegistry returns the command registry
func (cr *CommandRouter) GetRegistry() *CommandRegistry { return cr.registry }

// GetResponder returns the responder
func (cr *CommandRouter) GetResponder() *Responder { return cr.responder }

// HandleInteraction roteia interações para os handlers apropriados
func (cr *CommandRouter) HandleInteraction(s *discordgo.Session, i *discordgo.InteractionCreate) {
	parent, cancel := context.WithTimeout(cr.base, InteractionTimeout)
	defer cancel()
	ctx := cr.contextBuilder.BuildContext(parent, i, cr.responder)

	switch i.Type {
	case discordgo.InteractionApplicationCommand:
		cr.handleSlashCommand(ctx)
	case discordgo.InteractionApplicationCommandAutocomplete:
		cr.handleAutocomplete(ctx)
	case discordgo.InteractionMessageComponent:
		cr.handleComponent(ctx, i.MessageComponentData().CustomID)
	case discordgo.InteractionModalSubmit:
		cr.handleComponent(ctx, i.ModalSubmitData().CustomID)
	}
}

func (cr *CommandRouter) handleSlashCommand(ctx *Context) {
	name := ctx.Interaction.ApplicationCommandData().Name
	logger := ctx.Logger.With("command", GetCommandPath(ctx.Interaction))
	ctx.Logger = logger

	cmd, exists := cr.registry.GetCommand(name)
	if !exists {
		logger.Warn("⚠️ Command not found")
		_ = cr.responder.Error(ctx.Interaction, "Comando não encontrado.")
		return
	}
	if cmd.RequiresGuild() && ctx.GuildID == "" {
		_ = cr.responder.Error(ctx.Interaction, "Este comando só pode ser usado em um servidor.")
		return
	}
	if !ctx.Can(cmd.Permission()) {
		logger.Warn("🚫 Permission denied", "required", cmd.Permission().String(), "level", ctx.Level.String())
		_ = cr.responder.Error(ctx.Interaction, "Você não tem permissão para usar este comando.")
		return
	}

	logger.Info("⚡ Executing command")
	cr.finish(ctx, cmd.Handle(ctx))
}

func (cr *CommandRouter) handleComponent(ctx *Context, raw string) {
	id, ok := ParseCustomID(raw)
	if !ok {
		ctx.Logger.Debug("Ignoring component with foreign custom id", "custom_id", raw)
		return
	}
	route, exists := cr.registry.components[id.Handler]
	if !exists {
		ctx.Logger.Warn("⚠️ No handler for component", "custom_id", raw)
		_ = cr.responder.Error(ctx.Interaction, "Esta interação não está mais disponível.")
		return
	}
	ctx.Logger = ctx.Logger.With("custom_id", raw)
	if !ctx.Can(route.level) {
		ctx.Logger.Warn("🚫 Permission denied", "required", route.level.String(), "level", ctx.Level.String())
		_ = cr.responder.Error(ctx.Interaction, "Você não tem permissão para usar este botão.")
		return
	}
	cr.finish(ctx, route.fn(ctx, id))
}

func (cr *CommandRouter) handleAutocomplete(ctx *Context) {
	name := ctx.Interaction.ApplicationCommandData().Name
	fn, exists := cr.registry.autocomplete[name]
	focused, hasFocus := HasFocusedOption(ctx.Interaction.ApplicationCommandData().Options)
	if !exists || !hasFocus {
		_ = ctx.Autocomplete(nil)
		return
	}
	choices, err := fn(ctx, focused)
	if err != nil {
		ctx.Logger.Error("❌ Autocomplete handler failed", "error", err)
		choices = nil
	}
	_ = ctx.Autocomplete(choices)
}

// finish maps a handler error to a user-facing reply.
func (cr *CommandRouter) finish(ctx *Context, err error) {
	if err == nil {
		return
	}

	var cmdErr *CommandError
	var valErr *ValidationError
	switch {
	case errors.As(err, &cmdErr):
		ctx.Logger.Info("Command rejected", "reason", cmdErr.Message)
		if cmdErr.Ephemeral {
			err = ctx.Fail(cmdErr.Message)
		} else {
			err = ctx.Reply(ResponseError.Prefix() + cmdErr.Message)
		}
	case errors.As(err, &valErr):
		ctx.Logger.Info("Invalid input", "field", valErr.Field, "reason", valErr.Message)
		err = ctx.Fail(valErr.Message)
	default:
		ctx.Logger.Error("❌ Interaction handler failed", "error", err)
		err = ctx.Fail(genericErrorMessage)
	}
	if err != nil {
		ctx.Logger.Warn("⚠️ Failed to send error reply", "error", err)
	}
}

// CommandManager gerencia o ciclo de vida dos comandos no Discord
type CommandManager struct {
	session *discordgo.Session
	router  *CommandRouter
	guildID string
	logger  *slog.Logger
	remove  func()
}

// NewCommandManager cria um novo gerenciador de comandos. Commands are synced
// to guildID, or globally when it is empty.
func NewCommandManager(session *discordgo.Session, router *CommandRouter, guildID string) *CommandManager {
	return &CommandManager{
		session: session,
		router:  router,
		guildID: guildID,
		logger:  log.DiscordLogger().With("component", "command_manager"),
	}
}

// GetRouter retorna o roteador de comandos
func (cm *CommandManager) GetRouter() *CommandRouter {
	return cm.router
}

// SetupCommands registers the interaction handler and syncs commands with Discord
func (cm *CommandManager) SetupCommands() error {
	cm.remove = cm.session.AddHandler(cm.router.HandleInteraction)

	appID := cm.appID()
	if appID == "" {
		return fmt.Errorf("application id unavailable: session not ready")
	}

	registered, err := cm.session.ApplicationCommands(appID, cm.guildID)
	if err != nil {
		return fmt.Errorf("failed to fetch registered commands: %w", err)
	}
	regByName := make(map[string]*discordgo.ApplicationCommand, len(registered))
	for _, rc := range registered {
		regByName[rc.Name] = rc
	}

	created, updated, unchanged := 0, 0, 0
	for _, name := range cm.router.registry.CommandNames() {
		cmd := cm.router.registry.commands[name]
		desired := &discordgo.ApplicationCommand{
			Name:        cmd.Name(),
			Description: cmd.Description(),
			Options:     cmd.Options(),
		}

		if existing, ok := regByName[name]; ok {
			if CompareCommands(existing, desired) {
				unchanged++
				continue
			}
			if _, err := cm.session.ApplicationCommandEdit(appID, cm.guildID, existing.ID, desired); err != nil {
				return fmt.Errorf("error updating command '%s': %w", name, err)
			}
			cm.logger.Info("🔁 Command updated", "command", name)
			updated++
			continue
		}
		if _, err := cm.session.ApplicationCommandCreate(appID, cm.guildID, desired); err != nil {
			return fmt.Errorf("error creating command '%s': %w", name, err)
		}
		cm.logger.Info("🆕 Command created", "command", name)
		created++
	}

	deleted := 0
	for _, rc := range registered {
		if _, exists := cm.router.registry.commands[rc.Name]; exists {
			continue
		}
		if err := cm.session.ApplicationCommandDelete(appID, cm.guildID, rc.ID); err != nil {
			cm.logger.Warn("⚠️ Error removing orphan command", "command", rc.Name, "error", err)
			continue
		}
		cm.logger.Info("🗑️ Orphan command removed", "command", rc.Name)
		deleted++
	}

	cm.logger.Info("✅ Command synchronization completed",
		"created", created,
		"updated", updated,
		"deleted", deleted,
		"unchanged", unchanged,
		"total", len(cm.router.registry.commands),
		"guild_id", cm.guildID)
	return nil
}

// Shutdown detaches the interaction handler.
func (cm *CommandManager) Shutdown() {
	if cm.remove != nil {
		cm.remove()
		cm.remove = nil
	}
}

func (cm *CommandManager) appID() string {
	if cm.session.State != nil && cm.session.State.User != nil {
		return cm.session.State.User.ID
	}
	return ""
}

// GroupCommand representa um comando que contém subcomandos
type GroupCommand struct {
	name        string
	description string
	permission  PermissionLevel
	subcommands map[string]SubCommand
}

// NewGroupCommand cria um novo comando de grupo
func NewGroupCommand(name, description string) *GroupCommand {
	return &GroupCommand{
		name:        name,
		description: description,
		permission:  PermissionAdmin,
		subcommands: make(map[string]SubCommand),
	}
}

// AddSubCommand adiciona um subcomando ao grupo
func (gc *GroupCommand) AddSubCommand(subcmd SubCommand) *GroupCommand {
	gc.subcommands[subcmd.Name()] = subcmd
	gc.permission = min(gc.permission, subcmd.Permission())
	return gc
}

func (gc *GroupCommand) Name() string        { return gc.name }
func (gc *GroupCommand) Description() string { return gc.description }
func (gc *GroupCommand) RequiresGuild() bool { return true }

// Permission is the lowest level among the subcommands; each subcommand checks its own.
func (gc *GroupCommand) Permission() PermissionLevel { return gc.permission }

// Options constrói as opções do comando baseadas nos subcomandos, em ordem alfabética
func (gc *GroupCommand) Options() []*discordgo.ApplicationCommandOption {
	options := make([]*discordgo.ApplicationCommandOption, 0, len(gc.subcommands))
	for _, name := range slices.Sorted(maps.Keys(gc.subcommands)) {
		subcmd := gc.subcommands[name]
		options = append(options, &discordgo.ApplicationCommandOption{
			Type:        discordgo.ApplicationCommandOptionSubCommand,
			Name:        subcmd.Name(),
			Description: subcmd.Description(),
			Options:     subcmd.Options(),
		})
	}
	return options
}

// Handle roteia para o subcomando apropriado
func (gc *GroupCommand) Handle(ctx *Context) error {
	name := GetSubCommandName(ctx.Interaction)
	if name == "" {
		return NewCommandError("Nenhum subcomando informado.", true)
	}
	subcmd, exists := gc.subcommands[name]
	if !exists {
		return NewCommandError("Subcomando desconhecido.", true)
	}
	if !ctx.Can(subcmd.Permission()) {
		return NewCommandError("Você não tem permissão para usar este subcomando.", true)
	}
	return subcmd.Handle(ctx)
}

// SimpleCommand implementa Command e SubCommand para comandos simples
type SimpleCommand struct {
	name          string
	description   string
	options       []*discordgo.ApplicationCommandOption
	handler       func(ctx *Context) error
	requiresGuild bool
	permission    PermissionLevel
}

// NewSimpleCommand cria um comando simples
func NewSimpleCommand(
	name, description string,
	options []*discordgo.ApplicationCommandOption,
	handler func(ctx *Context) error,
	permission PermissionLevel,
) *SimpleCommand {
	return &SimpleCommand{
		name:          name,
		description:   description,
		options:       options,
		handler:       handler,
		requiresGuild: true,
		permission:    permission,
	}
}

func (sc *SimpleCommand) Name() string        { return sc.name }
func (sc *SimpleCommand) Description() string { return sc.description }
func (sc *SimpleCommand) Options() []*discordgo.ApplicationCommandOption {
	return sc.options
}
func (sc *SimpleCommand) Handle(ctx *Context) error   { return sc.handler(ctx) }
func (sc *SimpleCommand) RequiresGuild() bool         { return sc.requiresGuild }
func (sc *SimpleCommand) Permission() PermissionLevel { return sc.permission }
