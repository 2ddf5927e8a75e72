package core

import (
	"encoding/json"
	"fmt"
	"slices"
	"strings"

	"github.com/bwmarrin/discordgo"
)

// OptionExtractor simplifies extraction of options for Discord commands
type OptionExtractor struct {
	options []*discordgo.ApplicationCommandInteractionDataOption
}

// NewOptionExtractor creates a new option extractor
func NewOptionExtractor(options []*discordgo.ApplicationCommandInteractionDataOption) *OptionExtractor {
	return &OptionExtractor{options: options}
}

func (e *OptionExtractor) find(name string) *discordgo.ApplicationCommandInteractionDataOption {
	for _, opt := range e.options {
		if opt.Name == name {
			return opt
		}
	}
	return nil
}

// String extracts a string option by name
func (e *OptionExtractor) String(name string) string {
	if opt := e.find(name); opt != nil && opt.Type == discordgo.ApplicationCommandOptionString {
		return strings.TrimSpace(opt.StringValue())
	}
	return ""
}

// StringRequired extracts a required string option
func (e *OptionExtractor) StringRequired(name string) (string, error) {
	value := e.String(name)
	if value == "" {
		return "", NewValidationError(name, fmt.Sprintf("A opção '%s' é obrigatória", name))
	}
	return value, nil
}

// Int extracts an integer option by name
func (e *OptionExtractor) Int(name string) int64 {
	if opt := e.find(name); opt != nil && opt.Type == discordgo.ApplicationCommandOptionInteger {
		return opt.IntValue()
	}
	return 0
}

// Float extracts a number option by name
func (e *OptionExtractor) Float(name string) float64 {
	if opt := e.find(name); opt != nil && opt.Type == discordgo.ApplicationCommandOptionNumber {
		return opt.FloatValue()
	}
	return 0
}

// Bool extracts a boolean option by name
func (e *OptionExtractor) Bool(name string) bool {
	if opt := e.find(name); opt != nil && opt.Type == discordgo.ApplicationCommandOptionBoolean {
		return opt.BoolValue()
	}
	return false
}

// HasOption checks whether an option exists
func (e *OptionExtractor) HasOption(name string) bool {
	return e.find(name) != nil
}

// GetSubCommandName extracts the subcommand name from the interaction
func GetSubCommandName(i *discordgo.InteractionCreate) string {
	if i == nil || i.Type != discordgo.InteractionApplicationCommand && i.Type != discordgo.InteractionApplicationCommandAutocomplete {
		return ""
	}
	options := i.ApplicationCommandData().Options
	if len(options) > 0 && options[0].Type == discordgo.ApplicationCommandOptionSubCommand {
		return options[0].Name
	}
	return ""
}

// GetSubCommandOptions extracts the subcommand options, or the direct options when there is no subcommand
func GetSubCommandOptions(i *discordgo.InteractionCreate) []*discordgo.ApplicationCommandInteractionDataOption {
	if i == nil || i.Type != discordgo.InteractionApplicationCommand && i.Type != discordgo.InteractionApplicationCommandAutocomplete {
		return nil
	}
	options := i.ApplicationCommandData().Options
	if len(options) > 0 && options[0].Type == discordgo.ApplicationCommandOptionSubCommand {
		return options[0].Options
	}
	return options
}

// GetCommandPath returns the full command path (command + subcommand if present)
func GetCommandPath(i *discordgo.InteractionCreate) string {
	path := i.ApplicationCommandData().Name
	if sub := GetSubCommandName(i); sub != "" {
		path += " " + sub
	}
	return path
}

// HasFocusedOption checks if there is a focused option (for autocomplete)
func HasFocusedOption(options []*discordgo.ApplicationCommandInteractionDataOption) (*discordgo.ApplicationCommandInteractionDataOption, bool) {
	for _, opt := range options {
		if opt.Focused {
			return opt, true
		}
		if opt.Type == discordgo.ApplicationCommandOptionSubCommand && len(opt.Options) > 0 {
			if focused, found := HasFocusedOption(opt.Options); found {
				return focused, true
			}
		}
	}
	return nil, false
}

// ModalValues flattens the text inputs of a modal submit by custom id.
func ModalValues(i *discordgo.InteractionCreate) map[string]string {
	out := make(map[string]string)
	if i == nil || i.Type != discordgo.InteractionModalSubmit {
		return out
	}
	for _, c := range i.ModalSubmitData().Components {
		row, ok := c.(*discordgo.ActionsRow)
		if !ok {
			continue
		}
		for _, inner := range row.Components {
			if in, ok := inner.(*discordgo.TextInput); ok {
				out[in.CustomID] = strings.TrimSpace(in.Value)
			}
		}
	}
	return out
}

// SelectedValue returns the first value picked in a select menu.
func SelectedValue(i *discordgo.InteractionCreate) string {
	if i == nil || i.Type != discordgo.InteractionMessageComponent {
		return ""
	}
	if v := i.MessageComponentData().Values; len(v) > 0 {
		return v[0]
	}
	return ""
}

func interactionUser(i *discordgo.InteractionCreate) *discordgo.User {
	if i == nil || i.Interaction == nil {
		return nil
	}
	if i.Member != nil && i.Member.User != nil {
		return i.Member.User
	}
	return i.User
}

// --- Component helpers ---

// Button builds a button routed by customID.
func Button(label, customID string, style discordgo.ButtonStyle, emoji string) discordgo.Button {
	b := discordgo.Button{Label: label, CustomID: customID, Style: style}
	if emoji != "" {
		b.Emoji = &discordgo.ComponentEmoji{Name: emoji}
	}
	return b
}

// Row wraps components in an action row.
func Row(components ...discordgo.MessageComponent) discordgo.ActionsRow {
	return discordgo.ActionsRow{Components: components}
}

// TextInput builds a modal text input.
func TextInput(customID, label, placeholder string, style discordgo.TextInputStyle, required bool, minLen, maxLen int) discordgo.TextInput {
	return discordgo.TextInput{
		CustomID:    customID,
		Label:       label,
		Placeholder: placeholder,
		Style:       style,
		Required:    required,
		MinLength:   minLen,
		MaxLength:   maxLen,
	}
}

// CompareCommands compares two commands to check if they are semantically equal
func CompareCommands(a, b *discordgo.ApplicationCommand) bool {
	type shape struct {
		Name        string                                `json:"name"`
		Description string                                `json:"description"`
		Options     []*discordgo.ApplicationCommandOption `json:"options"`
	}
	ba, _ := json.Marshal(shape{a.Name, a.Description, a.Options})
	bb, _ := json.Marshal(shape{b.Name, b.Description, b.Options})
	return string(ba) == string(bb)
}

// Roles are the configured role ids used for permission checks.
type Roles struct {
	AdminRoleID       string
	StaffRoleID       string
	TransporterRoleID string
}

// PermissionChecker resolves the permission level of a member
type PermissionChecker struct {
	session  *discordgo.Session
	roles    Roles
	prefixes func() []string
}

// NewPermissionChecker creates a checker. prefixes returns role name prefixes
// (such as 💼 or 👑) that also grant staff.
func NewPermissionChecker(session *discordgo.Session, roles Roles, prefixes func() []string) *PermissionChecker {
	return &PermissionChecker{session: session, roles: roles, prefixes: prefixes}
}

// Roles returns the configured role ids.
func (pc *PermissionChecker) Roles() Roles { return pc.roles }

// Level computes the highest level held by member in guildID.
func (pc *PermissionChecker) Level(guildID string, member *discordgo.Member) PermissionLevel {
	if guildID == "" || member == nil || member.User == nil {
		return PermissionNone
	}
	if member.Permissions&discordgo.PermissionAdministrator != 0 {
		return PermissionAdmin
	}
	if pc.IsOwner(guildID, member.User.ID) {
		return PermissionAdmin
	}

	level := PermissionNone
	for _, roleID := range member.Roles {
		switch {
		case pc.roles.AdminRoleID != "" && roleID == pc.roles.AdminRoleID:
			return PermissionAdmin
		case pc.roles.StaffRoleID != "" && roleID == pc.roles.StaffRoleID:
			level = max(level, PermissionStaff)
		case pc.roles.TransporterRoleID != "" && roleID == pc.roles.TransporterRoleID:
			level = max(level, PermissionTransporter)
		case pc.hasStaffRoleName(guildID, roleID):
			level = max(level, PermissionStaff)
		}
	}
	return level
}

// HasRole checks whether the member carries roleID
func (pc *PermissionChecker) HasRole(member *discordgo.Member, roleID string) bool {
	return member != nil && roleID != "" && slices.Contains(member.Roles, roleID)
}

// IsOwner checks whether the user is the server owner, using the state cache only
func (pc *PermissionChecker) IsOwner(guildID, userID string) bool {
	if pc.session == nil || pc.session.State == nil {
		return false
	}
	g, err := pc.session.State.Guild(guildID)
	return err == nil && g != nil && g.OwnerID == userID
}

func (pc *PermissionChecker) hasStaffRoleName(guildID, roleID string) bool {
	if pc.prefixes == nil || pc.session == nil || pc.session.State == nil {
		return false
	}
	role, err := pc.session.State.Role(guildID, roleID)
	if err != nil || role == nil {
		return false
	}
	for _, p := range pc.prefixes() {
		if p != "" && strings.HasPrefix(role.Name, p) {
			return true
		}
	}
	return false
}
