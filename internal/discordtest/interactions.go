package discordtest

import (
	"fmt"
	"sync/atomic"

	"github.com/bwmarrin/discordgo"
)

var interactionSeq atomic.Int64

// Member builds a guild member carrying roles.
func Member(userID string, roles ...string) *discordgo.Member {
	return &discordgo.Member{
		GuildID: GuildID,
		User:    &discordgo.User{ID: userID, Username: "user-" + userID},
		Roles:   roles,
	}
}

func base(t discordgo.InteractionType, channelID string, member *discordgo.Member) *discordgo.InteractionCreate {
	n := interactionSeq.Add(1)
	return &discordgo.InteractionCreate{Interaction: &discordgo.Interaction{
		ID:        fmt.Sprintf("i%d", n),
		AppID:     BotID,
		Type:      t,
		GuildID:   GuildID,
		ChannelID: channelID,
		Member:    member,
		Token:     fmt.Sprintf("token%d", n),
	}}
}

// Command builds a slash command interaction.
func Command(channelID string, member *discordgo.Member, name string, options ...*discordgo.ApplicationCommandInteractionDataOption) *discordgo.InteractionCreate {
	i := base(discordgo.InteractionApplicationCommand, channelID, member)
	i.Data = discordgo.ApplicationCommandInteractionData{ID: "cmd-" + name, Name: name, Options: options}
	return i
}

// Autocomplete builds an autocomplete request. Mark the option being typed
// with Focused.
func Autocomplete(channelID string, member *discordgo.Member, name string, options ...*discordgo.ApplicationCommandInteractionDataOption) *discordgo.InteractionCreate {
	i := base(discordgo.InteractionApplicationCommandAutocomplete, channelID, member)
	i.Data = discordgo.ApplicationCommandInteractionData{ID: "cmd-" + name, Name: name, Options: options}
	return i
}

// Focused marks opt as the option the user is typing.
func Focused(opt *discordgo.ApplicationCommandInteractionDataOption) *discordgo.ApplicationCommandInteractionDataOption {
	opt.Focused = true
	return opt
}

// Option builds a command option. Subcommands take nested options through sub.
func Option(name string, t discordgo.ApplicationCommandOptionType, value any, sub ...*discordgo.ApplicationCommandInteractionDataOption) *discordgo.ApplicationCommandInteractionDataOption {
	return &discordgo.ApplicationCommandInteractionDataOption{Name: name, Type: t, Value: value, Options: sub}
}

// Component builds a button or select click.
func Component(channelID string, member *discordgo.Member, customID string, values ...string) *discordgo.InteractionCreate {
	i := base(discordgo.InteractionMessageComponent, channelID, member)
	kind := discordgo.ButtonComponent
	if len(values) > 0 {
		kind = discordgo.SelectMenuComponent
	}
	i.Data = discordgo.MessageComponentInteractionData{CustomID: customID, ComponentType: kind, Values: values}
	i.Message = &discordgo.Message{ID: "clicked", ChannelID: channelID}
	return i
}

// Modal builds a modal submit with one text input per entry in values.
func Modal(channelID string, member *discordgo.Member, customID string, values map[string]string) *discordgo.InteractionCreate {
	i := base(discordgo.InteractionModalSubmit, channelID, member)
	rows := make([]discordgo.MessageComponent, 0, len(values))
	for id, v := range values {
		rows = append(rows, &discordgo.ActionsRow{Components: []discordgo.MessageComponent{
			&discordgo.TextInput{CustomID: id, Value: v},
		}})
	}
	i.Data = discordgo.ModalSubmitInteractionData{CustomID: customID, Components: rows}
	return i
}
