package main

import (
	"context"
	"errors"
	"fmt"

	"github.com/bwmarrin/discordgo"
	"github.com/synergybot/synergy/pkg/dataaccess"
	"github.com/synergybot/synergy/pkg/entities"
	"github.com/synergybot/synergy/pkg/messages"
)

const (
	// SetupCmdName is the command for all configuration commands.
	SetupCmdName = "setup"

	// PanelCmdName is the sub command that posts the ticket panel.
	PanelCmdName = "panel"

	// BlacklistCmdName is the sub command that manages the ticket blacklist.
	BlacklistCmdName = "blacklist"

	// CategoryAddCmdName is the sub command that adds or updates a category.
	CategoryAddCmdName = "category_add"

	// CategoryRemoveCmdName is the sub command that removes a category.
	CategoryRemoveCmdName = "category_remove"
)

// setupCmd is the command for all configuration commands. Administrator only.
var setupCmd = &discordgo.ApplicationCommand{
	Name:        SetupCmdName,
	Type:        discordgo.ChatApplicationCommand,
	Description: "This is the command for all ticketing configuration commands.",
	Options: []*discordgo.ApplicationCommandOption{
		{
			Name:        PanelCmdName,
			Type:        discordgo.ApplicationCommandOptionSubCommand,
			Description: "Posts the ticket panel in the channel you specify.",
			Options: []*discordgo.ApplicationCommandOption{
				{
					Name:        "channel",
					Type:        discordgo.ApplicationCommandOptionChannel,
					Description: "The channel to post the ticket panel in.",
					Required:    true,
				},
				{
					Name:        "log_channel",
					Type:        discordgo.ApplicationCommandOptionChannel,
					Description: "The channel transcripts and ratings are logged to.",
				},
				{
					Name:        "tickets_category",
					Type:        discordgo.ApplicationCommandOptionChannel,
					Description: "The channel category ticket channels are created under.",
				},
			},
		},
		{
			Name:        BlacklistCmdName,
			Type:        discordgo.ApplicationCommandOptionSubCommand,
			Description: "Bars a user from creating tickets, or lifts the bar.",
			Options: []*discordgo.ApplicationCommandOption{
				{
					Name:        "user",
					Type:        discordgo.ApplicationCommandOptionUser,
					Description: "The user to blacklist.",
					Required:    true,
				},
				{
					Name:        "remove",
					Type:        discordgo.ApplicationCommandOptionBoolean,
					Description: "Remove the user from the blacklist instead.",
				},
			},
		},
		{
			Name:        CategoryAddCmdName,
			Type:        discordgo.ApplicationCommandOptionSubCommand,
			Description: "Adds a ticket category, or updates the one with the same ID.",
			Options: []*discordgo.ApplicationCommandOption{
				{
					Name:        "id",
					Type:        discordgo.ApplicationCommandOptionString,
					Description: "The identifier of the category.",
					Required:    true,
				},
				{
					Name:        "name",
					Type:        discordgo.ApplicationCommandOptionString,
					Description: "The display name of the category.",
					Required:    true,
				},
				{
					Name:        "description",
					Type:        discordgo.ApplicationCommandOptionString,
					Description: "The description shown in the panel select menu.",
				},
				{
					Name:        "emoji",
					Type:        discordgo.ApplicationCommandOptionString,
					Description: "The emoji shown next to the category.",
				},
				{
					Name:        "color",
					Type:        discordgo.ApplicationCommandOptionString,
					Description: "The embed colour as a hex string, e.g. #ED4245.",
				},
				{
					Name:        "support_role",
					Type:        discordgo.ApplicationCommandOptionRole,
					Description: "The role granted access to tickets of this category.",
				},
				{
					Name:        "ping_role",
					Type:        discordgo.ApplicationCommandOptionRole,
					Description: "The role mentioned when a ticket of this category is created.",
				},
				{
					Name:        "parent_category",
					Type:        discordgo.ApplicationCommandOptionChannel,
					Description: "The channel category tickets of this category are created under.",
				},
				{
					Name:        "question_1",
					Type:        discordgo.ApplicationCommandOptionString,
					Description: "First intake question asked before the ticket is created.",
				},
				{
					Name:        "question_2",
					Type:        discordgo.ApplicationCommandOptionString,
					Description: "Second intake question.",
				},
				{
					Name:        "question_3",
					Type:        discordgo.ApplicationCommandOptionString,
					Description: "Third intake question.",
				},
				{
					Name:        "question_4",
					Type:        discordgo.ApplicationCommandOptionString,
					Description: "Fourth intake question.",
				},
				{
					Name:        "question_5",
					Type:        discordgo.ApplicationCommandOptionString,
					Description: "Fifth intake question.",
				},
			},
		},
		{
			Name:        CategoryRemoveCmdName,
			Type:        discordgo.ApplicationCommandOptionSubCommand,
			Description: "Removes a ticket category. Open tickets are unaffected.",
			Options: []*discordgo.ApplicationCommandOption{
				{
					Name:        "id",
					Type:        discordgo.ApplicationCommandOptionString,
					Description: "The identifier of the category to remove.",
					Required:    true,
				},
			},
		},
	},
}

func setupCmdController(a IApp, i *discordgo.InteractionCreate) (commandProcessor, error) {
	// Ensure the user is an administrator.
	if !isAdministrator(i) {
		if err := respondEphemeral(a, i, messages.ErrNotAdministrator); err != nil {
			return nil, fmt.Errorf("error responding to interaction: %w", err)
		}
		return nil, nil
	}

	// Extract the sub command.
	subCmd := i.ApplicationCommandData().Options[0].Name

	switch subCmd {
	case PanelCmdName:
		return panelCmdProcessor, nil
	case BlacklistCmdName:
		return blacklistCmdProcessor, nil
	case CategoryAddCmdName:
		return categoryAddCmdProcessor, nil
	case CategoryRemoveCmdName:
		return categoryRemoveCmdProcessor, nil
	default:
		return nil, fmt.Errorf("unhandled sub command %s", subCmd)
	}
}

// subCommandOptions indexes a sub command's options by name.
func subCommandOptions(i *discordgo.InteractionCreate) map[string]*discordgo.ApplicationCommandInteractionDataOption {
	opts := i.ApplicationCommandData().Options[0].Options
	m := make(map[string]*discordgo.ApplicationCommandInteractionDataOption, len(opts))
	for _, opt := range opts {
		m[opt.Name] = opt
	}
	return m
}

// panelCmdProcessor posts (or replaces) the ticket panel message and stores
// the panel bindings in the guild configuration.
func panelCmdProcessor(a IApp, i *discordgo.InteractionCreate) error {
	ctx := context.Background()
	opts := subCommandOptions(i)

	channel := opts["channel"].ChannelValue(a.Session())
	if channel.Type != discordgo.ChannelTypeGuildText {
		return respondEphemeral(a, i, "You must provide a text channel for the ticket panel.")
	}

	// Make sure the guild has categories to offer.
	cats, err := a.Registry().EnsureDefaults(ctx, i.GuildID)
	if err != nil {
		return fmt.Errorf("error ensuring default categories: %w", err)
	}

	guild, err := a.GuildDal().GetGuildByID(ctx, i.GuildID)
	if errors.Is(err, dataaccess.ErrNotFound) {
		guild = entities.NewGuild(i.GuildID)
	} else if err != nil {
		return fmt.Errorf("error getting guild: %w", err)
	}

	// Replace an existing panel, best effort.
	if guild.Ticketing.PanelChannelID != "" && guild.Ticketing.PanelMessageID != "" {
		if err := a.Session().ChannelMessageDelete(guild.Ticketing.PanelChannelID, guild.Ticketing.PanelMessageID); err != nil {
			a.Log().Warn("Error deleting previous ticket panel, leaving it behind")
		}
	}

	msg, err := sendPanelMessage(a, channel.ID, cats)
	if err != nil {
		return fmt.Errorf("error sending panel message: %w", err)
	}

	guild.Ticketing.Enabled = true
	guild.Ticketing.PanelChannelID = channel.ID
	guild.Ticketing.PanelMessageID = msg.ID
	if opt, ok := opts["log_channel"]; ok {
		guild.Ticketing.LogChannelID = opt.ChannelValue(a.Session()).ID
	}
	if opt, ok := opts["tickets_category"]; ok {
		guild.Ticketing.TicketsCategoryID = opt.ChannelValue(a.Session()).ID
	}

	if err := a.GuildDal().SaveGuild(ctx, guild); err != nil {
		return fmt.Errorf("error saving guild: %w", err)
	}

	return respondEphemeral(a, i, fmt.Sprintf("The ticket panel has been posted in <#%s>.", channel.ID))
}

func sendPanelMessage(a IApp, channelID string, cats []entities.TicketCategory) (*discordgo.Message, error) {
	options := make([]discordgo.SelectMenuOption, 0, len(cats))
	for _, cat := range cats {
		opt := discordgo.SelectMenuOption{
			Label:       cat.Name,
			Value:       cat.ID,
			Description: cat.Description,
		}
		if cat.Emoji != "" {
			opt.Emoji = &discordgo.ComponentEmoji{Name: cat.Emoji}
		}
		options = append(options, opt)
	}

	msg := &discordgo.MessageSend{
		Embeds: []*discordgo.MessageEmbed{
			{
				Title:       "Need help?",
				Description: "Select a category below to open a ticket. A private channel will be created for you and our support team.",
				Color:       0x5865F2,
			},
		},
		Components: []discordgo.MessageComponent{
			discordgo.ActionsRow{
				Components: []discordgo.MessageComponent{
					discordgo.SelectMenu{
						MenuType:    discordgo.StringSelectMenu,
						CustomID:    CategorySelectID,
						Placeholder: "Select a ticket category...",
						Options:     options,
					},
				},
			},
		},
	}

	sent, err := a.Session().ChannelMessageSendComplex(channelID, msg)
	if err != nil {
		return nil, fmt.Errorf("error sending message: %w", err)
	}
	return sent, nil
}

// blacklistCmdProcessor adds or removes a user from the ticket blacklist.
func blacklistCmdProcessor(a IApp, i *discordgo.InteractionCreate) error {
	opts := subCommandOptions(i)

	user := opts["user"].UserValue(a.Session())
	remove := false
	if opt, ok := opts["remove"]; ok {
		remove = opt.BoolValue()
	}

	changed, err := a.Manager().SetBlacklisted(context.Background(), i.GuildID, user.ID, !remove)
	if err != nil {
		return err
	}

	switch {
	case remove && changed:
		return respondEphemeral(a, i, fmt.Sprintf("<@%s> can create tickets again.", user.ID))
	case remove:
		return respondEphemeral(a, i, fmt.Sprintf("<@%s> is not blacklisted.", user.ID))
	case changed:
		return respondEphemeral(a, i, fmt.Sprintf("<@%s> is now blacklisted from creating tickets.", user.ID))
	default:
		return respondEphemeral(a, i, fmt.Sprintf("<@%s> is already blacklisted.", user.ID))
	}
}

// categoryAddCmdProcessor adds a ticket category, or updates the category
// with the same ID.
func categoryAddCmdProcessor(a IApp, i *discordgo.InteractionCreate) error {
	opts := subCommandOptions(i)

	cat := entities.TicketCategory{
		ID:   opts["id"].StringValue(),
		Name: opts["name"].StringValue(),
	}
	if opt, ok := opts["description"]; ok {
		cat.Description = opt.StringValue()
	}
	if opt, ok := opts["emoji"]; ok {
		cat.Emoji = opt.StringValue()
	}
	if opt, ok := opts["color"]; ok {
		cat.Color = opt.StringValue()
	}
	if opt, ok := opts["support_role"]; ok {
		cat.SupportRoleIDs = []string{opt.RoleValue(a.Session(), i.GuildID).ID}
	}
	if opt, ok := opts["ping_role"]; ok {
		cat.PingRoleIDs = []string{opt.RoleValue(a.Session(), i.GuildID).ID}
	}
	if opt, ok := opts["parent_category"]; ok {
		cat.ParentCategoryID = opt.ChannelValue(a.Session()).ID
	}
	for n := 1; n <= entities.MaxQuestions; n++ {
		opt, ok := opts[fmt.Sprintf("question_%d", n)]
		if !ok {
			continue
		}
		cat.Questions = append(cat.Questions, entities.CustomQuestion{
			Question: opt.StringValue(),
			Required: true,
		})
	}

	if err := a.Registry().UpsertCategory(context.Background(), i.GuildID, cat); err != nil {
		return err
	}
	return respondEphemeral(a, i, fmt.Sprintf("Category **%s** has been saved. Re-run `/setup panel` to refresh the panel.", cat.Name))
}

// categoryRemoveCmdProcessor removes a ticket category.
func categoryRemoveCmdProcessor(a IApp, i *discordgo.InteractionCreate) error {
	opts := subCommandOptions(i)
	id := opts["id"].StringValue()

	if err := a.Registry().RemoveCategory(context.Background(), i.GuildID, id); err != nil {
		return err
	}
	return respondEphemeral(a, i, fmt.Sprintf("Category `%s` has been removed. Open tickets are unaffected.", id))
}
