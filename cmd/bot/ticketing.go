package main

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/bwmarrin/discordgo"
	"github.com/synergybot/synergy/pkg/dataaccess"
	"github.com/synergybot/synergy/pkg/entities"
	"github.com/synergybot/synergy/pkg/logging"
	"github.com/synergybot/synergy/pkg/ticketing"
)

const (
	// CategorySelectID is the custom ID of the panel's category select menu.
	CategorySelectID = "ticket_category_select"

	// IntakeModalID is the custom ID prefix of the intake question modal. The
	// category ID is packed after it.
	IntakeModalID = "ticket_intake"

	// ClaimButtonID is the custom ID of the claim button.
	ClaimButtonID = "ticket_claim"

	// CloseButtonID is the custom ID of the close button.
	CloseButtonID = "ticket_close"

	// CloseReasonModalID is the custom ID of the close reason modal.
	CloseReasonModalID = "ticket_close_reason"

	// TranscriptButtonID is the custom ID of the transcript button.
	TranscriptButtonID = "ticket_transcript"

	// RatingButtonID is the custom ID prefix of the rating DM buttons. The
	// guild ID, ticket number and star count are packed after it.
	RatingButtonID = "ticket_rate"
)

const (
	// ClaimEmoji is the emoji on the claim button. (Raised hand)
	ClaimEmoji = "✋"

	// CloseEmoji is the emoji on the close button. (Padlock)
	CloseEmoji = "\U0001F512"

	// TranscriptEmoji is the emoji on the transcript button. (Page)
	TranscriptEmoji = "\U0001F4C4"
)

const (
	// TicketCmdName is the command for operating on tickets.
	TicketCmdName = "ticket"

	// ClaimCmdName is the sub command for claiming a ticket.
	ClaimCmdName = "claim"

	// CloseCmdName is the sub command for closing a ticket.
	CloseCmdName = "close"

	// AddUserCmdName is the sub command for adding a user to a ticket.
	AddUserCmdName = "adduser"

	// TranscriptCmdName is the sub command for generating a transcript.
	TranscriptCmdName = "transcript"

	// StatsCmdName is the sub command for the guild's ticket statistics.
	StatsCmdName = "stats"
)

// creationCooldown is the minimum time between ticket creation attempts per
// user.
const creationCooldown = time.Minute

// ticketCmd is the command for operating on tickets.
var ticketCmd = &discordgo.ApplicationCommand{
	Name:        TicketCmdName,
	Type:        discordgo.ChatApplicationCommand,
	Description: "This is the command for operating on tickets.",
	Options: []*discordgo.ApplicationCommandOption{
		{
			Name:        ClaimCmdName,
			Type:        discordgo.ApplicationCommandOptionSubCommand,
			Description: "Claims the ticket in this channel.",
		},
		{
			Name:        CloseCmdName,
			Type:        discordgo.ApplicationCommandOptionSubCommand,
			Description: "Closes the ticket in this channel.",
			Options: []*discordgo.ApplicationCommandOption{
				{
					Name:        "reason",
					Type:        discordgo.ApplicationCommandOptionString,
					Description: "The reason for closing the ticket.",
				},
			},
		},
		{
			Name:        AddUserCmdName,
			Type:        discordgo.ApplicationCommandOptionSubCommand,
			Description: "Adds a user to the ticket in this channel.",
			Options: []*discordgo.ApplicationCommandOption{
				{
					Name:        "user",
					Type:        discordgo.ApplicationCommandOptionUser,
					Description: "The user to add to the ticket.",
					Required:    true,
				},
			},
		},
		{
			Name:        TranscriptCmdName,
			Type:        discordgo.ApplicationCommandOptionSubCommand,
			Description: "Generates a transcript of the ticket in this channel.",
		},
		{
			Name:        StatsCmdName,
			Type:        discordgo.ApplicationCommandOptionSubCommand,
			Description: "Shows this server's ticket statistics.",
		},
	},
}

func ticketCmdController(_ IApp, i *discordgo.InteractionCreate) (commandProcessor, error) {
	subCmd := i.ApplicationCommandData().Options[0].Name

	switch subCmd {
	case ClaimCmdName:
		return claimTicket, nil
	case CloseCmdName:
		return closeTicketCmdProcessor, nil
	case AddUserCmdName:
		return addUserCmdProcessor, nil
	case TranscriptCmdName:
		return transcriptTicket, nil
	case StatsCmdName:
		return statsCmdProcessor, nil
	default:
		return nil, fmt.Errorf("unhandled sub command %s", subCmd)
	}
}

// requireStaff checks that the invoker may operate on the ticket in the
// channel: administrators always can, otherwise membership of one of the
// ticket category's support roles is required. Responds to the interaction
// itself when the check fails.
func requireStaff(a IApp, i *discordgo.InteractionCreate) (bool, error) {
	if isAdministrator(i) {
		return true, nil
	}

	session, ok := a.Manager().Session(i.ChannelID)
	if !ok {
		return false, ticketing.ErrNotATicketChannel
	}

	guild, err := a.GuildDal().GetGuildByID(context.Background(), i.GuildID)
	if err != nil && !errors.Is(err, dataaccess.ErrNotFound) {
		return false, fmt.Errorf("error getting guild: %w", err)
	}

	if guild != nil {
		if cat, ok := guild.Ticketing.Category(session.CategoryID); ok && hasRole(i.Member, cat.SupportRoleIDs) {
			return true, nil
		}
	}

	if err := respondEphemeral(a, i, "You must be part of the support team to do that."); err != nil {
		return false, fmt.Errorf("error responding to interaction: %w", err)
	}
	return false, nil
}

// categorySelectHandler handles a pick on the panel's category menu. It is
// the entry point of ticket creation.
func categorySelectHandler(a IApp, i *discordgo.InteractionCreate) error {
	user := interactionUser(i)

	// Cooldown first: one creation attempt per user per minute.
	if !a.AllowCreation(user.ID) {
		return respondEphemeral(a, i, "Please wait a moment before opening another ticket.")
	}

	values := i.MessageComponentData().Values
	if len(values) == 0 {
		return errors.New("category select carried no value")
	}

	category, err := a.Registry().Category(context.Background(), i.GuildID, values[0])
	if err != nil {
		return err
	}

	// Categories with intake questions collect them in a modal before the
	// ticket exists. Categories without questions create the ticket directly.
	if len(category.Questions) > 0 {
		return openIntakeModal(a, i, category)
	}
	return createTicketSession(a, i, category, category.Name, "")
}

func openIntakeModal(a IApp, i *discordgo.InteractionCreate, category *entities.TicketCategory) error {
	components := make([]discordgo.MessageComponent, 0, len(category.Questions))
	for n, q := range category.Questions {
		style := discordgo.TextInputShort
		if q.LongAnswer {
			style = discordgo.TextInputParagraph
		}
		components = append(components, discordgo.ActionsRow{
			Components: []discordgo.MessageComponent{
				discordgo.TextInput{
					CustomID:    fmt.Sprintf("question_%d", n),
					Label:       truncate(q.Question, 45),
					Style:       style,
					Placeholder: q.Placeholder,
					Required:    q.Required,
					MaxLength:   1000,
				},
			},
		})
	}

	return a.Session().InteractionRespond(i.Interaction, &discordgo.InteractionResponse{
		Type: discordgo.InteractionResponseModal,
		Data: &discordgo.InteractionResponseData{
			CustomID:   fmt.Sprintf("%s:%s", IntakeModalID, category.ID),
			Title:      truncate(category.Name, 45),
			Components: components,
		},
	})
}

// intakeModalHandler folds the modal answers into the ticket topic and
// description and creates the session.
func intakeModalHandler(a IApp, i *discordgo.InteractionCreate) error {
	data := i.ModalSubmitData()

	parts := strings.SplitN(data.CustomID, ":", 2)
	if len(parts) != 2 {
		return fmt.Errorf("malformed intake modal ID %q", data.CustomID)
	}

	category, err := a.Registry().Category(context.Background(), i.GuildID, parts[1])
	if err != nil {
		return err
	}

	topic := category.Name
	var sb strings.Builder
	for n, row := range data.Components {
		ar, ok := row.(*discordgo.ActionsRow)
		if !ok || len(ar.Components) == 0 {
			continue
		}
		input, ok := ar.Components[0].(*discordgo.TextInput)
		if !ok || input.Value == "" {
			continue
		}

		question := input.Value
		if n < len(category.Questions) {
			question = category.Questions[n].Question
		}

		// The first answer doubles as the ticket topic.
		if sb.Len() == 0 {
			topic = truncate(input.Value, 100)
		}
		sb.WriteString(fmt.Sprintf("**%s**\n%s\n", question, input.Value))
	}

	return createTicketSession(a, i, category, topic, sb.String())
}

func createTicketSession(a IApp, i *discordgo.InteractionCreate, category *entities.TicketCategory, topic, description string) error {
	user := interactionUser(i)

	ticket, err := a.Manager().CreateSession(context.Background(), i.GuildID, user.ID, category, topic, description)
	if err != nil {
		return err
	}

	// The welcome message is decoration; creation has already succeeded.
	go func() {
		if err := sendTicketWelcome(a, ticket, category); err != nil {
			a.Log().Error("Error setting up ticket channel",
				slog.String(logging.KeyChannelID, ticket.ChannelID),
				slog.String(logging.KeyError, err.Error()))
		}
	}()

	return a.Session().InteractionRespond(i.Interaction, &discordgo.InteractionResponse{
		Type: discordgo.InteractionResponseChannelMessageWithSource,
		Data: &discordgo.InteractionResponseData{
			Flags: discordgo.MessageFlagsEphemeral,
			Embeds: []*discordgo.MessageEmbed{
				{
					Title:       "Ticket Created",
					Description: fmt.Sprintf("Your ticket has been created in <#%s>.", ticket.ChannelID),
					Color:       category.ColorInt(),
					Fields: []*discordgo.MessageEmbedField{
						{
							Name:   "Ticket",
							Value:  ticket.Name(),
							Inline: true,
						},
						{
							Name:   "Category",
							Value:  category.Name,
							Inline: true,
						},
					},
				},
			},
		},
	})
}

// sendTicketWelcome posts and pins the welcome embed with the persistent
// control row into the freshly created ticket channel.
func sendTicketWelcome(a IApp, ticket *entities.Ticket, category *entities.TicketCategory) error {
	content := fmt.Sprintf("<@%s>", ticket.CreatorID)
	for _, roleID := range category.PingRoleIDs {
		content += fmt.Sprintf(" <@&%s>", roleID)
	}

	embed := &discordgo.MessageEmbed{
		Title: fmt.Sprintf("%s %s", category.Emoji, ticket.Name()),
		Description: `Thank you for opening a ticket. A member of the support team will be with you shortly.
Please provide any additional info you deem relevant to help us answer faster.`,
		Color: category.ColorInt(),
		Fields: []*discordgo.MessageEmbedField{
			{
				Name:   "Topic",
				Value:  ticket.Topic,
				Inline: true,
			},
			{
				Name:   "Opened by",
				Value:  fmt.Sprintf("<@%s>", ticket.CreatorID),
				Inline: true,
			},
		},
	}
	if ticket.Description != "" {
		embed.Fields = append(embed.Fields, &discordgo.MessageEmbedField{
			Name:  "Details",
			Value: truncate(ticket.Description, 1024),
		})
	}

	msg := &discordgo.MessageSend{
		Content: content,
		Embeds:  []*discordgo.MessageEmbed{embed},
		Components: []discordgo.MessageComponent{
			discordgo.ActionsRow{
				Components: []discordgo.MessageComponent{
					discordgo.Button{
						Label:    fmt.Sprintf("%s Close", CloseEmoji),
						Style:    discordgo.DangerButton,
						CustomID: CloseButtonID,
					},
					discordgo.Button{
						Label:    fmt.Sprintf("%s Claim", ClaimEmoji),
						Style:    discordgo.PrimaryButton,
						CustomID: ClaimButtonID,
					},
					discordgo.Button{
						Label:    fmt.Sprintf("%s Transcript", TranscriptEmoji),
						Style:    discordgo.SecondaryButton,
						CustomID: TranscriptButtonID,
					},
				},
			},
		},
	}

	sent, err := a.Session().ChannelMessageSendComplex(ticket.ChannelID, msg)
	if err != nil {
		return fmt.Errorf("error sending welcome message: %w", err)
	}

	if err := a.Session().ChannelMessagePin(ticket.ChannelID, sent.ID); err != nil {
		return fmt.Errorf("error pinning welcome message: %w", err)
	}
	return nil
}

// claimTicket claims the ticket in the channel for the invoker. First claim
// wins; losers are told who holds it.
func claimTicket(a IApp, i *discordgo.InteractionCreate) error {
	ok, err := requireStaff(a, i)
	if err != nil || !ok {
		return err
	}

	user := interactionUser(i)
	if err := a.Manager().Claim(context.Background(), i.ChannelID, user.ID); err != nil {
		return err
	}

	return a.Session().InteractionRespond(i.Interaction, &discordgo.InteractionResponse{
		Type: discordgo.InteractionResponseChannelMessageWithSource,
		Data: &discordgo.InteractionResponseData{
			Content: fmt.Sprintf("<@%s> has claimed this ticket.", user.ID),
		},
	})
}

// closeTicketCmdProcessor closes the ticket via the slash command. The reason
// is taken from the command options; no confirmation round-trip.
func closeTicketCmdProcessor(a IApp, i *discordgo.InteractionCreate) error {
	ok, err := requireStaff(a, i)
	if err != nil || !ok {
		return err
	}

	reason := ""
	opts := subCommandOptions(i)
	if opt, exists := opts["reason"]; exists {
		reason = opt.StringValue()
	}

	user := interactionUser(i)
	transcript, err := a.Manager().CloseSession(context.Background(), i.ChannelID, user.ID, reason)
	if err != nil {
		return err
	}

	return finishClose(a, i, transcript, reason)
}

// closeButtonHandler starts the close confirmation: it records the pending
// close and opens the reason modal. The confirmation lapses if the modal is
// not submitted in time.
func closeButtonHandler(a IApp, i *discordgo.InteractionCreate) error {
	ok, err := requireStaff(a, i)
	if err != nil || !ok {
		return err
	}

	user := interactionUser(i)
	if err := a.Manager().BeginClose(i.ChannelID, user.ID); err != nil {
		return err
	}

	return a.Session().InteractionRespond(i.Interaction, &discordgo.InteractionResponse{
		Type: discordgo.InteractionResponseModal,
		Data: &discordgo.InteractionResponseData{
			CustomID: CloseReasonModalID,
			Title:    "Close Ticket",
			Components: []discordgo.MessageComponent{
				discordgo.ActionsRow{
					Components: []discordgo.MessageComponent{
						discordgo.TextInput{
							CustomID:    "reason",
							Label:       "Reason",
							Style:       discordgo.TextInputShort,
							Placeholder: "Why is this ticket being closed?",
							Required:    false,
							MaxLength:   200,
						},
					},
				},
			},
		},
	})
}

// closeReasonModalHandler completes a close started by the close button.
func closeReasonModalHandler(a IApp, i *discordgo.InteractionCreate) error {
	data := i.ModalSubmitData()

	reason := ""
	if len(data.Components) > 0 {
		if ar, ok := data.Components[0].(*discordgo.ActionsRow); ok && len(ar.Components) > 0 {
			if input, ok := ar.Components[0].(*discordgo.TextInput); ok {
				reason = input.Value
			}
		}
	}

	user := interactionUser(i)
	transcript, err := a.Manager().ConfirmClose(context.Background(), i.ChannelID, user.ID, reason)
	if err != nil {
		return err
	}

	return finishClose(a, i, transcript, reason)
}

// finishClose acknowledges the close in the channel and ships the transcript
// to the log channel before the channel itself is deleted.
func finishClose(a IApp, i *discordgo.InteractionCreate, transcript *ticketing.Transcript, reason string) error {
	user := interactionUser(i)

	if transcript != nil {
		go func() {
			if err := deliverTranscript(a, i.GuildID, transcript); err != nil {
				a.Log().Error("Error delivering transcript",
					slog.String(logging.KeyGuildID, i.GuildID),
					slog.String(logging.KeyError, err.Error()))
			}
		}()
	}

	content := fmt.Sprintf("<@%s> has closed this ticket. This channel will be deleted shortly.", user.ID)
	if reason != "" {
		content = fmt.Sprintf("<@%s> has closed this ticket: %s\nThis channel will be deleted shortly.", user.ID, reason)
	}

	return a.Session().InteractionRespond(i.Interaction, &discordgo.InteractionResponse{
		Type: discordgo.InteractionResponseChannelMessageWithSource,
		Data: &discordgo.InteractionResponseData{
			Content: content,
		},
	})
}

// addUserCmdProcessor grants another user access to the ticket.
func addUserCmdProcessor(a IApp, i *discordgo.InteractionCreate) error {
	opts := subCommandOptions(i)
	target := opts["user"].UserValue(a.Session())

	if err := a.Manager().AddParticipant(context.Background(), i.ChannelID, target.ID); err != nil {
		return err
	}

	return a.Session().InteractionRespond(i.Interaction, &discordgo.InteractionResponse{
		Type: discordgo.InteractionResponseChannelMessageWithSource,
		Data: &discordgo.InteractionResponseData{
			Content: fmt.Sprintf("<@%s> has been added to the ticket.", target.ID),
		},
	})
}

// transcriptTicket generates an on-demand transcript for an open ticket and
// delivers it to the log channel, or attaches it to the reply when the guild
// has no log channel.
func transcriptTicket(a IApp, i *discordgo.InteractionCreate) error {
	user := interactionUser(i)

	transcript, err := a.Manager().RenderTranscript(context.Background(), i.ChannelID, user.ID)
	if err != nil {
		return err
	}

	logChannelID, err := guildLogChannel(a, i.GuildID)
	if err != nil {
		return err
	}

	if logChannelID == "" {
		// No log channel configured; hand the file straight back.
		return a.Session().InteractionRespond(i.Interaction, &discordgo.InteractionResponse{
			Type: discordgo.InteractionResponseChannelMessageWithSource,
			Data: &discordgo.InteractionResponseData{
				Flags:   discordgo.MessageFlagsEphemeral,
				Content: fmt.Sprintf("Transcript of this ticket (%d messages).", transcript.Messages),
				Files: []*discordgo.File{
					{
						Name:        transcript.FileName,
						ContentType: "text/plain",
						Reader:      bytes.NewReader(transcript.Content),
					},
				},
			},
		})
	}

	if err := deliverTranscript(a, i.GuildID, transcript); err != nil {
		return err
	}
	return respondEphemeral(a, i, fmt.Sprintf("The transcript has been posted in <#%s>.", logChannelID))
}

// statsCmdProcessor shows the guild's ticket statistics.
func statsCmdProcessor(a IApp, i *discordgo.InteractionCreate) error {
	stats, err := a.Manager().GuildStats(context.Background(), i.GuildID)
	if err != nil {
		return err
	}

	fields := []*discordgo.MessageEmbedField{
		{
			Name:   "Open",
			Value:  strconv.Itoa(stats.Open),
			Inline: true,
		},
		{
			Name:   "Total created",
			Value:  strconv.Itoa(stats.TotalCreated),
			Inline: true,
		},
	}

	var byCategory strings.Builder
	for name, count := range stats.ByCategory {
		byCategory.WriteString(fmt.Sprintf("%s: %d\n", name, count))
	}
	if byCategory.Len() > 0 {
		fields = append(fields, &discordgo.MessageEmbedField{
			Name:  "Retained by category",
			Value: byCategory.String(),
		})
	}

	return a.Session().InteractionRespond(i.Interaction, &discordgo.InteractionResponse{
		Type: discordgo.InteractionResponseChannelMessageWithSource,
		Data: &discordgo.InteractionResponseData{
			Flags: discordgo.MessageFlagsEphemeral,
			Embeds: []*discordgo.MessageEmbed{
				{
					Title:  "Ticket Statistics",
					Color:  0x5865F2,
					Fields: fields,
				},
			},
		},
	})
}

// ratingButtonHandler handles a star pick on the rating DM. The custom ID
// carries the guild, ticket number and star count.
func ratingButtonHandler(a IApp, i *discordgo.InteractionCreate) error {
	parts := strings.Split(i.MessageComponentData().CustomID, ":")
	if len(parts) != 4 {
		return fmt.Errorf("malformed rating button ID %q", i.MessageComponentData().CustomID)
	}
	guildID := parts[1]
	ticketNumber, err := strconv.Atoi(parts[2])
	if err != nil {
		return fmt.Errorf("malformed ticket number in rating button ID: %w", err)
	}
	stars, err := strconv.Atoi(parts[3])
	if err != nil || stars < 1 || stars > 5 {
		return fmt.Errorf("malformed star count in rating button ID %q", parts[3])
	}

	user := interactionUser(i)

	// Log the rating to the guild's log channel, best effort.
	logChannelID, err := guildLogChannel(a, guildID)
	if err != nil {
		a.Log().Warn("Error getting log channel for rating",
			slog.String(logging.KeyGuildID, guildID),
			slog.String(logging.KeyError, err.Error()))
	} else if logChannelID != "" {
		if _, err := a.Session().ChannelMessageSendEmbed(logChannelID, &discordgo.MessageEmbed{
			Title:       "Ticket Rated",
			Description: fmt.Sprintf("<@%s> rated ticket #%04d: %s", user.ID, ticketNumber, strings.Repeat("⭐", stars)),
			Color:       0xFEE75C,
		}); err != nil {
			a.Log().Warn("Error logging rating",
				slog.String(logging.KeyGuildID, guildID),
				slog.String(logging.KeyError, err.Error()))
		}
	}

	return respondEphemeral(a, i, fmt.Sprintf("Thank you for rating your ticket %d/5!", stars))
}

// claimButtonHandler and transcriptButtonHandler reuse the slash processors;
// the flows are identical.
func claimButtonHandler(a IApp, i *discordgo.InteractionCreate) error {
	return claimTicket(a, i)
}

func transcriptButtonHandler(a IApp, i *discordgo.InteractionCreate) error {
	return transcriptTicket(a, i)
}

// deliverTranscript uploads a rendered transcript to the guild's log channel.
// A guild without a log channel skips delivery.
func deliverTranscript(a IApp, guildID string, transcript *ticketing.Transcript) error {
	logChannelID, err := guildLogChannel(a, guildID)
	if err != nil {
		return err
	}
	if logChannelID == "" {
		a.Log().Debug("No log channel configured, skipping transcript delivery",
			slog.String(logging.KeyGuildID, guildID))
		return nil
	}

	msg := &discordgo.MessageSend{
		Embeds: []*discordgo.MessageEmbed{
			{
				Title:       "Ticket Transcript",
				Description: fmt.Sprintf("Generated by <@%s> (%d messages).", transcript.GeneratedBy, transcript.Messages),
				Color:       0x5865F2,
				Timestamp:   transcript.GeneratedAt.Format(time.RFC3339),
			},
		},
		Files: []*discordgo.File{
			{
				Name:        transcript.FileName,
				ContentType: "text/plain",
				Reader:      bytes.NewReader(transcript.Content),
			},
		},
	}

	if _, err := a.Session().ChannelMessageSendComplex(logChannelID, msg); err != nil {
		return fmt.Errorf("error uploading transcript: %w", err)
	}
	return nil
}

func guildLogChannel(a IApp, guildID string) (string, error) {
	guild, err := a.GuildDal().GetGuildByID(context.Background(), guildID)
	if errors.Is(err, dataaccess.ErrNotFound) {
		return "", nil
	} else if err != nil {
		return "", fmt.Errorf("error getting guild: %w", err)
	}
	return guild.Ticketing.LogChannelID, nil
}

// truncate clips s to at most n characters.
func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
