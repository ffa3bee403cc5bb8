package main

import (
	"context"
	"fmt"

	"github.com/bwmarrin/discordgo"
	"github.com/synergybot/synergy/pkg/entities"
	"github.com/synergybot/synergy/pkg/ticketing"
)

// messagePageSize is the largest page the channel messages endpoint serves.
const messagePageSize = 100

// discordProvisioner implements ticketing.ChannelProvisioner on top of the
// discord REST API.
type discordProvisioner struct {
	// s is the discord session.
	s *discordgo.Session
}

func newDiscordProvisioner(s *discordgo.Session) *discordProvisioner {
	return &discordProvisioner{s: s}
}

// grantPermissions maps a grant onto discord permission bits.
func grantPermissions(grant ticketing.Grant) (allow, deny int64) {
	if grant.CanView {
		allow |= discordgo.PermissionViewChannel | discordgo.PermissionReadMessageHistory
	}
	if grant.CanWrite {
		allow |= discordgo.PermissionSendMessages | discordgo.PermissionAttachFiles | discordgo.PermissionEmbedLinks
	}
	deny = discordgo.PermissionMentionEveryone
	return allow, deny
}

func overwriteType(grant ticketing.Grant) discordgo.PermissionOverwriteType {
	if grant.Role {
		return discordgo.PermissionOverwriteTypeRole
	}
	return discordgo.PermissionOverwriteTypeMember
}

func (p *discordProvisioner) CreateChannel(ctx context.Context, guildID, parentCategoryID, name string, grants []ticketing.Grant) (string, error) {
	// Deny @everyone; each grant opts its principal back in.
	overwrites := []*discordgo.PermissionOverwrite{
		{
			ID:   guildID,
			Type: discordgo.PermissionOverwriteTypeRole,
			Deny: discordgo.PermissionViewChannel,
		},
	}
	for _, grant := range grants {
		allow, deny := grantPermissions(grant)
		overwrites = append(overwrites, &discordgo.PermissionOverwrite{
			ID:    grant.PrincipalID,
			Type:  overwriteType(grant),
			Allow: allow,
			Deny:  deny,
		})
	}

	channel, err := p.s.GuildChannelCreateComplex(guildID, discordgo.GuildChannelCreateData{
		Name:                 name,
		Type:                 discordgo.ChannelTypeGuildText,
		ParentID:             parentCategoryID,
		PermissionOverwrites: overwrites,
	}, discordgo.WithContext(ctx))
	if err != nil {
		return "", fmt.Errorf("error creating channel: %w", err)
	}
	return channel.ID, nil
}

func (p *discordProvisioner) SetPermission(ctx context.Context, channelID string, grant ticketing.Grant) error {
	allow, deny := grantPermissions(grant)
	if err := p.s.ChannelPermissionSet(channelID, grant.PrincipalID, overwriteType(grant), allow, deny, discordgo.WithContext(ctx)); err != nil {
		return fmt.Errorf("error setting channel permission: %w", err)
	}
	return nil
}

func (p *discordProvisioner) DeleteChannel(ctx context.Context, channelID string) error {
	if _, err := p.s.ChannelDelete(channelID, discordgo.WithContext(ctx)); err != nil {
		return fmt.Errorf("error deleting channel: %w", err)
	}
	return nil
}

func (p *discordProvisioner) FetchHistory(ctx context.Context, channelID string, maxMessages int, oldestFirst bool) ([]ticketing.HistoryEntry, error) {
	var entries []ticketing.HistoryEntry

	// Page backwards from the newest message.
	beforeID := ""
	for len(entries) < maxMessages {
		limit := messagePageSize
		if remaining := maxMessages - len(entries); remaining < limit {
			limit = remaining
		}

		msgs, err := p.s.ChannelMessages(channelID, limit, beforeID, "", "", discordgo.WithContext(ctx))
		if err != nil {
			return nil, fmt.Errorf("error fetching channel messages: %w", err)
		}
		if len(msgs) == 0 {
			break
		}

		for _, msg := range msgs {
			entry := ticketing.HistoryEntry{
				Timestamp: msg.Timestamp,
				Content:   msg.Content,
			}
			if msg.Author != nil {
				entry.AuthorID = msg.Author.ID
				entry.AuthorName = msg.Author.Username
			}
			entries = append(entries, entry)
		}
		beforeID = msgs[len(msgs)-1].ID
	}

	if oldestFirst {
		// The API serves newest first.
		for i, j := 0, len(entries)-1; i < j; i, j = i+1, j-1 {
			entries[i], entries[j] = entries[j], entries[i]
		}
	}
	return entries, nil
}

// ratingNotifier DMs the ticket creator when their ticket is closed, asking
// for a 1-5 star rating.
type ratingNotifier struct {
	// s is the discord session.
	s *discordgo.Session
}

func newRatingNotifier(s *discordgo.Session) *ratingNotifier {
	return &ratingNotifier{s: s}
}

func (n *ratingNotifier) NotifyClosed(ctx context.Context, ticket *entities.Ticket) error {
	dm, err := n.s.UserChannelCreate(ticket.CreatorID, discordgo.WithContext(ctx))
	if err != nil {
		return fmt.Errorf("error creating DM channel: %w", err)
	}

	buttons := make([]discordgo.MessageComponent, 0, 5)
	for stars := 1; stars <= 5; stars++ {
		buttons = append(buttons, discordgo.Button{
			Label:    fmt.Sprintf("%d ⭐", stars),
			Style:    discordgo.SecondaryButton,
			CustomID: fmt.Sprintf("%s:%s:%d:%d", RatingButtonID, ticket.GuildID, ticket.TicketNumber, stars),
		})
	}

	msg := &discordgo.MessageSend{
		Embeds: []*discordgo.MessageEmbed{
			{
				Title: "Your ticket has been closed",
				Description: fmt.Sprintf("Ticket **%s** was closed by <@%s>.\nHow would you rate the support you received?",
					ticket.Name(), ticket.ClosedBy),
				Color: 0x5865F2,
			},
		},
		Components: []discordgo.MessageComponent{
			discordgo.ActionsRow{Components: buttons},
		},
	}

	if _, err := n.s.ChannelMessageSendComplex(dm.ID, msg, discordgo.WithContext(ctx)); err != nil {
		return fmt.Errorf("error sending rating prompt: %w", err)
	}
	return nil
}
