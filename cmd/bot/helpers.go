package main

import (
	"errors"
	"fmt"

	"github.com/bwmarrin/discordgo"
	"github.com/synergybot/synergy/pkg/entities"
	"github.com/synergybot/synergy/pkg/messages"
	"github.com/synergybot/synergy/pkg/ticketing"
)

func respondSlashError(a IApp, i *discordgo.InteractionCreate) error {
	return respondEphemeral(a, i, messages.ErrUserErrorProcessing)
}

func respondEphemeral(a IApp, i *discordgo.InteractionCreate, content string) error {
	return a.Session().InteractionRespond(i.Interaction, &discordgo.InteractionResponse{
		Type: discordgo.InteractionResponseChannelMessageWithSource,
		Data: &discordgo.InteractionResponseData{
			Content: content,
			Flags:   discordgo.MessageFlagsEphemeral,
		},
	})
}

// interactionUser returns the invoking user for both guild and DM
// interactions.
func interactionUser(i *discordgo.InteractionCreate) *discordgo.User {
	if i.Member != nil {
		return i.Member.User
	}
	return i.User
}

// isAdministrator reports whether the invoking member has the administrator
// permission.
func isAdministrator(i *discordgo.InteractionCreate) bool {
	return i.Member != nil && i.Member.Permissions&discordgo.PermissionAdministrator == discordgo.PermissionAdministrator
}

// hasRole reports whether the member holds any of the given roles.
func hasRole(member *discordgo.Member, roleIDs []string) bool {
	for _, have := range member.Roles {
		for _, want := range roleIDs {
			if have == want {
				return true
			}
		}
	}
	return false
}

// userErrorMessage maps precondition rejections to the message shown to the
// user. Infra failures are not user errors and fall through to the generic
// response.
func userErrorMessage(err error) (string, bool) {
	var claimed *ticketing.AlreadyClaimedError

	switch {
	case errors.Is(err, ticketing.ErrBlacklisted):
		return "You are blacklisted from creating tickets in this server.", true
	case errors.Is(err, ticketing.ErrTooManyOpenSessions):
		return "You already have the maximum number of open tickets. Please close one before opening another.", true
	case errors.Is(err, ticketing.ErrNotATicketChannel):
		return messages.ErrNotTicketChannel, true
	case errors.Is(err, ticketing.ErrAlreadyParticipant):
		return "That user already has access to this ticket.", true
	case errors.Is(err, ticketing.ErrConfirmationExpired):
		return "The close confirmation has expired. Please start again.", true
	case errors.Is(err, ticketing.ErrUnknownCategory):
		return "That ticket category does not exist.", true
	case errors.Is(err, ticketing.ErrTooManyCategories):
		return fmt.Sprintf("A server can have at most %d ticket categories.", entities.MaxCategories), true
	case errors.Is(err, ticketing.ErrTooManyQuestions):
		return fmt.Sprintf("A category can have at most %d intake questions.", entities.MaxQuestions), true
	case errors.As(err, &claimed):
		return fmt.Sprintf("This ticket is already claimed by <@%s>.", claimed.By), true
	default:
		return "", false
	}
}
