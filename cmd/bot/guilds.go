package main

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/bwmarrin/discordgo"
	"github.com/synergybot/synergy/cmd/bot/monitoring"
	"github.com/synergybot/synergy/pkg/logging"
)

func guildJoinedHandler(a IApp) func(s *discordgo.Session, g *discordgo.GuildCreate) {
	return func(_ *discordgo.Session, g *discordgo.GuildCreate) {
		a.Log().Info(fmt.Sprintf("Joined guild %s", g.Name))

		// Increment the total number of guilds.
		monitoring.TotalDiscordGuilds.Inc()

		ctx := context.Background()

		// Make sure the guild has a configuration and the default categories.
		if err := a.Manager().EnsureGuild(ctx, g.ID); err != nil {
			a.Log().Error("Error ensuring guild configuration",
				slog.String(logging.KeyGuildID, g.ID),
				slog.String(logging.KeyError, err.Error()))
			return
		}
		if _, err := a.Registry().EnsureDefaults(ctx, g.ID); err != nil {
			a.Log().Error("Error seeding default categories",
				slog.String(logging.KeyGuildID, g.ID),
				slog.String(logging.KeyError, err.Error()))
		}
	}
}

func guildLeaveHandler(a IApp) func(s *discordgo.Session, g *discordgo.GuildDelete) {
	return func(_ *discordgo.Session, g *discordgo.GuildDelete) {
		a.Log().Info(fmt.Sprintf("Left guild %s", g.ID))

		// Decrement the total number of guilds.
		monitoring.TotalDiscordGuilds.Dec()

		// Drop all stored state for the guild.
		if err := a.Manager().PurgeGuild(context.Background(), g.ID); err != nil {
			a.Log().Error("Error purging guild state",
				slog.String(logging.KeyGuildID, g.ID),
				slog.String(logging.KeyError, err.Error()))
		}
	}
}
