package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"sync"

	"github.com/bwmarrin/discordgo"
	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/synergybot/synergy/cmd/bot/config"
	"github.com/synergybot/synergy/cmd/bot/monitoring"
	"github.com/synergybot/synergy/pkg/dataaccess"
	"github.com/synergybot/synergy/pkg/logging"
	"github.com/synergybot/synergy/pkg/request"
	"github.com/synergybot/synergy/pkg/ticketing"
	"golang.org/x/time/rate"
)

// IApp is the surface the interaction handlers work against.
type IApp interface {
	// Log returns the logger.
	Log() *slog.Logger

	// Session returns the discord session.
	Session() *discordgo.Session

	// Manager returns the ticket session manager.
	Manager() *ticketing.SessionManager

	// Registry returns the category registry.
	Registry() *ticketing.CategoryRegistry

	// GuildDal returns the guild data access layer.
	GuildDal() dataaccess.GuildDal

	// AllowCreation reports whether the user is inside their ticket creation
	// cooldown.
	AllowCreation(userID string) bool
}

type App struct {
	// is the logger.
	*slog.Logger

	// r is the router for the application.
	r *mux.Router

	// svr is the server for the application.
	svr *http.Server

	// s is the discord session.
	s *discordgo.Session

	// manager is the ticket session manager.
	manager *ticketing.SessionManager

	// registry is the category registry.
	registry *ticketing.CategoryRegistry

	// reaper erases expired closed ticket records.
	reaper *ticketing.Reaper

	// reaperCancel stops the reaper.
	reaperCancel context.CancelFunc

	// guildDal is the guild data access layer.
	guildDal dataaccess.GuildDal

	// cooldownMu guards cooldowns.
	cooldownMu sync.Mutex

	// cooldowns are the per-user ticket creation limiters.
	cooldowns map[string]*rate.Limiter
}

// NewApp creates a new instance of App.
func NewApp(l *slog.Logger, r *mux.Router) *App {
	return &App{
		Logger:    l,
		r:         r,
		cooldowns: make(map[string]*rate.Limiter),
	}
}

func (a *App) Run() error {
	// Register bot.
	if err := a.RegisterBot(); err != nil {
		return fmt.Errorf("error registering bot: %w", err)
	}

	a.s.AddHandler(func(s *discordgo.Session, r *discordgo.Ready) {
		a.Info(fmt.Sprintf("Logged in as %s#%s", r.User.Username, r.User.Discriminator))
	})

	// Build the ticketing core on top of the session and the DALs.
	a.setupTicketing()

	if err := a.RegisterDiscordHandlers(); err != nil {
		return fmt.Errorf("error registering discord handlers: %w", err)
	}

	// Open websocket.
	if err := a.s.Open(); err != nil {
		return fmt.Errorf("error opening connection to Discord: %w", err)
	}

	// Register slash commands.
	if err := a.registerSlashCommands(); err != nil {
		return fmt.Errorf("error registering slash commands: %w", err)
	}

	// Rebuild the open-session index from the store before serving anything.
	recovered, err := a.manager.Recover(context.Background())
	if err != nil {
		return fmt.Errorf("error recovering sessions: %w", err)
	}
	a.Info(fmt.Sprintf("Recovered %d open ticket sessions", recovered))

	// Start the reaper.
	var reaperCtx context.Context
	reaperCtx, a.reaperCancel = context.WithCancel(context.Background())
	go a.reaper.Start(reaperCtx)

	a.Info("Bot is now running.")

	a.generateServer()
	a.setupRoutes()
	a.runServer()

	// Register listener for shutdown signal.
	c := make(chan os.Signal, 1)
	signal.Notify(c, os.Interrupt)

	// Process shutdown signal.
	for sig := range c {
		a.Info("Received shutdown signal", slog.String(logging.KeySignal, sig.String()))
		if err := a.ShutdownHook(); err != nil {
			a.Error("Error shutting down application", slog.String(logging.KeyError, err.Error()))
		}
		os.Exit(0)
	}
	return nil
}

func (a *App) ShutdownHook() error {
	// Reset the total number of guilds to 0.
	monitoring.TotalDiscordGuilds.Set(0)

	// Stop the reaper and any delayed channel deletions.
	if a.reaperCancel != nil {
		a.reaperCancel()
	}
	a.manager.Stop()

	// Unregister slash commands.
	if err := a.unregisterSlashCommands(); err != nil {
		return fmt.Errorf("error unregistering slash commands: %w", err)
	}

	// Close the connection to Discord.
	if err := a.s.Close(); err != nil {
		return fmt.Errorf("error closing connection to Discord: %w", err)
	}
	return nil
}

func (a *App) RegisterBot() error {
	// Default the number of guilds to 0.
	monitoring.TotalDiscordGuilds.Set(0)

	dg, err := discordgo.New("Bot " + config.BotToken)
	if err != nil {
		return fmt.Errorf("error creating Discord session: %w", err)
	}

	dg.Identify.Intents = discordgo.MakeIntent(discordgo.IntentsAllWithoutPrivileged | discordgo.IntentsGuildMembers)

	a.s = dg
	return nil
}

// setupTicketing wires the session manager, registry and reaper against the
// MongoDB DALs and the discord-backed provisioner.
func (a *App) setupTicketing() {
	a.guildDal = dataaccess.NewGuildDal(a.Logger)
	ticketDal := dataaccess.NewTicketDal(a.Logger)
	counterDal := dataaccess.NewCounterDal(a.Logger)

	cfg := ticketing.DefaultConfig()
	provisioner := newDiscordProvisioner(a.s)
	notifier := newRatingNotifier(a.s)

	a.manager = ticketing.NewSessionManager(a.Logger, cfg, ticketDal, a.guildDal, counterDal, provisioner, notifier)
	a.registry = ticketing.NewCategoryRegistry(a.Logger, a.guildDal)
	a.reaper = ticketing.NewReaper(a.Logger, ticketDal, cfg)
}

func (a *App) runServer() {
	go func() {
		slog.Info("Starting monitoring server")
		if err := a.svr.ListenAndServe(); err != nil {
			a.Error("Error starting monitoring server", slog.String(logging.KeyError, err.Error()))
			a.Warn("Monitoring server will not be available")
		}
	}()
}

func (a *App) setupRoutes() {
	// PathMetrics is the path for metrics.
	a.r.HandleFunc(PathMetrics, promhttp.Handler().ServeHTTP).Methods(http.MethodGet)

	// PathHealth is the path for health check.
	a.r.HandleFunc(PathHealth, middlewareHttp(a.healthCheck(), a)).Methods(http.MethodGet)

	// NotFoundHandler is the handler for 404.
	a.r.NotFoundHandler = request.NotFoundHandler(a.Logger)

	// MethodNotAllowedHandler is the handler for 405.
	a.r.MethodNotAllowedHandler = request.MethodNotAllowedHandler(a.Logger)
}

func (a *App) generateServer() {
	a.svr = &http.Server{
		Addr:    ":" + config.MonitoringPort,
		Handler: a.r,
	}
}

func (a *App) GetJoinedGuilds() ([]*discordgo.UserGuild, error) {
	guilds, err := a.s.UserGuilds(0, "", "", false)
	if err != nil {
		return nil, fmt.Errorf("error getting guilds: %w", err)
	}
	return guilds, nil
}

func (a *App) RegisterDiscordHandlers() error {
	// Bot joined guild.
	a.s.AddHandler(guildJoinedHandler(a))

	// Bot left guild.
	a.s.AddHandler(guildLeaveHandler(a))

	// Raw event metrics.
	a.s.AddHandler(func(_ *discordgo.Session, e *discordgo.Event) {
		if e.Type != "" {
			monitoring.TotalDiscordEvents.WithLabelValues(e.Type).Inc()
		}
	})

	// Interaction create handler.
	a.s.AddHandler(interactionHandler(a,
		// Slash controllers
		map[string]commandController{
			setupCmd.Name:  setupCmdController,
			ticketCmd.Name: ticketCmdController,
		},
		// Component controllers, keyed by custom ID prefix
		map[string]commandProcessor{
			CategorySelectID:   categorySelectHandler,
			ClaimButtonID:      claimButtonHandler,
			CloseButtonID:      closeButtonHandler,
			TranscriptButtonID: transcriptButtonHandler,
			RatingButtonID:     ratingButtonHandler,
		},
		// Modal controllers, keyed by custom ID prefix
		map[string]commandProcessor{
			IntakeModalID:      intakeModalHandler,
			CloseReasonModalID: closeReasonModalHandler,
		}))
	return nil
}

func (a *App) registerSlashCommands() error {
	// Get all guilds the bot is in.
	guilds, err := a.GetJoinedGuilds()
	if err != nil {
		return fmt.Errorf("error getting guilds: %w", err)
	}

	// Register slash commands for each guild.
	for _, g := range guilds {
		// Register the setup command.
		if _, err := a.Session().ApplicationCommandCreate(config.ApplicationId, g.ID, setupCmd); err != nil {
			return fmt.Errorf("error creating setup command for guild %s: %w", g.ID, err)
		}

		// Register the ticket command.
		if _, err := a.Session().ApplicationCommandCreate(config.ApplicationId, g.ID, ticketCmd); err != nil {
			return fmt.Errorf("error creating ticket command for guild %s: %w", g.ID, err)
		}
	}
	return nil
}

func (a *App) unregisterSlashCommands() error {
	// Get all guilds the bot is in.
	guilds, err := a.GetJoinedGuilds()
	if err != nil {
		return fmt.Errorf("error getting guilds: %w", err)
	}

	// Delete slash commands for each guild.
	for _, guild := range guilds {
		cmds, err := a.s.ApplicationCommands(config.ApplicationId, guild.ID)
		if err != nil {
			return fmt.Errorf("error getting commands for guild %s: %w", guild.ID, err)
		}

		for _, cmd := range cmds {
			if cmd.Name != setupCmd.Name && cmd.Name != ticketCmd.Name {
				continue
			}
			if err := a.s.ApplicationCommandDelete(config.ApplicationId, guild.ID, cmd.ID); err != nil {
				return fmt.Errorf("error deleting command %s for guild %s: %w", cmd.Name, guild.ID, err)
			}
		}
	}
	return nil
}

func (a *App) Log() *slog.Logger {
	return a.Logger
}

func (a *App) Session() *discordgo.Session {
	return a.s
}

func (a *App) Manager() *ticketing.SessionManager {
	return a.manager
}

func (a *App) Registry() *ticketing.CategoryRegistry {
	return a.registry
}

func (a *App) GuildDal() dataaccess.GuildDal {
	return a.guildDal
}

// AllowCreation enforces the one-creation-per-minute cooldown per user. The
// cooldown lives here rather than in the manager so that it only applies to
// the interactive surface.
func (a *App) AllowCreation(userID string) bool {
	a.cooldownMu.Lock()
	defer a.cooldownMu.Unlock()

	limiter, ok := a.cooldowns[userID]
	if !ok {
		limiter = rate.NewLimiter(rate.Every(creationCooldown), 1)
		a.cooldowns[userID] = limiter
	}
	return limiter.Allow()
}
