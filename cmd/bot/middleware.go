package main

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"runtime/debug"
	"strings"
	"time"

	"github.com/bwmarrin/discordgo"
	"github.com/gorilla/mux"
	"github.com/synergybot/synergy/cmd/bot/monitoring"
	"github.com/synergybot/synergy/pkg/logging"
	"github.com/synergybot/synergy/pkg/request"
)

const (
	// PathMetrics is the path for metrics.
	PathMetrics = "/metrics"

	// PathHealth is the path for health check.
	PathHealth = "/health"
)

// commandController resolves a slash command to its processor. It is where
// permission checks and sub command routing happen.
type commandController func(a IApp, i *discordgo.InteractionCreate) (commandProcessor, error)

// commandProcessor handles a single interaction.
type commandProcessor func(a IApp, i *discordgo.InteractionCreate) error

type Controller func(w http.ResponseWriter, r *http.Request)

func middlewareHttp(handler Controller, a IApp) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		now := time.Now().UTC()
		cw := request.NewClientWriter(w)

		// Recover from any panics that occur in the handler.
		defer func() {
			if rec := recover(); rec != nil {
				a.Log().Error("Panic in handler",
					slog.String(logging.KeyError, fmt.Sprintf("%v", rec)),
					slog.String("stack", string(debug.Stack())),
				)
				cw.WriteHeader(http.StatusInternalServerError)
				if err := json.NewEncoder(cw).Encode(request.NewMessage(request.ErrInternalServer.Error())); err != nil {
					a.Log().Error("Error encoding response", slog.String(logging.KeyError, err.Error()))
				}
			}
		}()

		var path string
		route := mux.CurrentRoute(r)
		if route != nil { // The route may be nil if the request is not routed.
			var err error
			path, err = route.GetPathTemplate()
			if err != nil {
				// An error here is only returned if the route does not define a path.
				a.Log().Error("Error getting path template", slog.String(logging.KeyError, err.Error()))
				path = r.URL.Path // If the route does not define a path, use the URL path.
			}
		} else {
			path = r.URL.Path // If the route is nil, use the URL path.
		}

		defer func() {
			// Run the deferred function after the request has been handled, as the status code will not be available until then.
			monitoring.HttpTotalRequests.WithLabelValues(path, r.Method, fmt.Sprintf("%d", cw.StatusCode())).Inc()
			monitoring.HttpRequestDuration.WithLabelValues(path, r.Method, fmt.Sprintf("%d", cw.StatusCode())).Observe(time.Since(now).Seconds())
		}()

		handler(cw, r)
	}
}

// interactionHandler routes interactions to their handlers. Slash commands
// route on the command name; components and modals route on the custom ID up
// to the first ":", so handlers can pack arguments into the ID.
func interactionHandler(
	a IApp,
	slashControllers map[string]commandController,
	componentControllers map[string]commandProcessor,
	modalControllers map[string]commandProcessor,
) func(s *discordgo.Session, i *discordgo.InteractionCreate) {
	return func(_ *discordgo.Session, i *discordgo.InteractionCreate) {
		switch i.Type {
		case discordgo.InteractionApplicationCommand:
			handleSlashCommand(a, i, slashControllers)
		case discordgo.InteractionMessageComponent:
			handleKeyed(a, i, i.MessageComponentData().CustomID, componentControllers)
		case discordgo.InteractionModalSubmit:
			handleKeyed(a, i, i.ModalSubmitData().CustomID, modalControllers)
		}
	}
}

func handleSlashCommand(a IApp, i *discordgo.InteractionCreate, controllers map[string]commandController) {
	name := i.ApplicationCommandData().Name
	a.Log().Debug("Handling interaction " + name)

	now := time.Now().UTC()
	defer func() {
		monitoring.DiscordCommandDuration.WithLabelValues(name).Observe(time.Since(now).Seconds())
	}()

	controller, ok := controllers[name]
	if !ok {
		a.Log().Error("No controller found for command", slog.String("command", name))
		if err := respondSlashError(a, i); err != nil {
			a.Log().Error("Error responding to interaction", slog.String(logging.KeyError, err.Error()))
		}
		return
	}

	processor, err := controller(a, i)
	if err != nil {
		a.Log().Error(fmt.Sprintf("Error getting processor for command %s", name),
			slog.String(logging.KeyError, err.Error()))

		if err := respondSlashError(a, i); err != nil {
			a.Log().Error("Error responding to interaction", slog.String(logging.KeyError, err.Error()))
		}
		return
	} else if processor == nil {
		// The controller already responded (permission rejection).
		return
	}

	if err := processor(a, i); err != nil {
		handleProcessorError(a, i, name, err)
	}
}

func handleKeyed(a IApp, i *discordgo.InteractionCreate, customID string, controllers map[string]commandProcessor) {
	key := customID
	if idx := strings.Index(customID, ":"); idx >= 0 {
		key = customID[:idx]
	}

	now := time.Now().UTC()
	defer func() {
		monitoring.DiscordCommandDuration.WithLabelValues(key).Observe(time.Since(now).Seconds())
	}()

	processor, ok := controllers[key]
	if !ok {
		a.Log().Error("No controller found for component", slog.String("custom_id", customID))
		if err := respondSlashError(a, i); err != nil {
			a.Log().Error("Error responding to interaction", slog.String(logging.KeyError, err.Error()))
		}
		return
	}

	if err := processor(a, i); err != nil {
		handleProcessorError(a, i, key, err)
	}
}

// handleProcessorError reports precondition rejections back to the user as-is
// and turns anything else into the generic failure message.
func handleProcessorError(a IApp, i *discordgo.InteractionCreate, name string, err error) {
	if msg, ok := userErrorMessage(err); ok {
		if rerr := respondEphemeral(a, i, msg); rerr != nil {
			a.Log().Error("Error responding to interaction", slog.String(logging.KeyError, rerr.Error()))
		}
		return
	}

	a.Log().Error(fmt.Sprintf("Error processing %s", name), slog.String(logging.KeyError, err.Error()))
	if rerr := respondSlashError(a, i); rerr != nil {
		a.Log().Error("Error responding to interaction", slog.String(logging.KeyError, rerr.Error()))
	}
}
