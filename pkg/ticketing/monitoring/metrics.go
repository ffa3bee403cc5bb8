package monitoring

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// TicketsCreated is the total number of tickets created.
	TicketsCreated = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ticketing_tickets_created_total",
			Help: "Total number of tickets created",
		},
		[]string{"guild"},
	)

	// TicketsClosed is the total number of tickets closed.
	TicketsClosed = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ticketing_tickets_closed_total",
			Help: "Total number of tickets closed",
		},
		[]string{"guild"},
	)

	// TicketsReaped is the total number of expired closed tickets erased by
	// the reaper.
	TicketsReaped = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "ticketing_tickets_reaped_total",
			Help: "Total number of expired ticket records erased",
		},
	)

	// OpenTickets is the number of tickets currently open.
	OpenTickets = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "ticketing_open_tickets",
			Help: "Number of tickets currently open",
		},
	)

	// CreationRejections is the number of rejected ticket creations by
	// reason.
	CreationRejections = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ticketing_creation_rejections_total",
			Help: "Total number of rejected ticket creations",
		},
		[]string{"reason"},
	)
)
