package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	QuoteFailuresTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "shiporch_quote_failures_total",
		Help: "Carrier quote calls absorbed as empty results, by carrier and reason.",
	},
		[]string{"carrier", "reason"},
	)

	BookingsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "shiporch_bookings_total",
		Help: "Booking pipeline outcomes, by carrier and outcome.",
	},
		[]string{"carrier", "outcome"},
	)

	CarrierExclusionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "shiporch_carrier_exclusions_total",
		Help: "Carriers excluded during selection, by carrier and stage (proactive or reactive).",
	},
		[]string{"carrier", "stage"},
	)

	TrackingPollsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "shiporch_tracking_polls_total",
		Help: "Tracking lookups, by carrier and result.",
	},
		[]string{"carrier", "result"},
	)

	RTOTransitionsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "shiporch_rto_transitions_total",
		Help: "Orders moved to the rto state.",
	})

	SettlementCreditsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "shiporch_settlement_credits_total",
		Help: "Wallet credits issued by RTO settlement, by leg.",
	},
		[]string{"leg"},
	)

	EstimateCacheLookups = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "shiporch_estimate_cache_lookups_total",
		Help: "Estimate cache lookups, by result (hit, miss, expired).",
	},
		[]string{"result"},
	)

	OperationErrorsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "shiporch_operation_errors_total",
		Help: "Errors encountered during specific operations.",
	},
		[]string{"operation"},
	)
)
