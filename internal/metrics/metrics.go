package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	QuotesSubmitted = promauto.NewCounter(prometheus.CounterOpts{
		Name: "marketplace_quotes_submitted_total",
		Help: "Number of quotes successfully submitted",
	})

	QuotesAccepted = promauto.NewCounter(prometheus.CounterOpts{
		Name: "marketplace_quotes_accepted_total",
		Help: "Number of quotes accepted",
	})

	AcceptConflicts = promauto.NewCounter(prometheus.CounterOpts{
		Name: "marketplace_accept_conflicts_total",
		Help: "Number of accept attempts rejected because the tender was no longer open",
	})

	TendersExpired = promauto.NewCounter(prometheus.CounterOpts{
		Name: "marketplace_tenders_expired_total",
		Help: "Number of tenders closed by the expiry sweeper",
	})
)
