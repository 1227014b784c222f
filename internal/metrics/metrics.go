package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Verdicts counts ledger verdicts by wire reason code.
	Verdicts = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "entitlement",
		Name:      "verdicts_total",
		Help:      "Verdicts computed by the ledger, by reason.",
	}, []string{"reason"})

	Extensions = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "entitlement",
		Name:      "extensions_total",
		Help:      "Administrative entitlement extensions.",
	})

	// RejectedHashes counts status requests refused for a malformed fingerprint.
	RejectedHashes = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "entitlement",
		Name:      "rejected_hashes_total",
		Help:      "Status requests rejected before reaching the ledger.",
	})
)
