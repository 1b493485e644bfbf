package onchain

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var fetchedCounter = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "francpay_onchain_transactions_fetched",
	Help: "Number of incoming transfers returned by an indexer",
}, []string{"provider"})

var fetchErrorCounter = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "francpay_onchain_fetch_errors",
	Help: "Number of failed indexer fetches",
}, []string{"provider"})

var fallbackCounter = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "francpay_onchain_fallbacks",
	Help: "Number of times the fallback indexer was used",
}, []string{"from", "to"})
