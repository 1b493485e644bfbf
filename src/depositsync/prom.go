package depositsync

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var cycleCounter = promauto.NewCounter(prometheus.CounterOpts{
	Name: "francpay_deposit_sync_cycles",
	Help: "Number of deposit sync cycles run",
})

var registeredCounter = promauto.NewCounter(prometheus.CounterOpts{
	Name: "francpay_deposits_registered",
	Help: "Number of on-chain deposits registered on the backend",
})

var registerErrorCounter = promauto.NewCounter(prometheus.CounterOpts{
	Name: "francpay_deposit_register_errors",
	Help: "Number of failed deposit registrations, retried next cycle",
})

var processedGauge = promauto.NewGauge(prometheus.GaugeOpts{
	Name: "francpay_deposit_processed_hashes",
	Help: "Size of the processed hash set of the current session",
})
