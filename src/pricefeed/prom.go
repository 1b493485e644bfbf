package pricefeed

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var snapshotCounter = promauto.NewCounter(prometheus.CounterOpts{
	Name: "francpay_price_snapshots",
	Help: "Number of price snapshots persisted",
})

var fetchErrorCounter = promauto.NewCounter(prometheus.CounterOpts{
	Name: "francpay_price_fetch_errors",
	Help: "Number of failed price snapshot fetches",
})

var priceGauge = promauto.NewGaugeVec(prometheus.GaugeOpts{
	Name: "francpay_fre_price",
	Help: "Last fetched FRE price by currency",
}, []string{"currency"})
