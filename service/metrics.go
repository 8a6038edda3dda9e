package service

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics tracks ledger activity for the metrics endpoint.
type Metrics struct {
	votesCast       prometheus.Counter
	rejections      *prometheus.CounterVec
	undos           prometheus.Counter
	leafCount       prometheus.Gauge
	filterFillRatio prometheus.Gauge
}

// NewMetrics registers the ledger metrics on the given registerer. A nil
// registerer falls back to the default registry.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	factory := promauto.With(reg)
	return &Metrics{
		votesCast: factory.NewCounter(prometheus.CounterOpts{
			Name: "securevote_votes_cast_total",
			Help: "Number of ballots appended to the ledger",
		}),
		rejections: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "securevote_cast_rejections_total",
			Help: "Number of rejected cast attempts by kind",
		}, []string{"kind"}),
		undos: factory.NewCounter(prometheus.CounterOpts{
			Name: "securevote_undos_total",
			Help: "Number of undone cast operations",
		}),
		leafCount: factory.NewGauge(prometheus.GaugeOpts{
			Name: "securevote_merkle_leaf_count",
			Help: "Current number of leaves in the Merkle tree",
		}),
		filterFillRatio: factory.NewGauge(prometheus.GaugeOpts{
			Name: "securevote_filter_fill_ratio",
			Help: "Fraction of set bits in the duplicate filter",
		}),
	}
}

func (m *Metrics) recordCast(leafCount int, fillRatio float64) {
	if m == nil {
		return
	}
	m.votesCast.Inc()
	m.leafCount.Set(float64(leafCount))
	m.filterFillRatio.Set(fillRatio)
}

func (m *Metrics) recordRejection(kind string) {
	if m == nil {
		return
	}
	m.rejections.WithLabelValues(kind).Inc()
}

func (m *Metrics) recordUndo(leafCount int) {
	if m == nil {
		return
	}
	m.undos.Inc()
	m.leafCount.Set(float64(leafCount))
}

func (m *Metrics) recordFilter(fillRatio float64) {
	if m == nil {
		return
	}
	m.filterFillRatio.Set(fillRatio)
}
