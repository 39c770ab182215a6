package usecase

import (
	"sort"

	"gonum.org/v1/gonum/stat"

	"github.com/eliteGoblin/appkiller/internal/domain"
)

// SeriesSummary describes one series of a history view.
type SeriesSummary struct {
	Count  int     `json:"count"`
	Latest float64 `json:"latest"`
	Mean   float64 `json:"mean"`
	Min    float64 `json:"min"`
	Max    float64 `json:"max"`
	P95    float64 `json:"p95"`
}

// HistorySummary describes the memory and CPU series of a history view.
type HistorySummary struct {
	Memory SeriesSummary `json:"memory"`
	CPU    SeriesSummary `json:"cpu"`
}

// SummarizeHistory computes per-series statistics. Empty series summarize to zeros.
func SummarizeHistory(view domain.MetricsHistoryView) HistorySummary {
	return HistorySummary{
		Memory: summarize(view.Memory),
		CPU:    summarize(view.CPU),
	}
}

func summarize(points []domain.SeriesPoint) SeriesSummary {
	if len(points) == 0 {
		return SeriesSummary{}
	}

	values := make([]float64, len(points))
	for i, p := range points {
		values[i] = p.Value
	}
	latest := values[len(values)-1]

	sorted := append([]float64(nil), values...)
	sort.Float64s(sorted)

	return SeriesSummary{
		Count:  len(values),
		Latest: latest,
		Mean:   stat.Mean(values, nil),
		Min:    sorted[0],
		Max:    sorted[len(sorted)-1],
		P95:    stat.Quantile(0.95, stat.Empirical, sorted, nil),
	}
}
