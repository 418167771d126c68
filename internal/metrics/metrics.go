package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Recorder bundles the ledger engine metrics.
type Recorder struct {
	ShiftsOpened      prometheus.Counter
	ShiftsClosed      prometheus.Counter
	Sales             *prometheus.CounterVec
	SaleAmount        *prometheus.CounterVec
	SafePostings      *prometheus.CounterVec
	ExpensesSkipped   prometheus.Counter
	DeliveriesFlagged prometheus.Counter
	DipsOverCapacity  prometheus.Counter
	TankDiscrepancies prometheus.Counter
	CashVariance      prometheus.Histogram
	SweepRuns         *prometheus.CounterVec
}

// New constructs the metrics and registers them with reg. Pass
// prometheus.NewRegistry() in tests to avoid duplicate registration.
func New(reg prometheus.Registerer) *Recorder {
	r := &Recorder{
		ShiftsOpened: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "stationledger_shifts_opened_total",
			Help: "Total shifts opened",
		}),
		ShiftsClosed: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "stationledger_shifts_closed_total",
			Help: "Total shifts closed",
		}),
		Sales: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "stationledger_sales_total",
				Help: "Total recorded sales by tender",
			},
			[]string{"tender"},
		),
		SaleAmount: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "stationledger_sale_amount_total",
				Help: "Sum of recorded sale amounts by tender",
			},
			[]string{"tender"},
		),
		SafePostings: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "stationledger_safe_postings_total",
				Help: "Total safe ledger postings by type",
			},
			[]string{"type"},
		),
		ExpensesSkipped: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "stationledger_expenses_skipped_total",
			Help: "Expenses skipped because the safe could not cover them",
		}),
		DeliveriesFlagged: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "stationledger_deliveries_flagged_total",
			Help: "Deliveries that overflowed tank capacity",
		}),
		DipsOverCapacity: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "stationledger_dips_over_capacity_total",
			Help: "Dip measurements above tank capacity",
		}),
		TankDiscrepancies: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "stationledger_tank_discrepancies_total",
			Help: "Tank levels pushed outside capacity bounds by a shift close",
		}),
		CashVariance: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "stationledger_cash_variance",
			Help:    "Declared minus expected cash at shift close",
			Buckets: []float64{-10000, -1000, -100, -10, 0, 10, 100, 1000, 10000},
		}),
		SweepRuns: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "stationledger_sweep_runs_total",
				Help: "Sweeper station runs by status",
			},
			[]string{"status"},
		),
	}
	if reg != nil {
		reg.MustRegister(
			r.ShiftsOpened,
			r.ShiftsClosed,
			r.Sales,
			r.SaleAmount,
			r.SafePostings,
			r.ExpensesSkipped,
			r.DeliveriesFlagged,
			r.DipsOverCapacity,
			r.TankDiscrepancies,
			r.CashVariance,
			r.SweepRuns,
		)
	}
	return r
}
