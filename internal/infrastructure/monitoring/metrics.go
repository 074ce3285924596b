package monitoring

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

type DBMetrics struct {
	QueryDuration *prometheus.HistogramVec
}

type BusinessMetrics struct {
	CompoundingPeriodsTotal prometheus.Counter
	RepaymentsTotal         *prometheus.CounterVec
	LoansCreatedTotal       prometheus.Counter
	AuditFindingsTotal      *prometheus.CounterVec
}

var (
	DB = DBMetrics{
		QueryDuration: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "lending_ledger_db_query_duration_seconds",
				Help:    "Histogram of database query latencies.",
				Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1},
			},
			[]string{"query_name", "status"},
		),
	}

	Business = BusinessMetrics{
		CompoundingPeriodsTotal: promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "lending_ledger_compounding_periods_total",
				Help: "Total number of compounding periods applied across all loans.",
			},
		),
		RepaymentsTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "lending_ledger_repayments_total",
				Help: "Total number of repayment attempts by outcome.",
			},
			[]string{"status"},
		),
		LoansCreatedTotal: promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "lending_ledger_loans_created_total",
				Help: "Total number of loans successfully created.",
			},
		),
		AuditFindingsTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "lending_ledger_audit_findings_total",
				Help: "Total number of auditor findings by class.",
			},
			[]string{"class"},
		),
	}
)

func RecordDBQuery(queryName, status string, duration time.Duration) {
	DB.QueryDuration.WithLabelValues(queryName, status).Observe(duration.Seconds())
}

func RecordCompoundingPeriods(n int) {
	Business.CompoundingPeriodsTotal.Add(float64(n))
}

func RecordRepayment(status string) {
	Business.RepaymentsTotal.WithLabelValues(status).Inc()
}

func RecordLoanCreated() {
	Business.LoansCreatedTotal.Inc()
}

func RecordAuditFinding(class string) {
	Business.AuditFindingsTotal.WithLabelValues(class).Inc()
}
