package library

import (
	"context"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics counts Reconciler operations by outcome. A nil *Metrics is valid
// and records nothing.
type Metrics struct {
	operations *prometheus.CounterVec
}

// NewMetrics registers the operation counter on reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		operations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "library",
			Subsystem: "lending",
			Name:      "operations_total",
			Help:      "Reconciler operations by operation and result kind.",
		}, []string{"operation", "result"}),
	}
	reg.MustRegister(m.operations)
	return m
}

func (m *Metrics) observe(op string, err error) {
	if m == nil {
		return
	}
	result := "ok"
	if err != nil {
		result = Kind(err)
	}
	m.operations.WithLabelValues(op, result).Inc()
}

// InventoryCollector reports catalog and loan gauges computed at scrape time.
type InventoryCollector struct {
	db  *Database
	now func() time.Time

	books     *prometheus.Desc
	copies    *prometheus.Desc
	available *prometheus.Desc
	loans     *prometheus.Desc
}

// NewInventoryCollector builds a collector over db.
func NewInventoryCollector(db *Database) *InventoryCollector {
	return &InventoryCollector{
		db:        db,
		now:       time.Now,
		books:     prometheus.NewDesc("library_books", "Titles visible in the catalog.", nil, nil),
		copies:    prometheus.NewDesc("library_copies_total", "Sum of total_copies over visible titles.", nil, nil),
		available: prometheus.NewDesc("library_copies_available", "Sum of available_copies over visible titles.", nil, nil),
		loans:     prometheus.NewDesc("library_loans", "Issued loans by standing.", []string{"standing"}, nil),
	}
}

func (c *InventoryCollector) Describe(ch chan<- *prometheus.Desc) {
	ch <- c.books
	ch <- c.copies
	ch <- c.available
	ch <- c.loans
}

func (c *InventoryCollector) Collect(ch chan<- prometheus.Metric) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	books, err := c.db.ListBooks(ctx, false)
	if err != nil {
		ch <- prometheus.NewInvalidMetric(c.books, err)
		return
	}
	var total, available int
	for _, b := range books {
		total += b.TotalCopies
		available += b.AvailableCopies
	}
	ch <- prometheus.MustNewConstMetric(c.books, prometheus.GaugeValue, float64(len(books)))
	ch <- prometheus.MustNewConstMetric(c.copies, prometheus.GaugeValue, float64(total))
	ch <- prometheus.MustNewConstMetric(c.available, prometheus.GaugeValue, float64(available))

	loans, err := c.db.ActiveLoans(ctx)
	if err != nil {
		ch <- prometheus.NewInvalidMetric(c.loans, err)
		return
	}
	now := c.now()
	counts := map[Standing]int{StandingActive: 0, StandingOverdue: 0}
	for _, l := range loans {
		counts[Classify(&l.Loan, now)]++
	}
	for standing, n := range counts {
		ch <- prometheus.MustNewConstMetric(c.loans, prometheus.GaugeValue, float64(n), string(standing))
	}
}
