package metrics

import (
	"strconv"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "guestledger"

var (
	once sync.Once

	operations = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "operations_total",
			Help:      "Ledger operations by name and outcome.",
		},
		[]string{"operation", "status"},
	)

	ordersLinked = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "orders_linked_total",
			Help:      "Past orders attached to guests during registration.",
		},
	)

	pointsAwarded = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "points_awarded_total",
			Help:      "Loyalty points credited to guests.",
		},
	)

	httpRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "HTTP requests by route and status code.",
		},
		[]string{"route", "code"},
	)
)

// Register registers Prometheus metrics. Safe to call multiple times.
func Register() {
	once.Do(func() {
		prometheus.MustRegister(operations, ordersLinked, pointsAwarded, httpRequests)
	})
}

// IncOperation counts one ledger operation.
func IncOperation(operation string, status string) {
	operations.WithLabelValues(operation, status).Inc()
}

// AddOrdersLinked counts orders linked by a registration.
func AddOrdersLinked(count int) {
	if count > 0 {
		ordersLinked.Add(float64(count))
	}
}

// AddPointsAwarded counts credited points. Deductions are ignored.
func AddPointsAwarded(points int64) {
	if points > 0 {
		pointsAwarded.Add(float64(points))
	}
}

// IncHTTP increments the counter for a route and status code.
func IncHTTP(route string, code int) {
	httpRequests.WithLabelValues(route, strconv.Itoa(code)).Inc()
}
