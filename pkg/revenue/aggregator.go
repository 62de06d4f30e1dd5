package revenue

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/MarkoPoloResearchLab/guestledger/pkg/loyalty"
)

const cacheKeyMinuteLayout = "200601021504"

// ErrInvalidAggregatorConfig reports a miswired Aggregator.
var ErrInvalidAggregatorConfig = errors.New("invalid revenue aggregator config")

// ReportCache stores computed reports for a short time.
type ReportCache interface {
	Get(ctx context.Context, key string) (Report, bool, error)
	Set(ctx context.Context, key string, report Report, ttl time.Duration) error
}

// Option configures an Aggregator.
type Option func(*Aggregator)

// WithReportCache serves repeated requests within the same minute from cache.
func WithReportCache(cache ReportCache, ttl time.Duration) Option {
	return func(aggregator *Aggregator) {
		if cache != nil && ttl > 0 {
			aggregator.cache = cache
			aggregator.cacheTTL = ttl
		}
	}
}

// WithLogger sets the logger used for cache failures.
func WithLogger(logger *zap.Logger) Option {
	return func(aggregator *Aggregator) {
		if logger != nil {
			aggregator.logger = logger
		}
	}
}

// Aggregator computes revenue reports from both order streams.
type Aggregator struct {
	source   loyalty.OrderReader
	nowFn    func() time.Time
	location *time.Location
	cache    ReportCache
	cacheTTL time.Duration
	logger   *zap.Logger
}

// NewAggregator wires an Aggregator.
func NewAggregator(source loyalty.OrderReader, now func() time.Time, location *time.Location, options ...Option) (*Aggregator, error) {
	if source == nil {
		return nil, fmt.Errorf("%w: order source is nil", ErrInvalidAggregatorConfig)
	}
	if now == nil {
		return nil, fmt.Errorf("%w: clock is nil", ErrInvalidAggregatorConfig)
	}
	if location == nil {
		location = time.UTC
	}
	aggregator := &Aggregator{
		source:   source,
		nowFn:    now,
		location: location,
		logger:   zap.NewNop(),
	}
	for _, option := range options {
		if option != nil {
			option(aggregator)
		}
	}
	return aggregator, nil
}

// Report returns the revenue report for a scope at the current time.
func (aggregator *Aggregator) Report(ctx context.Context, scope Scope) (Report, error) {
	scope.HostID = strings.TrimSpace(scope.HostID)
	now := aggregator.nowFn().In(aggregator.location)
	key := cacheKey(scope, now)
	if aggregator.cache != nil {
		cached, found, err := aggregator.cache.Get(ctx, key)
		if err != nil {
			aggregator.logger.Warn("revenue report cache read failed", zap.String("key", key), zap.Error(err))
		} else if found {
			return cached, nil
		}
	}

	since := WindowStart(now, aggregator.location)
	orders := make([]loyalty.Order, 0)
	for _, kind := range loyalty.OrderKinds() {
		streamOrders, err := aggregator.source.ListOrders(ctx, loyalty.OrderQuery{
			Kind:             kind,
			HostID:           scope.HostID,
			CreatedFrom:      since,
			ExcludeCancelled: true,
		})
		if err != nil {
			return Report{}, err
		}
		for _, order := range streamOrders {
			order.Kind = kind
			orders = append(orders, order)
		}
	}
	report := BuildReport(scope, orders, now, aggregator.location)

	if aggregator.cache != nil {
		if err := aggregator.cache.Set(ctx, key, report, aggregator.cacheTTL); err != nil {
			aggregator.logger.Warn("revenue report cache write failed", zap.String("key", key), zap.Error(err))
		}
	}
	return report, nil
}

func cacheKey(scope Scope, now time.Time) string {
	return scope.Key() + ":" + now.UTC().Format(cacheKeyMinuteLayout)
}
