package loyalty

import (
	"context"
	"fmt"
	"sort"
)

// OrderAggregator resolves a guest's orders across both streams.
type OrderAggregator struct {
	reader OrderReader
}

// NewOrderAggregator wires an OrderAggregator.
func NewOrderAggregator(reader OrderReader) (*OrderAggregator, error) {
	if reader == nil {
		return nil, fmt.Errorf("%w: order reader dependency is nil", ErrInvalidServiceConfig)
	}
	return &OrderAggregator{reader: reader}, nil
}

// Orders returns every order reachable through any key of the set, once each,
// newest first. An empty key set yields an empty list.
func (aggregator *OrderAggregator) Orders(ctx context.Context, keys IdentityKeySet) ([]Order, error) {
	if keys.IsEmpty() {
		return []Order{}, nil
	}
	return collectOrders(ctx, aggregator.reader, keys.Queries())
}

type orderKey struct {
	kind OrderKind
	id   string
}

// collectOrders runs each query and merges the results, deduplicated by stream and id.
func collectOrders(ctx context.Context, reader OrderReader, queries []OrderQuery) ([]Order, error) {
	seen := make(map[orderKey]struct{})
	merged := make([]Order, 0)
	for _, query := range queries {
		if _, err := ParseOrderKind(query.Kind.String()); err != nil {
			return nil, err
		}
		orders, err := reader.ListOrders(ctx, query)
		if err != nil {
			return nil, err
		}
		for _, order := range orders {
			order.Kind = query.Kind
			key := orderKey{kind: order.Kind, id: order.ID}
			if _, duplicate := seen[key]; duplicate {
				continue
			}
			seen[key] = struct{}{}
			merged = append(merged, order)
		}
	}
	sort.SliceStable(merged, func(left, right int) bool {
		if !merged[left].CreatedAt.Equal(merged[right].CreatedAt) {
			return merged[left].CreatedAt.After(merged[right].CreatedAt)
		}
		return merged[left].ID > merged[right].ID
	})
	return merged, nil
}
