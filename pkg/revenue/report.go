package revenue

import (
	"sort"
	"time"

	"github.com/MarkoPoloResearchLab/guestledger/pkg/loyalty"
)

const (
	topRankingSize   = 5
	trendDays        = 14
	trailingWindow   = 30 * 24 * time.Hour
	trendDateLayout  = "2006-01-02"
	allHostsScopeKey = "all"
)

// Scope restricts a report to one host's rooms. A blank HostID means system-wide.
type Scope struct {
	HostID string `json:"host_id,omitempty"`
}

// Key returns a stable identifier for the scope.
func (scope Scope) Key() string {
	if scope.HostID == "" {
		return allHostsScopeKey
	}
	return "host:" + scope.HostID
}

// StreamTotals splits revenue by order stream.
type StreamTotals struct {
	Goods   loyalty.AmountCents `json:"goods"`
	Service loyalty.AmountCents `json:"service"`
	Total   loyalty.AmountCents `json:"total"`
}

func (totals *StreamTotals) add(kind loyalty.OrderKind, amount loyalty.AmountCents) {
	switch kind {
	case loyalty.OrderKindGoods:
		totals.Goods += amount
	case loyalty.OrderKindService:
		totals.Service += amount
	default:
		return
	}
	totals.Total += amount
}

// Windows holds the per-window revenue split.
type Windows struct {
	Today      StreamTotals `json:"today"`
	ThisWeek   StreamTotals `json:"this_week"`
	ThisMonth  StreamTotals `json:"this_month"`
	Last30Days StreamTotals `json:"last_30_days"`
}

// RankedItem is one entry of a top-N ranking.
type RankedItem struct {
	Name     string              `json:"name"`
	Revenue  loyalty.AmountCents `json:"revenue"`
	Quantity int64               `json:"quantity"`
}

// TrendPoint is one calendar day of the daily trend.
type TrendPoint struct {
	Date string `json:"date"`
	StreamTotals
}

// Report is the analytics view for a scope.
type Report struct {
	Scope       Scope        `json:"scope"`
	GeneratedAt time.Time    `json:"generated_at"`
	Windows     Windows      `json:"windows"`
	TopServices []RankedItem `json:"top_services"`
	TopGoods    []RankedItem `json:"top_goods"`
	DailyTrend  []TrendPoint `json:"daily_trend"`
}

// WindowStart returns the earliest instant any part of a report reads.
func WindowStart(now time.Time, location *time.Location) time.Time {
	monthStart := startOfMonth(now, location)
	trailingStart := now.Add(-trailingWindow)
	if monthStart.Before(trailingStart) {
		return monthStart
	}
	return trailingStart
}

// BuildReport aggregates orders into a report. Cancelled orders and orders
// after now are ignored.
func BuildReport(scope Scope, orders []loyalty.Order, now time.Time, location *time.Location) Report {
	if location == nil {
		location = time.UTC
	}
	todayStart := startOfDay(now, location)
	weekStart := startOfWeek(now, location)
	monthStart := startOfMonth(now, location)
	trailingStart := now.Add(-trailingWindow)

	chronological := make([]loyalty.Order, 0, len(orders))
	for _, order := range orders {
		if order.Status == loyalty.OrderStatusCancelled || order.CreatedAt.After(now) {
			continue
		}
		chronological = append(chronological, order)
	}
	sort.SliceStable(chronological, func(left, right int) bool {
		return chronological[left].CreatedAt.Before(chronological[right].CreatedAt)
	})

	trend, trendIndex := newTrend(todayStart, location)
	services := newRanking()
	goods := newRanking()
	report := Report{Scope: scope, GeneratedAt: now}
	for _, order := range chronological {
		created := order.CreatedAt
		if !created.Before(todayStart) {
			report.Windows.Today.add(order.Kind, order.TotalAmount)
		}
		if !created.Before(weekStart) {
			report.Windows.ThisWeek.add(order.Kind, order.TotalAmount)
		}
		if !created.Before(monthStart) {
			report.Windows.ThisMonth.add(order.Kind, order.TotalAmount)
		}
		if created.Before(trailingStart) {
			continue
		}
		report.Windows.Last30Days.add(order.Kind, order.TotalAmount)
		if index, ok := trendIndex[created.In(location).Format(trendDateLayout)]; ok {
			trend[index].add(order.Kind, order.TotalAmount)
		}
		switch order.Kind {
		case loyalty.OrderKindService:
			services.addOrder(order)
		case loyalty.OrderKindGoods:
			goods.addOrder(order)
		}
	}
	report.TopServices = services.top(topRankingSize)
	report.TopGoods = goods.top(topRankingSize)
	report.DailyTrend = trend
	return report
}

func newTrend(todayStart time.Time, location *time.Location) ([]TrendPoint, map[string]int) {
	points := make([]TrendPoint, trendDays)
	index := make(map[string]int, trendDays)
	for offset := 0; offset < trendDays; offset++ {
		day := todayStart.AddDate(0, 0, offset-(trendDays-1)).In(location)
		date := day.Format(trendDateLayout)
		points[offset] = TrendPoint{Date: date}
		index[date] = offset
	}
	return points, index
}

type rankingEntry struct {
	item      RankedItem
	firstSeen int
}

type ranking struct {
	entries map[string]*rankingEntry
	seen    int
}

func newRanking() *ranking {
	return &ranking{entries: make(map[string]*rankingEntry)}
}

func (board *ranking) addOrder(order loyalty.Order) {
	if len(order.Items) == 0 {
		board.add(order.Kind.String(), 1, order.TotalAmount)
		return
	}
	for _, item := range order.Items {
		board.add(item.Name, item.Quantity, item.Revenue())
	}
}

func (board *ranking) add(name string, quantity int64, revenue loyalty.AmountCents) {
	entry, ok := board.entries[name]
	if !ok {
		entry = &rankingEntry{item: RankedItem{Name: name}, firstSeen: board.seen}
		board.entries[name] = entry
		board.seen++
	}
	entry.item.Quantity += quantity
	entry.item.Revenue += revenue
}

func (board *ranking) top(limit int) []RankedItem {
	entries := make([]*rankingEntry, 0, len(board.entries))
	for _, entry := range board.entries {
		entries = append(entries, entry)
	}
	sort.Slice(entries, func(left, right int) bool {
		if entries[left].item.Revenue != entries[right].item.Revenue {
			return entries[left].item.Revenue > entries[right].item.Revenue
		}
		return entries[left].firstSeen < entries[right].firstSeen
	})
	if len(entries) > limit {
		entries = entries[:limit]
	}
	items := make([]RankedItem, 0, len(entries))
	for _, entry := range entries {
		items = append(items, entry.item)
	}
	return items
}

func startOfDay(moment time.Time, location *time.Location) time.Time {
	local := moment.In(location)
	return time.Date(local.Year(), local.Month(), local.Day(), 0, 0, 0, 0, location)
}

// startOfWeek returns Monday 00:00 of the week containing moment.
func startOfWeek(moment time.Time, location *time.Location) time.Time {
	day := startOfDay(moment, location)
	offset := (int(day.Weekday()) + 6) % 7
	return day.AddDate(0, 0, -offset)
}

func startOfMonth(moment time.Time, location *time.Location) time.Time {
	local := moment.In(location)
	return time.Date(local.Year(), local.Month(), 1, 0, 0, 0, 0, location)
}
