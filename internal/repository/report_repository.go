package repository

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/shinyyama/tailor-backend/internal/model"
	"gorm.io/gorm"
)

type RevenueGrouping string

const (
	GroupByDay   RevenueGrouping = "day"
	GroupByMonth RevenueGrouping = "month"
	GroupByYear  RevenueGrouping = "year"
)

// layouts returns the MySQL DATE_FORMAT pattern and the matching Go layout.
func (g RevenueGrouping) layouts() (string, string, bool) {
	switch g {
	case GroupByDay:
		return "%Y-%m-%d", "2006-01-02", true
	case GroupByMonth:
		return "%Y-%m", "2006-01", true
	case GroupByYear:
		return "%Y", "2006", true
	}
	return "", "", false
}

// RevenueQuery bounds are inclusive and apply to completedAt.
type RevenueQuery struct {
	From    *time.Time
	To      *time.Time
	GroupBy RevenueGrouping
}

type RevenueRow struct {
	Period          string `json:"period"`
	TotalRevenue    int64  `json:"totalRevenue"`
	PlatformRevenue int64  `json:"platformRevenue"`
	ShopPayout      int64  `json:"shopPayout"`
	OrderCount      int64  `json:"orderCount"`
}

// ReportRepository aggregates settled orders. Only completed orders count.
type ReportRepository interface {
	Revenue(ctx context.Context, q RevenueQuery) ([]RevenueRow, error)
	SetDB(db *gorm.DB)
}

type reportRepository struct {
	dbHandle
}

func NewReportRepository(db *gorm.DB) ReportRepository {
	r := &reportRepository{}
	r.SetDB(db)
	return r
}

func (r *reportRepository) Revenue(ctx context.Context, q RevenueQuery) ([]RevenueRow, error) {
	pattern, _, ok := q.GroupBy.layouts()
	if !ok {
		return nil, fmt.Errorf("unknown grouping %q", q.GroupBy)
	}
	db, err := r.conn(ctx)
	if err != nil {
		return nil, err
	}
	tx := db.Model(&model.Order{}).
		Select(`DATE_FORMAT(completed_at, ?) AS period,
			SUM(price_total) AS total_revenue,
			SUM(price_platform_margin) AS platform_revenue,
			SUM(price_shop_cost) AS shop_payout,
			COUNT(*) AS order_count`, pattern).
		Where("status = ? AND completed_at IS NOT NULL", model.OrderStatusCompleted)
	if q.From != nil {
		tx = tx.Where("completed_at >= ?", *q.From)
	}
	if q.To != nil {
		tx = tx.Where("completed_at <= ?", *q.To)
	}
	var rows []RevenueRow
	if err := tx.Group("period").Order("period ASC").Scan(&rows).Error; err != nil {
		return nil, err
	}
	return rows, nil
}

type memReports struct{ s *MemoryStore }

func (r *memReports) SetDB(*gorm.DB) {}

func (r *memReports) Revenue(_ context.Context, q RevenueQuery) ([]RevenueRow, error) {
	_, layout, ok := q.GroupBy.layouts()
	if !ok {
		return nil, fmt.Errorf("unknown grouping %q", q.GroupBy)
	}
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	byPeriod := map[string]*RevenueRow{}
	for _, o := range r.s.orders {
		if o.Status != model.OrderStatusCompleted || o.CompletedAt == nil {
			continue
		}
		at := o.CompletedAt.UTC()
		if (q.From != nil && at.Before(*q.From)) || (q.To != nil && at.After(*q.To)) {
			continue
		}
		key := at.Format(layout)
		row, ok := byPeriod[key]
		if !ok {
			row = &RevenueRow{Period: key}
			byPeriod[key] = row
		}
		row.TotalRevenue += o.Pricing.Total
		row.PlatformRevenue += o.Pricing.PlatformMargin
		row.ShopPayout += o.Pricing.ShopCost
		row.OrderCount++
	}
	out := make([]RevenueRow, 0, len(byPeriod))
	for _, row := range byPeriod {
		out = append(out, *row)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Period < out[j].Period })
	return out, nil
}
