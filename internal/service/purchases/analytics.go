package purchases

import (
	"context"
	"sort"
	"time"

	"kaiden-app/internal/domain/pricing"
	purchasedomain "kaiden-app/internal/domain/purchases"
)

type Summary struct {
	TotalPurchases     int64   `json:"total_purchases"`
	CompletedPurchases int64   `json:"completed_purchases"`
	PendingPurchases   int64   `json:"pending_purchases"`
	RefundedPurchases  int64   `json:"refunded_purchases"`
	ExpiredPurchases   int64   `json:"expired_purchases"`
	TotalRevenue       int64   `json:"total_revenue"`
	ConversionRate     float64 `json:"conversion_rate"`
}

type FeatureStats struct {
	Feature     string `json:"feature"`
	DisplayName string `json:"display_name"`
	Purchases   int64  `json:"purchases"`
	Revenue     int64  `json:"revenue"`
}

type DailyRevenue struct {
	Date             string `json:"date"`
	Revenue          int64  `json:"revenue"`
	RevenueFormatted string `json:"revenue_formatted"`
}

type Analytics struct {
	Summary   Summary        `json:"summary"`
	ByFeature []FeatureStats `json:"by_feature"`
	Popular   []FeatureStats `json:"popular"`
	Trend     []DailyRevenue `json:"trend"`
}

// revenue counts money that was collected and kept; refunds are excluded.
func earned(status string) bool {
	return status == purchasedomain.StatusCompleted || status == purchasedomain.StatusExpired
}

// Analytics aggregates purchases in memory so the same code runs on Postgres and SQLite.
func (s *Service) Analytics(ctx context.Context, popularLimit, days int) (Analytics, error) {
	if popularLimit <= 0 {
		popularLimit = 5
	}
	if days <= 0 {
		days = 30
	}

	var rows []purchasedomain.FeaturePurchase
	if err := s.db.WithContext(ctx).
		Select("feature_name", "amount", "currency", "status", "purchased_at", "created_at").
		Find(&rows).Error; err != nil {
		return Analytics{}, err
	}

	now := s.now().UTC()
	start := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC).AddDate(0, 0, -(days - 1))
	daily := make(map[string]int64, days)
	stats := map[string]*FeatureStats{}

	var out Analytics
	for _, p := range rows {
		out.Summary.TotalPurchases++
		switch p.Status {
		case purchasedomain.StatusCompleted:
			out.Summary.CompletedPurchases++
		case purchasedomain.StatusPending:
			out.Summary.PendingPurchases++
		case purchasedomain.StatusRefunded:
			out.Summary.RefundedPurchases++
		case purchasedomain.StatusExpired:
			out.Summary.ExpiredPurchases++
		}
		if !earned(p.Status) {
			continue
		}

		out.Summary.TotalRevenue += p.Amount
		fs, ok := stats[p.FeatureName]
		if !ok {
			fs = &FeatureStats{Feature: p.FeatureName, DisplayName: p.FeatureName}
			if offer, known := s.catalog.GetFeaturePricing(p.FeatureName); known {
				fs.DisplayName = offer.DisplayName
			}
			stats[p.FeatureName] = fs
		}
		fs.Purchases++
		fs.Revenue += p.Amount

		paid := p.CreatedAt
		if p.PurchasedAt != nil {
			paid = *p.PurchasedAt
		}
		if !paid.UTC().Before(start) {
			daily[paid.UTC().Format(time.DateOnly)] += p.Amount
		}
	}

	if out.Summary.TotalPurchases > 0 {
		settled := out.Summary.CompletedPurchases + out.Summary.ExpiredPurchases + out.Summary.RefundedPurchases
		out.Summary.ConversionRate = float64(settled) / float64(out.Summary.TotalPurchases) * 100
	}

	out.ByFeature = make([]FeatureStats, 0, len(stats))
	for _, fs := range stats {
		out.ByFeature = append(out.ByFeature, *fs)
	}
	sort.Slice(out.ByFeature, func(i, j int) bool {
		a, b := out.ByFeature[i], out.ByFeature[j]
		if a.Revenue != b.Revenue {
			return a.Revenue > b.Revenue
		}
		return a.Feature < b.Feature
	})

	out.Popular = append([]FeatureStats(nil), out.ByFeature...)
	sort.SliceStable(out.Popular, func(i, j int) bool {
		a, b := out.Popular[i], out.Popular[j]
		if a.Purchases != b.Purchases {
			return a.Purchases > b.Purchases
		}
		return a.Feature < b.Feature
	})
	if len(out.Popular) > popularLimit {
		out.Popular = out.Popular[:popularLimit]
	}

	out.Trend = make([]DailyRevenue, 0, days)
	for d := 0; d < days; d++ {
		day := start.AddDate(0, 0, d).Format(time.DateOnly)
		out.Trend = append(out.Trend, DailyRevenue{
			Date:             day,
			Revenue:          daily[day],
			RevenueFormatted: pricing.FormatPrice(daily[day], "usd"),
		})
	}
	return out, nil
}
