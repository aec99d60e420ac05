package services

import (
	"context"
	"fmt"
	"math"
	"sort"
	"time"

	"github.com/kazuya8222/embld-revenue/internal/models"
	repo "github.com/kazuya8222/embld-revenue/internal/repository"
)

type Period string

const (
	PeriodDay   Period = "day"
	PeriodWeek  Period = "week"
	PeriodMonth Period = "month"
	PeriodYear  Period = "year"
)

func ParsePeriod(s string) (Period, error) {
	switch p := Period(s); p {
	case "":
		return PeriodMonth, nil
	case PeriodDay, PeriodWeek, PeriodMonth, PeriodYear:
		return p, nil
	}
	return "", fmt.Errorf("unknown period %q", s)
}

// Range returns the inclusive date window reported for p, ending at end.
func (p Period) Range(end time.Time) (time.Time, time.Time) {
	end = models.Day(end)
	switch p {
	case PeriodDay:
		return end.AddDate(0, 0, -30), end
	case PeriodWeek:
		return end.AddDate(0, 0, -84), end
	case PeriodYear:
		return end.AddDate(-5, 0, 0), end
	default:
		return end.AddDate(0, -12, 0), end
	}
}

// Bucket is the key a daily row is aggregated under.
func (p Period) Bucket(day time.Time) string {
	day = day.UTC()
	switch p {
	case PeriodWeek:
		return day.AddDate(0, 0, -int(day.Weekday())).Format(time.DateOnly)
	case PeriodMonth:
		return day.Format("2006-01")
	case PeriodYear:
		return day.Format("2006")
	default:
		return day.Format(time.DateOnly)
	}
}

type AnalyticsPoint struct {
	Date             string `json:"date"`
	Revenue          int64  `json:"revenue"`
	PayoutAmount     int64  `json:"payout_amount"`
	TransactionCount int64  `json:"transaction_count"`
}

type AnalyticsTotals struct {
	TotalRevenue      int64 `json:"totalRevenue"`
	TotalPayout       int64 `json:"totalPayout"`
	TotalTransactions int64 `json:"totalTransactions"`
	AverageRevenue    int64 `json:"averageRevenue"`
}

type AnalyticsReport struct {
	Analytics []AnalyticsPoint `json:"analytics"`
	Totals    AnalyticsTotals  `json:"totals"`
	Period    Period           `json:"period"`
	StartDate string           `json:"startDate"`
	EndDate   string           `json:"endDate"`
}

type AnalyticsService struct {
	r   repo.Analytics
	now func() time.Time
}

func NewAnalyticsService(r repo.Analytics) *AnalyticsService {
	return &AnalyticsService{r: r, now: time.Now}
}

func (s *AnalyticsService) Report(ctx context.Context, userID string, period Period, productID *string) (AnalyticsReport, error) {
	from, to := period.Range(s.now())
	rows, err := s.r.ListUserRevenue(ctx, userID, productID, from, to)
	if err != nil {
		return AnalyticsReport{}, err
	}
	return AnalyticsReport{
		Analytics: Aggregate(rows, period),
		Totals:    Totals(rows),
		Period:    period,
		StartDate: from.Format(time.DateOnly),
		EndDate:   to.Format(time.DateOnly),
	}, nil
}

// Aggregate sums daily rows into period buckets, oldest first.
func Aggregate(rows []models.RevenueAnalytics, period Period) []AnalyticsPoint {
	byKey := map[string]*AnalyticsPoint{}
	for _, r := range rows {
		key := period.Bucket(r.Date)
		pt, ok := byKey[key]
		if !ok {
			pt = &AnalyticsPoint{Date: key}
			byKey[key] = pt
		}
		pt.Revenue += r.Revenue
		pt.PayoutAmount += r.PayoutAmount
		pt.TransactionCount += r.TransactionCount
	}
	out := make([]AnalyticsPoint, 0, len(byKey))
	for _, pt := range byKey {
		out = append(out, *pt)
	}
	// Bucket keys are zero-padded, so lexical order is chronological.
	sort.Slice(out, func(i, j int) bool { return out[i].Date < out[j].Date })
	return out
}

func Totals(rows []models.RevenueAnalytics) AnalyticsTotals {
	var t AnalyticsTotals
	for _, r := range rows {
		t.TotalRevenue += r.Revenue
		t.TotalPayout += r.PayoutAmount
		t.TotalTransactions += r.TransactionCount
	}
	if len(rows) > 0 {
		t.AverageRevenue = int64(math.Round(float64(t.TotalRevenue) / float64(len(rows))))
	}
	return t
}
