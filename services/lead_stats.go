package services

import (
	"math"
	"time"

	"prepxiq_go/models"
	"prepxiq_go/utils"
)

// LeadStats summarises the funnel over a date range.
type LeadStats struct {
	TotalInquiries  int                       `json:"total_inquiries"`
	Converted       int                       `json:"converted"`
	Lost            int                       `json:"lost"`
	InPipeline      int                       `json:"in_pipeline"`
	ConversionRate  float64                   `json:"conversion_rate"`
	BySource        map[models.LeadSource]int `json:"by_source"`
	ByStage         map[models.LeadStage]int  `json:"by_stage"`
	FollowUpsToday  int                       `json:"follow_ups_today"`
	OverdueFollowUp int                       `json:"overdue_follow_ups"`
}

// MonthlyTrendPoint is one month of inquiries and conversions.
type MonthlyTrendPoint struct {
	Month     string `json:"month"`
	Inquiries int    `json:"inquiries"`
	Converted int    `json:"converted"`
}

// ComputeLeadStats aggregates rows. today is midnight in the institute timezone.
func ComputeLeadStats(rows []LeadStatRow, today time.Time) LeadStats {
	stats := LeadStats{
		BySource: make(map[models.LeadSource]int),
		ByStage:  make(map[models.LeadStage]int),
	}
	for _, s := range models.LeadStages {
		stats.ByStage[s] = 0
	}
	for _, src := range models.LeadSources {
		stats.BySource[src] = 0
	}

	for _, r := range rows {
		stats.TotalInquiries++
		stats.ByStage[r.Stage]++
		stats.BySource[r.LeadSource]++
		switch r.Stage {
		case models.LeadStageConverted:
			stats.Converted++
		case models.LeadStageLost:
			stats.Lost++
		default:
			stats.InPipeline++
			if r.FollowUpDate != nil {
				switch d := utils.DaysBetween(today, *r.FollowUpDate); {
				case d == 0:
					stats.FollowUpsToday++
				case d < 0:
					stats.OverdueFollowUp++
				}
			}
		}
	}
	stats.ConversionRate = ConversionRate(stats.Converted, stats.TotalInquiries)
	return stats
}

// ConversionRate is converted/total as a percentage rounded to 2 decimals.
func ConversionRate(converted, total int) float64 {
	if total == 0 {
		return 0
	}
	return math.Round(float64(converted)/float64(total)*100*100) / 100
}

// ComputeMonthlyTrend buckets rows by creation month for the trailing months
// ending with now's month. Months with no leads are present with zero counts.
func ComputeMonthlyTrend(rows []LeadStatRow, now time.Time, months int, loc *time.Location) []MonthlyTrendPoint {
	if months < 1 {
		months = 1
	}
	if loc == nil {
		loc = time.Local
	}
	first := TrendStart(now, months, loc)

	points := make([]MonthlyTrendPoint, months)
	index := make(map[string]int, months)
	for i := 0; i < months; i++ {
		key := utils.MonthKey(first.AddDate(0, i, 0))
		points[i] = MonthlyTrendPoint{Month: key}
		index[key] = i
	}

	for _, r := range rows {
		i, ok := index[utils.MonthKey(r.CreatedAt.In(loc))]
		if !ok {
			continue
		}
		points[i].Inquiries++
		if r.Stage == models.LeadStageConverted {
			points[i].Converted++
		}
	}
	return points
}

// TrendStart returns the first instant included in a trailing-months trend.
func TrendStart(now time.Time, months int, loc *time.Location) time.Time {
	if months < 1 {
		months = 1
	}
	if loc == nil {
		loc = time.Local
	}
	local := now.In(loc)
	return time.Date(local.Year(), local.Month(), 1, 0, 0, 0, 0, loc).AddDate(0, -(months - 1), 0)
}
