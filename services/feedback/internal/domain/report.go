package domain

import "time"

// ReportWindow is the trailing period a report covers.
const ReportWindow = 7 * 24 * time.Hour

// DayLayout formats the keys of Report.CountByDay.
const DayLayout = "2006-01-02"

// Report summarizes the feedback submitted in one window. It is computed on
// demand and never stored.
type Report struct {
	PeriodStart    time.Time       `json:"periodStart"`
	PeriodEnd      time.Time       `json:"periodEnd"`
	TotalCount     int             `json:"totalCount"`
	AverageScore   float64         `json:"averageScore"`
	CountByDay     map[string]int  `json:"countByDay"`
	CountByUrgency map[Urgency]int `json:"countByUrgency"`
	GeneratedAt    time.Time       `json:"generatedAt"`
}

// Label returns the quality label of the report's average score.
func (r Report) Label() string {
	return QualityLabel(r.AverageScore)
}

// DailyRate is the mean number of submissions per day of the window.
func (r Report) DailyRate() float64 {
	return float64(r.TotalCount) / (ReportWindow.Hours() / 24)
}

// QualityLabel maps an average score to a human-readable label.
func QualityLabel(avg float64) string {
	switch {
	case avg >= 8:
		return "excellent"
	case avg >= 6:
		return "good"
	case avg >= 4:
		return "fair"
	default:
		return "critical"
	}
}
