package report

import (
	"bytes"
	"fmt"
	"html/template"
	"sort"
	"strings"
	"time"

	"github.com/utafrali/FeedbackGo/services/feedback/internal/domain"
)

const timeLayout = "2006-01-02 15:04 MST"

type row struct {
	Key   string
	Count int
}

// view is the rendering model shared by the text and HTML bodies.
type view struct {
	PeriodStart string
	PeriodEnd   string
	Total       int
	Average     string
	Label       string
	Critical    int
	DailyRate   string
	Days        []row
	Tiers       []row
	GeneratedAt string
}

func newView(r domain.Report, loc *time.Location) view {
	days := make([]row, 0, len(r.CountByDay))
	for day, n := range r.CountByDay {
		days = append(days, row{Key: day, Count: n})
	}
	sort.Slice(days, func(i, j int) bool { return days[i].Key < days[j].Key })

	tiers := make([]row, 0, len(r.CountByUrgency))
	for _, u := range domain.Urgencies() {
		if n, ok := r.CountByUrgency[u]; ok {
			tiers = append(tiers, row{Key: u.String(), Count: n})
		}
	}

	return view{
		PeriodStart: r.PeriodStart.In(loc).Format(timeLayout),
		PeriodEnd:   r.PeriodEnd.In(loc).Format(timeLayout),
		Total:       r.TotalCount,
		Average:     fmt.Sprintf("%.2f", r.AverageScore),
		Label:       r.Label(),
		Critical:    r.CountByUrgency[domain.UrgencyCritical],
		DailyRate:   fmt.Sprintf("%.1f", r.DailyRate()),
		Days:        days,
		Tiers:       tiers,
		GeneratedAt: r.GeneratedAt.In(loc).Format(timeLayout),
	}
}

// Subject is the subject line of the report message.
func Subject(r domain.Report, loc *time.Location) string {
	return "Weekly feedback report - " + r.GeneratedAt.In(loc).Format(domain.DayLayout)
}

// Text renders the plain-text report.
func Text(r domain.Report, loc *time.Location) string {
	v := newView(r, loc)
	const rule = "========================================\n"

	var b strings.Builder
	b.WriteString(rule)
	b.WriteString("WEEKLY FEEDBACK REPORT\n")
	b.WriteString(rule)
	fmt.Fprintf(&b, "Period: %s to %s\n\n", v.PeriodStart, v.PeriodEnd)
	fmt.Fprintf(&b, "Total feedback: %d\n", v.Total)
	fmt.Fprintf(&b, "Average score: %s (%s)\n", v.Average, v.Label)
	fmt.Fprintf(&b, "Critical feedback: %d\n", v.Critical)
	fmt.Fprintf(&b, "Daily rate: %s per day\n\n", v.DailyRate)

	b.WriteString("Feedback per day:\n")
	if len(v.Days) == 0 {
		b.WriteString("  none\n")
	}
	for _, d := range v.Days {
		fmt.Fprintf(&b, "  %s: %d\n", d.Key, d.Count)
	}

	b.WriteString("\nFeedback per urgency:\n")
	if len(v.Tiers) == 0 {
		b.WriteString("  none\n")
	}
	for _, t := range v.Tiers {
		fmt.Fprintf(&b, "  %s: %d\n", t.Key, t.Count)
	}

	b.WriteString("\n")
	b.WriteString(rule)
	fmt.Fprintf(&b, "Generated at %s\n", v.GeneratedAt)
	return b.String()
}

var reportHTML = template.Must(template.New("report").Parse(`<!DOCTYPE html>
<html>
<head>
  <style>
    body { font-family: Arial, sans-serif; }
    .container { max-width: 800px; margin: 0 auto; padding: 20px; }
    .header { background-color: #1976d2; color: white; padding: 20px; text-align: center; }
    .summary { background-color: #e3f2fd; padding: 20px; margin: 20px 0; border-radius: 5px; }
    .metric { display: inline-block; margin: 10px 20px; text-align: center; }
    .metric-value { font-size: 32px; font-weight: bold; color: #1976d2; }
    .metric-label { color: #666; }
    table { width: 100%; border-collapse: collapse; margin: 20px 0; }
    th, td { padding: 12px; text-align: left; border-bottom: 1px solid #ddd; }
    th { background-color: #1976d2; color: white; }
  </style>
</head>
<body>
  <div class="container">
    <div class="header">
      <h1>Weekly Feedback Report</h1>
      <p>Period: {{.PeriodStart}} to {{.PeriodEnd}}</p>
    </div>
    <div class="summary">
      <div class="metric"><div class="metric-value">{{.Total}}</div><div class="metric-label">Total feedback</div></div>
      <div class="metric"><div class="metric-value">{{.Average}}</div><div class="metric-label">Average score ({{.Label}})</div></div>
      <div class="metric"><div class="metric-value">{{.Critical}}</div><div class="metric-label">Critical</div></div>
      <div class="metric"><div class="metric-value">{{.DailyRate}}</div><div class="metric-label">Per day</div></div>
    </div>
    <h2>Feedback per day</h2>
    <table>
      <thead><tr><th>Date</th><th>Count</th></tr></thead>
      <tbody>
{{- range .Days}}
        <tr><td>{{.Key}}</td><td>{{.Count}}</td></tr>
{{- end}}
      </tbody>
    </table>
    <h2>Feedback per urgency</h2>
    <table>
      <thead><tr><th>Urgency</th><th>Count</th></tr></thead>
      <tbody>
{{- range .Tiers}}
        <tr><td>{{.Key}}</td><td>{{.Count}}</td></tr>
{{- end}}
      </tbody>
    </table>
    <p>Generated at {{.GeneratedAt}}</p>
  </div>
</body>
</html>
`))

// HTML renders the HTML report.
func HTML(r domain.Report, loc *time.Location) string {
	var buf bytes.Buffer
	_ = reportHTML.Execute(&buf, newView(r, loc))
	return buf.String()
}
