package report

import (
	"encoding/json"
	"fmt"
	htmltemplate "html/template"
	"io"
	"text/template"
	"time"

	"github.com/FranksOps/jobscout/internal/storage"
)

// Summary contains aggregated figures about stored job items.
type Summary struct {
	TotalItems      int
	UniqueJobs      int
	UniqueCompanies int
	ByProvince      map[string]int
	ByCategory      map[string]int
	ByKeyword       map[string]int

	// Pay figures only count items that report a monthly pay.
	PaidItems   int
	MinMonthPay float64
	MaxMonthPay float64
	AvgLowPay   float64
	AvgHighPay  float64

	StartTime time.Time
	EndTime   time.Time
	Duration  time.Duration
}

// GenerateSummary aggregates stored job items.
func GenerateSummary(items []*storage.JobItem) Summary {
	s := Summary{
		ByProvince: make(map[string]int),
		ByCategory: make(map[string]int),
		ByKeyword:  make(map[string]int),
	}

	if len(items) == 0 {
		return s
	}

	s.StartTime = items[0].CrawledAt
	s.EndTime = items[0].CrawledAt

	jobs := make(map[string]struct{})
	companies := make(map[string]struct{})
	var lowSum, highSum float64

	for _, it := range items {
		s.TotalItems++
		if it.JobID != "" {
			jobs[it.JobID] = struct{}{}
		}
		if it.CompanyName != "" {
			companies[it.CompanyName] = struct{}{}
		}
		s.ByProvince[orUnset(it.ProvinceName)]++
		s.ByCategory[orUnset(it.CategoryName)]++
		s.ByKeyword[orUnset(it.SearchKeyword)]++

		if it.LowMonthPay > 0 || it.HighMonthPay > 0 {
			if s.PaidItems == 0 || it.LowMonthPay < s.MinMonthPay {
				s.MinMonthPay = it.LowMonthPay
			}
			if it.HighMonthPay > s.MaxMonthPay {
				s.MaxMonthPay = it.HighMonthPay
			}
			s.PaidItems++
			lowSum += it.LowMonthPay
			highSum += it.HighMonthPay
		}

		if it.CrawledAt.Before(s.StartTime) {
			s.StartTime = it.CrawledAt
		}
		if it.CrawledAt.After(s.EndTime) {
			s.EndTime = it.CrawledAt
		}
	}

	s.UniqueJobs = len(jobs)
	s.UniqueCompanies = len(companies)
	if s.PaidItems > 0 {
		s.AvgLowPay = lowSum / float64(s.PaidItems)
		s.AvgHighPay = highSum / float64(s.PaidItems)
	}
	s.Duration = s.EndTime.Sub(s.StartTime)
	return s
}

func orUnset(s string) string {
	if s == "" {
		return "(none)"
	}
	return s
}

// WriteJSON writes the summary to the provided writer in JSON format.
func WriteJSON(w io.Writer, summary Summary) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(summary); err != nil {
		return fmt.Errorf("encode summary: %w", err)
	}
	return nil
}

var funcs = map[string]any{
	"pay": func(v float64) string { return fmt.Sprintf("%.0f", v) },
}

// WriteText writes a human-readable text summary to the provided writer.
func WriteText(w io.Writer, summary Summary) error {
	const textTmpl = `Jobscout Crawl Summary
----------------------
Time:          {{.StartTime.Format "2006-01-02 15:04:05"}} - {{.EndTime.Format "2006-01-02 15:04:05"}}
Duration:      {{.Duration}}
Total Items:   {{.TotalItems}} items
Unique Jobs:   {{.UniqueJobs}}
Companies:     {{.UniqueCompanies}}
Monthly Pay:   {{if .PaidItems}}{{pay .MinMonthPay}} - {{pay .MaxMonthPay}} (avg {{pay .AvgLowPay}} - {{pay .AvgHighPay}}, {{.PaidItems}} items){{else}}n/a{{end}}

By Province:
{{- range $name, $count := .ByProvince}}
  {{$name}}: {{$count}}
{{- else}}
  None
{{- end}}

By Category:
{{- range $name, $count := .ByCategory}}
  {{$name}}: {{$count}}
{{- else}}
  None
{{- end}}

By Keyword:
{{- range $name, $count := .ByKeyword}}
  {{$name}}: {{$count}}
{{- else}}
  None
{{- end}}
`

	t, err := template.New("textReport").Funcs(funcs).Parse(textTmpl)
	if err != nil {
		return fmt.Errorf("parse text template: %w", err)
	}

	if err := t.Execute(w, summary); err != nil {
		return fmt.Errorf("render text report: %w", err)
	}

	return nil
}

// WriteHTML writes a basic HTML report to the provided writer. Province and
// company names come from a remote API and are escaped.
func WriteHTML(w io.Writer, summary Summary) error {
	const htmlTmpl = `<!DOCTYPE html>
<html>
<head>
<meta charset="utf-8">
<title>Jobscout Crawl Report</title>
<style>
  body { font-family: sans-serif; margin: 40px; color: #333; }
  h1 { border-bottom: 2px solid #ccc; padding-bottom: 10px; }
  .stat-card { display: inline-block; padding: 20px; margin: 10px 10px 10px 0; background: #f4f4f4; border-radius: 5px; min-width: 150px; }
  .stat-val { font-size: 24px; font-weight: bold; }
  table { border-collapse: collapse; margin-top: 10px; }
  th, td { padding: 8px 12px; border: 1px solid #ccc; text-align: left; }
  th { background: #eaeaea; }
</style>
</head>
<body>
  <h1>Jobscout Crawl Report</h1>
  <p><strong>Time:</strong> {{.StartTime.Format "2006-01-02 15:04:05"}} to {{.EndTime.Format "2006-01-02 15:04:05"}} ({{.Duration}})</p>

  <div class="stat-card">
    <div>Total Items</div>
    <div class="stat-val">{{.TotalItems}}</div>
  </div>
  <div class="stat-card">
    <div>Unique Jobs</div>
    <div class="stat-val">{{.UniqueJobs}}</div>
  </div>
  <div class="stat-card">
    <div>Companies</div>
    <div class="stat-val">{{.UniqueCompanies}}</div>
  </div>
  <div class="stat-card">
    <div>Monthly Pay</div>
    <div class="stat-val">{{if .PaidItems}}{{pay .MinMonthPay}} - {{pay .MaxMonthPay}}{{else}}n/a{{end}}</div>
  </div>

  <h3>By Province</h3>
  <table>
    <tr><th>Province</th><th>Count</th></tr>
    {{- range $name, $count := .ByProvince}}
    <tr><td>{{$name}}</td><td>{{$count}}</td></tr>
    {{- else}}
    <tr><td colspan="2">None</td></tr>
    {{- end}}
  </table>

  <h3>By Category</h3>
  <table>
    <tr><th>Category</th><th>Count</th></tr>
    {{- range $name, $count := .ByCategory}}
    <tr><td>{{$name}}</td><td>{{$count}}</td></tr>
    {{- else}}
    <tr><td colspan="2">None</td></tr>
    {{- end}}
  </table>
</body>
</html>
`
	t, err := htmltemplate.New("htmlReport").Funcs(funcs).Parse(htmlTmpl)
	if err != nil {
		return fmt.Errorf("parse html template: %w", err)
	}

	if err := t.Execute(w, summary); err != nil {
		return fmt.Errorf("render html report: %w", err)
	}

	return nil
}

// Write renders summary in the named format: text, json or html.
func Write(w io.Writer, format string, summary Summary) error {
	switch format {
	case "", "text":
		return WriteText(w, summary)
	case "json":
		return WriteJSON(w, summary)
	case "html":
		return WriteHTML(w, summary)
	default:
		return fmt.Errorf("unknown report format %q", format)
	}
}
