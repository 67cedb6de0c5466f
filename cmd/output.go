package main

import (
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"strconv"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"

	"github.com/sells-group/qbank-cli/internal/model"
	"github.com/sells-group/qbank-cli/internal/monitoring"
	"github.com/sells-group/qbank-cli/internal/resilience"
)

var jsonOutput bool

type columnAlignment int

const (
	alignLeft columnAlignment = iota
	alignRight
)

func renderTable(headers []string, rows [][]string, aligns []columnAlignment) string {
	columns := len(headers)
	if columns == 0 {
		return ""
	}

	tw := table.NewWriter()
	tw.SetStyle(table.StyleRounded)

	header := make(table.Row, columns)
	for i, h := range headers {
		header[i] = h
	}
	tw.AppendHeader(header)

	for _, row := range rows {
		r := make(table.Row, columns)
		for i := range columns {
			if i < len(row) {
				r[i] = row[i]
			} else {
				r[i] = ""
			}
		}
		tw.AppendRow(r)
	}

	configs := make([]table.ColumnConfig, 0, columns)
	for i := range columns {
		align := text.AlignLeft
		if i < len(aligns) && aligns[i] == alignRight {
			align = text.AlignRight
		}
		configs = append(configs, table.ColumnConfig{Number: i + 1, Align: align, AlignHeader: text.AlignLeft})
	}
	tw.SetColumnConfigs(configs)

	return tw.Render()
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// printSummary writes a run summary as JSON or as a two-column table.
func printSummary(w io.Writer, s *model.RunSummary) error {
	if jsonOutput {
		return printJSON(w, s)
	}
	_, err := fmt.Fprintln(w, summaryTable(s))
	return err
}

func summaryTable(s *model.RunSummary) string {
	rows := [][]string{
		{"run", s.RunID},
		{"documents processed", itoa(s.DocumentsProcessed)},
		{"documents failed", itoa(s.DocumentsFailed)},
		{"documents retryable", itoa(s.DocumentsRetryable)},
		{"candidates extracted", itoa(s.CandidatesExtracted)},
		{"accepted", itoa(s.Accepted)},
		{"rejected", itoa(s.Rejected)},
	}
	reasons := make([]string, 0, len(s.RejectedByReason))
	for r := range s.RejectedByReason {
		reasons = append(reasons, string(r))
	}
	sort.Strings(reasons)
	for _, r := range reasons {
		rows = append(rows, []string{"  " + r, itoa(s.RejectedByReason[model.ReasonCode(r)])})
	}
	rows = append(rows,
		[]string{"duplicates", itoa(s.Duplicates)},
		[]string{"persisted", itoa(s.Persisted)},
		[]string{"answer keys normalized", itoa(s.AnswerKeysNormalized)},
		[]string{"answer keys applied", itoa(s.AnswerKeysApplied)},
		[]string{"extraction failures", itoa(s.ExtractionFailures)},
		[]string{"structuring failures", itoa(s.StructuringFailures)},
		[]string{"persistence failures", itoa(s.PersistenceFailures)},
		[]string{"audit findings", itoa(s.AuditFindings)},
		[]string{"repairs applied", itoa(s.RepairsApplied)},
		[]string{"repair failures", itoa(s.RepairFailures)},
		[]string{"cost (usd)", fmt.Sprintf("%.4f", s.Usage.Cost)},
		[]string{"duration", (time.Duration(s.DurationMs) * time.Millisecond).String()},
	)
	return renderTable([]string{"Metric", "Value"}, rows, []columnAlignment{alignLeft, alignRight})
}

func runsTable(runs []model.Run) string {
	rows := make([][]string, 0, len(runs))
	for _, r := range runs {
		processed, persisted, failures := "-", "-", "-"
		if r.Summary != nil {
			processed = itoa(r.Summary.DocumentsProcessed)
			persisted = itoa(r.Summary.Persisted)
			failures = itoa(r.Summary.Failures())
		}
		rows = append(rows, []string{
			r.ID, string(r.Kind), string(r.Status), processed, persisted, failures,
			r.CreatedAt.Local().Format(time.DateTime),
		})
	}
	return renderTable(
		[]string{"ID", "Kind", "Status", "Docs", "Persisted", "Failures", "Created"},
		rows,
		[]columnAlignment{alignLeft, alignLeft, alignLeft, alignRight, alignRight, alignRight, alignLeft},
	)
}

func dlqTable(entries []resilience.DLQEntry) string {
	rows := make([][]string, 0, len(entries))
	for _, e := range entries {
		rows = append(rows, []string{
			e.ID, e.Filename, string(e.Kind), strconv.FormatBool(e.Retryable),
			fmt.Sprintf("%d/%d", e.Attempts, e.MaxAttempts), truncate(e.Error, 60),
		})
	}
	return renderTable([]string{"ID", "File", "Kind", "Retryable", "Attempts", "Error"}, rows, nil)
}

func rejectionsTable(recs []model.RejectionRecord) string {
	rows := make([][]string, 0, len(recs))
	for _, r := range recs {
		rows = append(rows, []string{r.DocumentTitle, itoa(r.Number), string(r.Reason), r.Source, truncate(r.StemExcerpt, 50)})
	}
	return renderTable(
		[]string{"Document", "#", "Reason", "Source", "Stem"},
		rows,
		[]columnAlignment{alignLeft, alignRight},
	)
}

func reportTable(r *monitoring.ConsistencyReport) string {
	var rows [][]string
	if c := r.Counts; c != nil {
		rows = append(rows,
			[]string{"documents", itoa(c.Documents)},
			[]string{"processed documents", itoa(c.ProcessedDocuments)},
			[]string{"questions", itoa(c.Questions)},
			[]string{"embeddings", itoa(c.Embeddings)},
			[]string{"open audit flags", itoa(c.OpenFlags)},
		)
	}
	for _, d := range r.Discrepancies {
		rows = append(rows, []string{"! " + string(d.Kind), d.Message})
	}
	if r.Error != "" {
		rows = append(rows, []string{"! error", r.Error})
	}
	return renderTable([]string{"Check", "Value"}, rows, nil)
}

func itoa(n int) string { return strconv.Itoa(n) }

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n]) + "…"
}
