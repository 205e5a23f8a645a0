// Package xlsxexport renders a job's findings and task outcomes as an Excel
// workbook.
package xlsxexport

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/xuri/excelize/v2"

	"gonephishing/internal/domain"
)

const (
	findingsSheet = "Findings"
	tasksSheet    = "Tasks"
)

var (
	findingHeader = []any{"Candidate", "Score", "Reasons", "IP addresses", "Final URL", "Reported at"}
	taskHeader    = []any{"Candidate", "Seed", "State", "Status", "HTTP", "Score", "Reasons", "Title", "Redirect", "Error", "Processed at"}
)

// Write renders job into w. Findings are joined with their tasks by task id
// to fill in addresses and final URLs.
func Write(w io.Writer, job domain.ScanJob, tasks []domain.CandidateTask, findings []domain.RiskFinding) error {
	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName("Sheet1", findingsSheet); err != nil {
		return err
	}
	if _, err := f.NewSheet(tasksSheet); err != nil {
		return err
	}
	bold, err := f.NewStyle(&excelize.Style{Font: &excelize.Font{Bold: true}})
	if err != nil {
		return err
	}

	byID := make(map[int64]domain.CandidateTask, len(tasks))
	for _, t := range tasks {
		byID[t.ID] = t
	}

	if err := writeHeader(f, findingsSheet, findingHeader, bold); err != nil {
		return err
	}
	for i, fd := range findings {
		t := byID[fd.TaskID]
		row := []any{fd.CandidateDomain, fd.Score, strings.Join(fd.Reasons, ", "),
			strings.Join(t.IPAddresses, ", "), t.FinalURL, fd.CreatedAt.UTC().Format(time.RFC3339)}
		if err := setRow(f, findingsSheet, i+2, row); err != nil {
			return err
		}
	}

	if err := writeHeader(f, tasksSheet, taskHeader, bold); err != nil {
		return err
	}
	for i, t := range tasks {
		var httpStatus any = ""
		if t.HTTPStatus != nil {
			httpStatus = *t.HTTPStatus
		}
		processed := ""
		if t.ProcessedAt != nil {
			processed = t.ProcessedAt.UTC().Format(time.RFC3339)
		}
		row := []any{t.CandidateDomain, t.SeedDomain, string(t.State), string(t.LookupStatus), httpStatus,
			t.RiskScore, strings.Join(t.RiskReasons, ", "), t.PageTitle, t.RedirectLocation, t.Error, processed}
		if err := setRow(f, tasksSheet, i+2, row); err != nil {
			return err
		}
	}

	if err := f.SetDocProps(&excelize.DocProperties{
		Title:   fmt.Sprintf("Scan job %d", job.ID),
		Subject: strings.Join(job.SeedDomains, ", "),
		Creator: job.Owner,
	}); err != nil {
		return err
	}
	_, err = f.WriteTo(w)
	return err
}

func writeHeader(f *excelize.File, sheet string, header []any, style int) error {
	if err := setRow(f, sheet, 1, header); err != nil {
		return err
	}
	last, err := excelize.CoordinatesToCellName(len(header), 1)
	if err != nil {
		return err
	}
	if err := f.SetCellStyle(sheet, "A1", last, style); err != nil {
		return err
	}
	if err := f.SetColWidth(sheet, "A", "A", 32); err != nil {
		return err
	}
	return f.SetPanes(sheet, &excelize.Panes{Freeze: true, YSplit: 1, TopLeftCell: "A2", ActivePane: "bottomLeft"})
}

func setRow(f *excelize.File, sheet string, row int, values []any) error {
	cell, err := excelize.CoordinatesToCellName(1, row)
	if err != nil {
		return err
	}
	return f.SetSheetRow(sheet, cell, &values)
}
