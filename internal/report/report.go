// Package report keeps a spreadsheet ledger of pipeline runs.
package report

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/xuri/excelize/v2"

	"touch-braille-go/internal/pipeline"
)

const (
	runsSheet   = "Runs"
	stagesSheet = "Stages"
)

var runsHeader = []interface{}{
	"Run ID", "Finished", "Input", "Output", "Mode", "Verdict",
	"Failed Stage", "Error Kind", "Hint", "Degraded", "Cells",
	"Confidence", "Duration (s)", "Warnings", "Cleanup Errors",
}

var stagesHeader = []interface{}{"Run ID", "Stage", "Started", "Duration (ms)", "Error"}

// RunRow is one line of the Runs sheet.
type RunRow struct {
	RunID       string
	Verdict     string
	FailedStage string
	ErrorKind   string
	Degraded    bool
	Cells       int
	Duration    float64
}

// Append adds res to the workbook at path, creating it when missing.
func Append(path string, res pipeline.Result) error {
	f, err := open(path)
	if err != nil {
		return err
	}
	defer f.Close()

	if err := appendRun(f, res); err != nil {
		return err
	}
	if err := appendStages(f, res); err != nil {
		return err
	}
	if err := f.SaveAs(path); err != nil {
		return fmt.Errorf("save report: %w", err)
	}
	return nil
}

func open(path string) (*excelize.File, error) {
	if _, err := os.Stat(path); err == nil {
		f, err := excelize.OpenFile(path)
		if err != nil {
			return nil, fmt.Errorf("open report: %w", err)
		}
		if err := ensureSheet(f, runsSheet, runsHeader); err != nil {
			f.Close()
			return nil, err
		}
		if err := ensureSheet(f, stagesSheet, stagesHeader); err != nil {
			f.Close()
			return nil, err
		}
		return f, nil
	} else if !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("stat report: %w", err)
	}

	f := excelize.NewFile()
	if err := f.SetSheetName("Sheet1", runsSheet); err != nil {
		f.Close()
		return nil, fmt.Errorf("rename sheet: %w", err)
	}
	if err := writeHeader(f, runsSheet, runsHeader); err != nil {
		f.Close()
		return nil, err
	}
	if _, err := f.NewSheet(stagesSheet); err != nil {
		f.Close()
		return nil, fmt.Errorf("create sheet: %w", err)
	}
	if err := writeHeader(f, stagesSheet, stagesHeader); err != nil {
		f.Close()
		return nil, err
	}
	_ = f.SetColWidth(runsSheet, "A", "A", 38)
	_ = f.SetColWidth(stagesSheet, "A", "A", 38)
	return f, nil
}

func ensureSheet(f *excelize.File, name string, header []interface{}) error {
	idx, err := f.GetSheetIndex(name)
	if err != nil {
		return fmt.Errorf("lookup sheet %s: %w", name, err)
	}
	if idx >= 0 {
		return nil
	}
	if _, err := f.NewSheet(name); err != nil {
		return fmt.Errorf("create sheet %s: %w", name, err)
	}
	return writeHeader(f, name, header)
}

func writeHeader(f *excelize.File, sheet string, header []interface{}) error {
	if err := f.SetSheetRow(sheet, "A1", &header); err != nil {
		return fmt.Errorf("write %s header: %w", sheet, err)
	}
	style, err := f.NewStyle(&excelize.Style{Font: &excelize.Font{Bold: true}})
	if err != nil {
		return fmt.Errorf("header style: %w", err)
	}
	return f.SetRowStyle(sheet, 1, 1, style)
}

func nextRow(f *excelize.File, sheet string) (string, error) {
	rows, err := f.GetRows(sheet)
	if err != nil {
		return "", fmt.Errorf("read %s: %w", sheet, err)
	}
	return excelize.CoordinatesToCellName(1, len(rows)+1)
}

func appendRun(f *excelize.File, res pipeline.Result) error {
	verdict := strings.ToLower(string(res.Stage))
	var failedStage, kind, hint string
	if res.Err != nil {
		failedStage, kind, hint = string(res.Err.Stage), string(res.Err.Kind), res.Err.Hint
	}
	cleanup := make([]string, 0, len(res.CleanupErrors))
	for _, err := range res.CleanupErrors {
		cleanup = append(cleanup, err.Error())
	}
	row := []interface{}{
		res.RunID,
		time.Now().UTC().Format(time.RFC3339),
		res.Input,
		res.Output,
		string(res.Mode),
		verdict,
		failedStage,
		kind,
		hint,
		res.Degraded,
		res.Cells,
		res.Transcript.Confidence,
		res.Duration.Seconds(),
		strings.Join(res.Warnings, "; "),
		strings.Join(cleanup, "; "),
	}
	cell, err := nextRow(f, runsSheet)
	if err != nil {
		return err
	}
	if err := f.SetSheetRow(runsSheet, cell, &row); err != nil {
		return fmt.Errorf("write run row: %w", err)
	}
	return nil
}

func appendStages(f *excelize.File, res pipeline.Result) error {
	rows, err := f.GetRows(stagesSheet)
	if err != nil {
		return fmt.Errorf("read %s: %w", stagesSheet, err)
	}
	next := len(rows) + 1
	for _, st := range res.Stages {
		cell, err := excelize.CoordinatesToCellName(1, next)
		if err != nil {
			return err
		}
		row := []interface{}{
			res.RunID,
			string(st.Stage),
			st.Started.UTC().Format(time.RFC3339Nano),
			st.Duration.Milliseconds(),
			st.Error,
		}
		if err := f.SetSheetRow(stagesSheet, cell, &row); err != nil {
			return fmt.Errorf("write stage row: %w", err)
		}
		next++
	}
	return nil
}

// Load reads the Runs sheet back, locating columns by header name.
func Load(path string) ([]RunRow, error) {
	f, err := excelize.OpenFile(path)
	if err != nil {
		return nil, fmt.Errorf("open file: %w", err)
	}
	defer f.Close()

	rows, err := f.GetRows(runsSheet)
	if err != nil {
		return nil, fmt.Errorf("read rows: %w", err)
	}
	if len(rows) == 0 {
		return nil, fmt.Errorf("no header row")
	}
	idx := map[string]int{}
	for i, h := range rows[0] {
		idx[strings.ToLower(strings.TrimSpace(h))] = i
	}
	get := func(r []string, name string) string {
		i, ok := idx[name]
		if !ok || i >= len(r) {
			return ""
		}
		return r[i]
	}

	out := make([]RunRow, 0, len(rows)-1)
	for _, r := range rows[1:] {
		row := RunRow{
			RunID:       get(r, "run id"),
			Verdict:     get(r, "verdict"),
			FailedStage: get(r, "failed stage"),
			ErrorKind:   get(r, "error kind"),
		}
		if row.RunID == "" {
			continue
		}
		row.Degraded, _ = strconv.ParseBool(strings.ToLower(get(r, "degraded")))
		row.Cells, _ = strconv.Atoi(get(r, "cells"))
		row.Duration, _ = strconv.ParseFloat(get(r, "duration (s)"), 64)
		out = append(out, row)
	}
	return out, nil
}
