package services

import (
	"fmt"
	"io"
	"time"

	"github.com/xuri/excelize/v2"
)

const (
	mappingSheet = "Mapping"
	errorsSheet  = "Errors"
	orphanSheet  = "Orphans"
)

// WriteMigrationReport renders a migration result (usually a dry run) as an
// .xlsx workbook for operator review.
func WriteMigrationReport(w io.Writer, res *MigrationResult) error {
	f := excelize.NewFile()
	defer func() { _ = f.Close() }()

	if err := f.SetSheetName("Sheet1", mappingSheet); err != nil {
		return err
	}
	if err := writeRows(f, mappingSheet, []any{"Project", "Created At", "Old ID", "New ID"}, len(res.Mappings), func(i int) []any {
		mp := res.Mappings[i]
		return []any{mp.ProjectID, mp.CreatedAt.UTC().Format(time.RFC3339), mp.OldID, mp.NewID}
	}); err != nil {
		return err
	}

	if _, err := f.NewSheet(errorsSheet); err != nil {
		return err
	}
	if err := writeRows(f, errorsSheet, []any{"ID", "Error"}, len(res.Errors), func(i int) []any {
		return []any{res.Errors[i].ID, res.Errors[i].Message}
	}); err != nil {
		return err
	}

	_, err := f.WriteTo(w)
	return err
}

// WriteValidationReport renders offending ids of a validation pass.
func WriteValidationReport(w io.Writer, res *ValidationResult) error {
	f := excelize.NewFile()
	defer func() { _ = f.Close() }()

	if err := f.SetSheetName("Sheet1", "Legacy"); err != nil {
		return err
	}
	if err := writeRows(f, "Legacy", []any{"ID"}, len(res.LegacyIDs), func(i int) []any {
		return []any{res.LegacyIDs[i]}
	}); err != nil {
		return err
	}
	if _, err := f.NewSheet("Duplicates"); err != nil {
		return err
	}
	if err := writeRows(f, "Duplicates", []any{"ID"}, len(res.DuplicateIDs), func(i int) []any {
		return []any{res.DuplicateIDs[i]}
	}); err != nil {
		return err
	}
	if _, err := f.NewSheet(orphanSheet); err != nil {
		return err
	}
	if err := writeRows(f, orphanSheet, []any{"ID", "Missing Parent"}, len(res.Orphans), func(i int) []any {
		return []any{res.Orphans[i].ID, res.Orphans[i].ParentID}
	}); err != nil {
		return err
	}

	_, err := f.WriteTo(w)
	return err
}

func writeRows(f *excelize.File, sheet string, header []any, n int, row func(i int) []any) error {
	if err := f.SetSheetRow(sheet, "A1", &header); err != nil {
		return err
	}
	for i := 0; i < n; i++ {
		values := row(i)
		if err := f.SetSheetRow(sheet, fmt.Sprintf("A%d", i+2), &values); err != nil {
			return err
		}
	}
	return nil
}
