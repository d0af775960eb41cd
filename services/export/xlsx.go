package exportsvc

import (
	"io"

	"github.com/pkg/errors"
	"github.com/xuri/excelize/v2"

	"github.com/gigglesedu/giggles/core/progress"
)

func xlsxRow(row progress.ReportRow) []interface{} {
	return []interface{}{
		row.StudentName,
		row.StudentEmail,
		row.CourseName,
		row.LessonName,
		row.Status,
		row.Score,
		row.MaxScore,
		progress.CompletionPercentage(row.Score, row.MaxScore),
		row.Attempts,
		formatTime(row.StartedAt),
		formatTime(row.CompletedAt),
		formatTime(&row.LastAccessed),
	}
}

func WriteXLSX(w io.Writer, r Report) error {
	f := excelize.NewFile()
	defer func() { _ = f.Close() }()
	sheet := f.GetSheetName(f.GetActiveSheetIndex())

	cells := make([]interface{}, 0, len(header))
	for _, h := range header {
		cells = append(cells, h)
	}
	if err := f.SetSheetRow(sheet, "A1", &cells); err != nil {
		return errors.Wrap(err, "writing xlsx header")
	}
	bold, err := f.NewStyle(&excelize.Style{Font: &excelize.Font{Bold: true}})
	if err != nil {
		return errors.Wrap(err, "creating xlsx style")
	}
	lastCol, err := excelize.ColumnNumberToName(len(header))
	if err != nil {
		return errors.Wrap(err, "naming xlsx column")
	}
	if err = f.SetCellStyle(sheet, "A1", lastCol+"1", bold); err != nil {
		return errors.Wrap(err, "styling xlsx header")
	}
	if err = f.SetColWidth(sheet, "A", lastCol, 18); err != nil {
		return errors.Wrap(err, "sizing xlsx columns")
	}

	for i, row := range r.Rows {
		cell, err := excelize.CoordinatesToCellName(1, i+2)
		if err != nil {
			return errors.Wrap(err, "naming xlsx cell")
		}
		values := xlsxRow(row)
		if err = f.SetSheetRow(sheet, cell, &values); err != nil {
			return errors.Wrap(err, "writing xlsx row")
		}
	}
	return errors.Wrap(f.Write(w), "writing xlsx")
}
