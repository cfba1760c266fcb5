package export

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"agenda/internal/models"

	"github.com/xuri/excelize/v2"
)

const sheetName = "Agenda"

var headers = []string{"Date", "Time", "Client", "Email", "Phone", "Status", "Attended", "Cancelled By", "Reason"}

// FileName is the download name of the workbook for the period.
func FileName(from, to time.Time) string {
	return fmt.Sprintf("agenda_%s_%s.xlsx", from.Format("20060102"), to.Format("20060102"))
}

// AgendaWorkbook renders the provider's agenda for [from, to] with one row per booking.
func AgendaWorkbook(from, to time.Time, entries []*models.AgendaEntry) ([]byte, error) {
	f := excelize.NewFile()
	defer f.Close()

	index, err := f.NewSheet(sheetName)
	if err != nil {
		return nil, fmt.Errorf("create sheet: %w", err)
	}
	f.SetActiveSheet(index)
	_ = f.DeleteSheet("Sheet1")

	lastCol, _ := excelize.ColumnNumberToName(len(headers))

	// Заголовок периода
	_ = f.SetCellValue(sheetName, "A1", fmt.Sprintf("Period: %s - %s",
		from.Format(models.DateLayout), to.Format(models.DateLayout)))
	_ = f.MergeCell(sheetName, "A1", lastCol+"1")
	titleStyle, _ := f.NewStyle(&excelize.Style{
		Font:      &excelize.Font{Bold: true, Size: 14},
		Alignment: &excelize.Alignment{Horizontal: "center"},
	})
	_ = f.SetCellStyle(sheetName, "A1", "A1", titleStyle)

	headerStyle, _ := f.NewStyle(&excelize.Style{
		Fill:      excelize.Fill{Type: "pattern", Color: []string{"#DDEBF7"}, Pattern: 1},
		Font:      &excelize.Font{Bold: true},
		Alignment: &excelize.Alignment{Horizontal: "center"},
	})
	for i, h := range headers {
		cell, _ := excelize.CoordinatesToCellName(i+1, 2)
		_ = f.SetCellValue(sheetName, cell, h)
	}
	_ = f.SetCellStyle(sheetName, "A2", lastCol+"2", headerStyle)

	styles := statusStyles(f)
	for i, e := range entries {
		row := i + 3
		b := e.Booking
		values := []interface{}{
			b.Date.Format(models.DateLayout),
			b.Time,
			e.ClientName,
			e.ClientEmail,
			e.ClientPhone,
			b.Status,
			yesNo(b.Attended),
			b.CancelledBy,
			b.CancellationReason,
		}
		start, _ := excelize.CoordinatesToCellName(1, row)
		if err := f.SetSheetRow(sheetName, start, &values); err != nil {
			return nil, fmt.Errorf("write row %d: %w", row, err)
		}
		if styleID, ok := styles[models.StateOf(b)]; ok {
			end, _ := excelize.CoordinatesToCellName(len(headers), row)
			_ = f.SetCellStyle(sheetName, start, end, styleID)
		}
	}

	_ = f.SetColWidth(sheetName, "A", "B", 12)
	_ = f.SetColWidth(sheetName, "C", "E", 25)
	_ = f.SetColWidth(sheetName, "F", lastCol, 15)

	buf, err := f.WriteToBuffer()
	if err != nil {
		return nil, fmt.Errorf("write workbook: %w", err)
	}
	return buf.Bytes(), nil
}

func yesNo(v bool) string {
	if v {
		return "yes"
	}
	return "no"
}

func statusStyles(f *excelize.File) map[models.State]int {
	colors := map[models.State]string{
		models.StateAttended:  "#E2EFDA",
		models.StateCancelled: "#FCE4D6",
	}
	out := make(map[models.State]int, len(colors))
	for state, color := range colors {
		id, err := f.NewStyle(&excelize.Style{
			Fill: excelize.Fill{Type: "pattern", Color: []string{color}, Pattern: 1},
		})
		if err == nil {
			out[state] = id
		}
	}
	return out
}

// SaveAgenda writes the workbook into dir and returns the file path.
func SaveAgenda(dir string, from, to time.Time, entries []*models.AgendaEntry) (string, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("error creating export directory: %w", err)
	}
	data, err := AgendaWorkbook(from, to, entries)
	if err != nil {
		return "", err
	}
	path := filepath.Join(dir, FileName(from, to))
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return "", fmt.Errorf("write %s: %w", path, err)
	}
	return path, nil
}
