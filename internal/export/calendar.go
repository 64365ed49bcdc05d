// Package export writes calendar layouts to XLSX workbooks for staff.
package export

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"bookfront/internal/timegrid"

	"github.com/xuri/excelize/v2"
)

const (
	SheetCalendar = "Calendar"
	SheetUnplaced = "Unplaced"

	headerRow    = 2
	firstSlotRow = 3
)

// Workbook renders a day or week layout: one column per day, one row per
// axis label. Appointments are merged over their row span; overlapping ones
// share the cell of the first.
func Workbook(layout *timegrid.Layout, title string) (*excelize.File, error) {
	f := excelize.NewFile()

	index, err := f.NewSheet(SheetCalendar)
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("error creating sheet: %w", err)
	}
	f.SetActiveSheet(index)

	// Заголовок периода
	_ = f.SetCellValue(SheetCalendar, "A1", title)
	lastCol, _ := excelize.ColumnNumberToName(len(layout.Days) + 1)
	_ = f.MergeCell(SheetCalendar, "A1", lastCol+"1")
	titleStyle, _ := f.NewStyle(&excelize.Style{
		Font:      &excelize.Font{Bold: true, Size: 14},
		Alignment: &excelize.Alignment{Horizontal: "center"},
	})
	_ = f.SetCellStyle(SheetCalendar, "A1", "A1", titleStyle)

	writeHeaders(f, layout)
	writeAppointments(f, layout)

	_ = f.SetColWidth(SheetCalendar, "A", "A", 10)
	if len(layout.Days) > 0 {
		_ = f.SetColWidth(SheetCalendar, "B", lastCol, 28)
	}

	if err := writeUnplaced(f, layout); err != nil {
		f.Close()
		return nil, err
	}

	// Удаляем стандартный лист
	_ = f.DeleteSheet("Sheet1")
	return f, nil
}

// Write streams the workbook to w.
func Write(w io.Writer, layout *timegrid.Layout, title string) error {
	f, err := Workbook(layout, title)
	if err != nil {
		return err
	}
	defer f.Close()

	if _, err := f.WriteTo(w); err != nil {
		return fmt.Errorf("error writing workbook: %w", err)
	}
	return nil
}

// Save writes the workbook under dir and returns the file path.
func Save(dir, fileName string, layout *timegrid.Layout, title string) (string, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("error creating export directory: %w", err)
	}

	f, err := Workbook(layout, title)
	if err != nil {
		return "", err
	}
	defer f.Close()

	path := filepath.Join(dir, fileName)
	if err := f.SaveAs(path); err != nil {
		return "", fmt.Errorf("error saving file: %w", err)
	}
	return path, nil
}

func writeHeaders(f *excelize.File, layout *timegrid.Layout) {
	headerStyle, _ := f.NewStyle(&excelize.Style{
		Fill:      excelize.Fill{Type: "pattern", Color: []string{"#DDEBF7"}, Pattern: 1},
		Font:      &excelize.Font{Bold: true},
		Alignment: &excelize.Alignment{Horizontal: "center"},
	})
	timeStyle, _ := f.NewStyle(&excelize.Style{
		Fill: excelize.Fill{Type: "pattern", Color: []string{"#E2EFDA"}, Pattern: 1},
		Font: &excelize.Font{Bold: true},
	})

	_ = f.SetCellValue(SheetCalendar, cellName(1, headerRow), "Time")
	for i, day := range layout.Days {
		cell := cellName(i+2, headerRow)
		_ = f.SetCellValue(SheetCalendar, cell, fmt.Sprintf("%s %s", day.Weekday[:3], day.Date))
		_ = f.SetCellStyle(SheetCalendar, cell, cell, headerStyle)
	}

	for i, label := range layout.Labels {
		cell := cellName(1, firstSlotRow+i)
		_ = f.SetCellValue(SheetCalendar, cell, label)
		_ = f.SetCellStyle(SheetCalendar, cell, cell, timeStyle)
	}
}

func writeAppointments(f *excelize.File, layout *timegrid.Layout) {
	apptStyle, _ := f.NewStyle(&excelize.Style{
		Fill:      excelize.Fill{Type: "pattern", Color: []string{"#FCE4D6"}, Pattern: 1},
		Alignment: &excelize.Alignment{Vertical: "top", WrapText: true},
		Border: []excelize.Border{
			{Type: "top", Color: "#C65911", Style: 1},
			{Type: "bottom", Color: "#C65911", Style: 1},
		},
	})

	for i, day := range layout.Days {
		col := i + 2
		owner := make(map[int]int) // строка -> первая строка занявшей её записи
		for _, p := range day.Placed {
			top := firstSlotRow + p.Placement.RowIndex
			bottom := top + p.Placement.RowSpan - 1
			if last := firstSlotRow + len(layout.Labels) - 1; bottom > last {
				bottom = last
			}

			text := describe(p)
			if first, taken := owner[top]; taken {
				cell := cellName(col, first)
				prev, _ := f.GetCellValue(SheetCalendar, cell)
				_ = f.SetCellValue(SheetCalendar, cell, prev+"\n"+text)
				continue
			}

			free := true
			for r := top; r <= bottom; r++ {
				if _, taken := owner[r]; taken {
					free = false
					break
				}
			}
			if !free {
				bottom = top
			}
			for r := top; r <= bottom; r++ {
				owner[r] = top
			}

			cell := cellName(col, top)
			_ = f.SetCellValue(SheetCalendar, cell, text)
			if bottom > top {
				_ = f.MergeCell(SheetCalendar, cell, cellName(col, bottom))
			}
			_ = f.SetCellStyle(SheetCalendar, cell, cellName(col, bottom), apptStyle)
		}
	}
}

func writeUnplaced(f *excelize.File, layout *timegrid.Layout) error {
	if _, err := f.NewSheet(SheetUnplaced); err != nil {
		return fmt.Errorf("error creating sheet: %w", err)
	}
	header := []interface{}{"Date", "Time", "Appointment", "Customer", "Duration", "Reason"}
	if err := f.SetSheetRow(SheetUnplaced, "A1", &header); err != nil {
		return err
	}

	row := 2
	for _, u := range layout.Unplaced() {
		values := []interface{}{
			u.Date,
			u.Label,
			u.Appointment.ID,
			u.Appointment.CustomerName,
			u.Appointment.EventDuration,
			u.Reason,
		}
		if err := f.SetSheetRow(SheetUnplaced, cellName(1, row), &values); err != nil {
			return err
		}
		row++
	}
	return nil
}

func describe(p timegrid.PlacedAppointment) string {
	name := p.Appointment.CustomerName
	if name == "" {
		name = p.Appointment.CustomerID
	}
	parts := []string{
		fmt.Sprintf("%s %s", p.LocalStart.Format("15:04"), name),
		fmt.Sprintf("%d min", p.Appointment.EventDuration),
	}
	if len(p.Appointment.ServiceIDs) > 0 {
		parts = append(parts, strings.Join(p.Appointment.ServiceIDs, ", "))
	}
	if p.Appointment.DidNotShow {
		parts = append(parts, "no-show")
	}
	return strings.Join(parts, " · ")
}

func cellName(col, row int) string {
	cell, _ := excelize.CoordinatesToCellName(col, row)
	return cell
}
