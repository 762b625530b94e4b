// Package export writes appointment reports as Excel workbooks.
package export

import (
	"fmt"
	"io"
	"time"

	"barbershop/internal/models"

	"github.com/xuri/excelize/v2"
)

var appointmentColumns = []string{
	"ID", "Barber", "Date", "Start", "End", "Duration (min)", "Service",
	"Customer", "Email", "Phone", "Status", "Notes", "Booked At",
}

// FileName returns the download name for a month, e.g. appointments_2026_03.xlsx.
func FileName(month time.Time) string {
	return fmt.Sprintf("appointments_%04d_%02d.xlsx", month.Year(), int(month.Month()))
}

// Workbook is a thin writer over one excelize file with a cursor per sheet.
type Workbook struct {
	file         *excelize.File
	currentSheet string
	currentRow   int
}

func NewWorkbook() *Workbook {
	return &Workbook{file: excelize.NewFile()}
}

// AddSheet adds a sheet and makes it current. The first call renames the default sheet.
func (w *Workbook) AddSheet(name string) error {
	if len(name) > 31 {
		name = name[:31]
	}
	if w.currentSheet == "" {
		if err := w.file.SetSheetName("Sheet1", name); err != nil {
			return fmt.Errorf("rename sheet: %w", err)
		}
	} else if _, err := w.file.NewSheet(name); err != nil {
		return fmt.Errorf("create sheet %s: %w", name, err)
	}
	w.currentSheet = name
	w.currentRow = 1
	return nil
}

// WriteHeader writes bold column titles and freezes them.
func (w *Workbook) WriteHeader(columns []string) error {
	if err := w.WriteRow(toRow(columns)); err != nil {
		return err
	}
	style, err := w.file.NewStyle(&excelize.Style{Font: &excelize.Font{Bold: true}})
	if err != nil {
		return err
	}
	startCell, _ := excelize.CoordinatesToCellName(1, w.currentRow-1)
	endCell, _ := excelize.CoordinatesToCellName(len(columns), w.currentRow-1)
	if err := w.file.SetCellStyle(w.currentSheet, startCell, endCell, style); err != nil {
		return err
	}
	return w.file.SetPanes(w.currentSheet, &excelize.Panes{
		Freeze: true, YSplit: 1, TopLeftCell: "A2", ActivePane: "bottomLeft",
	})
}

func (w *Workbook) WriteRow(row []any) error {
	if w.currentSheet == "" {
		return fmt.Errorf("no active sheet")
	}
	cell, err := excelize.CoordinatesToCellName(1, w.currentRow)
	if err != nil {
		return err
	}
	if err := w.file.SetSheetRow(w.currentSheet, cell, &row); err != nil {
		return err
	}
	w.currentRow++
	return nil
}

func (w *Workbook) Write(out io.Writer) error {
	return w.file.Write(out)
}

func (w *Workbook) Close() error {
	return w.file.Close()
}

// WriteAppointments writes one sheet with a row per appointment, plus a summary
// sheet with counts per status.
func WriteAppointments(out io.Writer, month time.Time, appts []models.Appointment, barberNames map[string]string, loc *time.Location) error {
	if loc == nil {
		loc = time.UTC
	}
	wb := NewWorkbook()
	defer wb.Close()

	if err := wb.AddSheet("Appointments " + month.Format("2006-01")); err != nil {
		return err
	}
	if err := wb.WriteHeader(appointmentColumns); err != nil {
		return err
	}

	counts := make(map[models.AppointmentStatus]int)
	for _, a := range appts {
		barber := barberNames[a.BarberID]
		if barber == "" {
			barber = a.BarberID
		}
		start := a.StartTime.In(loc)
		row := []any{
			a.ID, barber, start.Format("2006-01-02"), start.Format("15:04"), a.EndTime.In(loc).Format("15:04"),
			a.DurationMinutes, a.Service, a.CustomerName, a.CustomerEmail, a.CustomerPhone,
			string(a.Status), a.Notes, a.CreatedAt.In(loc).Format("2006-01-02 15:04"),
		}
		if err := wb.WriteRow(row); err != nil {
			return err
		}
		counts[a.Status]++
	}

	if err := wb.AddSheet("Summary"); err != nil {
		return err
	}
	if err := wb.WriteHeader([]string{"Status", "Count"}); err != nil {
		return err
	}
	for _, st := range []models.AppointmentStatus{
		models.StatusPending, models.StatusConfirmed, models.StatusCompleted, models.StatusCancelled, models.StatusNoShow,
	} {
		if err := wb.WriteRow([]any{string(st), counts[st]}); err != nil {
			return err
		}
	}
	if err := wb.WriteRow([]any{"total", len(appts)}); err != nil {
		return err
	}

	return wb.Write(out)
}

func toRow(values []string) []any {
	row := make([]any, len(values))
	for i, v := range values {
		row[i] = v
	}
	return row
}
