package export

import (
	"encoding/csv"
	"io"
	"strconv"

	"github.com/fichaflow/fichaflow/internal/reports"
)

// WriteGlobalReportCSV serialises the global report counters to CSV.
func WriteGlobalReportCSV(w io.Writer, report reports.GlobalReport) error {
	writer := csv.NewWriter(w)
	defer writer.Flush()

	if err := writer.Write([]string{"Metric", "Value"}); err != nil {
		return err
	}
	records := [][]string{
		{"Fichas", formatInt(report.Fichas)},
		{"Instructors", formatInt(report.Instructors)},
		{"Students", formatInt(report.Students)},
		{"Sessions", formatInt(report.Sessions)},
		{"Excuses", formatInt(report.Excuses)},
		{"Pending Excuses", formatInt(report.PendingExcuses)},
		{"Present", formatInt(report.AttendanceByStatus.Present)},
		{"Absent", formatInt(report.AttendanceByStatus.Absent)},
		{"Late", formatInt(report.AttendanceByStatus.Late)},
		{"Excused", formatInt(report.AttendanceByStatus.Excused)},
	}
	for _, record := range records {
		if err := writer.Write(record); err != nil {
			return err
		}
	}
	writer.Flush()
	return writer.Error()
}

func formatInt(v int64) string {
	return strconv.FormatInt(v, 10)
}
