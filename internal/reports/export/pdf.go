package export

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"strings"

	"golang.org/x/text/language"
	"golang.org/x/text/message"

	"github.com/fichaflow/fichaflow/internal/reports"
)

// PDFExporter wraps Gotenberg interactions for report exports.
type PDFExporter struct {
	Endpoint string
	Client   *http.Client
}

// RenderGlobalReport sends HTML content to Gotenberg and returns the PDF bytes.
func (p *PDFExporter) RenderGlobalReport(ctx context.Context, payload reports.ExportPayload) ([]byte, error) {
	if p == nil {
		return nil, fmt.Errorf("pdf exporter not initialised")
	}
	endpoint := strings.TrimRight(p.Endpoint, "/")
	if endpoint == "" {
		return nil, fmt.Errorf("gotenberg endpoint required")
	}
	client := p.Client
	if client == nil {
		client = http.DefaultClient
	}

	html := buildHTML(payload)
	body := &bytes.Buffer{}
	writer := multipart.NewWriter(body)
	part, err := writer.CreateFormFile("files", "report.html")
	if err != nil {
		return nil, err
	}
	if _, err := io.WriteString(part, html); err != nil {
		return nil, err
	}
	if err := writer.WriteField("waitDelay", "500"); err != nil {
		return nil, err
	}
	if err := writer.Close(); err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint+"/forms/chromium/convert/html", body)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", writer.FormDataContentType())

	resp, err := client.Do(req)
	if err != nil {
		return nil, err
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		data, _ := io.ReadAll(io.LimitReader(resp.Body, 4<<10))
		return nil, fmt.Errorf("gotenberg response %d: %s", resp.StatusCode, string(data))
	}

	return io.ReadAll(resp.Body)
}

func buildHTML(payload reports.ExportPayload) string {
	printer := message.NewPrinter(language.English)

	var b strings.Builder
	b.WriteString("<html><head><meta charset=\"utf-8\"><style>")
	b.WriteString("body{font-family:sans-serif;margin:24px;}h1{font-size:20px;}table{width:100%;border-collapse:collapse;margin-bottom:16px;}th,td{border:1px solid #ddd;padding:6px;text-align:right;}th{text-align:left;background:#f5f5f5;}section{margin-bottom:24px;} .metric-label{text-align:left;}")
	b.WriteString("</style></head><body>")
	b.WriteString(fmt.Sprintf("<h1>Attendance Report – %s</h1>", templateEscape(payload.GeneratedAt.Format("2006-01-02 15:04 MST"))))

	b.WriteString("<section><h2>Totals</h2><table><tbody>")
	writeMetricRow(&b, printer, "Fichas", payload.Global.Fichas)
	writeMetricRow(&b, printer, "Instructors", payload.Global.Instructors)
	writeMetricRow(&b, printer, "Students", payload.Global.Students)
	writeMetricRow(&b, printer, "Sessions", payload.Global.Sessions)
	writeMetricRow(&b, printer, "Excuses", payload.Global.Excuses)
	writeMetricRow(&b, printer, "Pending Excuses", payload.Global.PendingExcuses)
	b.WriteString("</tbody></table></section>")

	b.WriteString("<section><h2>Attendance by Status</h2><table><tbody>")
	writeMetricRow(&b, printer, "Present", payload.Global.AttendanceByStatus.Present)
	writeMetricRow(&b, printer, "Absent", payload.Global.AttendanceByStatus.Absent)
	writeMetricRow(&b, printer, "Late", payload.Global.AttendanceByStatus.Late)
	writeMetricRow(&b, printer, "Excused", payload.Global.AttendanceByStatus.Excused)
	b.WriteString("</tbody></table></section>")

	if len(payload.TopFichas) > 0 {
		b.WriteString("<section><h2>Fichas With Most Absences</h2><table><thead><tr><th>Ficha</th><th>Absences</th></tr></thead><tbody>")
		for _, entry := range payload.TopFichas {
			b.WriteString("<tr><td class=\"metric-label\">")
			b.WriteString(printer.Sprintf("#%d", entry.ID))
			b.WriteString("</td><td>")
			b.WriteString(printer.Sprintf("%d", entry.Count))
			b.WriteString("</td></tr>")
		}
		b.WriteString("</tbody></table></section>")
	}

	if len(payload.TopInstructors) > 0 {
		b.WriteString("<section><h2>Most Active Instructors</h2><table><thead><tr><th>Instructor</th><th>Sessions</th></tr></thead><tbody>")
		for _, entry := range payload.TopInstructors {
			b.WriteString("<tr><td class=\"metric-label\">")
			b.WriteString(printer.Sprintf("#%d", entry.ID))
			b.WriteString("</td><td>")
			b.WriteString(printer.Sprintf("%d", entry.Count))
			b.WriteString("</td></tr>")
		}
		b.WriteString("</tbody></table></section>")
	}

	b.WriteString("</body></html>")
	return b.String()
}

func writeMetricRow(b *strings.Builder, printer *message.Printer, label string, value int64) {
	b.WriteString("<tr><td class=\"metric-label\">")
	b.WriteString(templateEscape(label))
	b.WriteString("</td><td>")
	b.WriteString(printer.Sprintf("%d", value))
	b.WriteString("</td></tr>")
}

func templateEscape(v string) string {
	replacer := strings.NewReplacer(
		"&", "&amp;",
		"<", "&lt;",
		">", "&gt;",
		"\"", "&quot;",
		"'", "&#39;",
	)
	return replacer.Replace(v)
}
