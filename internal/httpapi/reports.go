package httpapi

import (
	"bytes"
	"encoding/csv"
	"errors"
	"html/template"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/facucarcelero/comandero/internal/domain"
	"github.com/facucarcelero/comandero/internal/service"
)

func (a *API) reportRange(w http.ResponseWriter, r *http.Request) (time.Time, time.Time, bool) {
	from, to, err := service.DayRange(r.URL.Query().Get("from"), r.URL.Query().Get("to"), a.now())
	if err != nil {
		writeServiceError(w, err)
		return time.Time{}, time.Time{}, false
	}
	return from, to, true
}

func (a *API) handleSalesByDate(w http.ResponseWriter, r *http.Request) {
	from, to, ok := a.reportRange(w, r)
	if !ok {
		return
	}
	rows, err := a.service.Reports.SalesByDate(r.Context(), from, to)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	if strings.EqualFold(r.URL.Query().Get("format"), "csv") {
		writeCSV(w, "sales-by-date.csv", salesByDateCSV(rows))
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"rows": rows})
}

func (a *API) handleSalesByCategory(w http.ResponseWriter, r *http.Request) {
	from, to, ok := a.reportRange(w, r)
	if !ok {
		return
	}
	rows, err := a.service.Reports.SalesByCategory(r.Context(), from, to)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"rows": rows})
}

func (a *API) handleTopProducts(w http.ResponseWriter, r *http.Request) {
	from, to, ok := a.reportRange(w, r)
	if !ok {
		return
	}
	limit := parsePositiveLimit(r.URL.Query().Get("limit"), 10, 100)
	rows, err := a.service.Reports.TopProducts(r.Context(), from, to, limit)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"rows": rows})
}

func (a *API) handleSessionSummary(w http.ResponseWriter, r *http.Request) {
	day := a.now().Truncate(24 * time.Hour)
	if raw := strings.TrimSpace(r.URL.Query().Get("date")); raw != "" {
		parsed, err := time.Parse(time.DateOnly, raw)
		if err != nil {
			writeError(w, http.StatusBadRequest, errors.New("date must be YYYY-MM-DD"))
			return
		}
		day = parsed
	}
	summaries, err := a.service.Reports.SessionSummary(r.Context(), day)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	if strings.EqualFold(r.URL.Query().Get("format"), "html") {
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(sessionSummaryHTML(day.Format(time.DateOnly), summaries)))
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"date": day.Format(time.DateOnly), "sessions": summaries})
}

func salesByDateCSV(rows []domain.DateSales) []byte {
	var buf bytes.Buffer
	out := csv.NewWriter(&buf)
	_ = out.Write([]string{"date", "order_count", "subtotal_cents", "tax_cents", "total_cents"})
	for _, row := range rows {
		_ = out.Write([]string{
			row.Date,
			strconv.Itoa(row.OrderCount),
			strconv.FormatInt(row.SubtotalCents, 10),
			strconv.FormatInt(row.TaxCents, 10),
			strconv.FormatInt(row.TotalCents, 10),
		})
	}
	out.Flush()
	return buf.Bytes()
}

func writeCSV(w http.ResponseWriter, filename string, body []byte) {
	w.Header().Set("Content-Type", "text/csv; charset=utf-8")
	w.Header().Set("Content-Disposition", `attachment; filename="`+filename+`"`)
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(body)
}

// sessionSummaryTmpl renders a printable page; html/template escapes every field.
var sessionSummaryTmpl = template.Must(template.New("session-summary").Parse(`<!doctype html>
<html>
<head>
  <meta charset="utf-8" />
  <title>Resumen de caja {{.Date}}</title>
  <style>
    body { font-family: sans-serif; margin: 24px; }
    table { width: 100%; border-collapse: collapse; margin-top: 8px; }
    th, td { border: 1px solid #ddd; padding: 6px; font-size: 13px; }
  </style>
</head>
<body>
  <h2>Resumen de caja {{.Date}}</h2>
  {{range .Sessions}}
  <h3>Sesion #{{.SessionID}}</h3>
  <p>Base: {{.OpeningAmountCents}} | Ventas: {{.TotalSalesCents}} | Abiertas: {{.OpenSalesCents}} | Pagos: {{.TotalPaymentsCents}}</p>
  <table>
    <thead><tr><th>Estado</th><th>Pedidos</th></tr></thead>
    <tbody>{{range $status, $count := .CountsByStatus}}<tr><td>{{$status}}</td><td style="text-align:right;">{{$count}}</td></tr>{{end}}</tbody>
  </table>
  <table>
    <thead><tr><th>Medio</th><th>Total</th></tr></thead>
    <tbody>{{range $method, $total := .PaymentsByMethod}}<tr><td>{{$method}}</td><td style="text-align:right;">{{$total}}</td></tr>{{end}}</tbody>
  </table>
  {{else}}
  <p>Sin sesiones.</p>
  {{end}}
</body>
</html>
`))

func sessionSummaryHTML(date string, summaries []domain.SessionSummary) string {
	var buf bytes.Buffer
	err := sessionSummaryTmpl.Execute(&buf, map[string]any{"Date": date, "Sessions": summaries})
	if err != nil {
		return "<!doctype html><html><body><p>Report rendering error.</p></body></html>"
	}
	return buf.String()
}
