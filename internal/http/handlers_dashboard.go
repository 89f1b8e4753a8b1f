package http

import (
	"bytes"
	"net/http"
	"strings"
	"sync/atomic"

	"bookkeeper/internal/log"
)

const reportFilename = "transactions-report.csv"

// handleDashboard serves today's metrics with the trailing seven-day chart.
// locationId is "all" or a positive id.
func (s *Server) handleDashboard(w http.ResponseWriter, r *http.Request) {
	locationID, err := parseOptionalID(r.URL.Query(), "locationId")
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	d, err := s.ledger.Dashboard(r.Context(), locationID)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, d)
}

// handleReports serves the report as JSON, or as a CSV attachment with format=csv.
func (s *Server) handleReports(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	f, err := parseFilter(q, s.ledger.Location())
	if err != nil {
		writeServiceError(w, r, err)
		return
	}

	format := strings.ToLower(strings.TrimSpace(q.Get("format")))
	switch format {
	case "", "json":
		report, err := s.ledger.Report(r.Context(), f)
		if err != nil {
			writeServiceError(w, r, err)
			return
		}
		writeJSON(w, r, http.StatusOK, report)
	case "csv":
		// Buffered so a store failure can still produce a JSON error.
		var buf bytes.Buffer
		if err := s.ledger.ReportCSV(r.Context(), &buf, f); err != nil {
			writeServiceError(w, r, err)
			return
		}
		atomic.AddInt64(&s.appMetrics.csvExports, 1)
		log.FromContext(r.Context()).InfoContext(r.Context(), "Report exported",
			log.FieldComponent, log.ComponentReports,
			log.FieldOperation, log.OpExport,
			"bytes", buf.Len())
		w.Header().Set("Content-Type", "text/csv; charset=utf-8")
		w.Header().Set("Content-Disposition", `attachment; filename="`+reportFilename+`"`)
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write(buf.Bytes())
	default:
		writeServiceError(w, r, &QueryError{Param: "format", Value: format})
	}
}
