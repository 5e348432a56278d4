package api

import (
	"net/http"

	"github.com/toolscheap/toolscheap/internal/analytics"
	"github.com/toolscheap/toolscheap/internal/apperror"
)

func (s *Server) handleAdminStats(w http.ResponseWriter, r *http.Request) {
	dash, err := s.Analytics.Dashboard(r.Context(), formInt(r, "days"))
	if err != nil {
		apperror.WriteJSON(w, r, apperror.Wrap(err, apperror.ErrInternal))
		return
	}

	if r.URL.Query().Get("format") == "csv" {
		out, err := analytics.ExportDashboardCSV(dash)
		if err != nil {
			apperror.WriteJSON(w, r, apperror.Wrap(err, apperror.ErrInternal))
			return
		}
		w.Header().Set("Content-Type", "text/csv")
		w.Header().Set("Content-Disposition", `attachment; filename="stats.csv"`)
		_, _ = w.Write(out)
		return
	}

	writeJSON(w, http.StatusOK, dash)
}

// handleAdminChart renders a stats chart PNG: "volume" for the daily time
// series, "tools" for the per-tool donut.
func (s *Server) handleAdminChart(w http.ResponseWriter, r *http.Request) {
	dash, err := s.Analytics.Dashboard(r.Context(), formInt(r, "days"))
	if err != nil {
		apperror.WriteJSON(w, r, apperror.Wrap(err, apperror.ErrInternal))
		return
	}

	var png []byte
	switch r.PathValue("kind") {
	case "volume":
		png, err = s.Analytics.GenerateVolumeChart(dash.DailyVolume, 800, 400)
	case "tools":
		png, err = s.Analytics.GenerateToolChart(dash.ToolBreakdown, 600, 400)
	default:
		apperror.WriteJSON(w, r, apperror.WithMessage(apperror.ErrBadRequest, "unknown chart kind"))
		return
	}
	if err != nil {
		apperror.WriteJSON(w, r, apperror.Wrap(err, apperror.ErrInternal))
		return
	}

	w.Header().Set("Content-Type", "image/png")
	_, _ = w.Write(png)
}
