package api

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"

	"github.com/dgallion1/taxgest/internal/export"
	"github.com/go-chi/chi/v5"
)

const xlsxContentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"

func (s *Server) handleListReturns(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]any{"returns": s.orchestrator.Store().List()})
}

func (s *Server) handleGetReturn(w http.ResponseWriter, r *http.Request) {
	year, ok := yearParam(w, r)
	if !ok {
		return
	}
	e, found := s.orchestrator.Store().Get(year)
	if !found {
		jsonError(w, fmt.Sprintf("no return stored for %d", year), http.StatusNotFound)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(e)
}

func (s *Server) handleDeleteReturn(w http.ResponseWriter, r *http.Request) {
	year, ok := yearParam(w, r)
	if !ok {
		return
	}
	existed, err := s.orchestrator.Store().Delete(year)
	if err != nil {
		s.log.Error("delete return failed", "year", year, "error", err)
		jsonError(w, "failed to delete return: "+err.Error(), http.StatusInternalServerError)
		return
	}
	if !existed {
		jsonError(w, fmt.Sprintf("no return stored for %d", year), http.StatusNotFound)
		return
	}
	s.log.Info("return deleted", "year", year)
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]any{"year": year, "deleted": true})
}

func (s *Server) handleExportReturn(w http.ResponseWriter, r *http.Request) {
	year, ok := yearParam(w, r)
	if !ok {
		return
	}
	e, found := s.orchestrator.Store().Get(year)
	if !found {
		jsonError(w, fmt.Sprintf("no return stored for %d", year), http.StatusNotFound)
		return
	}
	data, err := export.Workbook(e.Record)
	if err != nil {
		s.log.Error("xlsx export failed", "year", year, "error", err)
		jsonError(w, "export failed", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", xlsxContentType)
	w.Header().Set("Content-Disposition", fmt.Sprintf(`attachment; filename="tax-return-%d.xlsx"`, year))
	w.Header().Set("Content-Length", strconv.Itoa(len(data)))
	w.Write(data)
}

func yearParam(w http.ResponseWriter, r *http.Request) (int, bool) {
	raw := chi.URLParam(r, "year")
	year, err := parseYear(raw)
	if err != nil || year == 0 {
		jsonError(w, fmt.Sprintf("invalid year %q", raw), http.StatusBadRequest)
		return 0, false
	}
	return year, true
}
