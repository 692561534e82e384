package httpadapter

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"sort"
	"time"

	"github.com/couchcryptid/gas-leak-monitor/internal/domain"
)

const maxIngestBody = 1 << 20

func (s *Server) handleListReadings(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.monitor.GetAllCurrentUsage())
}

func (s *Server) handleGetReading(w http.ResponseWriter, r *http.Request) {
	reading, err := s.monitor.GetCurrentUsage(r.PathValue("zone"))
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, reading)
}

// handleIngest accepts a single reading object or an array of them. The
// batch is stored only if every reading is valid.
func (s *Server) handleIngest(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxIngestBody))
	if err != nil {
		writeJSON(w, http.StatusRequestEntityTooLarge, map[string]string{"error": "request body too large"})
		return
	}

	payloads, err := splitPayloads(body)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		return
	}

	readings := make([]domain.Reading, 0, len(payloads))
	for i, p := range payloads {
		reading, err := domain.ParseReading(p, time.Time{})
		if err != nil {
			if !domain.IsValidationError(err) {
				err = &domain.ValidationError{Field: "body", Reason: err.Error()}
			}
			s.writeError(w, fmt.Errorf("reading %d: %w", i, err))
			return
		}
		readings = append(readings, reading)
	}

	if err := s.monitor.Ingest(r.Context(), readings); err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]int{"accepted": len(readings)})
}

func splitPayloads(body []byte) ([]json.RawMessage, error) {
	body = bytes.TrimSpace(body)
	if len(body) == 0 {
		return nil, errors.New("empty request body")
	}
	if body[0] == '[' {
		var payloads []json.RawMessage
		if err := json.Unmarshal(body, &payloads); err != nil {
			return nil, fmt.Errorf("decode readings: %w", err)
		}
		if len(payloads) == 0 {
			return nil, errors.New("no readings in request")
		}
		return payloads, nil
	}
	return []json.RawMessage{body}, nil
}

// handleListAlerts serves ?status=active (default, most severe first) or
// ?status=all (newest first).
func (s *Server) handleListAlerts(w http.ResponseWriter, r *http.Request) {
	switch status := r.URL.Query().Get("status"); status {
	case "", "active":
		writeJSON(w, http.StatusOK, s.monitor.GetActiveAlerts())
	case "all":
		alerts := s.monitor.GetAllAlerts()
		sort.SliceStable(alerts, func(i, j int) bool {
			return alerts[i].DetectedAt.After(alerts[j].DetectedAt)
		})
		writeJSON(w, http.StatusOK, alerts)
	default:
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": fmt.Sprintf("unknown status %q", status)})
	}
}

func (s *Server) handleGetAlert(w http.ResponseWriter, r *http.Request) {
	alert, err := s.monitor.GetAlert(r.PathValue("id"))
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, alert)
}

func (s *Server) handleResolve(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if _, err := s.monitor.ResolveAlert(r.Context(), id); err != nil {
		s.writeError(w, err)
		return
	}
	alert, err := s.monitor.GetAlert(id)
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, alert)
}

func (s *Server) handleScan(w http.ResponseWriter, r *http.Request) {
	created, err := s.monitor.CheckForLeaks(r.Context())
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"created":       created,
		"active_alerts": len(s.monitor.GetActiveAlerts()),
	})
}

func (s *Server) handleSummary(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.monitor.Summary())
}

// writeError maps domain errors to status codes. Anything unexpected is
// logged and reported as unavailable without leaking details.
func (s *Server) writeError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, domain.ErrNotFound):
		writeJSON(w, http.StatusNotFound, map[string]string{"error": err.Error()})
	case errors.Is(err, domain.ErrAlreadyResolved):
		writeJSON(w, http.StatusConflict, map[string]string{"error": err.Error()})
	case domain.IsValidationError(err):
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
	default:
		s.logger.Error("request failed", "error", err)
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"error": "data unavailable"})
	}
}
