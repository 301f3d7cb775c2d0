package handlers

import (
	"bytes"
	"encoding/json"
	"fmt"
	"log"
	"net/http"

	"github.com/google/uuid"
	"github.com/wcharczuk/go-chart/v2"

	"netshield/internal/engine"
	"netshield/internal/session"
	"netshield/internal/view"
)

const maxUploadSize = 100 << 20 // 100 MB

// RegisterRoutes sets up all HTTP routes on the given mux.
func RegisterRoutes(mux *http.ServeMux, eng *engine.Engine, sendBuffer int) {
	// WebSocket endpoint
	mux.HandleFunc("GET /ws", HandleWebSocket(eng, sendBuffer))

	// PCAP file upload
	mux.HandleFunc("POST /api/upload", handleUpload(eng))

	mux.HandleFunc("GET /api/sessions/{id}/records", withSession(eng, func(w http.ResponseWriter, s *session.Session) {
		writeJSON(w, s.Rows())
	}))
	mux.HandleFunc("GET /api/sessions/{id}/summary", withSession(eng, func(w http.ResponseWriter, s *session.Session) {
		writeJSON(w, s.Summary())
	}))
	mux.HandleFunc("GET /api/sessions/{id}/summary.png", withSession(eng, handleSummaryChart))
	mux.HandleFunc("GET /api/sessions/{id}/conversations", withSession(eng, func(w http.ResponseWriter, s *session.Session) {
		writeJSON(w, s.Conversations())
	}))
	mux.HandleFunc("GET /api/sessions/{id}/endpoints", withSession(eng, func(w http.ResponseWriter, s *session.Session) {
		writeJSON(w, s.Endpoints())
	}))
	mux.HandleFunc("GET /api/sessions/{id}/hierarchy", withSession(eng, func(w http.ResponseWriter, s *session.Session) {
		writeJSON(w, s.Hierarchy())
	}))
	mux.HandleFunc("GET /api/sessions/{id}/voip", handleVoIP(eng))
	mux.HandleFunc("GET /api/sessions/{id}/wireless", withSession(eng, func(w http.ResponseWriter, s *session.Session) {
		writeJSON(w, s.Wireless())
	}))
	mux.HandleFunc("GET /api/sessions/{id}/export", withSession(eng, handleExport))
}

func withSession(eng *engine.Engine, fn func(http.ResponseWriter, *session.Session)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if s, ok := lookupSession(w, r, eng); ok {
			fn(w, s)
		}
	}
}

// lookupSession resolves the {id} path value, writing the error response
// itself when there is no such session.
func lookupSession(w http.ResponseWriter, r *http.Request, eng *engine.Engine) (*session.Session, bool) {
	id, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		jsonError(w, "invalid session id", http.StatusBadRequest)
		return nil, false
	}
	s, ok := eng.Session(id)
	if !ok {
		jsonError(w, "session not found", http.StatusNotFound)
		return nil, false
	}
	return s, true
}

// handleVoIP serves calls and RTP streams, narrowed by the optional q
// query parameter.
func handleVoIP(eng *engine.Engine) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		s, ok := lookupSession(w, r, eng)
		if !ok {
			return
		}
		writeJSON(w, s.VoIP().Filter(r.URL.Query().Get("q")))
	}
}

func handleUpload(eng *engine.Engine) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		r.Body = http.MaxBytesReader(w, r.Body, maxUploadSize)
		if err := r.ParseMultipartForm(maxUploadSize); err != nil {
			jsonError(w, "File too large (max 100MB)", http.StatusBadRequest)
			return
		}

		file, header, err := r.FormFile("file")
		if err != nil {
			jsonError(w, "Missing file", http.StatusBadRequest)
			return
		}
		defer file.Close()

		src, err := eng.LoadPcap(file)
		if err != nil {
			jsonError(w, "Failed to read pcap: "+err.Error(), http.StatusBadRequest)
			return
		}
		log.Printf("Upload %q: %d records", header.Filename, src.Len())
		writeJSON(w, map[string]interface{}{
			"records":   src.Len(),
			"truncated": src.Truncated(),
		})
	}
}

// handleSummaryChart renders the protocol distribution as a PNG pie chart.
func handleSummaryChart(w http.ResponseWriter, s *session.Session) {
	png, err := summaryChart(s.Summary())
	if err != nil {
		jsonError(w, err.Error(), http.StatusConflict)
		return
	}
	w.Header().Set("Content-Type", "image/png")
	w.Write(png)
}

func summaryChart(sum view.Summary) ([]byte, error) {
	if sum.Total == 0 {
		return nil, fmt.Errorf("no packets captured")
	}
	values := make([]chart.Value, 0, len(sum.Protocols))
	for _, p := range sum.Protocols {
		values = append(values, chart.Value{
			Value: float64(p.Count),
			Label: fmt.Sprintf("%s %s", p.Protocol, p.PercentText()),
		})
	}
	pie := chart.PieChart{
		Title:  fmt.Sprintf("Protocols (%d packets)", sum.Total),
		Width:  512,
		Height: 512,
		Values: values,
	}
	var buf bytes.Buffer
	if err := pie.Render(chart.PNG, &buf); err != nil {
		return nil, fmt.Errorf("render chart: %w", err)
	}
	return buf.Bytes(), nil
}

func handleExport(w http.ResponseWriter, s *session.Session) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.Header().Set("Content-Disposition", `attachment; filename="packets.txt"`)
	if err := s.Export(w); err != nil {
		log.Printf("Export %s: %v", s.ID, err)
	}
}

func writeJSON(w http.ResponseWriter, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	_ = enc.Encode(v)
}

func jsonError(w http.ResponseWriter, msg string, code int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(map[string]string{"error": msg})
}
