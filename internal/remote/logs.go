package remote

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"

	"netshield/internal/dataset"
	m "netshield/internal/models"
)

// LogEntry is one row of GET /api/logs. The backend serves two shapes:
// scan results (ipAddress/port/status) and alert logs (sourceIP/destIP/alertType).
type LogEntry struct {
	ID        int64  `json:"id,omitempty"`
	IPAddress string `json:"ipAddress,omitempty"`
	Port      int    `json:"port,omitempty"`
	Protocol  string `json:"protocol,omitempty"`
	Status    string `json:"status,omitempty"`
	SourceIP  string `json:"sourceIP,omitempty"`
	DestIP    string `json:"destIP,omitempty"`
	Timestamp string `json:"timestamp,omitempty"`
	AlertType string `json:"alertType,omitempty"`
}

// Record converts the entry. Rows without a backend id get a name-based
// uuid so that polling the same row twice yields the same record id.
func (e LogEntry) Record() m.Record {
	id := "log-" + strconv.FormatInt(e.ID, 10)
	if e.ID == 0 {
		key := strings.Join([]string{e.IPAddress, strconv.Itoa(e.Port), e.Protocol, e.Status,
			e.SourceIP, e.DestIP, e.Timestamp, e.AlertType}, "|")
		id = uuid.NewSHA1(uuid.NameSpaceOID, []byte(key)).String()
	}

	src := e.SourceIP
	if src == "" {
		src = e.IPAddress
	}
	rec := m.Record{
		ID:          id,
		Source:      src,
		Destination: e.DestIP,
		Protocol:    e.Protocol,
		Status:      mapStatus(e.Status, e.AlertType),
	}
	if ts, err := m.ParseTimestamp(e.Timestamp); err == nil {
		rec.Timestamp = ts
	}

	var fields []m.Field
	switch {
	case e.AlertType != "":
		rec.Info = "Alert: " + e.AlertType
		fields = append(fields, m.F("alert_type", m.String(e.AlertType)))
	case e.Port != 0:
		rec.Info = fmt.Sprintf("%s → %d/%s → %s", e.IPAddress, e.Port, e.Protocol, e.Status)
		fields = append(fields, m.F("port", m.Int(int64(e.Port))))
	default:
		rec.Info = e.Status
	}
	if e.Status != "" {
		fields = append(fields, m.F("status", m.String(e.Status)))
	}
	if e.ID != 0 {
		fields = append(fields, m.F("log_id", m.Int(e.ID)))
	}
	rec.Details = m.Node(m.F("log", m.Node(fields...)))
	return rec
}

// mapStatus folds backend status words onto the three display states.
func mapStatus(status, alertType string) m.Status {
	switch strings.ToLower(status) {
	case "good", "ok", "closed", "filtered":
		return m.StatusGood
	case "warning", "open":
		return m.StatusWarning
	case "error", "alert", "critical", "blocked":
		return m.StatusError
	}
	if alertType != "" {
		return m.StatusWarning
	}
	return m.StatusNone
}

// LogClient reads stored alerts from the backend REST api.
type LogClient struct {
	base string
	http *http.Client
}

func NewLogClient(base string, hc *http.Client) *LogClient {
	if hc == nil {
		hc = &http.Client{Timeout: 10 * time.Second}
	}
	return &LogClient{base: strings.TrimRight(base, "/"), http: hc}
}

// Fetch returns every stored log row as a record.
func (c *LogClient) Fetch(ctx context.Context) ([]m.Record, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.base+"/api/logs", nil)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch logs: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("fetch logs: %s: %s", resp.Status, strings.TrimSpace(string(body)))
	}

	var entries []LogEntry
	if err := json.NewDecoder(resp.Body).Decode(&entries); err != nil {
		return nil, fmt.Errorf("decode logs: %w", err)
	}
	out := make([]m.Record, len(entries))
	for i, e := range entries {
		out[i] = e.Record()
	}
	return out, nil
}

// Poll fetches immediately and then every interval, appending rows not seen
// before to live. It returns when ctx is done. Fetch errors are logged and
// the next poll is attempted.
func (c *LogClient) Poll(ctx context.Context, clock clockwork.Clock, every time.Duration, live *dataset.Live) {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	ticker := clock.NewTicker(every)
	defer ticker.Stop()
	for {
		c.pollOnce(ctx, live)
		select {
		case <-ctx.Done():
			return
		case <-ticker.Chan():
		}
	}
}

func (c *LogClient) pollOnce(ctx context.Context, live *dataset.Live) int {
	records, err := c.Fetch(ctx)
	if err != nil {
		if ctx.Err() == nil {
			log.Printf("Log poll error: %v", err)
		}
		return 0
	}
	added := 0
	for _, r := range records {
		if live.Append(r) {
			added++
		}
	}
	return added
}
