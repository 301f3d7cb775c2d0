package stream

import (
	"bufio"
	"bytes"
	"errors"
	"io"
	"net/http"
	"sort"
	"strings"

	m "netshield/internal/models"
)

var errNotHTTP = errors.New("not HTTP")

// HTTPTransaction holds the first request and response of a stream.
type HTTPTransaction struct {
	Method      string
	URL         string
	StatusCode  int
	StatusText  string
	ReqHeaders  map[string]string
	RespHeaders map[string]string
	ContentType string
	BodyPreview string
}

// tryParseHTTP parses a request from clientData and a response from
// serverData. Either half may be missing.
func tryParseHTTP(clientData, serverData []byte) (*HTTPTransaction, error) {
	if len(clientData) < 4 {
		return nil, errNotHTTP
	}
	start := string(clientData[:4])
	if start != "GET " && start != "POST" && start != "PUT " && start != "DELE" &&
		start != "HEAD" && start != "PATC" && start != "OPTI" {
		return nil, errNotHTTP
	}

	tx := &HTTPTransaction{
		ReqHeaders:  make(map[string]string),
		RespHeaders: make(map[string]string),
	}

	req, err := http.ReadRequest(bufio.NewReader(bytes.NewReader(clientData)))
	if err == nil {
		tx.Method = req.Method
		tx.URL = req.URL.String()
		for k, v := range req.Header {
			tx.ReqHeaders[k] = strings.Join(v, ", ")
		}
		// ReadRequest moves Host out of the header map.
		if req.Host != "" {
			tx.ReqHeaders["Host"] = req.Host
		}
		tx.ContentType = req.Header.Get("Content-Type")
		req.Body.Close()
	}

	if len(serverData) >= 12 {
		resp, err := http.ReadResponse(bufio.NewReader(bytes.NewReader(serverData)), nil)
		if err == nil {
			tx.StatusCode = resp.StatusCode
			tx.StatusText = resp.Status
			for k, v := range resp.Header {
				tx.RespHeaders[k] = strings.Join(v, ", ")
			}
			if tx.ContentType == "" {
				tx.ContentType = resp.Header.Get("Content-Type")
			}
			tx.BodyPreview = preview(resp.Body, 512)
			resp.Body.Close()
		}
	}

	if tx.Method == "" && tx.StatusCode == 0 {
		return nil, errNotHTTP
	}
	return tx, nil
}

// preview reads up to n bytes, replacing non-printable bytes with dots.
func preview(r io.Reader, n int) string {
	buf := make([]byte, n)
	k, _ := io.ReadAtLeast(r, buf, 1)
	var sb strings.Builder
	for _, c := range buf[:k] {
		if c >= 32 && c < 127 || c == '\n' || c == '\r' || c == '\t' {
			sb.WriteByte(c)
		} else {
			sb.WriteByte('.')
		}
	}
	return sb.String()
}

func headerNode(h map[string]string) m.Detail {
	keys := make([]string, 0, len(h))
	for k := range h {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	fields := make([]m.Field, len(keys))
	for i, k := range keys {
		fields[i] = m.F(strings.ToLower(k), m.String(h[k]))
	}
	return m.Node(fields...)
}

// Field renders the transaction as a detail node.
func (tx *HTTPTransaction) Field() m.Field {
	var fields []m.Field
	if tx.Method != "" {
		fields = append(fields,
			m.F("method", m.String(tx.Method)),
			m.F("url", m.String(tx.URL)),
			m.F("request_headers", headerNode(tx.ReqHeaders)),
		)
	}
	if tx.StatusCode != 0 {
		fields = append(fields,
			m.F("status_code", m.Int(int64(tx.StatusCode))),
			m.F("status", m.String(tx.StatusText)),
			m.F("response_headers", headerNode(tx.RespHeaders)),
		)
	}
	if tx.ContentType != "" {
		fields = append(fields, m.F("content_type", m.String(tx.ContentType)))
	}
	if tx.BodyPreview != "" {
		fields = append(fields, m.F("body_preview", m.String(tx.BodyPreview)))
	}
	return m.F("http_transaction", m.Node(fields...))
}
