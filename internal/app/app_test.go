package app

import (
	"context"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"netshield/internal/config"
	"netshield/internal/dataset"
)

func TestOpenDatasetBuiltin(t *testing.T) {
	src, cleanup, err := OpenDataset(context.Background(), config.Config{DatasetKind: config.DatasetBuiltin})
	defer cleanup()
	if err != nil {
		t.Fatal(err)
	}
	if src.Len() != 10 {
		t.Fatalf("Len = %d", src.Len())
	}
}

func TestOpenDatasetMissingPcap(t *testing.T) {
	_, cleanup, err := OpenDataset(context.Background(), config.Config{
		DatasetKind: config.DatasetPcap,
		DatasetPcap: filepath.Join(t.TempDir(), "missing.pcap"),
	})
	defer cleanup()
	if err == nil {
		t.Fatal("expected error for missing file")
	}
}

func TestOpenDatasetRemote(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`[{"id": 1, "ipAddress": "10.0.0.4", "port": 22, "protocol": "tcp", "status": "open"}]`))
	}))
	defer srv.Close()

	src, cleanup, err := OpenDataset(context.Background(), config.Config{
		DatasetKind: config.DatasetRemote,
		LogsURL:     srv.URL,
	})
	if err != nil {
		t.Fatal(err)
	}
	defer cleanup()
	if _, ok := src.(*dataset.Live); !ok {
		t.Fatalf("remote dataset is %T", src)
	}

	deadline := time.Now().Add(3 * time.Second)
	for src.Len() == 0 {
		if time.Now().After(deadline) {
			t.Fatal("log poll never appended")
		}
		time.Sleep(5 * time.Millisecond)
	}
	r, _ := src.RecordAt(0)
	if r.ID != "log-1" {
		t.Fatalf("record id = %s", r.ID)
	}
}

func TestNewEngine(t *testing.T) {
	cfg := config.Config{DatasetKind: config.DatasetBuiltin, CaptureInterval: time.Second, FilterDebounce: time.Second}
	eng, cleanup, err := NewEngine(context.Background(), cfg)
	if err != nil {
		t.Fatal(err)
	}
	defer cleanup()
	s, err := eng.NewSession()
	if err != nil {
		t.Fatal(err)
	}
	if s.Interval() != time.Second {
		t.Fatalf("interval = %s", s.Interval())
	}
}
