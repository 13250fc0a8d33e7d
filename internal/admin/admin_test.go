package admin

import (
	"context"
	"encoding/json"
	"net"
	"net/http"
	"path/filepath"
	"testing"
	"time"

	"github.com/wandbox-go/cattleshed/internal/compiler"
)

func TestHealthzAndStatsAndCompilers(t *testing.T) {
	registry := compiler.NewStaticRegistry([]compiler.CompilerTrait{
		{Name: "cc", Language: "c", DisplayName: "Test C", Displayable: true},
	})
	stats := &Stats{}
	stats.SessionsTotal.Store(3)

	sockPath := filepath.Join(t.TempDir(), "admin.sock")
	srv := New(sockPath, registry, stats)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	errCh := make(chan error, 1)
	go func() { errCh <- srv.ListenAndServe(ctx) }()

	var conn net.Conn
	var err error
	for i := 0; i < 50; i++ {
		conn, err = net.Dial("unix", sockPath)
		if err == nil {
			conn.Close()
			break
		}
		time.Sleep(20 * time.Millisecond)
	}
	if err != nil {
		t.Fatalf("socket never became available: %v", err)
	}

	client := &http.Client{
		Transport: &http.Transport{
			DialContext: func(ctx context.Context, _, _ string) (net.Conn, error) {
				return net.Dial("unix", sockPath)
			},
		},
	}

	resp, err := client.Get("http://unix/healthz")
	if err != nil {
		t.Fatalf("GET /healthz: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Errorf("/healthz status = %d", resp.StatusCode)
	}

	resp, err = client.Get("http://unix/stats")
	if err != nil {
		t.Fatalf("GET /stats: %v", err)
	}
	var sr statsResponse
	json.NewDecoder(resp.Body).Decode(&sr)
	resp.Body.Close()
	if sr.SessionsTotal != 3 {
		t.Errorf("SessionsTotal = %d, want 3", sr.SessionsTotal)
	}

	resp, err = client.Get("http://unix/compilers")
	if err != nil {
		t.Fatalf("GET /compilers: %v", err)
	}
	var compilers []compilerSummary
	json.NewDecoder(resp.Body).Decode(&compilers)
	resp.Body.Close()
	if len(compilers) != 1 || compilers[0].Name != "cc" {
		t.Errorf("compilers = %+v", compilers)
	}
}
