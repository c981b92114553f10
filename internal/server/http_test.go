package server

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"go.uber.org/zap"
)

func TestHTTPHandler_Healthz(t *testing.T) {
	s := newTestServer(t, testConfig(t))
	srv := httptest.NewServer(NewHTTPHandler(s, zap.NewNop()))
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/healthz")
	if err != nil {
		t.Fatalf("GET /healthz: %v", err)
	}
	defer func() { _ = resp.Body.Close() }()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d", resp.StatusCode)
	}
	var body map[string]string
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body["status"] != "ok" || body["service"] != Name {
		t.Errorf("body = %v", body)
	}
}

func TestHTTPHandler_Routes(t *testing.T) {
	s := newTestServer(t, testConfig(t))
	srv := httptest.NewServer(NewHTTPHandler(s, nil))
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/nope")
	if err != nil {
		t.Fatalf("GET: %v", err)
	}
	_ = resp.Body.Close()
	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("unknown path status = %d", resp.StatusCode)
	}

	// The MCP endpoint answers an initialize request.
	payload := `{"jsonrpc":"2.0","id":1,"method":"initialize","params":{"protocolVersion":"2025-03-26","capabilities":{},"clientInfo":{"name":"test","version":"0"}}}`
	req, err := http.NewRequest(http.MethodPost, srv.URL+MCPPath, strings.NewReader(payload))
	if err != nil {
		t.Fatal(err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json, text/event-stream")
	resp, err = http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("POST %s: %v", MCPPath, err)
	}
	defer func() { _ = resp.Body.Close() }()
	if resp.StatusCode != http.StatusOK {
		t.Errorf("initialize status = %d", resp.StatusCode)
	}
}

func TestNewHTTPServer(t *testing.T) {
	s := newTestServer(t, testConfig(t))
	hs := NewHTTPServer(":0", s, nil)
	if hs.Addr != ":0" || hs.Handler == nil || hs.WriteTimeout != 0 {
		t.Errorf("server = %+v", hs)
	}
}
