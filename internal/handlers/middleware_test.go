package handlers

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/pion/webrtc/v4"

	"github.com/mossy-p/peer-signaling/internal/models"
	"github.com/mossy-p/peer-signaling/internal/registry"
)

func newFilteredEngine(origins []string) *gin.Engine {
	r := gin.New()
	r.Use(OriginFilter(origins))
	r.GET("/ping", func(c *gin.Context) { c.String(http.StatusOK, "pong") })
	return r
}

func TestOriginFilter(t *testing.T) {
	tests := []struct {
		name       string
		allowed    []string
		origin     string
		method     string
		wantStatus int
		wantCORS   bool
	}{
		{name: "no origin header", allowed: []string{"http://app.test"}, wantStatus: http.StatusOK},
		{name: "allowed origin", allowed: []string{"http://app.test"}, origin: "http://app.test", wantStatus: http.StatusOK, wantCORS: true},
		{name: "rejected origin", allowed: []string{"http://app.test"}, origin: "http://evil.test", wantStatus: http.StatusForbidden},
		{name: "wildcard", allowed: []string{"*"}, origin: "http://anything.test", wantStatus: http.StatusOK, wantCORS: true},
		{name: "preflight", allowed: []string{"*"}, origin: "http://app.test", method: http.MethodOptions, wantStatus: http.StatusNoContent, wantCORS: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			method := tt.method
			if method == "" {
				method = http.MethodGet
			}
			req := httptest.NewRequest(method, "/ping", nil)
			if tt.origin != "" {
				req.Header.Set("Origin", tt.origin)
			}
			rec := httptest.NewRecorder()
			newFilteredEngine(tt.allowed).ServeHTTP(rec, req)

			if rec.Code != tt.wantStatus {
				t.Fatalf("status = %d, want %d", rec.Code, tt.wantStatus)
			}
			gotCORS := rec.Header().Get("Access-Control-Allow-Origin") == tt.origin && tt.origin != ""
			if gotCORS != tt.wantCORS {
				t.Fatalf("cors header = %q", rec.Header().Get("Access-Control-Allow-Origin"))
			}
		})
	}
}

func TestICEServersEndpoint(t *testing.T) {
	servers := []webrtc.ICEServer{
		{URLs: []string{"stun:stun.test:3478"}},
		{URLs: []string{"turn:turn.test:3478"}, Username: "u", Credential: "p"},
	}
	router := NewRouter(registry.New(nil), []string{"*"}, servers)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/ice-servers", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}

	var got []models.ICEServer
	if err := json.Unmarshal(rec.Body.Bytes(), &got); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(got) != 2 || got[1].Username != "u" || got[1].Credential != "p" {
		t.Fatalf("unexpected body %+v", got)
	}
	if got[0].Credential != "" {
		t.Fatalf("stun entry should have no credential, got %q", got[0].Credential)
	}
}
