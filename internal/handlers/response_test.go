package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"

	"github.com/veritext/veritext-backend/internal/platform/apierr"
)

func doRespond(t *testing.T, err error) (*httptest.ResponseRecorder, ErrorEnvelope) {
	t.Helper()
	gin.SetMode(gin.TestMode)
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	RespondError(c, err)

	var env ErrorEnvelope
	if jerr := json.Unmarshal(w.Body.Bytes(), &env); jerr != nil {
		t.Fatalf("decode error envelope: %v (body %q)", jerr, w.Body.String())
	}
	return w, env
}

func TestRespondErrorTaxonomy(t *testing.T) {
	cases := []struct {
		name       string
		err        error
		wantStatus int
		wantCode   string
	}{
		{"not found", apierr.NotFound("material %d not found", 7), http.StatusNotFound, "not_found"},
		{"invalid input", apierr.InvalidInput("courseId is required"), http.StatusBadRequest, "invalid_input"},
		{"extraction", apierr.Extraction(errors.New("bad pdf")), http.StatusUnprocessableEntity, "extraction_error"},
		{"network", apierr.Network(errors.New("connection refused")), http.StatusBadGateway, "network_error"},
		{"index consistency", apierr.IndexConsistency("id collision"), http.StatusInternalServerError, "index_consistency"},
		{"store", apierr.Store(errors.New("disk full")), http.StatusInternalServerError, "store_error"},
		{"untyped", errors.New("surprise"), http.StatusInternalServerError, "internal"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			w, env := doRespond(t, tc.err)
			if w.Code != tc.wantStatus {
				t.Fatalf("status = %d, want %d", w.Code, tc.wantStatus)
			}
			if env.Error.Code != tc.wantCode {
				t.Fatalf("code = %q, want %q", env.Error.Code, tc.wantCode)
			}
			if env.Error.Message == "" {
				t.Fatal("error message is empty")
			}
		})
	}
}

func TestHealthCheck(t *testing.T) {
	gin.SetMode(gin.TestMode)
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	c.Request = httptest.NewRequest(http.MethodGet, "/healthcheck", nil)

	HealthCheck(c)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", w.Code)
	}
	var body map[string]string
	if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body["status"] != "ok" {
		t.Fatalf("body = %v", body)
	}
}
