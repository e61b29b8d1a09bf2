package handlers

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/gin-gonic/gin"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormLogger "gorm.io/gorm/logger"

	"github.com/veritext/veritext-backend/internal/data/repos"
	"github.com/veritext/veritext-backend/internal/domain"
	"github.com/veritext/veritext-backend/internal/platform/logger"
	"github.com/veritext/veritext-backend/internal/services"
)

var handlerDBSeq atomic.Int64

func newMaterialHandler(t *testing.T) *MaterialHandler {
	t.Helper()
	log, err := logger.New("test")
	if err != nil {
		t.Fatalf("logger: %v", err)
	}
	dsn := fmt.Sprintf("file:hnd%d?mode=memory&cache=shared", handlerDBSeq.Add(1))
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: gormLogger.Default.LogMode(gormLogger.Silent),
	})
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	if err := db.AutoMigrate(&domain.Material{}, &domain.Chunk{}); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	msvc := services.NewMaterialService(log, db, repos.NewMaterialRepo(db, log), repos.NewChunkRepo(db, log), nil)
	return NewMaterialHandler(log, msvc, nil)
}

func TestRegisterResponseIsFlat(t *testing.T) {
	gin.SetMode(gin.TestMode)
	h := newMaterialHandler(t)
	router := gin.New()
	router.POST("/materials", h.Register)

	body := `{"courseId":"course-1","sourceUrl":"https://files.example.com/intro.pdf"}`
	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/materials", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	router.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", w.Code, w.Body.String())
	}
	var resp map[string]any
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp["success"] != true {
		t.Fatalf("success = %v", resp["success"])
	}
	// Material fields sit at the top level, not under a nested key.
	if _, nested := resp["material"]; nested {
		t.Fatalf("response nests the material: %s", w.Body.String())
	}
	if id, ok := resp["id"].(float64); !ok || id < 1 {
		t.Fatalf("id = %v, want a positive number", resp["id"])
	}
	if resp["processingStatus"] != string(domain.StatusPending) {
		t.Fatalf("processingStatus = %v, want pending", resp["processingStatus"])
	}
	if resp["courseId"] != "course-1" || resp["sourceUrl"] != "https://files.example.com/intro.pdf" {
		t.Fatalf("echoed fields wrong: %s", w.Body.String())
	}
}

func TestRegisterRejectsBadBody(t *testing.T) {
	gin.SetMode(gin.TestMode)
	h := newMaterialHandler(t)
	router := gin.New()
	router.POST("/materials", h.Register)

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/materials", strings.NewReader("{not json"))
	req.Header.Set("Content-Type", "application/json")
	router.ServeHTTP(w, req)

	if w.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", w.Code)
	}
}
