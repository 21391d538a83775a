package handlers

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/autosem/autosem-backend/internal/pkg/errs"
	"github.com/autosem/autosem-backend/internal/services"
	"github.com/autosem/autosem-backend/internal/types"
)

func newCampaignRouter(svc services.CampaignService) *gin.Engine {
	gin.SetMode(gin.TestMode)
	h := NewCampaignHandler(svc)
	r := gin.New()
	r.GET("/campaigns", h.List)
	r.GET("/campaigns/active", h.ListActive)
	r.POST("/campaigns", h.Create)
	r.GET("/campaigns/:id", h.Get)
	r.POST("/campaigns/:id/pause", h.Pause)
	r.DELETE("/campaigns/cleanup", h.Cleanup)
	return r
}

func TestCampaignHandler_GetRejectsBadID(t *testing.T) {
	r := newCampaignRouter(&stubCampaignService{})

	req := httptest.NewRequest(http.MethodGet, "/campaigns/not-a-uuid", nil)
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status: got=%d want=%d", rec.Code, http.StatusBadRequest)
	}
	var envelope ErrorEnvelope
	if err := json.Unmarshal(rec.Body.Bytes(), &envelope); err != nil {
		t.Fatalf("unmarshal body: %v", err)
	}
	if envelope.Error.Code != "bad_request" {
		t.Fatalf("error code: got=%q", envelope.Error.Code)
	}
}

func TestCampaignHandler_GetMapsNotFound(t *testing.T) {
	r := newCampaignRouter(&stubCampaignService{getErr: errs.ErrNotFound})

	req := httptest.NewRequest(http.MethodGet, "/campaigns/"+uuid.NewString(), nil)
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	if rec.Code != http.StatusNotFound {
		t.Fatalf("status: got=%d want=%d", rec.Code, http.StatusNotFound)
	}
}

func TestCampaignHandler_CreateReturnsCreated(t *testing.T) {
	svc := &stubCampaignService{}
	r := newCampaignRouter(svc)

	body := `{"name":"Summer Launch","platform":"meta","daily_budget":15}`
	req := httptest.NewRequest(http.MethodPost, "/campaigns", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	if rec.Code != http.StatusCreated {
		t.Fatalf("status: got=%d want=%d body=%s", rec.Code, http.StatusCreated, rec.Body.String())
	}
	if svc.created == nil || svc.created.Name != "Summer Launch" || svc.created.DailyBudget != 15 {
		t.Fatalf("service saw wrong request: %+v", svc.created)
	}
}

func TestCampaignHandler_CreateRejectsMalformedJSON(t *testing.T) {
	r := newCampaignRouter(&stubCampaignService{})

	req := httptest.NewRequest(http.MethodPost, "/campaigns", strings.NewReader(`{"name":`))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status: got=%d want=%d", rec.Code, http.StatusBadRequest)
	}
}

func TestCampaignHandler_PauseMapsInvalidArgument(t *testing.T) {
	r := newCampaignRouter(&stubCampaignService{
		pauseErr: fmt.Errorf("%w: campaign is removed", errs.ErrInvalidArgument),
	})

	req := httptest.NewRequest(http.MethodPost, "/campaigns/"+uuid.NewString()+"/pause", nil)
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status: got=%d want=%d", rec.Code, http.StatusBadRequest)
	}
}

func TestCampaignHandler_CleanupReportsDeleted(t *testing.T) {
	r := newCampaignRouter(&stubCampaignService{cleanupDeleted: 4})

	req := httptest.NewRequest(http.MethodDelete, "/campaigns/cleanup", nil)
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status: got=%d want=%d", rec.Code, http.StatusOK)
	}
	var body map[string]int64
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("unmarshal body: %v", err)
	}
	if body["deleted"] != 4 {
		t.Fatalf("deleted: got=%d want=4", body["deleted"])
	}
}

func TestCampaignHandler_ListPassesPagination(t *testing.T) {
	svc := &stubCampaignService{}
	r := newCampaignRouter(svc)

	req := httptest.NewRequest(http.MethodGet, "/campaigns?offset=20&limit=5", nil)
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status: got=%d", rec.Code)
	}
	if svc.listOffset != 20 || svc.listLimit != 5 {
		t.Fatalf("pagination: got offset=%d limit=%d", svc.listOffset, svc.listLimit)
	}
}

// ---------- fakes ----------

type stubCampaignService struct {
	created        *services.CreateCampaignRequest
	listOffset     int
	listLimit      int
	getErr         error
	pauseErr       error
	cleanupDeleted int64
}

func (s *stubCampaignService) Create(ctx context.Context, req services.CreateCampaignRequest) (*types.Campaign, error) {
	s.created = &req
	return &types.Campaign{ID: uuid.New(), Name: req.Name, DailyBudget: req.DailyBudget}, nil
}

func (s *stubCampaignService) Get(ctx context.Context, id uuid.UUID) (*types.Campaign, error) {
	if s.getErr != nil {
		return nil, s.getErr
	}
	return &types.Campaign{ID: id}, nil
}

func (s *stubCampaignService) List(ctx context.Context, offset, limit int) ([]*types.Campaign, error) {
	s.listOffset = offset
	s.listLimit = limit
	return []*types.Campaign{}, nil
}

func (s *stubCampaignService) ListActive(ctx context.Context) ([]*types.Campaign, error) {
	return []*types.Campaign{}, nil
}

func (s *stubCampaignService) Update(ctx context.Context, id uuid.UUID, req services.UpdateCampaignRequest) (*types.Campaign, error) {
	return &types.Campaign{ID: id}, nil
}

func (s *stubCampaignService) Pause(ctx context.Context, id uuid.UUID) (*types.Campaign, error) {
	if s.pauseErr != nil {
		return nil, s.pauseErr
	}
	return &types.Campaign{ID: id, Status: types.CampaignStatusPaused}, nil
}

func (s *stubCampaignService) Delete(ctx context.Context, id uuid.UUID) error { return nil }

func (s *stubCampaignService) Cleanup(ctx context.Context) (int64, error) {
	return s.cleanupDeleted, nil
}
