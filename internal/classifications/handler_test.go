package classifications_test

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/rhinocodelab/idms-v3/internal/classifications"
	"github.com/rhinocodelab/idms-v3/pkg/pagination"
)

type mockSystem struct {
	listFn   func(ctx context.Context, page pagination.PageRequest, filters classifications.Filters) (*pagination.PageResult[classifications.Classification], error)
	findFn   func(ctx context.Context, id uuid.UUID) (*classifications.Classification, error)
	createFn func(ctx context.Context, cmd classifications.CreateCommand) (*classifications.Classification, error)
	deleteFn  func(ctx context.Context, id uuid.UUID) error
	summaryFn func(ctx context.Context, workflowID *uuid.UUID) (*classifications.Summary, error)
}

func (m *mockSystem) Handler() *classifications.Handler {
	return newTestHandler(m)
}

func (m *mockSystem) List(ctx context.Context, page pagination.PageRequest, filters classifications.Filters) (*pagination.PageResult[classifications.Classification], error) {
	return m.listFn(ctx, page, filters)
}

func (m *mockSystem) Find(ctx context.Context, id uuid.UUID) (*classifications.Classification, error) {
	return m.findFn(ctx, id)
}

func (m *mockSystem) Create(ctx context.Context, cmd classifications.CreateCommand) (*classifications.Classification, error) {
	return m.createFn(ctx, cmd)
}

func (m *mockSystem) Delete(ctx context.Context, id uuid.UUID) error {
	return m.deleteFn(ctx, id)
}

func (m *mockSystem) Summary(ctx context.Context, workflowID *uuid.UUID) (*classifications.Summary, error) {
	return m.summaryFn(ctx, workflowID)
}

func newTestHandler(sys classifications.System) *classifications.Handler {
	return classifications.NewHandler(
		sys,
		slog.New(slog.NewTextHandler(io.Discard, nil)),
		pagination.Config{DefaultPageSize: 20, MaxPageSize: 100},
	)
}

func setupMux(h *classifications.Handler) *http.ServeMux {
	mux := http.NewServeMux()
	group := h.Routes()
	for _, route := range group.Routes {
		pattern := route.Method + " " + group.Prefix + route.Pattern
		mux.HandleFunc(pattern, route.Handler)
	}
	return mux
}

func sampleClassification() classifications.Classification {
	return classifications.Classification{
		ID:               uuid.MustParse("550e8400-e29b-41d4-a716-446655440000"),
		WorkflowID:       uuid.MustParse("660e8400-e29b-41d4-a716-446655440000"),
		QueueItemID:      uuid.MustParse("770e8400-e29b-41d4-a716-446655440000"),
		Filename:         "invoice.png",
		DocumentType:     "invoice",
		CriticalityLevel: "medium",
		Confidence:       0.92,
		Rationale:        "Itemized totals and a billing address.",
		StorageKey:       "documents/660e8400/abc/invoice.png",
		ContentType:      "image/png",
		SizeBytes:        2048,
		ModelName:        "gpt-4o-mini",
		ClassifiedAt:     time.Now().Truncate(time.Second),
	}
}

func TestHandlerList(t *testing.T) {
	c := sampleClassification()
	sys := &mockSystem{
		listFn: func(_ context.Context, _ pagination.PageRequest, _ classifications.Filters) (*pagination.PageResult[classifications.Classification], error) {
			result := pagination.NewPageResult([]classifications.Classification{c}, 1, 1, 20)
			return &result, nil
		},
	}

	mux := setupMux(newTestHandler(sys))

	t.Run("returns paginated list", func(t *testing.T) {
		rec := httptest.NewRecorder()
		mux.ServeHTTP(rec, httptest.NewRequest("GET", "/classifications", nil))

		if rec.Code != http.StatusOK {
			t.Fatalf("status = %d, want 200", rec.Code)
		}

		var result pagination.PageResult[classifications.Classification]
		if err := json.NewDecoder(rec.Body).Decode(&result); err != nil {
			t.Fatalf("decode: %v", err)
		}
		if result.Total != 1 || len(result.Data) != 1 {
			t.Fatalf("result = %+v, want one item", result)
		}
		if result.Data[0].DocumentType != "invoice" {
			t.Errorf("document_type = %q, want invoice", result.Data[0].DocumentType)
		}
	})

	t.Run("passes query filters", func(t *testing.T) {
		var captured classifications.Filters
		sys.listFn = func(_ context.Context, _ pagination.PageRequest, f classifications.Filters) (*pagination.PageResult[classifications.Classification], error) {
			captured = f
			result := pagination.NewPageResult([]classifications.Classification{}, 0, 1, 20)
			return &result, nil
		}

		rec := httptest.NewRecorder()
		url := "/classifications?document_type=invoice&criticality_level=high&workflow_id=" + c.WorkflowID.String()
		mux.ServeHTTP(rec, httptest.NewRequest("GET", url, nil))

		if rec.Code != http.StatusOK {
			t.Fatalf("status = %d, want 200", rec.Code)
		}
		if captured.DocumentType == nil || *captured.DocumentType != "invoice" {
			t.Errorf("document_type = %v, want invoice", captured.DocumentType)
		}
		if captured.CriticalityLevel == nil || *captured.CriticalityLevel != "high" {
			t.Errorf("criticality_level = %v, want high", captured.CriticalityLevel)
		}
		if captured.WorkflowID == nil || *captured.WorkflowID != c.WorkflowID {
			t.Errorf("workflow_id = %v, want %v", captured.WorkflowID, c.WorkflowID)
		}
	})

	t.Run("malformed workflow id", func(t *testing.T) {
		rec := httptest.NewRecorder()
		mux.ServeHTTP(rec, httptest.NewRequest("GET", "/classifications?workflow_id=garbage", nil))

		if rec.Code != http.StatusBadRequest {
			t.Errorf("status = %d, want 400", rec.Code)
		}
	})

	t.Run("system error", func(t *testing.T) {
		sys.listFn = func(_ context.Context, _ pagination.PageRequest, _ classifications.Filters) (*pagination.PageResult[classifications.Classification], error) {
			return nil, errors.New("db down")
		}

		rec := httptest.NewRecorder()
		mux.ServeHTTP(rec, httptest.NewRequest("GET", "/classifications", nil))

		if rec.Code != http.StatusInternalServerError {
			t.Errorf("status = %d, want 500", rec.Code)
		}
	})
}

func TestHandlerFind(t *testing.T) {
	c := sampleClassification()
	sys := &mockSystem{
		findFn: func(_ context.Context, id uuid.UUID) (*classifications.Classification, error) {
			if id == c.ID {
				return &c, nil
			}
			return nil, classifications.ErrNotFound
		},
	}
	mux := setupMux(newTestHandler(sys))

	tests := []struct {
		name string
		path string
		want int
	}{
		{"found", "/classifications/" + c.ID.String(), http.StatusOK},
		{"not found", "/classifications/" + uuid.NewString(), http.StatusNotFound},
		{"invalid id", "/classifications/not-a-uuid", http.StatusBadRequest},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := httptest.NewRecorder()
			mux.ServeHTTP(rec, httptest.NewRequest("GET", tt.path, nil))
			if rec.Code != tt.want {
				t.Errorf("status = %d, want %d", rec.Code, tt.want)
			}
		})
	}
}

func TestHandlerSearch(t *testing.T) {
	var captured pagination.PageRequest
	sys := &mockSystem{
		listFn: func(_ context.Context, page pagination.PageRequest, _ classifications.Filters) (*pagination.PageResult[classifications.Classification], error) {
			captured = page
			result := pagination.NewPageResult([]classifications.Classification{}, 0, page.Page, page.PageSize)
			return &result, nil
		},
	}
	mux := setupMux(newTestHandler(sys))

	t.Run("normalizes page", func(t *testing.T) {
		body := bytes.NewBufferString(`{"page":0,"page_size":500,"document_type":"receipt"}`)
		rec := httptest.NewRecorder()
		mux.ServeHTTP(rec, httptest.NewRequest("POST", "/classifications/search", body))

		if rec.Code != http.StatusOK {
			t.Fatalf("status = %d, want 200", rec.Code)
		}
		if captured.Page != 1 || captured.PageSize != 100 {
			t.Errorf("page = %+v, want 1/100", captured)
		}
	})

	t.Run("invalid body", func(t *testing.T) {
		rec := httptest.NewRecorder()
		mux.ServeHTTP(rec, httptest.NewRequest("POST", "/classifications/search", bytes.NewBufferString("{")))
		if rec.Code != http.StatusBadRequest {
			t.Errorf("status = %d, want 400", rec.Code)
		}
	})
}

func TestHandlerDelete(t *testing.T) {
	c := sampleClassification()
	sys := &mockSystem{
		deleteFn: func(_ context.Context, id uuid.UUID) error {
			if id == c.ID {
				return nil
			}
			return classifications.ErrNotFound
		},
	}
	mux := setupMux(newTestHandler(sys))

	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest("DELETE", "/classifications/"+c.ID.String(), nil))
	if rec.Code != http.StatusNoContent {
		t.Errorf("status = %d, want 204", rec.Code)
	}

	rec = httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest("DELETE", "/classifications/"+uuid.NewString(), nil))
	if rec.Code != http.StatusNotFound {
		t.Errorf("status = %d, want 404", rec.Code)
	}
}

func TestHandlerSummary(t *testing.T) {
	var captured *uuid.UUID
	sys := &mockSystem{
		summaryFn: func(_ context.Context, workflowID *uuid.UUID) (*classifications.Summary, error) {
			captured = workflowID
			return &classifications.Summary{
				Total:          3,
				ByDocumentType: map[string]int{"invoice": 2, "receipt": 1},
				ByCriticality:  map[string]int{"high": 2, "low": 1},
			}, nil
		},
	}
	mux := setupMux(newTestHandler(sys))

	t.Run("all workflows", func(t *testing.T) {
		rec := httptest.NewRecorder()
		mux.ServeHTTP(rec, httptest.NewRequest("GET", "/classifications/summary", nil))

		if rec.Code != http.StatusOK {
			t.Fatalf("status = %d, want 200", rec.Code)
		}
		if captured != nil {
			t.Errorf("workflow_id = %v, want nil", captured)
		}

		var s classifications.Summary
		if err := json.NewDecoder(rec.Body).Decode(&s); err != nil {
			t.Fatalf("decode: %v", err)
		}
		if s.Total != 3 || s.ByDocumentType["invoice"] != 2 || s.ByCriticality["low"] != 1 {
			t.Errorf("summary = %+v", s)
		}
	})

	t.Run("scoped to workflow", func(t *testing.T) {
		id := uuid.New()
		rec := httptest.NewRecorder()
		mux.ServeHTTP(rec, httptest.NewRequest("GET", "/classifications/summary?workflow_id="+id.String(), nil))

		if rec.Code != http.StatusOK {
			t.Fatalf("status = %d, want 200", rec.Code)
		}
		if captured == nil || *captured != id {
			t.Errorf("workflow_id = %v, want %s", captured, id)
		}
	})

	t.Run("invalid workflow id", func(t *testing.T) {
		rec := httptest.NewRecorder()
		mux.ServeHTTP(rec, httptest.NewRequest("GET", "/classifications/summary?workflow_id=nope", nil))
		if rec.Code != http.StatusBadRequest {
			t.Errorf("status = %d, want 400", rec.Code)
		}
	})
}

func TestMapHTTPStatus(t *testing.T) {
	tests := []struct {
		err  error
		want int
	}{
		{classifications.ErrNotFound, http.StatusNotFound},
		{classifications.ErrDuplicate, http.StatusConflict},
		{classifications.ErrWorkflow, http.StatusUnprocessableEntity},
		{classifications.ErrInvalidID, http.StatusBadRequest},
		{errors.New("x"), http.StatusInternalServerError},
	}

	for _, tt := range tests {
		if got := classifications.MapHTTPStatus(tt.err); got != tt.want {
			t.Errorf("MapHTTPStatus(%v) = %d, want %d", tt.err, got, tt.want)
		}
	}
}
