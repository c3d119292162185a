package orchestrator_test

import (
	"bytes"
	"encoding/json"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/JaimeStill/vigil/internal/tasks"
	"github.com/JaimeStill/vigil/pkg/routes"
)

func newServer(f *fixture) *http.ServeMux {
	mux := http.NewServeMux()
	routes.Register(mux, f.sys.Handler(1<<20).Routes())
	return mux
}

func do(mux *http.ServeMux, method, path, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)
	return rec
}

func TestHandlerLifecycle(t *testing.T) {
	f := newFixture()
	mux := newServer(f)

	rec := do(mux, "POST", "/tasks", `{"name":"batch1","created_by":"analyst"}`)
	if rec.Code != http.StatusCreated {
		t.Fatalf("create status = %d, body = %s", rec.Code, rec.Body)
	}
	var task tasks.Task
	if err := json.Unmarshal(rec.Body.Bytes(), &task); err != nil {
		t.Fatal(err)
	}

	rec = do(mux, "POST", "/tasks/"+task.ID.String()+"/start", "")
	if rec.Code != http.StatusBadRequest {
		t.Errorf("start empty status = %d, want 400", rec.Code)
	}

	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	part, _ := mw.CreateFormFile("file", "a.jpg")
	part.Write([]byte("\xff\xd8\xff\xe0 image"))
	mw.Close()

	req := httptest.NewRequest("POST", "/tasks/"+task.ID.String()+"/files", &body)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	upload := httptest.NewRecorder()
	mux.ServeHTTP(upload, req)
	if upload.Code != http.StatusCreated {
		t.Fatalf("upload status = %d, body = %s", upload.Code, upload.Body)
	}

	rec = do(mux, "POST", "/tasks/"+task.ID.String()+"/start", "")
	if rec.Code != http.StatusAccepted {
		t.Fatalf("start status = %d, body = %s", rec.Code, rec.Body)
	}

	rec = do(mux, "GET", "/tasks/"+task.ID.String(), "")
	if rec.Code != http.StatusOK || !strings.Contains(rec.Body.String(), `"metrics"`) {
		t.Errorf("get status = %d, body = %s", rec.Code, rec.Body)
	}

	rec = do(mux, "PUT", "/tasks/"+task.ID.String()+"/status", `{"status":"failed","reason":"operator abort"}`)
	if rec.Code != http.StatusOK || !strings.Contains(rec.Body.String(), `"FAILED"`) {
		t.Errorf("status update = %d, body = %s", rec.Code, rec.Body)
	}

	rec = do(mux, "DELETE", "/tasks/"+task.ID.String(), "")
	if rec.Code != http.StatusOK {
		t.Errorf("delete status = %d, body = %s", rec.Code, rec.Body)
	}
}

func TestHandlerErrors(t *testing.T) {
	mux := newServer(newFixture())

	tests := []struct {
		name   string
		method string
		path   string
		body   string
		want   int
	}{
		{"invalid id", "GET", "/tasks/not-a-uuid", "", http.StatusBadRequest},
		{"unknown task", "GET", "/tasks/00000000-0000-0000-0000-000000000001", "", http.StatusBadRequest},
		{"empty body", "POST", "/tasks", "", http.StatusBadRequest},
		{"missing creator", "POST", "/tasks", `{"name":"x"}`, http.StatusBadRequest},
		{"unknown status", "PUT", "/tasks/00000000-0000-0000-0000-000000000001/status", `{"status":"paused"}`, http.StatusBadRequest},
		{"review without file", "POST", "/tasks/00000000-0000-0000-0000-000000000001/reviews", `{}`, http.StatusBadRequest},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := do(mux, tt.method, tt.path, tt.body)
			if rec.Code != tt.want {
				t.Errorf("status = %d, want %d, body = %s", rec.Code, tt.want, rec.Body)
			}
			if !strings.Contains(rec.Body.String(), `"error"`) {
				t.Errorf("body = %s, want error payload", rec.Body)
			}
		})
	}
}

func TestHandlerList(t *testing.T) {
	f := newFixture()
	f.create(t)
	f.create(t)
	mux := newServer(f)

	rec := do(mux, "GET", "/tasks?status=CREATED", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("list status = %d", rec.Code)
	}
	var page struct {
		Data  []tasks.Task `json:"data"`
		Total int          `json:"total"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &page); err != nil {
		t.Fatal(err)
	}
	if page.Total != 2 || len(page.Data) != 2 {
		t.Errorf("page = %+v", page)
	}

	rec = do(mux, "POST", "/tasks/search", `{"page":1,"page_size":1,"created_by":"analyst"}`)
	if err := json.Unmarshal(rec.Body.Bytes(), &page); err != nil {
		t.Fatal(err)
	}
	if page.Total != 2 || len(page.Data) != 1 {
		t.Errorf("search page = %+v", page)
	}
}
