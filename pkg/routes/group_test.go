package routes_test

import (
	"net/http"
	"net/http/httptest"
	"slices"
	"testing"

	"github.com/JaimeStill/vigil/pkg/routes"
)

func ok(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
}

func taskGroup() routes.Group {
	return routes.Group{
		Prefix: "/tasks",
		Routes: []routes.Route{
			{Method: "GET", Pattern: "", Handler: ok},
			{Method: "GET", Pattern: "/{id}", Handler: ok},
		},
		Children: []routes.Group{
			{
				Prefix: "/{id}",
				Routes: []routes.Route{
					{Method: "POST", Pattern: "/start", Handler: ok},
				},
			},
		},
	}
}

func TestRegister(t *testing.T) {
	mux := http.NewServeMux()
	routes.Register(mux, taskGroup())

	tests := []struct {
		method string
		path   string
	}{
		{"GET", "/tasks"},
		{"GET", "/tasks/123"},
		{"POST", "/tasks/123/start"},
	}

	for _, tt := range tests {
		t.Run(tt.method+" "+tt.path, func(t *testing.T) {
			rec := httptest.NewRecorder()
			mux.ServeHTTP(rec, httptest.NewRequest(tt.method, tt.path, nil))
			if rec.Code != http.StatusOK {
				t.Errorf("status: got %d, want 200", rec.Code)
			}
		})
	}
}

func TestPatterns(t *testing.T) {
	got := routes.Patterns(taskGroup())
	want := []string{"GET /tasks", "GET /tasks/{id}", "POST /tasks/{id}/start"}

	if !slices.Equal(got, want) {
		t.Errorf("Patterns() = %v, want %v", got, want)
	}
}
