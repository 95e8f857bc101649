package report

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/require"
)

func TestRenderHTMLPostsThermalForm(t *testing.T) {
	var (
		gotPath  string
		gotWidth string
		gotHTML  string
	)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		require.NoError(t, r.ParseMultipartForm(1<<20))
		gotWidth = r.FormValue("paperWidth")
		file, _, err := r.FormFile("files")
		require.NoError(t, err)
		raw, _ := io.ReadAll(file)
		gotHTML = string(raw)
		_, _ = w.Write([]byte("%PDF-1.4"))
	}))
	defer srv.Close()

	pdf, err := NewClient(srv.URL+"/").RenderHTML(context.Background(), "<h1>ticket</h1>")
	require.NoError(t, err)
	require.Equal(t, "%PDF-1.4", string(pdf))
	require.Equal(t, "/forms/chromium/convert/html", gotPath)
	require.Equal(t, ThermalPaper.Width, gotWidth)
	require.Equal(t, "<h1>ticket</h1>", gotHTML)
}

func TestRenderHTMLReportsFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	_, err := NewClient(srv.URL).WithPaper(Paper{Width: "8.5", Height: "11"}).RenderHTML(context.Background(), "<p/>")
	require.ErrorContains(t, err, "status 500")
}

func TestPingHandler(t *testing.T) {
	healthy := true
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !healthy {
			w.WriteHeader(http.StatusServiceUnavailable)
		}
	}))
	defer srv.Close()

	r := chi.NewRouter()
	r.Route("/renderer", NewHandler(NewClient(srv.URL), slog.New(slog.NewTextHandler(io.Discard, nil))).MountRoutes)

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/renderer/ping", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	healthy = false
	rec = httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/renderer/ping", nil))
	require.Equal(t, http.StatusServiceUnavailable, rec.Code)
}
