package ui

import (
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestFSServesIndex(t *testing.T) {
	f, err := FS().Open("index.html")
	if err != nil {
		t.Fatalf("open index: %v", err)
	}
	defer f.Close()
	b, err := io.ReadAll(f)
	if err != nil {
		t.Fatalf("read index: %v", err)
	}
	if !strings.Contains(string(b), "/v1/status") {
		t.Fatalf("index does not load status")
	}
}

func TestHandlerRedirectsBarePrefix(t *testing.T) {
	h := Handler("/ui/")
	w := httptest.NewRecorder()
	h.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/ui", nil))
	if w.Code != http.StatusMovedPermanently || w.Header().Get("Location") != "/ui/" {
		t.Fatalf("redirect: %d %q", w.Code, w.Header().Get("Location"))
	}

	w = httptest.NewRecorder()
	h.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/ui/", nil))
	if w.Code != http.StatusOK || !strings.Contains(w.Body.String(), "flagstream session") {
		t.Fatalf("index: %d", w.Code)
	}
}
