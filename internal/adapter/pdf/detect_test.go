package pdf

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestIsPDFURLBySuffix(t *testing.T) {
	s := New(nil, "m", nil)
	assert.True(t, s.IsPDFURL(context.Background(), "https://example.com/paper.pdf"))
	assert.True(t, s.IsPDFURL(context.Background(), "https://example.com/paper.PDF?dl=1"))
}

func TestIsPDFURLByHeadProbe(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodHead {
			t.Errorf("expected HEAD, got %s", r.Method)
		}
		w.Header().Set("Content-Type", "application/pdf")
	}))
	defer srv.Close()

	s := New(nil, "m", nil)
	assert.True(t, s.IsPDFURL(context.Background(), srv.URL+"/doc"))
}

func TestIsPDFURLHeadSaysHTML(t *testing.T) {
	gets := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodGet {
			gets++
		}
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
	}))
	defer srv.Close()

	s := New(nil, "m", nil)
	assert.False(t, s.IsPDFURL(context.Background(), srv.URL+"/page"))
	assert.Zero(t, gets, "an explicit non-pdf content type must short-circuit before the ranged GET")
}

func TestIsPDFURLByRangedSniff(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// Generic content type forces the content sniff.
		w.Header().Set("Content-Type", "application/octet-stream")
		if r.Method == http.MethodGet {
			assert.Equal(t, "bytes=0-1023", r.Header.Get("Range"))
			_, _ = w.Write([]byte("%PDF-1.7 fake header"))
		}
	}))
	defer srv.Close()

	s := New(nil, "m", nil)
	assert.True(t, s.IsPDFURL(context.Background(), srv.URL+"/download"))
}

func TestIsPDFURLRangedSniffRejectsHTML(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/octet-stream")
		if r.Method == http.MethodGet {
			_, _ = w.Write([]byte("<!doctype html><html></html>"))
		}
	}))
	defer srv.Close()

	s := New(nil, "m", nil)
	assert.False(t, s.IsPDFURL(context.Background(), srv.URL+"/download"))
}

func TestIsPDFURLUnreachableHost(t *testing.T) {
	s := New(nil, "m", nil)
	assert.False(t, s.IsPDFURL(context.Background(), "http://127.0.0.1:1/nope"))
}
