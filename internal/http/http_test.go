package http_test

import (
	"context"
	"errors"
	"net/http"
	"testing"
	"time"

	httpw "github.com/eduvpn/eduvpn-core/internal/http"
	"github.com/eduvpn/eduvpn-core/internal/test"
)

func TestGet(t *testing.T) {
	hs := &test.HandlerSet{}
	hs.SetHandler(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("User-Agent") != httpw.UserAgent {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		if r.URL.Path == "/missing" {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		_, _ = w.Write([]byte("hello world"))
	}))
	s := test.NewServer(hs)
	defer s.Close()

	c, err := s.Client()
	if err != nil {
		t.Fatalf("failed getting test client: %v", err)
	}

	body, err := c.Get(context.Background(), s.URL)
	if err != nil {
		t.Fatalf("failed get: %v", err)
	}
	if string(body) != "hello world" {
		t.Fatalf("got body: %q, want: %q", body, "hello world")
	}

	_, err = c.Get(context.Background(), s.URL+"/missing")
	var se *httpw.StatusError
	if !errors.As(err, &se) {
		t.Fatalf("got error: %T %v, want status error", err, err)
	}
	if se.Status != http.StatusNotFound {
		t.Fatalf("got status: %d, want: %d", se.Status, http.StatusNotFound)
	}
}

func TestGetTimeout(t *testing.T) {
	done := make(chan struct{})
	hs := &test.HandlerSet{}
	hs.SetHandler(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-done:
		case <-r.Context().Done():
		}
	}))
	s := test.NewServer(hs)
	defer s.Close()
	defer close(done)

	c, err := s.Client()
	if err != nil {
		t.Fatalf("failed getting test client: %v", err)
	}
	c.Timeout = 50 * time.Millisecond
	if _, err = c.Get(context.Background(), s.URL); err == nil {
		t.Fatalf("got nil error, want timeout")
	}
}
