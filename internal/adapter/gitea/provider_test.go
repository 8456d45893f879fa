package gitea

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/phaseline/phaseline/internal/port/vcsprovider"
)

// Compile-time interface check.
var _ vcsprovider.Provider = (*Provider)(nil)

func newTestProvider(t *testing.T, handler http.HandlerFunc) *Provider {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	p, err := NewProvider(srv.URL, "secret", "phaseline/features")
	if err != nil {
		t.Fatalf("NewProvider: %v", err)
	}
	return p
}

func TestNewProviderRejectsBadRef(t *testing.T) {
	if _, err := NewProvider("http://gitea.local", "", "not-a-ref"); err == nil {
		t.Fatal("expected error for malformed repo ref")
	}
}

func TestCreateIssue(t *testing.T) {
	var gotPath, gotAuth string
	p := newTestProvider(t, func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotAuth = r.Header.Get("Authorization")
		w.WriteHeader(http.StatusCreated)
		_ = json.NewEncoder(w).Encode(map[string]any{"number": 42, "title": "t", "state": "open"})
	})

	id, err := p.CreateIssue(context.Background(), "feat-1", "feature workflow", "tracking")
	if err != nil {
		t.Fatalf("CreateIssue: %v", err)
	}
	if id != "42" {
		t.Fatalf("expected issue 42, got %s", id)
	}
	if gotPath != "/api/v1/repos/phaseline/features/issues" {
		t.Fatalf("unexpected path %s", gotPath)
	}
	if gotAuth != "token secret" {
		t.Fatalf("unexpected auth header %q", gotAuth)
	}
}

func TestCommentUsesTrackedIssue(t *testing.T) {
	var paths []string
	p := newTestProvider(t, func(w http.ResponseWriter, r *http.Request) {
		paths = append(paths, r.URL.Path)
		w.WriteHeader(http.StatusCreated)
		_ = json.NewEncoder(w).Encode(map[string]any{"number": 7})
	})
	ctx := context.Background()

	if _, err := p.CreateIssue(ctx, "feat-1", "t", "b"); err != nil {
		t.Fatalf("CreateIssue: %v", err)
	}
	if err := p.Comment(ctx, "feat-1", "moved to planning"); err != nil {
		t.Fatalf("Comment: %v", err)
	}
	if err := p.Label(ctx, "feat-1", "completed"); err != nil {
		t.Fatalf("Label: %v", err)
	}

	if len(paths) != 3 {
		t.Fatalf("expected 3 requests, got %d", len(paths))
	}
	if !strings.HasSuffix(paths[1], "/issues/7/comments") {
		t.Fatalf("unexpected comment path %s", paths[1])
	}
	if !strings.HasSuffix(paths[2], "/issues/7/labels") {
		t.Fatalf("unexpected label path %s", paths[2])
	}
}

func TestCommentUnknownSubject(t *testing.T) {
	p := newTestProvider(t, func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	})

	if err := p.Comment(context.Background(), "untracked", "body"); err == nil {
		t.Fatal("expected error for untracked subject")
	}
}

func TestAPIErrorSurfaces(t *testing.T) {
	p := newTestProvider(t, func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, `{"message":"forbidden"}`, http.StatusForbidden)
	})

	if _, err := p.CreateIssue(context.Background(), "feat-1", "t", "b"); err == nil {
		t.Fatal("expected error from 403 response")
	}
}
