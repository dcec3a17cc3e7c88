package app

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"quill/api/internal/store"
)

func doRequest(t *testing.T, server *HTTPServer, method, path, body string, header map[string]string) *httptest.ResponseRecorder {
	t.Helper()
	var reader *strings.Reader
	if body == "" {
		reader = strings.NewReader("")
	} else {
		reader = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, reader)
	for k, v := range header {
		req.Header.Set(k, v)
	}
	rr := httptest.NewRecorder()
	server.Handler().ServeHTTP(rr, req)
	return rr
}

func decodeResponse(t *testing.T, rr *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var payload map[string]any
	if err := json.Unmarshal(rr.Body.Bytes(), &payload); err != nil {
		t.Fatalf("parse response %q: %v", rr.Body.String(), err)
	}
	return payload
}

func TestHealthEndpoint(t *testing.T) {
	server := NewHTTPServer(newTestService(&fakeStore{}, seedDirectory()), "*")

	rr := doRequest(t, server, http.MethodGet, "/api/health", "", nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rr.Code)
	}
	if payload := decodeResponse(t, rr); payload["ok"] != true {
		t.Errorf("expected ok=true, got %v", payload)
	}
}

func TestReadyEndpointDegraded(t *testing.T) {
	fs := &fakeStore{
		pingFn: func(context.Context) error { return errors.New("connection refused") },
	}
	server := NewHTTPServer(newTestService(fs, seedDirectory()), "*")

	rr := doRequest(t, server, http.MethodGet, "/api/ready", "", nil)
	if rr.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503, got %d", rr.Code)
	}
	payload := decodeResponse(t, rr)
	if payload["status"] != "not_ready" {
		t.Errorf("expected not_ready, got %v", payload)
	}
}

func TestSessionIntrospection(t *testing.T) {
	svc := newTestService(&fakeStore{}, seedDirectory())
	server := NewHTTPServer(svc, "*")

	session, err := svc.issueSession(store.User{ID: moderatorID, DisplayName: "Mod", Role: "moderator"})
	if err != nil {
		t.Fatalf("issue session: %v", err)
	}

	rr := doRequest(t, server, http.MethodGet, "/api/session", "", map[string]string{
		"Authorization": "Bearer " + session.Token,
	})
	payload := decodeResponse(t, rr)
	if payload["authenticated"] != true || payload["userId"] != moderatorID {
		t.Errorf("unexpected session payload: %v", payload)
	}

	rr = doRequest(t, server, http.MethodGet, "/api/session", "", nil)
	if payload := decodeResponse(t, rr); payload["authenticated"] != false {
		t.Errorf("expected unauthenticated, got %v", payload)
	}

	rr = doRequest(t, server, http.MethodGet, "/api/session", "", map[string]string{
		"Authorization": "Bearer garbage",
	})
	if payload := decodeResponse(t, rr); payload["authenticated"] != false {
		t.Errorf("expected unauthenticated for bad token, got %v", payload)
	}
}

func TestCreateDocumentEndpoint(t *testing.T) {
	var inserted store.Document
	fs := &fakeStore{
		insertDocumentFn: func(_ context.Context, item store.Document) error {
			inserted = item
			return nil
		},
	}
	fs.getDocumentByIDFn = func(_ context.Context, _, id string) (store.Document, bool, error) {
		if id == inserted.ID {
			return inserted, true, nil
		}
		return store.Document{}, false, nil
	}
	svc := newTestService(fs, seedDirectory())
	server := NewHTTPServer(svc, "*")

	session, err := svc.issueSession(store.User{ID: registeredID, Role: "registered"})
	if err != nil {
		t.Fatalf("issue session: %v", err)
	}

	rr := doRequest(t, server, http.MethodPost, "/api/kinds/articles/documents",
		`{"title":"Hello HTTP","fields":{"body":"text"}}`,
		map[string]string{"Authorization": "Bearer " + session.Token})
	if rr.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", rr.Code, rr.Body.String())
	}
	payload := decodeResponse(t, rr)
	item, ok := payload["item"].(map[string]any)
	if !ok {
		t.Fatalf("expected item object, got %v", payload)
	}
	if item["title"] != "Hello HTTP" || item["slug"] != "hello-http" {
		t.Errorf("unexpected item: %v", item)
	}
	if item["authorId"] != registeredID {
		t.Errorf("bearer session must stamp the author, got %v", item["authorId"])
	}
}

func TestCreateDocumentEndpointUnauthenticated(t *testing.T) {
	server := NewHTTPServer(newTestService(&fakeStore{}, seedDirectory()), "*")

	rr := doRequest(t, server, http.MethodPost, "/api/kinds/articles/documents", `{"title":"Nope"}`, nil)
	if rr.Code != http.StatusNotFound {
		t.Fatalf("expected 404 for unresolvable author, got %d", rr.Code)
	}
	payload := decodeResponse(t, rr)
	if payload["code"] != "NOT_FOUND" || payload["field"] != "author" {
		t.Errorf("unexpected error payload: %v", payload)
	}
}

func TestGetDocumentEndpointNotFound(t *testing.T) {
	server := NewHTTPServer(newTestService(&fakeStore{}, seedDirectory()), "*")

	rr := doRequest(t, server, http.MethodGet, "/api/kinds/articles/documents/"+articleID, "", nil)
	if rr.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", rr.Code)
	}
	payload := decodeResponse(t, rr)
	if payload["code"] != "NOT_FOUND" {
		t.Errorf("unexpected error payload: %v", payload)
	}
}

func TestUnknownKindEndpoint(t *testing.T) {
	server := NewHTTPServer(newTestService(&fakeStore{}, seedDirectory()), "*")

	rr := doRequest(t, server, http.MethodGet, "/api/kinds/widgets/documents", "", nil)
	if rr.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", rr.Code)
	}
}

func TestPageParamValidation(t *testing.T) {
	server := NewHTTPServer(newTestService(&fakeStore{}, seedDirectory()), "*")

	rr := doRequest(t, server, http.MethodGet, "/api/kinds/articles/documents?page=abc", "", nil)
	if rr.Code != http.StatusUnprocessableEntity {
		t.Fatalf("expected 422, got %d", rr.Code)
	}
	payload := decodeResponse(t, rr)
	if payload["code"] != "VALIDATION_ERROR" || payload["field"] != "page" {
		t.Errorf("unexpected error payload: %v", payload)
	}
}

func TestMethodNotAllowed(t *testing.T) {
	server := NewHTTPServer(newTestService(&fakeStore{}, seedDirectory()), "*")

	rr := doRequest(t, server, http.MethodPatch, "/api/kinds/articles/documents", "", nil)
	if rr.Code != http.StatusMethodNotAllowed {
		t.Fatalf("expected 405, got %d", rr.Code)
	}
}

func TestSearchEndpoint(t *testing.T) {
	index := &fakeSearchIndex{}
	svc := newTestService(&fakeStore{}, seedDirectory()).WithSearch(index)
	server := NewHTTPServer(svc, "*")

	rr := doRequest(t, server, http.MethodGet, "/api/kinds/articles/search?q=hello", "", nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rr.Code, rr.Body.String())
	}
	payload := decodeResponse(t, rr)
	if payload["query"] != "hello" {
		t.Errorf("unexpected search payload: %v", payload)
	}
}

func TestCORSAndRequestIDHeaders(t *testing.T) {
	server := NewHTTPServer(newTestService(&fakeStore{}, seedDirectory()), "https://app.example.com")

	rr := doRequest(t, server, http.MethodOptions, "/api/kinds/articles/documents", "", map[string]string{
		"X-Request-ID": "req-123",
	})
	if rr.Code != http.StatusNoContent {
		t.Fatalf("expected 204, got %d", rr.Code)
	}
	if got := rr.Header().Get("Access-Control-Allow-Origin"); got != "https://app.example.com" {
		t.Errorf("unexpected CORS origin: %q", got)
	}
	if got := rr.Header().Get("X-Request-ID"); got != "req-123" {
		t.Errorf("expected request id echoed, got %q", got)
	}
}

func TestDeleteCommentEndpointUsesQueryActor(t *testing.T) {
	author := registeredID
	fs := &fakeStore{
		getCommentFn: func(context.Context, string) (store.Comment, bool, error) {
			return store.Comment{ID: parentCommentID, AuthorID: &author}, true, nil
		},
		deleteCommentFn: func(context.Context, string) (bool, error) { return true, nil },
	}
	server := NewHTTPServer(newTestService(fs, seedDirectory()), "*")

	rr := doRequest(t, server, http.MethodDelete,
		"/api/kinds/articles/comments/"+parentCommentID+"?userId="+registeredID, "", nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rr.Code, rr.Body.String())
	}
	if fs.called("DeleteComment") != 1 {
		t.Errorf("expected one delete, got %v", fs.calls)
	}
}
