package app

import (
	"context"
	"crypto/rand"
	"database/sql"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"
	"strconv"
	"strings"
	"time"

	"quill/api/internal/auth"
	"quill/api/internal/directory"
	"quill/api/internal/store"
)

type HTTPServer struct {
	service    *Service
	corsOrigin string
}

func NewHTTPServer(service *Service, corsOrigin string) *HTTPServer {
	return &HTTPServer{service: service, corsOrigin: corsOrigin}
}

func (s *HTTPServer) Handler() http.Handler {
	return s.withMiddleware(http.HandlerFunc(s.handle))
}

func (s *HTTPServer) handle(w http.ResponseWriter, r *http.Request) {
	if r.Method == http.MethodOptions {
		writeJSON(w, http.StatusNoContent, map[string]any{})
		return
	}

	if (r.Method == http.MethodGet || r.Method == http.MethodHead) && r.URL.Path == "/api/health" {
		writeJSON(w, http.StatusOK, map[string]any{"ok": true})
		return
	}

	if (r.Method == http.MethodGet || r.Method == http.MethodHead) && r.URL.Path == "/api/ready" {
		ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
		defer cancel()

		status := "ready"
		statusCode := http.StatusOK
		checks := map[string]any{
			"database": map[string]any{"status": "ok"},
		}
		if err := s.service.Ping(ctx); err != nil {
			status = "not_ready"
			statusCode = http.StatusServiceUnavailable
			checks["database"] = map[string]any{
				"status": "error",
				"error":  err.Error(),
			}
		}
		writeJSON(w, statusCode, map[string]any{
			"ok":     status == "ready",
			"status": status,
			"checks": checks,
		})
		return
	}

	if r.Method == http.MethodPost && r.URL.Path == "/api/auth/signup" {
		s.handleSignUp(w, r)
		return
	}

	if r.Method == http.MethodPost && r.URL.Path == "/api/auth/login" {
		s.handleLogin(w, r)
		return
	}

	if r.Method == http.MethodGet && r.URL.Path == "/api/session" {
		token := bearerToken(r)
		if token == "" {
			writeJSON(w, http.StatusOK, map[string]any{"authenticated": false})
			return
		}
		session, err := s.service.SessionFromToken(token)
		if err != nil {
			writeJSON(w, http.StatusOK, map[string]any{"authenticated": false})
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{
			"authenticated": true,
			"userId":        session.UserID,
			"userName":      session.UserName,
			"role":          session.Role,
		})
		return
	}

	parts := splitPath(r.URL.Path)

	// Everything below is /api/kinds/{kind}/...
	if len(parts) >= 4 && parts[0] == "api" && parts[1] == "kinds" {
		kindName := parts[2]
		rest := parts[3:]

		switch rest[0] {
		case "search":
			if len(rest) == 1 && r.Method == http.MethodGet {
				q := strings.TrimSpace(r.URL.Query().Get("q"))
				limit, offset := 20, 0
				if raw := strings.TrimSpace(r.URL.Query().Get("limit")); raw != "" {
					parsed, err := strconv.Atoi(raw)
					if err != nil {
						writeError(w, http.StatusUnprocessableEntity, "VALIDATION_ERROR", "limit must be an integer", "limit")
						return
					}
					limit = parsed
				}
				if raw := strings.TrimSpace(r.URL.Query().Get("offset")); raw != "" {
					parsed, err := strconv.Atoi(raw)
					if err != nil {
						writeError(w, http.StatusUnprocessableEntity, "VALIDATION_ERROR", "offset must be an integer", "offset")
						return
					}
					offset = parsed
				}
				payload, err := s.service.SearchDocuments(r.Context(), kindName, q, limit, offset, s.actorID(r, ""))
				if err != nil {
					s.fail(w, err)
					return
				}
				writeJSON(w, http.StatusOK, payload)
				return
			}
		case "documents":
			s.handleDocuments(w, r, kindName, rest[1:])
			return
		case "comments":
			s.handleComments(w, r, kindName, rest[1:])
			return
		case "categories":
			s.handleCategories(w, r, kindName, rest[1:])
			return
		}
	}

	writeError(w, http.StatusNotFound, "NOT_FOUND", "Not found", "")
}

func (s *HTTPServer) handleDocuments(w http.ResponseWriter, r *http.Request, kindName string, rest []string) {
	userID := s.actorID(r, "")

	if len(rest) == 0 {
		if r.Method == http.MethodGet {
			pageNum, limit, ok := pageParams(w, r)
			if !ok {
				return
			}
			payload, err := s.service.ListDocuments(r.Context(), kindName, pageNum, limit, r.URL.Query().Get("sort"), userID)
			if err != nil {
				s.fail(w, err)
				return
			}
			writeJSON(w, http.StatusOK, map[string]any{"items": payload.Items, "page": payload.Page})
			return
		}

		if r.Method == http.MethodPost {
			var body struct {
				Title      string         `json:"title"`
				Fields     map[string]any `json:"fields"`
				State      string         `json:"state"`
				CategoryID string         `json:"categoryId"`
				AuthorID   string         `json:"authorId"`
			}
			if err := decodeBody(r, &body); err != nil {
				writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), "")
				return
			}
			item, err := s.service.CreateDocument(r.Context(), kindName, DocumentPayload{
				Title:      body.Title,
				Fields:     body.Fields,
				State:      body.State,
				CategoryID: body.CategoryID,
			}, s.actorID(r, body.AuthorID))
			if err != nil {
				s.fail(w, err)
				return
			}
			writeJSON(w, http.StatusCreated, map[string]any{"item": item})
			return
		}

		writeError(w, http.StatusMethodNotAllowed, "METHOD_NOT_ALLOWED", "Method not allowed", "")
		return
	}

	identity := rest[0]

	if len(rest) == 2 && rest[1] == "history" && r.Method == http.MethodGet {
		limit := 50
		if raw := strings.TrimSpace(r.URL.Query().Get("limit")); raw != "" {
			if parsed, err := strconv.Atoi(raw); err == nil && parsed > 0 {
				limit = parsed
			}
		}
		revisions, err := s.service.DocumentHistory(r.Context(), kindName, identity, limit, userID)
		if err != nil {
			s.fail(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"revisions": revisions})
		return
	}

	if len(rest) == 2 && rest[1] == "comments" && r.Method == http.MethodGet {
		pageNum, limit, ok := pageParams(w, r)
		if !ok {
			return
		}
		payload, err := s.service.ListDocumentComments(r.Context(), kindName, identity, pageNum, limit)
		if err != nil {
			s.fail(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"items": payload.Items, "page": payload.Page})
		return
	}

	if len(rest) != 1 {
		writeError(w, http.StatusNotFound, "NOT_FOUND", "Not found", "")
		return
	}

	switch r.Method {
	case http.MethodGet:
		item, err := s.service.GetDocument(r.Context(), kindName, identity, userID)
		if err != nil {
			s.fail(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"item": item})

	case http.MethodPut:
		var body struct {
			Title      *string        `json:"title"`
			Fields     map[string]any `json:"fields"`
			State      *string        `json:"state"`
			AuthorID   *string        `json:"authorId"`
			CategoryID *string        `json:"categoryId"`
			UserID     string         `json:"userId"`
		}
		if err := decodeBody(r, &body); err != nil {
			writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), "")
			return
		}
		item, err := s.service.EditDocument(r.Context(), kindName, identity, DocumentEdit{
			Title:      body.Title,
			Fields:     body.Fields,
			State:      body.State,
			AuthorID:   body.AuthorID,
			CategoryID: body.CategoryID,
		}, s.actorID(r, body.UserID))
		if err != nil {
			s.fail(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"item": item})

	case http.MethodDelete:
		if err := s.service.DeleteDocument(r.Context(), kindName, identity, userID); err != nil {
			s.fail(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"ok": true})

	default:
		writeError(w, http.StatusMethodNotAllowed, "METHOD_NOT_ALLOWED", "Method not allowed", "")
	}
}

func (s *HTTPServer) handleComments(w http.ResponseWriter, r *http.Request, kindName string, rest []string) {
	userID := s.actorID(r, "")

	if len(rest) == 0 {
		if r.Method == http.MethodGet {
			pageNum, limit, ok := pageParams(w, r)
			if !ok {
				return
			}
			q := r.URL.Query()
			filter := store.CommentFilter{
				DocumentID: q.Get("documentId"),
				ParentID:   q.Get("parentId"),
				AuthorID:   q.Get("authorId"),
				State:      q.Get("state"),
			}
			payload, err := s.service.ListComments(r.Context(), kindName, pageNum, limit, filter, q.Get("sort"), userID)
			if err != nil {
				s.fail(w, err)
				return
			}
			writeJSON(w, http.StatusOK, map[string]any{"items": payload.Items, "page": payload.Page})
			return
		}

		if r.Method == http.MethodPost {
			var body struct {
				Document string `json:"document"`
				ParentID string `json:"parentId"`
				Title    string `json:"title"`
				Body     string `json:"body"`
				State    string `json:"state"`
				AuthorID string `json:"authorId"`
			}
			if err := decodeBody(r, &body); err != nil {
				writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), "")
				return
			}
			item, err := s.service.CreateComment(r.Context(), kindName, CommentPayload{
				Document: body.Document,
				ParentID: body.ParentID,
				Title:    body.Title,
				Body:     body.Body,
				State:    body.State,
			}, s.actorID(r, body.AuthorID))
			if err != nil {
				s.fail(w, err)
				return
			}
			writeJSON(w, http.StatusCreated, map[string]any{"item": item})
			return
		}

		writeError(w, http.StatusMethodNotAllowed, "METHOD_NOT_ALLOWED", "Method not allowed", "")
		return
	}

	if len(rest) != 1 {
		writeError(w, http.StatusNotFound, "NOT_FOUND", "Not found", "")
		return
	}
	commentID := rest[0]

	switch r.Method {
	case http.MethodGet:
		item, err := s.service.GetComment(r.Context(), kindName, commentID)
		if err != nil {
			s.fail(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"item": item})

	case http.MethodPut:
		var body struct {
			Title  *string `json:"title"`
			Body   *string `json:"body"`
			State  *string `json:"state"`
			UserID string  `json:"userId"`
		}
		if err := decodeBody(r, &body); err != nil {
			writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), "")
			return
		}
		item, err := s.service.EditComment(r.Context(), kindName, commentID, CommentEdit{
			Title: body.Title,
			Body:  body.Body,
			State: body.State,
		}, s.actorID(r, body.UserID))
		if err != nil {
			s.fail(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"item": item})

	case http.MethodDelete:
		if err := s.service.DeleteComment(r.Context(), kindName, commentID, userID); err != nil {
			s.fail(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"ok": true})

	default:
		writeError(w, http.StatusMethodNotAllowed, "METHOD_NOT_ALLOWED", "Method not allowed", "")
	}
}

func (s *HTTPServer) handleCategories(w http.ResponseWriter, r *http.Request, kindName string, rest []string) {
	userID := s.actorID(r, "")

	if len(rest) == 0 {
		if r.Method == http.MethodGet {
			pageNum, limit, ok := pageParams(w, r)
			if !ok {
				return
			}
			payload, err := s.service.ListCategories(r.Context(), kindName, pageNum, limit, userID)
			if err != nil {
				s.fail(w, err)
				return
			}
			writeJSON(w, http.StatusOK, map[string]any{"items": payload.Items, "page": payload.Page})
			return
		}

		if r.Method == http.MethodPost {
			var body struct {
				Name        string `json:"name"`
				Description string `json:"description"`
				ParentID    string `json:"parentId"`
				UserID      string `json:"userId"`
			}
			if err := decodeBody(r, &body); err != nil {
				writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), "")
				return
			}
			item, err := s.service.CreateCategory(r.Context(), kindName, CategoryPayload{
				Name:        body.Name,
				Description: body.Description,
				ParentID:    body.ParentID,
			}, s.actorID(r, body.UserID))
			if err != nil {
				s.fail(w, err)
				return
			}
			writeJSON(w, http.StatusCreated, map[string]any{"item": item})
			return
		}

		writeError(w, http.StatusMethodNotAllowed, "METHOD_NOT_ALLOWED", "Method not allowed", "")
		return
	}

	if len(rest) != 1 {
		writeError(w, http.StatusNotFound, "NOT_FOUND", "Not found", "")
		return
	}
	identity := rest[0]

	switch r.Method {
	case http.MethodGet:
		item, err := s.service.GetCategory(r.Context(), kindName, identity, userID)
		if err != nil {
			s.fail(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"item": item})

	case http.MethodPut:
		var body struct {
			Name        *string `json:"name"`
			Description *string `json:"description"`
			UserID      string  `json:"userId"`
		}
		if err := decodeBody(r, &body); err != nil {
			writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), "")
			return
		}
		item, err := s.service.EditCategory(r.Context(), kindName, identity, CategoryEdit{
			Name:        body.Name,
			Description: body.Description,
		}, s.actorID(r, body.UserID))
		if err != nil {
			s.fail(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"item": item})

	case http.MethodDelete:
		if err := s.service.DeleteCategory(r.Context(), kindName, identity, userID); err != nil {
			s.fail(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"ok": true})

	default:
		writeError(w, http.StatusMethodNotAllowed, "METHOD_NOT_ALLOWED", "Method not allowed", "")
	}
}

func (s *HTTPServer) handleSignUp(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Email       string `json:"email"`
		Password    string `json:"password"`
		DisplayName string `json:"displayName"`
	}
	if err := decodeBody(r, &body); err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), "")
		return
	}
	session, err := s.service.SignUpUser(r.Context(), body.Email, body.Password, body.DisplayName)
	if err != nil {
		if errors.Is(err, directory.ErrEmailTaken) {
			writeError(w, http.StatusConflict, "EMAIL_EXISTS", "Email already registered", "email")
			return
		}
		s.fail(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, sessionPayload(session))
}

func (s *HTTPServer) handleLogin(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Email    string `json:"email"`
		Password string `json:"password"`
	}
	if err := decodeBody(r, &body); err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), "")
		return
	}
	session, err := s.service.Login(r.Context(), body.Email, body.Password)
	if err != nil {
		if errors.Is(err, directory.ErrInvalidCredentials) {
			writeError(w, http.StatusUnauthorized, "INVALID_CREDENTIALS", "Invalid email or password", "")
			return
		}
		s.fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, sessionPayload(session))
}

func sessionPayload(session Session) map[string]any {
	return map[string]any{
		"token":     session.Token,
		"userId":    session.UserID,
		"userName":  session.UserName,
		"role":      session.Role,
		"expiresAt": session.ExpiresAt.Unix(),
	}
}

// actorID picks the acting user: a valid bearer token wins, then the explicit
// fallback from the request body, then the userId query parameter.
func (s *HTTPServer) actorID(r *http.Request, fallback string) string {
	if token := bearerToken(r); token != "" {
		if session, err := s.service.SessionFromToken(token); err == nil {
			return session.UserID
		}
	}
	if fallback != "" {
		return fallback
	}
	return strings.TrimSpace(r.URL.Query().Get("userId"))
}

func (s *HTTPServer) fail(w http.ResponseWriter, err error) {
	status, code, message, field := mapError(err)
	if status == http.StatusInternalServerError {
		log.Printf("request failed: %v", err)
	}
	writeError(w, status, code, message, field)
}

func pageParams(w http.ResponseWriter, r *http.Request) (pageNum, limit int, ok bool) {
	pageNum, limit = 1, 20
	if raw := strings.TrimSpace(r.URL.Query().Get("page")); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil {
			writeError(w, http.StatusUnprocessableEntity, "VALIDATION_ERROR", "page must be an integer", "page")
			return 0, 0, false
		}
		pageNum = parsed
	}
	if raw := strings.TrimSpace(r.URL.Query().Get("limit")); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil {
			writeError(w, http.StatusUnprocessableEntity, "VALIDATION_ERROR", "limit must be an integer", "limit")
			return 0, 0, false
		}
		limit = parsed
	}
	return pageNum, limit, true
}

func (s *HTTPServer) withMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requestID := r.Header.Get("X-Request-ID")
		if requestID == "" {
			requestID = randomRequestID()
		}
		ctx := context.WithValue(r.Context(), requestIDKey{}, requestID)
		r = r.WithContext(ctx)

		started := time.Now()
		writer := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		setCORSHeaders(writer.Header(), s.corsOrigin)
		writer.Header().Set("X-Request-ID", requestID)

		next.ServeHTTP(writer, r)

		log.Printf(`{"request_id":"%s","method":"%s","path":"%s","status":%d,"duration_ms":%d}`,
			requestID,
			r.Method,
			r.URL.Path,
			writer.status,
			time.Since(started).Milliseconds(),
		)
	})
}

type requestIDKey struct{}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

func randomRequestID() string {
	buf := make([]byte, 8)
	_, _ = rand.Read(buf)
	return hex.EncodeToString(buf)
}

func setCORSHeaders(header http.Header, corsOrigin string) {
	header.Set("Access-Control-Allow-Origin", corsOrigin)
	header.Set("Access-Control-Allow-Headers", "Content-Type, Authorization, X-Request-ID")
	header.Set("Access-Control-Allow-Methods", "GET,POST,PUT,DELETE,OPTIONS")
	header.Set("Cache-Control", "no-store")
	header.Set("Content-Type", "application/json")
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, code, message, field string) {
	response := map[string]any{
		"code":  code,
		"error": message,
	}
	if field != "" {
		response["field"] = field
	}
	writeJSON(w, status, response)
}

func decodeBody(r *http.Request, target any) error {
	if r.Body == nil {
		return nil
	}
	defer r.Body.Close()
	decoder := json.NewDecoder(r.Body)
	if err := decoder.Decode(target); err != nil {
		if errors.Is(err, http.ErrBodyReadAfterClose) {
			return nil
		}
		return fmt.Errorf("invalid JSON body")
	}
	return nil
}

func bearerToken(r *http.Request) string {
	header := strings.TrimSpace(r.Header.Get("Authorization"))
	if !strings.HasPrefix(header, "Bearer ") {
		return ""
	}
	return strings.TrimSpace(strings.TrimPrefix(header, "Bearer "))
}

func splitPath(path string) []string {
	trimmed := strings.Trim(path, "/")
	if trimmed == "" {
		return nil
	}
	return strings.Split(trimmed, "/")
}

func mapError(err error) (status int, code, message, field string) {
	var domainErr *DomainError
	if errors.As(err, &domainErr) {
		return domainErr.Status, domainErr.Code, domainErr.Message, domainErr.Field
	}
	if errors.Is(err, sql.ErrNoRows) {
		return http.StatusNotFound, "NOT_FOUND", "Not found", ""
	}
	if errors.Is(err, auth.ErrInvalidToken) || errors.Is(err, auth.ErrExpiredToken) {
		return http.StatusUnauthorized, "UNAUTHORIZED", "Unauthorized", ""
	}
	return http.StatusInternalServerError, "SERVER_ERROR", "Server error", ""
}
