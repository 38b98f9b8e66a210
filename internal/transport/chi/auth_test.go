package chi

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
)

func echoUserHandler(got *string) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		*got = userID(r.Context())
		w.WriteHeader(http.StatusOK)
	})
}

func TestUserAuthMiddleware_MissingHeader_401(t *testing.T) {
	var got string
	handler := UserAuthMiddleware()(echoUserHandler(&got))

	req := httptest.NewRequest("GET", "/v1/documents", http.NoBody)
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)

	if rr.Code != http.StatusUnauthorized {
		t.Errorf("missing header: got %d, want %d", rr.Code, http.StatusUnauthorized)
	}
	if got != "" {
		t.Errorf("handler must not run without a user, saw %q", got)
	}

	var errResp errorResponse
	if err := json.NewDecoder(rr.Body).Decode(&errResp); err != nil {
		t.Fatalf("decode error response: %v", err)
	}
	if errResp.Code != codeUnauthorized {
		t.Errorf("error code: got %s, want %s", errResp.Code, codeUnauthorized)
	}
}

func TestUserAuthMiddleware_EmptyHeader_401(t *testing.T) {
	var got string
	handler := UserAuthMiddleware()(echoUserHandler(&got))

	req := httptest.NewRequest("GET", "/v1/documents", http.NoBody)
	req.Header.Set("X-User-ID", "")
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)

	if rr.Code != http.StatusUnauthorized {
		t.Errorf("empty header: got %d, want %d", rr.Code, http.StatusUnauthorized)
	}
}

func TestUserAuthMiddleware_ValidHeader_PassesUser(t *testing.T) {
	var got string
	handler := UserAuthMiddleware()(echoUserHandler(&got))

	req := httptest.NewRequest("GET", "/v1/documents", http.NoBody)
	req.Header.Set("X-User-ID", "user-42")
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Errorf("valid header: got %d, want %d", rr.Code, http.StatusOK)
	}
	if got != "user-42" {
		t.Errorf("user in context: got %q, want %q", got, "user-42")
	}
}

func TestUserID_MissingFromContext(t *testing.T) {
	req := httptest.NewRequest("GET", "/", http.NoBody)
	if id := userID(req.Context()); id != "" {
		t.Errorf("expected empty user, got %q", id)
	}
}
