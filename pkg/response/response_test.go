package response

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func performRequest(handler gin.HandlerFunc) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	c.Request, _ = http.NewRequest("GET", "/test", nil)
	handler(c)
	return w
}

func parseResponse(t *testing.T, w *httptest.ResponseRecorder) Response {
	t.Helper()
	var resp Response
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("failed to parse response: %v", err)
	}
	return resp
}

func TestSuccess(t *testing.T) {
	w := performRequest(func(c *gin.Context) {
		Success(c, map[string]string{"name": "test"})
	})

	if w.Code != http.StatusOK {
		t.Errorf("expected status %d, got %d", http.StatusOK, w.Code)
	}

	resp := parseResponse(t, w)
	if !resp.Success {
		t.Error("expected success=true")
	}
	if resp.Code != 0 {
		t.Errorf("expected code 0, got %d", resp.Code)
	}
	if resp.Message != "ok" {
		t.Errorf("expected message 'ok', got %q", resp.Message)
	}
}

func TestMessage(t *testing.T) {
	w := performRequest(func(c *gin.Context) {
		Message(c, "settings updated", nil)
	})

	resp := parseResponse(t, w)
	if !resp.Success || resp.Message != "settings updated" {
		t.Errorf("unexpected response %+v", resp)
	}
}

func TestAttachment(t *testing.T) {
	w := performRequest(func(c *gin.Context) {
		Attachment(c, "settings.json", "application/json", []byte(`{"a":1}`))
	})

	if got := w.Header().Get("Content-Disposition"); got != `attachment; filename="settings.json"` {
		t.Errorf("Content-Disposition = %q", got)
	}
	if w.Body.String() != `{"a":1}` {
		t.Errorf("body = %q", w.Body.String())
	}
}

func TestConvenienceErrors(t *testing.T) {
	tests := []struct {
		name   string
		fn     func(c *gin.Context)
		status int
	}{
		{"bad request", func(c *gin.Context) { BadRequest(c, "invalid input") }, http.StatusBadRequest},
		{"unauthorized", func(c *gin.Context) { Unauthorized(c, "token expired") }, http.StatusUnauthorized},
		{"forbidden", func(c *gin.Context) { Forbidden(c, "permission required") }, http.StatusForbidden},
		{"not found", func(c *gin.Context) { NotFound(c, "resource not found") }, http.StatusNotFound},
		{"unprocessable", func(c *gin.Context) { Unprocessable(c, "invalid", map[string][]string{"a": {"bad"}}) }, http.StatusUnprocessableEntity},
		{"server error", func(c *gin.Context) { ServerError(c, "internal error") }, http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := performRequest(tt.fn)
			if w.Code != tt.status {
				t.Errorf("expected status %d, got %d", tt.status, w.Code)
			}
			resp := parseResponse(t, w)
			if resp.Success {
				t.Error("error responses must have success=false")
			}
			if resp.Code != tt.status {
				t.Errorf("expected code %d, got %d", tt.status, resp.Code)
			}
		})
	}
}

func TestError_WithAppError(t *testing.T) {
	w := performRequest(func(c *gin.Context) {
		Error(c, NewUnprocessable("validation failed", map[string][]string{"mail_port": {"must be an integer"}}))
	})

	if w.Code != http.StatusUnprocessableEntity {
		t.Errorf("expected status %d, got %d", http.StatusUnprocessableEntity, w.Code)
	}

	resp := parseResponse(t, w)
	if resp.Message != "validation failed" {
		t.Errorf("expected message 'validation failed', got %q", resp.Message)
	}
	if len(resp.Errors["mail_port"]) != 1 {
		t.Errorf("expected field errors to be forwarded, got %v", resp.Errors)
	}
}

type statusErr struct {
	status int
	fields map[string][]string
}

func (e *statusErr) Error() string                      { return "status error" }
func (e *statusErr) HTTPStatus() int                    { return e.status }
func (e *statusErr) FieldErrors() map[string][]string { return e.fields }

func TestError_WithStatusCoder(t *testing.T) {
	w := performRequest(func(c *gin.Context) {
		Error(c, fmt.Errorf("wrapped: %w", &statusErr{status: http.StatusForbidden}))
	})

	if w.Code != http.StatusForbidden {
		t.Errorf("expected status %d, got %d", http.StatusForbidden, w.Code)
	}
}

func TestError_WithGenericErrorHidesDetail(t *testing.T) {
	w := performRequest(func(c *gin.Context) {
		Error(c, errors.New("dial tcp 10.0.0.1:3306: connection refused"))
	})

	if w.Code != http.StatusInternalServerError {
		t.Errorf("expected status %d, got %d", http.StatusInternalServerError, w.Code)
	}

	resp := parseResponse(t, w)
	if resp.Message != "internal server error" {
		t.Errorf("generic errors must not leak detail, got %q", resp.Message)
	}
}

func TestAppError_ErrorInterface(t *testing.T) {
	err := NewNotFound("setting not found")
	if err.Error() != "setting not found" {
		t.Errorf("expected 'setting not found', got %q", err.Error())
	}
}
