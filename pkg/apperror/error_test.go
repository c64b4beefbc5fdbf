package apperror

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"log/slog"
)

func TestError_Error(t *testing.T) {
	tests := []struct {
		name string
		err  *Error
		want string
	}{
		{
			name: "without internal",
			err:  New(http.StatusBadRequest, "bad_request", "Invalid request"),
			want: "bad_request: Invalid request",
		},
		{
			name: "with internal",
			err:  New(http.StatusInternalServerError, "internal_error", "boom").WithInternal(errors.New("cause")),
			want: "internal_error: boom (cause)",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.err.Error())
		})
	}
}

func TestError_Unwrap(t *testing.T) {
	cause := errors.New("db down")
	err := ErrDatabase.WithInternal(cause)

	assert.ErrorIs(t, err, cause)
}

func TestError_WithMessage_CopiesStatus(t *testing.T) {
	err := ErrBadRequest.WithMessage("recipients must not be empty")

	assert.Equal(t, http.StatusBadRequest, err.HTTPStatus)
	assert.Equal(t, "bad_request", err.Code)
	assert.Equal(t, "recipients must not be empty", err.Message)
	// Original is untouched
	assert.Equal(t, "Invalid request", ErrBadRequest.Message)
}

func TestNewValidation_Details(t *testing.T) {
	err := NewValidation("Validation failed", map[string]any{"recipient": "invalid address"})

	assert.Equal(t, http.StatusBadRequest, err.HTTPStatus)
	assert.Equal(t, "invalid address", err.Details["recipient"])
}

func TestHTTPErrorHandler_AppError(t *testing.T) {
	e := echo.New()
	e.HTTPErrorHandler = HTTPErrorHandler(slog.Default())
	e.GET("/boom", func(c echo.Context) error {
		return NewBadRequest("missing subject")
	})

	req := httptest.NewRequest(http.MethodGet, "/boom", nil)
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)

	require.Equal(t, http.StatusBadRequest, rec.Code)
	assert.JSONEq(t, `{"error":{"code":"bad_request","message":"missing subject"}}`, rec.Body.String())
}

func TestHTTPErrorHandler_UnknownError(t *testing.T) {
	e := echo.New()
	e.HTTPErrorHandler = HTTPErrorHandler(slog.Default())
	e.GET("/boom", func(c echo.Context) error {
		return errors.New("surprise")
	})

	req := httptest.NewRequest(http.MethodGet, "/boom", nil)
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)

	require.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.JSONEq(t, `{"error":{"code":"internal_error","message":"An internal error occurred"}}`, rec.Body.String())
}

func TestHTTPErrorHandler_EchoHTTPError(t *testing.T) {
	e := echo.New()
	e.HTTPErrorHandler = HTTPErrorHandler(slog.Default())

	req := httptest.NewRequest(http.MethodGet, "/nope", nil)
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)

	require.Equal(t, http.StatusNotFound, rec.Code)
	assert.Contains(t, rec.Body.String(), `"code":"not_found"`)
}
