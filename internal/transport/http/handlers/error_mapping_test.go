package handlers

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"github.com/arklim/labsys-access/internal/usecase"
)

func TestRespondWithMappedError(t *testing.T) {
	gin.SetMode(gin.TestMode)

	cases := []struct {
		name    string
		err     error
		status  int
		message string
		logged  bool
	}{
		{"fixed message", fmt.Errorf("wrap: %w", usecase.ErrUserNotFound), http.StatusNotFound, "user not found", false},
		{"detail message", fmt.Errorf("%w: actor id is not a UUID", usecase.ErrInvalidInput), http.StatusBadRequest, "invalid input: actor id is not a UUID", false},
		{"unmapped", errors.New("connection reset"), http.StatusInternalServerError, "failed to load user", true},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			core, logs := observer.New(zap.ErrorLevel)
			rr := httptest.NewRecorder()
			c, _ := gin.CreateTestContext(rr)
			c.Request = httptest.NewRequest(http.MethodGet, "/", nil)

			RespondWithMappedError(c, zap.New(core), tc.err, adminErrorCases, "failed to load user")

			if rr.Code != tc.status {
				t.Fatalf("expected %d, got %d", tc.status, rr.Code)
			}
			var body ErrorResponse
			if err := json.Unmarshal(rr.Body.Bytes(), &body); err != nil {
				t.Fatalf("decode body: %v", err)
			}
			if body.Error != tc.message {
				t.Fatalf("expected message %q, got %q", tc.message, body.Error)
			}
			if got := logs.Len() > 0; got != tc.logged {
				t.Fatalf("logged = %v, want %v", got, tc.logged)
			}
		})
	}
}
