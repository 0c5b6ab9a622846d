package handlers

import (
	"errors"
	"math"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/arklim/labsys-access/internal/infra/logger"
	"github.com/arklim/labsys-access/internal/usecase"
)

// ErrorCase maps a sentinel error to an HTTP status code and response message.
type ErrorCase struct {
	Err     error
	Status  int
	Message string
	// Detail sends the error text instead of Message; used for validation failures.
	Detail bool
}

// RespondWithMappedError resolves err against cases. Anything unmapped is
// logged and answered with a 500 carrying fallbackMessage.
func RespondWithMappedError(c *gin.Context, log *zap.Logger, err error, cases []ErrorCase, fallbackMessage string) {
	if err == nil {
		c.Status(http.StatusOK)
		return
	}

	for _, cs := range cases {
		if cs.Err == nil || !errors.Is(err, cs.Err) {
			continue
		}
		msg := cs.Message
		if cs.Detail {
			msg = err.Error()
		}
		c.JSON(cs.Status, NewErrorResponse(c, msg))
		return
	}

	respondInternal(c, log, fallbackMessage, err)
}

// loginErrorCases covers every rejection a login can produce apart from the
// lock. Wrong email and wrong password share one message.
var loginErrorCases = []ErrorCase{
	{Err: usecase.ErrInvalidCredentials, Status: http.StatusUnauthorized, Message: "invalid email or password"},
	{Err: usecase.ErrInactiveAccount, Status: http.StatusForbidden, Message: "account is inactive"},
}

var passwordChangeErrorCases = []ErrorCase{
	{Err: usecase.ErrCurrentPasswordInvalid, Status: http.StatusBadRequest, Message: "current password is incorrect"},
	{Err: usecase.ErrWeakPassword, Status: http.StatusBadRequest, Detail: true},
	{Err: usecase.ErrInvalidInput, Status: http.StatusBadRequest, Detail: true},
	{Err: usecase.ErrSubjectNotFound, Status: http.StatusUnauthorized, Message: "invalid token"},
}

// adminErrorCases covers user management and audit queries.
var adminErrorCases = []ErrorCase{
	{Err: usecase.ErrInvalidInput, Status: http.StatusBadRequest, Detail: true},
	{Err: usecase.ErrWeakPassword, Status: http.StatusBadRequest, Detail: true},
	{Err: usecase.ErrUserNotFound, Status: http.StatusNotFound, Message: "user not found"},
	{Err: usecase.ErrEmailTaken, Status: http.StatusConflict, Message: "email already registered"},
}

// respondLocked writes 423 with Retry-After and the lock expiry.
func respondLocked(c *gin.Context, locked *usecase.AccountLockedError, now time.Time) {
	retry := int(math.Ceil(locked.Until.Sub(now).Seconds()))
	if retry < 1 {
		retry = 1
	}
	c.Header("Retry-After", strconv.Itoa(retry))
	c.JSON(http.StatusLocked, LockedResponse{
		Error:       "account temporarily locked",
		LockedUntil: locked.Until.UTC(),
		TraceID:     NewErrorResponse(c, "").TraceID,
	})
}

// respondInternal logs err and writes a generic 500.
func respondInternal(c *gin.Context, log *zap.Logger, msg string, err error) {
	logger.WithContext(c.Request.Context(), log).Error(msg, zap.Error(err))
	_ = c.Error(err)
	c.JSON(http.StatusInternalServerError, NewErrorResponse(c, msg))
}
