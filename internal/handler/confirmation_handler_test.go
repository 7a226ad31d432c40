package handler

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"

	"github.com/kerane/projectdesk-api/internal/models"
)

type fakeConfirmationSrv struct {
	result     models.ConsumeResult
	consumeErr error
	executeOK  bool
	consumed   []string
	executed   []models.ConfirmationPayload
}

func (f *fakeConfirmationSrv) Consume(_ context.Context, token string) (models.ConsumeResult, error) {
	f.consumed = append(f.consumed, token)
	return f.result, f.consumeErr
}

func (f *fakeConfirmationSrv) Execute(_ context.Context, payload models.ConfirmationPayload) bool {
	f.executed = append(f.executed, payload)
	return f.executeOK
}

type fakeConsumeRecorder struct {
	results []string
}

func (f *fakeConsumeRecorder) RecordTokenConsume(result string) {
	f.results = append(f.results, result)
}

func confirmRequest(t *testing.T, handler *ConfirmationHandler, target string) *httptest.ResponseRecorder {
	t.Helper()
	gin.SetMode(gin.TestMode)
	rec := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(rec)
	c.Request = httptest.NewRequest(http.MethodGet, target, nil)
	handler.Confirm(c)
	return rec
}

func TestConfirmMissingToken(t *testing.T) {
	srv := &fakeConfirmationSrv{}
	recorder := &fakeConsumeRecorder{}
	handler := NewConfirmationHandler(srv, recorder, "https://app.test", nil)

	rec := confirmRequest(t, handler, "/confirm-email")

	assert.Equal(t, http.StatusFound, rec.Code)
	assert.Equal(t, "https://app.test/confirmation?status=failed&reason=missing_token", rec.Header().Get("Location"))
	assert.Empty(t, srv.consumed)
	assert.Empty(t, recorder.results)
}

func TestConfirmSuccessRedirectsWithType(t *testing.T) {
	srv := &fakeConfirmationSrv{
		result: models.ConsumeResult{
			Success: true,
			Payload: &models.ConfirmationPayload{Type: models.ConfirmTaskAssignment},
		},
		executeOK: true,
	}
	recorder := &fakeConsumeRecorder{}
	handler := NewConfirmationHandler(srv, recorder, "https://app.test", nil)

	rec := confirmRequest(t, handler, "/confirm-email?token=tok-1")

	assert.Equal(t, http.StatusFound, rec.Code)
	assert.Equal(t, "https://app.test/confirmation?status=success&type=TASK_ASSIGNMENT", rec.Header().Get("Location"))
	assert.Equal(t, []string{"tok-1"}, srv.consumed)
	assert.Len(t, srv.executed, 1)
	assert.Equal(t, []string{"success"}, recorder.results)
}

func TestConfirmAlreadyUsed(t *testing.T) {
	srv := &fakeConfirmationSrv{
		result: models.ConsumeResult{Success: false, Reason: models.ConsumeReasonAlreadyUsed},
	}
	recorder := &fakeConsumeRecorder{}
	handler := NewConfirmationHandler(srv, recorder, "https://app.test", nil)

	rec := confirmRequest(t, handler, "/confirm-email?token=tok-1")

	assert.Equal(t, http.StatusFound, rec.Code)
	assert.Equal(t, "https://app.test/confirmation?status=failed&reason=already_used", rec.Header().Get("Location"))
	assert.Empty(t, srv.executed)
	assert.Equal(t, []string{"already_used"}, recorder.results)
}

func TestConfirmConsumeError(t *testing.T) {
	srv := &fakeConfirmationSrv{consumeErr: errors.New("db down")}
	recorder := &fakeConsumeRecorder{}
	handler := NewConfirmationHandler(srv, recorder, "https://app.test", nil)

	rec := confirmRequest(t, handler, "/confirm-email?token=tok-1")

	assert.Equal(t, http.StatusFound, rec.Code)
	assert.Equal(t, "https://app.test/confirmation?status=failed&reason=error", rec.Header().Get("Location"))
	assert.Equal(t, []string{"error"}, recorder.results)
}

func TestConfirmExecuteFailure(t *testing.T) {
	srv := &fakeConfirmationSrv{
		result: models.ConsumeResult{
			Success: true,
			Payload: &models.ConfirmationPayload{Type: models.ConfirmTaskStatusChange},
		},
		executeOK: false,
	}
	recorder := &fakeConsumeRecorder{}
	handler := NewConfirmationHandler(srv, recorder, "https://app.test", nil)

	rec := confirmRequest(t, handler, "/confirm-email?token=tok-1")

	assert.Equal(t, http.StatusFound, rec.Code)
	assert.Equal(t, "https://app.test/confirmation?status=failed&reason=action_failed", rec.Header().Get("Location"))
	assert.Equal(t, []string{"success"}, recorder.results)
}
