package httpapi

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"call-relay/internal/audit"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"
)

func TestRunEvents(t *testing.T) {
	svc := audit.NewService(audit.NewMemoryRepo())
	ctx := context.Background()
	require.NoError(t, svc.LogStage(ctx, "run-1", "abc123", "dispatching", audit.EventTypeDispatched, "", nil))
	require.NoError(t, svc.LogStage(ctx, "run-1", "abc123", "polling", audit.EventTypePolled, "", map[string]string{"status": "completed"}))

	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.GET("/runs/:runId/events", Handlers{Audit: svc}.RunEvents)

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/runs/run-1/events", nil))
	require.Equal(t, http.StatusOK, w.Code)
	body := decode(t, w)
	events := body["events"].([]any)
	require.Len(t, events, 2)
	require.Equal(t, "dispatched", events[0].(map[string]any)["type"])

	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/runs/run-x/events", nil))
	require.Equal(t, http.StatusNotFound, w.Code)
}
