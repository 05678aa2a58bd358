package status

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/tobilg/citystream/internal/pipeline"
)

func TestServerHealthReturnsOK(t *testing.T) {
	s := New("127.0.0.1:0")
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	s.http.Handler.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	var body map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.Equal(t, "ok", body["status"])
}

func TestServerStatsReflectsFeedback(t *testing.T) {
	s := New("127.0.0.1:0")
	feedback := make(chan pipeline.FeedbackMessage, 4)
	done := make(chan struct{})
	go func() {
		s.Relay(feedback)
		close(done)
	}()

	feedback <- pipeline.FeedbackMessage{Severity: pipeline.SeverityWarn, Message: "warn 1"}
	feedback <- pipeline.FeedbackMessage{Severity: pipeline.SeverityWarn, Message: "warn 2"}
	feedback <- pipeline.FeedbackMessage{Severity: pipeline.SeverityFatal, Message: "boom"}
	close(feedback)
	<-done

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/stats", nil)
	s.http.Handler.ServeHTTP(rec, req)

	var snap Stats
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &snap))
	require.Equal(t, int64(2), snap.Warnings)
	require.Equal(t, int64(1), snap.Fatals)
	require.Equal(t, "boom", snap.LastError)
}

func TestListenAndServeShutsDownOnCancel(t *testing.T) {
	s := New("127.0.0.1:0")
	ctx, cancel := context.WithCancel(context.Background())

	errCh := make(chan error, 1)
	go func() { errCh <- s.ListenAndServe(ctx) }()

	time.Sleep(20 * time.Millisecond)
	cancel()

	select {
	case err := <-errCh:
		require.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("ListenAndServe did not shut down in time")
	}
}
