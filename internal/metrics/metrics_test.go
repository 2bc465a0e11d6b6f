package metrics

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func TestRecordRequest(t *testing.T) {
	RecordRequest("GET", "/test", 200, 100*time.Millisecond)
	RecordRequest("POST", "/test", 201, 50*time.Millisecond)
	RecordRequest("GET", "/test", 404, 10*time.Millisecond)
}

func TestRecordTick(t *testing.T) {
	RecordTick("quote_follow_up", "ok", 250*time.Millisecond)
	RecordTick("booking_reminder", "aborted", 5*time.Millisecond)
}

func TestRecordStageFired(t *testing.T) {
	RecordStageFired("quote_follow_up", 0)
	RecordStageFired("quote_follow_up", 3)
}

func TestRecordAdvanceConflict(t *testing.T) {
	RecordAdvanceConflict("quote_follow_up")
}

func TestRecordDeliveryFailure(t *testing.T) {
	RecordDeliveryFailure("quote_follow_up", "transient")
	RecordDeliveryFailure("booking_reminder", "permanent")
}

func TestRecordSubjectEnrolled(t *testing.T) {
	RecordSubjectEnrolled("quote_follow_up")
	RecordSubjectEnrolled("booking_reminder")
}

func TestRecordRateLimitRejection(t *testing.T) {
	RecordRateLimitRejection("ip:1.2.3.4")
}

func TestHandler(t *testing.T) {
	handler := Handler()
	if handler == nil {
		t.Error("Handler should not return nil")
	}

	req := httptest.NewRequest("GET", "/metrics", nil)
	rec := httptest.NewRecorder()

	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Errorf("expected status 200, got %d", rec.Code)
	}

	if rec.Body.Len() == 0 {
		t.Error("metrics response should not be empty")
	}
}

func TestMiddleware(t *testing.T) {
	innerCalled := false
	inner := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		innerCalled = true
		w.WriteHeader(http.StatusCreated)
	})

	handler := Middleware(inner)
	req := httptest.NewRequest("POST", "/test", nil)
	rec := httptest.NewRecorder()

	handler.ServeHTTP(rec, req)

	if !innerCalled {
		t.Error("inner handler should have been called")
	}

	if rec.Code != http.StatusCreated {
		t.Errorf("expected status 201, got %d", rec.Code)
	}
}

func TestResponseWriter_ExplicitStatus(t *testing.T) {
	rec := httptest.NewRecorder()
	rw := &responseWriter{ResponseWriter: rec, status: http.StatusOK}

	rw.WriteHeader(http.StatusNotFound)

	if rw.status != http.StatusNotFound {
		t.Errorf("expected status 404, got %d", rw.status)
	}
}
