package calbridge

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"
)

func shortBackoff(t *testing.T) {
	t.Helper()
	saved := backoffDelays
	backoffDelays = []time.Duration{time.Millisecond}
	t.Cleanup(func() { backoffDelays = saved })
}

func TestStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/status" {
			t.Errorf("path = %s", r.URL.Path)
		}
		_ = json.NewEncoder(w).Encode(Status{Authorized: true, StatusCode: 3})
	}))
	defer srv.Close()

	st, err := NewClient(srv.URL).Status(context.Background())
	if err != nil {
		t.Fatalf("Status: %v", err)
	}
	if !st.Authorized {
		t.Error("expected authorized")
	}
}

func TestStatusUnreachable(t *testing.T) {
	c := NewClient("http://127.0.0.1:1")
	_, err := c.Status(context.Background())
	if !errors.Is(err, ErrUnavailable) {
		t.Errorf("err = %v, want ErrUnavailable", err)
	}
}

func TestCalendars(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode([]Calendar{
			{ID: "w1", Title: "Work", AllowsModifications: true},
			{ID: "h1", Title: "Home", AllowsModifications: true},
			{ID: "x1", Title: "Holidays", AllowsModifications: false},
		})
	}))
	defer srv.Close()

	cals, err := NewClient(srv.URL).Calendars(context.Background())
	if err != nil {
		t.Fatalf("Calendars: %v", err)
	}
	if len(cals) != 3 {
		t.Fatalf("len = %d", len(cals))
	}
	if cals[0].ID != "w1" || !cals[0].AllowsModifications {
		t.Errorf("calendar = %+v", cals[0])
	}
}

func TestEventsPassesDays(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := r.URL.Query().Get("days"); got != "14" {
			t.Errorf("days = %q, want 14", got)
		}
		_ = json.NewEncoder(w).Encode([]Event{
			{Title: "Standup", StartISO: "2025-11-18T09:00:00-05:00", EndISO: "2025-11-18T09:15:00-05:00", ID: "ev1", Calendar: "Work"},
		})
	}))
	defer srv.Close()

	events, err := NewClient(srv.URL).Events(context.Background(), 14)
	if err != nil {
		t.Fatalf("Events: %v", err)
	}
	if len(events) != 1 || events[0].Calendar != "Work" {
		t.Errorf("events = %+v", events)
	}
}

func TestAddReturnsEventID(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var in AddEvent
		if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
			t.Errorf("decode: %v", err)
		}
		if in.CalendarID != "w1" || in.Notes == "" {
			t.Errorf("payload = %+v", in)
		}
		_ = json.NewEncoder(w).Encode(Event{
			Title: in.Title, StartISO: in.StartISO, EndISO: in.EndISO, ID: "ek-123", Calendar: "Work",
		})
	}))
	defer srv.Close()

	ev, err := NewClient(srv.URL).Add(context.Background(), AddEvent{
		Title:      "Call mom",
		StartISO:   "2025-11-19T10:00:00-05:00",
		EndISO:     "2025-11-19T10:30:00-05:00",
		Notes:      "id: abc, parent_id: null",
		CalendarID: "w1",
	})
	if err != nil {
		t.Fatalf("Add: %v", err)
	}
	if ev.ID != "ek-123" {
		t.Errorf("id = %q", ev.ID)
	}
}

func TestAddRetriesOn5xx(t *testing.T) {
	shortBackoff(t)

	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) < 2 {
			http.Error(w, "busy", http.StatusServiceUnavailable)
			return
		}
		_ = json.NewEncoder(w).Encode(Event{Title: "x", ID: "ek-1"})
	}))
	defer srv.Close()

	_, err := NewClient(srv.URL).Add(context.Background(), AddEvent{Title: "x"})
	if err != nil {
		t.Fatalf("Add: %v", err)
	}
	if got := calls.Load(); got != 2 {
		t.Errorf("calls = %d, want 2", got)
	}
}

func TestAddDoesNotRetryOn4xx(t *testing.T) {
	shortBackoff(t)

	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		http.Error(w, "calendar_id not found", http.StatusNotFound)
	}))
	defer srv.Close()

	_, err := NewClient(srv.URL).Add(context.Background(), AddEvent{Title: "x"})
	if err == nil {
		t.Fatal("expected error")
	}
	if got := calls.Load(); got != 1 {
		t.Errorf("calls = %d, want 1", got)
	}
}

func TestDeleteTreats404AsSuccess(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := r.URL.Query().Get("event_id"); got != "ek-9" {
			t.Errorf("event_id = %q", got)
		}
		http.Error(w, "not found", http.StatusNotFound)
	}))
	defer srv.Close()

	if err := NewClient(srv.URL).Delete(context.Background(), "ek-9"); err != nil {
		t.Errorf("Delete: %v", err)
	}
}

func TestDeleteGivesUpAfterRetries(t *testing.T) {
	shortBackoff(t)

	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		http.Error(w, "boom", http.StatusInternalServerError)
	}))
	defer srv.Close()

	err := NewClient(srv.URL).Delete(context.Background(), "ek-9")
	if err == nil {
		t.Fatal("expected error after exhausting retries")
	}
	// One retry only: two attempts total, then give up.
	if got := calls.Load(); got != 2 {
		t.Errorf("calls = %d, want 2", got)
	}
}
