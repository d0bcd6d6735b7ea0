package server

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cyp0633/libschedule/feed"
	"github.com/cyp0633/libschedule/recurrence"
	"github.com/cyp0633/libschedule/schedule"
	"github.com/cyp0633/libschedule/service"
	"github.com/cyp0633/libschedule/storage"
	"github.com/cyp0633/libschedule/storage/memory"
)

var jan5 = time.Date(2008, 1, 5, 8, 0, 0, 0, time.UTC)

func init() {
	gin.SetMode(gin.TestMode)
}

// setupTestServer serves a calendar "cal" holding a Saturday 08:00-09:00
// weekly event, with the clock fixed at 2008-01-10.
func setupTestServer(t *testing.T, opts ...Option) http.Handler {
	t.Helper()
	ctx := context.Background()
	store := memory.New()
	cal := schedule.NewCalendar("Cal", "cal")
	require.NoError(t, store.SaveCalendar(ctx, cal))
	ev := storage.NewMockRecurringEvent("weekly", cal.ID, "Weekly", jan5, jan5.Add(time.Hour), recurrence.Weekly, "")
	require.NoError(t, store.SaveEvent(ctx, ev))

	options := schedule.DefaultOptions()
	options.Now = func() time.Time { return time.Date(2008, 1, 10, 0, 0, 0, 0, time.UTC) }
	svc := service.New(store, service.WithOptions(options))
	return New(svc, opts...).Router()
}

func do(t *testing.T, h http.Handler, method, path, user, body string) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body != "" {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	} else {
		req = httptest.NewRequest(method, path, nil)
	}
	if user != "" {
		req.Header.Set(HeaderUser, user)
	}
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	return w
}

func decodeJSON[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var out T
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &out))
	return out
}

func TestListOccurrences(t *testing.T) {
	h := setupTestServer(t)

	w := do(t, h, http.MethodGet, "/calendars/cal/occurrences?start=2008-01-05T00:00:00Z&end=2008-01-26T00:00:00Z", "", "")
	require.Equal(t, http.StatusOK, w.Code)
	occs := decodeJSON[[]OccurrenceResponse](t, w)
	require.Len(t, occs, 3)
	assert.True(t, occs[0].Start.Equal(jan5))
	assert.Equal(t, "generated", occs[0].State)
	assert.Equal(t, "weekly", occs[0].EventID)

	tests := []struct {
		name     string
		path     string
		expected int
	}{
		{"missing start", "/calendars/cal/occurrences?end=2008-01-26T00:00:00Z", http.StatusBadRequest},
		{"end before start", "/calendars/cal/occurrences?start=2008-01-26T00:00:00Z&end=2008-01-05T00:00:00Z", http.StatusBadRequest},
		{"unknown calendar", "/calendars/nope/occurrences?start=2008-01-05T00:00:00Z&end=2008-01-26T00:00:00Z", http.StatusNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := do(t, h, http.MethodGet, tt.path, "", "")
			assert.Equal(t, tt.expected, w.Code)
		})
	}
}

func TestGetPeriod(t *testing.T) {
	h := setupTestServer(t)

	w := do(t, h, http.MethodGet, "/calendars/cal/periods/month?year=2008&month=1", "", "")
	require.Equal(t, http.StatusOK, w.Code)
	p := decodeJSON[PeriodResponse](t, w)
	assert.Equal(t, "month", p.Kind)
	assert.True(t, p.Start.Equal(time.Date(2008, 1, 1, 0, 0, 0, 0, time.UTC)))
	assert.True(t, p.End.Equal(time.Date(2008, 2, 1, 0, 0, 0, 0, time.UTC)))
	require.Len(t, p.Occurrences, 4)
	assert.Equal(t, "started-and-ended", p.Occurrences[0].Class)
	require.NotNil(t, p.Prev)
	require.NotNil(t, p.Next)
	assert.True(t, p.Next.Equal(time.Date(2008, 2, 1, 0, 0, 0, 0, time.UTC)))

	tests := []struct {
		name string
		path string
	}{
		{"no date", "/calendars/cal/periods/month"},
		{"month out of range", "/calendars/cal/periods/month?year=2008&month=13"},
		{"non-numeric year", "/calendars/cal/periods/day?year=abc"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := do(t, h, http.MethodGet, tt.path, "", "")
			require.Equal(t, http.StatusOK, w.Code)
			assert.JSONEq(t, `{}`, w.Body.String())
		})
	}

	w = do(t, h, http.MethodGet, "/calendars/cal/periods/decade?year=2008", "", "")
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestOccurrenceMutations(t *testing.T) {
	h := setupTestServer(t)
	base := "/events/weekly/occurrences/2008-01-12T08:00:00Z"

	w := do(t, h, http.MethodGet, base, "", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "generated", decodeJSON[OccurrenceResponse](t, w).State)

	w = do(t, h, http.MethodPost, base+"/cancel", "", "")
	assert.Equal(t, http.StatusForbidden, w.Code)

	w = do(t, h, http.MethodPost, base+"/cancel", "alice", "")
	require.Equal(t, http.StatusOK, w.Code)
	cancelled := decodeJSON[OccurrenceResponse](t, w)
	assert.True(t, cancelled.Cancelled)
	assert.Equal(t, "cancelled", cancelled.State)
	assert.NotEmpty(t, cancelled.ID)

	w = do(t, h, http.MethodPost, base+"/uncancel", "alice", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.False(t, decodeJSON[OccurrenceResponse](t, w).Cancelled)

	w = do(t, h, http.MethodPost, base+"/move", "alice", `{"start":"2008-01-12T10:00:00Z","end":"2008-01-12T11:00:00Z"}`)
	require.Equal(t, http.StatusOK, w.Code)
	moved := decodeJSON[OccurrenceResponse](t, w)
	assert.Equal(t, "moved", moved.State)
	assert.True(t, moved.Start.Equal(time.Date(2008, 1, 12, 10, 0, 0, 0, time.UTC)))
	assert.True(t, moved.OriginalStart.Equal(time.Date(2008, 1, 12, 8, 0, 0, 0, time.UTC)))

	w = do(t, h, http.MethodGet, "/calendars/cal/occurrences?start=2008-01-12T00:00:00Z&end=2008-01-13T00:00:00Z", "", "")
	require.Equal(t, http.StatusOK, w.Code)
	occs := decodeJSON[[]OccurrenceResponse](t, w)
	require.Len(t, occs, 1)
	assert.True(t, occs[0].Start.Equal(time.Date(2008, 1, 12, 10, 0, 0, 0, time.UTC)))
}

func TestOccurrenceErrors(t *testing.T) {
	h := setupTestServer(t)

	tests := []struct {
		name     string
		method   string
		path     string
		body     string
		expected int
	}{
		{"bad instant", http.MethodGet, "/events/weekly/occurrences/yesterday", "", http.StatusBadRequest},
		{"no occurrence at instant", http.MethodGet, "/events/weekly/occurrences/2008-01-12T09:00:00Z", "", http.StatusNotFound},
		{"unknown event", http.MethodGet, "/events/nope/occurrences/2008-01-12T08:00:00Z", "", http.StatusNotFound},
		{"move without body", http.MethodPost, "/events/weekly/occurrences/2008-01-12T08:00:00Z/move", "{}", http.StatusBadRequest},
		{"move malformed body", http.MethodPost, "/events/weekly/occurrences/2008-01-12T08:00:00Z/move", "{", http.StatusBadRequest},
		{"move ends before start", http.MethodPost, "/events/weekly/occurrences/2008-01-12T08:00:00Z/move",
			`{"start":"2008-01-12T10:00:00Z","end":"2008-01-12T09:00:00Z"}`, http.StatusBadRequest},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := do(t, h, tt.method, tt.path, "alice", tt.body)
			assert.Equal(t, tt.expected, w.Code)
		})
	}
}

func TestFeeds(t *testing.T) {
	h := setupTestServer(t, WithBaseURL("https://example.com"))

	w := do(t, h, http.MethodGet, "/calendars/cal/ical", "", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, mimeTypeCalendar, w.Header().Get("Content-Type"))
	assert.Contains(t, w.Body.String(), "BEGIN:VCALENDAR")
	assert.Contains(t, w.Body.String(), "RRULE:FREQ=WEEKLY")

	w = do(t, h, http.MethodGet, "/calendars/cal/xcal", "", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), feed.XCalNamespace)

	w = do(t, h, http.MethodGet, "/calendars/cal/upcoming", "", "")
	require.Equal(t, http.StatusOK, w.Code)
	upcoming := decodeJSON[feed.Upcoming](t, w)
	assert.Equal(t, "Upcoming Events for Cal", upcoming.Title)
	require.Len(t, upcoming.Items, 10)
	assert.True(t, upcoming.Items[0].Start.Equal(time.Date(2008, 1, 12, 8, 0, 0, 0, time.UTC)))
	assert.Equal(t, "https://example.com/events/weekly/occurrences/2008-01-12T08:00:00Z", upcoming.Items[0].Link)

	w = do(t, h, http.MethodGet, "/calendars/cal/upcoming?format=atom", "", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, mimeTypeAtom, w.Header().Get("Content-Type"))
	assert.Contains(t, w.Body.String(), "<feed")

	w = do(t, h, http.MethodGet, "/calendars/nope/ical", "", "")
	assert.Equal(t, http.StatusNotFound, w.Code)
	w = do(t, h, http.MethodGet, "/calendars/nope/upcoming", "", "")
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestCORS(t *testing.T) {
	preflight := func(h http.Handler, origin string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodOptions, "/calendars/cal/upcoming", nil)
		req.Header.Set("Origin", origin)
		req.Header.Set("Access-Control-Request-Method", http.MethodGet)
		w := httptest.NewRecorder()
		h.ServeHTTP(w, req)
		return w
	}

	open := setupTestServer(t)
	w := preflight(open, "https://anywhere.example")
	assert.Equal(t, http.StatusNoContent, w.Code)
	assert.Equal(t, "https://anywhere.example", w.Header().Get("Access-Control-Allow-Origin"))

	restricted := setupTestServer(t, WithCORSOrigins("https://app.example"))
	w = preflight(restricted, "https://app.example")
	assert.Equal(t, http.StatusNoContent, w.Code)
	w = preflight(restricted, "https://evil.example")
	assert.Equal(t, http.StatusForbidden, w.Code)
}
