package tado

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/thatsimonsguy/tado-setpoint-exporter/db"
	"github.com/thatsimonsguy/tado-setpoint-exporter/internal/config"
	"github.com/thatsimonsguy/tado-setpoint-exporter/internal/model"
	"github.com/thatsimonsguy/tado-setpoint-exporter/internal/projector"
)

type memTokens struct {
	token string
	saved []string
}

func (m *memTokens) Load() (string, error) { return m.token, nil }

func (m *memTokens) Save(token string) error {
	m.token = token
	m.saved = append(m.saved, token)
	return nil
}

const blocksJSON = `[
 {"dayType":"MONDAY_TO_SUNDAY","start":"00:00","end":"06:00","setting":{"type":"HEATING","power":"ON","temperature":{"celsius":16.0,"fahrenheit":60.8}}},
 {"dayType":"MONDAY_TO_SUNDAY","start":"06:00","end":"22:00","setting":{"type":"HEATING","power":"ON","temperature":{"celsius":21.0,"fahrenheit":69.8}}},
 {"dayType":"MONDAY_TO_SUNDAY","start":"22:00","end":"00:00","setting":{"type":"HEATING","power":"OFF","temperature":null}}
]`

type fakeBackend struct {
	*httptest.Server
	tokenCalls  int
	sent        []string
	revoked     string
	rejectToken bool
	expireOnce  bool
}

func newFakeBackend(t *testing.T) *fakeBackend {
	t.Helper()
	fb := &fakeBackend{}
	mux := http.NewServeMux()

	mux.HandleFunc("/oauth2/token", func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, r.ParseForm())
		fb.tokenCalls++
		refresh := r.Form.Get("refresh_token")
		fb.sent = append(fb.sent, refresh)
		w.Header().Set("Content-Type", "application/json")
		if fb.rejectToken || refresh == fb.revoked {
			w.WriteHeader(http.StatusBadRequest)
			w.Write([]byte(`{"error":"invalid_grant"}`))
			return
		}
		assert.Equal(t, "refresh_token", r.Form.Get("grant_type"))
		assert.Equal(t, "test-client", r.Form.Get("client_id"))
		json.NewEncoder(w).Encode(map[string]any{
			"access_token":  "access",
			"refresh_token": "rotated",
			"token_type":    "bearer",
			"expires_in":    600,
		})
	})

	auth := func(next http.HandlerFunc) http.HandlerFunc {
		return func(w http.ResponseWriter, r *http.Request) {
			if fb.expireOnce {
				fb.expireOnce = false
				w.WriteHeader(http.StatusUnauthorized)
				return
			}
			if r.Header.Get("Authorization") != "Bearer access" {
				w.WriteHeader(http.StatusUnauthorized)
				return
			}
			next(w, r)
		}
	}

	mux.HandleFunc("/api/v2/me", auth(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"homes":[{"id":42,"name":"Home"}]}`))
	}))
	mux.HandleFunc("/api/v2/homes/42/zones", auth(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`[{"id":1,"name":"Living Room","type":"HEATING"},{"id":2,"name":"Bathroom","type":"HEATING"}]`))
	}))
	mux.HandleFunc("/api/v2/homes/42/zones/1/schedule/activeTimetable", auth(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"id":0,"type":"ONE_DAY"}`))
	}))
	mux.HandleFunc("/api/v2/homes/42/zones/1/schedule/timetables/0/blocks", auth(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(blocksJSON))
	}))
	mux.HandleFunc("/api/v2/homes/42/zones/2/schedule/activeTimetable", auth(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))

	fb.Server = httptest.NewServer(mux)
	t.Cleanup(fb.Close)
	return fb
}

func newTestClient(fb *fakeBackend, tokens TokenStore) *Client {
	return New(config.Tado{
		RefreshToken: "seed",
		ClientID:     "test-client",
		TokenURL:     fb.URL + "/oauth2/token",
		APIURL:       fb.URL + "/api/v2/",
		TimeoutSecs:  5,
	}, tokens)
}

func TestGetZones(t *testing.T) {
	fb := newFakeBackend(t)
	tokens := &memTokens{}
	c := newTestClient(fb, tokens)

	zones, err := c.GetZones(context.Background())
	require.NoError(t, err)
	require.Len(t, zones, 2)
	assert.Equal(t, model.Zone{ID: 1, Name: "Living Room", Type: "HEATING"}, zones[0])
	assert.Equal(t, "living_room", zones[0].NormalizedName())

	assert.Equal(t, []string{"rotated"}, tokens.saved)
	assert.Equal(t, 1, fb.tokenCalls)
}

func TestGetSchedule(t *testing.T) {
	fb := newFakeBackend(t)
	c := newTestClient(fb, &memTokens{})
	ctx := context.Background()

	tt, err := c.GetTimetableID(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, 0, tt)

	schedule, err := c.GetSchedule(ctx, 1, tt)
	require.NoError(t, err)
	require.Len(t, schedule, 3)

	assert.Equal(t, model.MustTimeOfDay("06:00"), schedule[1].Start)
	assert.Equal(t, 21.0, schedule[1].Celsius())
	assert.Equal(t, model.DayMondayToSunday, schedule[1].DayType)

	assert.Equal(t, model.EndOfDay, schedule[2].End)
	assert.Nil(t, schedule[2].Setpoint)

	// the first block keeps its literal 00:00 start
	assert.Equal(t, model.TimeOfDay(0), schedule[0].Start)
}

func TestGetTimetableID_ServerError(t *testing.T) {
	fb := newFakeBackend(t)
	c := newTestClient(fb, &memTokens{})

	_, err := c.GetTimetableID(context.Background(), 2)
	var httpErr *HTTPError
	require.ErrorAs(t, err, &httpErr)
	assert.Equal(t, http.StatusInternalServerError, httpErr.StatusCode)
}

func TestExpiredAccessTokenIsRefreshedOnce(t *testing.T) {
	fb := newFakeBackend(t)
	c := newTestClient(fb, &memTokens{})
	ctx := context.Background()

	_, err := c.GetZones(ctx)
	require.NoError(t, err)

	fb.expireOnce = true
	zones, err := c.GetZones(ctx)
	require.NoError(t, err)
	assert.Len(t, zones, 2)
	assert.Equal(t, 2, fb.tokenCalls)
}

func TestActivationStatus(t *testing.T) {
	fb := newFakeBackend(t)
	ctx := context.Background()

	status, err := newTestClient(fb, &memTokens{}).ActivationStatus(ctx)
	require.NoError(t, err)
	assert.Equal(t, StatusCompleted, status)

	fb.rejectToken = true
	status, err = newTestClient(fb, &memTokens{}).ActivationStatus(ctx)
	require.NoError(t, err)
	assert.Equal(t, StatusPending, status)

	noSeed := New(config.Tado{TokenURL: fb.URL + "/oauth2/token", APIURL: fb.URL + "/api/v2"}, &memTokens{})
	status, err = noSeed.ActivationStatus(ctx)
	require.NoError(t, err)
	assert.Equal(t, StatusPending, status)
}

func TestRevokedStoredTokenFallsBackToSeed(t *testing.T) {
	fb := newFakeBackend(t)
	fb.revoked = "revoked-in-db"
	tokens := &memTokens{token: "revoked-in-db"}

	status, err := newTestClient(fb, tokens).ActivationStatus(context.Background())
	require.NoError(t, err)
	assert.Equal(t, StatusCompleted, status)
	assert.Equal(t, []string{"revoked-in-db", "seed"}, fb.sent)
	assert.Equal(t, []string{"rotated"}, tokens.saved)
}

func TestRevokedStoredTokenWithoutSeedIsPending(t *testing.T) {
	fb := newFakeBackend(t)
	fb.revoked = "seed"
	tokens := &memTokens{token: "seed"}

	status, err := newTestClient(fb, tokens).ActivationStatus(context.Background())
	require.NoError(t, err)
	assert.Equal(t, StatusPending, status)
	assert.Equal(t, []string{"seed"}, fb.sent)
	assert.Empty(t, tokens.saved)
}

func TestStoredTokenWinsOverSeed(t *testing.T) {
	fb := newFakeBackend(t)
	dbConn, err := db.Open(":memory:")
	require.NoError(t, err)
	defer dbConn.Close()

	store := SQLiteTokenStore{DB: dbConn}
	require.NoError(t, store.Save("stored"))

	c := newTestClient(fb, store)
	_, err = c.GetZones(context.Background())
	require.NoError(t, err)

	token, err := db.GetRefreshToken(dbConn)
	require.NoError(t, err)
	assert.Equal(t, "rotated", token)
	assert.Equal(t, []string{"stored"}, fb.sent)
}

// A weekday timetable ends its last block at "00:00". Read literally that block never matches
// and a late evening lookup falls through to a Sunday block.
func TestToSchedule_MidnightEndAcrossDayTypes(t *testing.T) {
	blocks := []blockResponse{
		{DayType: "MONDAY_TO_FRIDAY", Start: "00:00", End: "22:00"},
		{DayType: "MONDAY_TO_FRIDAY", Start: "22:00", End: "00:00"},
		{DayType: "SATURDAY", Start: "00:00", End: "00:00"},
		{DayType: "SUNDAY", Start: "00:00", End: "23:00"},
		{DayType: "SUNDAY", Start: "23:00", End: "00:00"},
	}
	setpoints := []float64{20, 17, 19, 21, 15}
	for i := range blocks {
		blocks[i].Setting.Temperature = &struct {
			Celsius float64 `json:"celsius"`
		}{Celsius: setpoints[i]}
	}

	schedule, err := toSchedule(blocks)
	require.NoError(t, err)
	assert.Equal(t, model.EndOfDay, schedule[1].End)
	assert.Equal(t, model.TimeOfDay(0), schedule[2].End, "a whole-day block keeps its literal end")

	late := model.MustTimeOfDay("22:30")
	v, err := projector.Project(schedule, late)
	require.NoError(t, err)
	assert.Equal(t, 17.0, v)

	literal := append(model.Schedule(nil), schedule...)
	literal[1].End, literal[4].End = 0, 0
	v, err = projector.Project(literal, late)
	require.NoError(t, err)
	assert.Equal(t, 21.0, v)
}

func TestToSchedule_InvalidTime(t *testing.T) {
	_, err := toSchedule([]blockResponse{{Start: "07:00", End: "7pm"}})
	assert.Error(t, err)
}
