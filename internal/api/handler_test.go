package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/RichardoC/pawtrack/internal/backend"
	"github.com/RichardoC/pawtrack/internal/db"
	"github.com/RichardoC/pawtrack/internal/models"
	"github.com/RichardoC/pawtrack/internal/purge"
)

const testPatient = "3f2504e0-4f89-11d3-9a0c-0305e82c3301"

// upstream is a fake backend message API.
type upstream struct {
	mu           sync.Mutex
	messages     []models.Message
	listCalls    int
	deleteCalls  int
	pageStatus   map[int]int
	deleteStatus map[string]int
	onDelete     func()
}

func newUpstream(n int) *upstream {
	u := &upstream{pageStatus: map[int]int{}, deleteStatus: map[string]int{}}
	for i := 0; i < n; i++ {
		u.messages = append(u.messages, models.Message{
			ID:        fmt.Sprintf("m-%04d", i),
			PatientID: testPatient,
			Role:      models.RoleAssistant,
			Content:   "Bella's bloodwork is back.",
		})
	}
	return u
}

func (u *upstream) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Header.Get("Authorization") != "Bearer secret" {
		w.WriteHeader(http.StatusUnauthorized)
		return
	}

	switch {
	case r.Method == http.MethodGet && r.URL.Path == "/messages":
		u.list(w, r)
	case r.Method == http.MethodDelete && strings.HasPrefix(r.URL.Path, "/messages/"):
		if u.onDelete != nil {
			u.onDelete()
		}
		u.delete(w, strings.TrimPrefix(r.URL.Path, "/messages/"))
	default:
		w.WriteHeader(http.StatusMethodNotAllowed)
	}
}

func (u *upstream) list(w http.ResponseWriter, r *http.Request) {
	u.mu.Lock()
	defer u.mu.Unlock()
	u.listCalls++

	page, _ := strconv.Atoi(r.URL.Query().Get("pageNumber"))
	size, _ := strconv.Atoi(r.URL.Query().Get("pageSize"))
	if status, ok := u.pageStatus[page]; ok {
		w.WriteHeader(status)
		return
	}
	if len(u.messages) == 0 {
		w.WriteHeader(http.StatusNotFound)
		return
	}

	start := min((page-1)*size, len(u.messages))
	end := min(start+size, len(u.messages))
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]any{
		"items":       u.messages[start:end],
		"hasNextPage": end < len(u.messages),
	})
}

func (u *upstream) delete(w http.ResponseWriter, id string) {
	u.mu.Lock()
	defer u.mu.Unlock()
	u.deleteCalls++

	if status, ok := u.deleteStatus[id]; ok {
		w.WriteHeader(status)
		return
	}
	for i, m := range u.messages {
		if m.ID == id {
			u.messages = append(u.messages[:i], u.messages[i+1:]...)
			w.WriteHeader(http.StatusNoContent)
			return
		}
	}
	w.WriteHeader(http.StatusNotFound)
}

func (u *upstream) calls() (int, int) {
	u.mu.Lock()
	defer u.mu.Unlock()
	return u.listCalls, u.deleteCalls
}

type testEnv struct {
	router   http.Handler
	upstream *upstream
	db       *db.Database
}

func newTestEnv(t *testing.T, up *upstream, concurrency int) *testEnv {
	t.Helper()
	router, database := newRouter(t, up, concurrency)
	return &testEnv{router: router, upstream: up, db: database}
}

// newRouter serves the api against upstream with an audit database.
func newRouter(t *testing.T, h http.Handler, concurrency int) (http.Handler, *db.Database) {
	t.Helper()
	logger := zaptest.NewLogger(t)

	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)

	client, err := backend.New(srv.URL, srv.Client(), logger)
	require.NoError(t, err)

	database, err := db.New(filepath.Join(t.TempDir(), "audit.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = database.Close() })

	svc := purge.NewService(client, purge.Options{
		Concurrency: concurrency,
		MaxPages:    100,
		Timeout:     time.Minute,
		Recorder:    database,
		Logger:      logger,
	})
	return NewRouter(NewHandler(svc, database, "token", logger), logger, nil), database
}

func (e *testEnv) purge(t *testing.T, patientID string, withCookie bool) (*httptest.ResponseRecorder, map[string]any) {
	t.Helper()
	target := "/api/conversations/purge"
	if patientID != "" {
		target += "?patientId=" + patientID
	}
	req := httptest.NewRequest(http.MethodDelete, target, nil)
	if withCookie {
		req.AddCookie(&http.Cookie{Name: "token", Value: "secret"})
	}
	rec := httptest.NewRecorder()
	e.router.ServeHTTP(rec, req)

	var body map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body), rec.Body.String())
	return rec, body
}

func TestPurgeRejectsInvalidPatientID(t *testing.T) {
	env := newTestEnv(t, newUpstream(10), 20)

	for _, id := range []string{"", "abc", "12345678-1234-1234-1234-12345678901"} {
		rec, body := env.purge(t, id, true)
		assert.Equal(t, http.StatusBadRequest, rec.Code, id)
		assert.Equal(t, false, body["success"])
		assert.NotEmpty(t, body["error"])
	}

	listCalls, deleteCalls := env.upstream.calls()
	assert.Zero(t, listCalls)
	assert.Zero(t, deleteCalls)
}

func TestPurgeRequiresToken(t *testing.T) {
	env := newTestEnv(t, newUpstream(10), 20)

	for _, id := range []string{testPatient, "abc", ""} {
		rec, _ := env.purge(t, id, false)
		assert.Equal(t, http.StatusUnauthorized, rec.Code, id)
	}

	listCalls, deleteCalls := env.upstream.calls()
	assert.Zero(t, listCalls)
	assert.Zero(t, deleteCalls)
}

func TestPurgeAcceptsBearerHeader(t *testing.T) {
	env := newTestEnv(t, newUpstream(3), 20)

	req := httptest.NewRequest(http.MethodDelete, "/api/conversations/purge?patientId="+testPatient, nil)
	req.Header.Set("Authorization", "Bearer secret")
	rec := httptest.NewRecorder()
	env.router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var res purge.Result
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &res))
	assert.Equal(t, 3, res.DeletedCount)
}

func TestPurgeEmptyConversation(t *testing.T) {
	env := newTestEnv(t, newUpstream(0), 20)

	rec, body := env.purge(t, testPatient, true)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, true, body["success"])
	assert.EqualValues(t, 0, body["deletedCount"])

	_, deleteCalls := env.upstream.calls()
	assert.Zero(t, deleteCalls)
}

func TestPurgeDrainsAllPages(t *testing.T) {
	env := newTestEnv(t, newUpstream(250), 20)

	rec, body := env.purge(t, testPatient, true)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, true, body["success"])
	assert.EqualValues(t, 250, body["deletedCount"])
	assert.EqualValues(t, 250, body["confirmedCount"])

	listCalls, deleteCalls := env.upstream.calls()
	assert.Equal(t, 3, listCalls)
	assert.Equal(t, 250, deleteCalls)
}

func TestPurgeToleratesLaterPageFailure(t *testing.T) {
	up := newUpstream(250)
	up.pageStatus[2] = http.StatusInternalServerError
	env := newTestEnv(t, up, 20)

	rec, body := env.purge(t, testPatient, true)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, true, body["success"])
	assert.EqualValues(t, 100, body["deletedCount"])
	assert.Equal(t, true, body["partial"])
}

func TestPurgeCountsNotFoundDeletes(t *testing.T) {
	up := newUpstream(5)
	up.deleteStatus["m-0002"] = http.StatusNotFound
	up.deleteStatus["m-0004"] = http.StatusInternalServerError
	env := newTestEnv(t, up, 20)

	rec, body := env.purge(t, testPatient, true)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, true, body["success"])
	assert.EqualValues(t, 5, body["deletedCount"])
	assert.EqualValues(t, 4, body["confirmedCount"])
	assert.Equal(t, []any{"m-0004"}, body["failedIds"])
}

func TestPurgeDeletesConcurrently(t *testing.T) {
	const n = 12

	var (
		inFlight, maxInFlight atomic.Int64
		arrived               atomic.Int64
		allIn                 = make(chan struct{})
		once                  sync.Once
	)
	up := newUpstream(n)
	up.onDelete = func() {
		cur := inFlight.Add(1)
		defer inFlight.Add(-1)
		for {
			prev := maxInFlight.Load()
			if cur <= prev || maxInFlight.CompareAndSwap(prev, cur) {
				break
			}
		}
		if arrived.Add(1) == n {
			once.Do(func() { close(allIn) })
		}
		select {
		case <-allIn:
		case <-time.After(5 * time.Second):
		}
	}
	env := newTestEnv(t, up, n)

	rec, body := env.purge(t, testPatient, true)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.EqualValues(t, n, body["deletedCount"])
	assert.EqualValues(t, n, maxInFlight.Load())
}

func TestPurgeTwice(t *testing.T) {
	env := newTestEnv(t, newUpstream(42), 20)

	rec, body := env.purge(t, testPatient, true)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.EqualValues(t, 42, body["deletedCount"])

	rec, body = env.purge(t, testPatient, true)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, true, body["success"])
	assert.EqualValues(t, 0, body["deletedCount"])
}

func TestPurgeSurfacesFirstPageStatus(t *testing.T) {
	up := newUpstream(10)
	up.pageStatus[1] = http.StatusForbidden
	env := newTestEnv(t, up, 20)

	rec, body := env.purge(t, testPatient, true)
	assert.Equal(t, http.StatusForbidden, rec.Code)
	assert.Equal(t, false, body["success"])

	_, deleteCalls := env.upstream.calls()
	assert.Zero(t, deleteCalls)
}

func TestPurgeUpstreamUnreachable(t *testing.T) {
	logger := zaptest.NewLogger(t)
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	client, err := backend.New(url, nil, logger)
	require.NoError(t, err)
	svc := purge.NewService(client, purge.Options{Concurrency: 1, MaxPages: 1, Timeout: 5 * time.Second, Logger: logger})
	router := NewRouter(NewHandler(svc, nil, "token", logger), logger, nil)

	req := httptest.NewRequest(http.MethodDelete, "/api/conversations/purge?patientId="+testPatient, nil)
	req.AddCookie(&http.Cookie{Name: "token", Value: "secret"})
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
}

func TestListPurges(t *testing.T) {
	env := newTestEnv(t, newUpstream(7), 20)

	rec, _ := env.purge(t, testPatient, true)
	require.Equal(t, http.StatusOK, rec.Code)

	req := httptest.NewRequest(http.MethodGet, "/api/conversations/purges?patientId="+testPatient+"&limit=5", nil)
	req.AddCookie(&http.Cookie{Name: "token", Value: "secret"})
	rec = httptest.NewRecorder()
	env.router.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)

	var resp PurgeRunsResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Len(t, resp.Runs, 1)
	assert.Equal(t, 7, resp.Runs[0].Attempted)
	assert.Equal(t, "success", resp.Runs[0].Status)

	req = httptest.NewRequest(http.MethodGet, "/api/conversations/purges?patientId="+testPatient+"&limit=zero", nil)
	req.AddCookie(&http.Cookie{Name: "token", Value: "secret"})
	rec = httptest.NewRecorder()
	env.router.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	req = httptest.NewRequest(http.MethodGet, "/api/conversations/purges?patientId="+testPatient, nil)
	rec = httptest.NewRecorder()
	env.router.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestPurgeToleratesLoosePayloads(t *testing.T) {
	bodies := map[string]string{
		"zone-less timestamp": `{"items":[{"id":"a","role":"user","createdAt":"2024-05-01T10:00:00"}],"hasNextPage":false}`,
		"empty timestamp":     `{"items":[{"id":"a","role":"user","createdAt":""}],"hasNextPage":false}`,
		"null items":          `{"items":null,"hasNextPage":false}`,
	}
	wantDeleted := map[string]int{"zone-less timestamp": 1, "empty timestamp": 1, "null items": 0}

	for name, body := range bodies {
		t.Run(name, func(t *testing.T) {
			var deletes atomic.Int64
			router, _ := newRouter(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				if r.Method == http.MethodDelete {
					deletes.Add(1)
					w.WriteHeader(http.StatusNoContent)
					return
				}
				w.Header().Set("Content-Type", "application/json")
				_, _ = w.Write([]byte(body))
			}), 4)

			req := httptest.NewRequest(http.MethodDelete, "/api/conversations/purge?patientId="+testPatient, nil)
			req.AddCookie(&http.Cookie{Name: "token", Value: "secret"})
			rec := httptest.NewRecorder()
			router.ServeHTTP(rec, req)

			require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
			var res purge.Result
			require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &res))
			assert.True(t, res.Success)
			assert.Equal(t, wantDeleted[name], res.DeletedCount)
			assert.Equal(t, int64(wantDeleted[name]), deletes.Load())
			assert.False(t, res.Partial)
		})
	}
}

func TestHealthz(t *testing.T) {
	env := newTestEnv(t, newUpstream(0), 1)

	rec := httptest.NewRecorder()
	env.router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
}

type failingPurger struct{}

func (failingPurger) Purge(context.Context, string, string) (*purge.Result, error) {
	return nil, errors.New("boom")
}

func TestHandlerWithoutLogger(t *testing.T) {
	router := NewRouter(NewHandler(failingPurger{}, nil, "token", nil), nil, nil)

	req := httptest.NewRequest(http.MethodDelete, "/api/conversations/purge?patientId="+testPatient, nil)
	req.AddCookie(&http.Cookie{Name: "token", Value: "secret"})
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.JSONEq(t, `{"success":false,"error":"Internal server error"}`, rec.Body.String())
}
