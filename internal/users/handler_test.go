package users

import (
	"bufio"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gymflow/gymflow/internal/platform/httpx"
)

func newTestRouter(t *testing.T) (http.Handler, *Broker) {
	t.Helper()
	broker := NewBroker()
	svc := NewService(newTestRepository(t), ServiceConfig{Events: broker})
	h := NewHandler(nil, svc, broker, 20*time.Millisecond)
	r := chi.NewRouter()
	r.Route("/users", h.MountRoutes)
	r.Get("/events", h.Events)
	return r, broker
}

func doJSON(t *testing.T, h http.Handler, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	return rr
}

func TestHandlerCRUD(t *testing.T) {
	h, _ := newTestRouter(t)

	rr := doJSON(t, h, http.MethodPost, "/users", `{"fullName":"Tono Wibowo","role":"MEMBER","extra":"ignored"}`)
	require.Equal(t, http.StatusOK, rr.Code)
	var created User
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &created))
	assert.Equal(t, "Tono Wibowo", created.FullName)

	rr = doJSON(t, h, http.MethodGet, "/users", "")
	require.Equal(t, http.StatusOK, rr.Code)
	var list []User
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &list))
	require.Len(t, list, 1)

	rr = doJSON(t, h, http.MethodPut, "/users/"+created.ID, `{"role":"STAFF"}`)
	require.Equal(t, http.StatusOK, rr.Code)
	var updated User
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &updated))
	assert.Equal(t, RoleStaff, updated.Role)

	rr = doJSON(t, h, http.MethodDelete, "/users/"+created.ID, "")
	require.Equal(t, http.StatusOK, rr.Code)
	assert.JSONEq(t, `{"ok":true}`, rr.Body.String())

	rr = doJSON(t, h, http.MethodDelete, "/users/"+created.ID, "")
	assert.Equal(t, http.StatusOK, rr.Code)
}

func TestHandlerValidationProblem(t *testing.T) {
	h, _ := newTestRouter(t)

	rr := doJSON(t, h, http.MethodPost, "/users", `{"fullName":"Jo","role":"GUEST"}`)

	require.Equal(t, http.StatusBadRequest, rr.Code)
	var problem httpx.ProblemDetail
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &problem))
	assert.Equal(t, http.StatusBadRequest, problem.Status)
	assert.Contains(t, problem.Errors, "fullName")
	assert.Contains(t, problem.Errors, "role")
}

func TestHandlerMalformedJSON(t *testing.T) {
	h, _ := newTestRouter(t)
	rr := doJSON(t, h, http.MethodPost, "/users", `{"fullName":`)
	assert.Equal(t, http.StatusBadRequest, rr.Code)
}

func TestHandlerUpdateUnknownUser(t *testing.T) {
	h, _ := newTestRouter(t)
	rr := doJSON(t, h, http.MethodPut, "/users/nope", `{"role":"STAFF"}`)
	assert.Equal(t, http.StatusNotFound, rr.Code)
	assert.Equal(t, "application/problem+json", rr.Header().Get("Content-Type"))
}

func TestHandlerEventStream(t *testing.T) {
	h, broker := newTestRouter(t)
	srv := httptest.NewServer(h)
	defer srv.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, srv.URL+"/events", nil)
	require.NoError(t, err)
	resp, err := srv.Client().Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, "text/event-stream", resp.Header.Get("Content-Type"))

	lines := make(chan string, 64)
	go func() {
		scanner := bufio.NewScanner(resp.Body)
		for scanner.Scan() {
			lines <- scanner.Text()
		}
		close(lines)
	}()

	waitFor := func(want string) {
		t.Helper()
		timeout := time.After(2 * time.Second)
		for {
			select {
			case line, ok := <-lines:
				require.True(t, ok, "stream closed before %q", want)
				if strings.HasPrefix(line, want) {
					return
				}
			case <-timeout:
				t.Fatalf("did not receive %q", want)
			}
		}
	}

	waitFor("event: connected")
	waitFor(": keep-alive")
	require.Eventually(t, func() bool { return broker.Subscribers() == 1 }, time.Second, 5*time.Millisecond)

	rr := doJSON(t, h, http.MethodPost, "/users", `{"fullName":"Umar Said","role":"STAFF"}`)
	require.Equal(t, http.StatusOK, rr.Code)
	waitFor("event: users-updated")

	cancel()
	require.Eventually(t, func() bool { return broker.Subscribers() == 0 }, 2*time.Second, 10*time.Millisecond)
}
