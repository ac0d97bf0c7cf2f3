package usersync

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestReadEventsParsesStream(t *testing.T) {
	stream := strings.Join([]string{
		": hello",
		"retry: 1500",
		"event: connected",
		`data: {"ok":true}`,
		"",
		": keep-alive",
		"",
		"id: 7",
		"event: users-updated",
		"data: line one",
		"data: line two",
		"",
		"data: bare",
		"",
	}, "\n")

	var events []Event
	retry, err := ReadEvents(strings.NewReader(stream), func(ev Event) {
		events = append(events, ev)
	})

	assert.ErrorIs(t, err, io.EOF)
	assert.Equal(t, 1500*time.Millisecond, retry)
	require.Len(t, events, 3)
	assert.Equal(t, Event{Name: "connected", Data: `{"ok":true}`}, events[0])
	assert.Equal(t, Event{Name: "users-updated", Data: "line one\nline two", ID: "7"}, events[1])
	assert.Equal(t, Event{Name: "message", Data: "bare", ID: "7"}, events[2])
}

type fireLog struct {
	mu      sync.Mutex
	sources []string
}

func (f *fireLog) fire(source string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sources = append(f.sources, source)
}

func (f *fireLog) snapshot() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.sources...)
}

func TestEventStreamTriggerRevalidatesOnUpdateAndReconnect(t *testing.T) {
	var (
		mu    sync.Mutex
		conns int
	)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		conns++
		n := conns
		mu.Unlock()

		w.Header().Set("Content-Type", "text/event-stream")
		w.WriteHeader(http.StatusOK)
		flusher := w.(http.Flusher)
		if n == 1 {
			fmt.Fprint(w, "retry: 10\nevent: connected\ndata: {\"ok\":true}\n\n")
			flusher.Flush()
			return
		}
		fmt.Fprint(w, "event: connected\ndata: {\"ok\":true}\n\n")
		fmt.Fprint(w, "event: users-updated\ndata: {}\n\n")
		flusher.Flush()
		<-r.Context().Done()
	}))
	defer srv.Close()

	trigger := NewEventStreamTrigger(srv.URL, srv.Client(), nil)
	ctx, cancel := context.WithCancel(context.Background())
	log := &fireLog{}
	done := make(chan error, 1)
	go func() { done <- trigger.Run(ctx, log.fire) }()

	require.Eventually(t, func() bool { return len(log.snapshot()) == 2 }, 2*time.Second, 10*time.Millisecond)
	assert.Equal(t, []string{SourceReconnect, SourcePush}, log.snapshot())

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("trigger did not stop")
	}
}
