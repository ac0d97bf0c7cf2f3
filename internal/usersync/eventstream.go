package usersync

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gymflow/gymflow/internal/users"
)

// DefaultReconnectDelay is the wait before reopening a dropped event stream
// when the server did not send a retry field.
const DefaultReconnectDelay = 3 * time.Second

// Event is one server-sent event.
type Event struct {
	Name string
	Data string
	ID   string
}

// EventStreamTrigger subscribes to the service change stream. A users-updated
// event fires a revalidation, and so does every reconnect after the first
// connection because changes may have been missed while disconnected.
type EventStreamTrigger struct {
	url    string
	client *http.Client
	logger *slog.Logger
	delay  time.Duration
}

// NewEventStreamTrigger builds a trigger for the stream at url. The client's
// timeout is cleared since the response body stays open.
func NewEventStreamTrigger(url string, client *http.Client, logger *slog.Logger) *EventStreamTrigger {
	streamClient := &http.Client{}
	if client != nil {
		c := *client
		c.Timeout = 0
		streamClient = &c
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &EventStreamTrigger{url: url, client: streamClient, logger: logger, delay: DefaultReconnectDelay}
}

// Run implements Trigger.
func (t *EventStreamTrigger) Run(ctx context.Context, fire func(source string)) error {
	connected := false
	delay := t.delay
	for {
		retry, err := t.stream(ctx, func(ev Event) {
			switch ev.Name {
			case users.EventConnected:
				if connected {
					fire(SourceReconnect)
				}
				connected = true
			case users.EventUsersUpdated:
				fire(SourcePush)
			}
		})
		if ctx.Err() != nil {
			return nil
		}
		if retry > 0 {
			delay = retry
		}
		t.logger.Debug("usersync: event stream dropped", slog.Any("error", err), slog.Duration("retry", delay))
		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil
		case <-timer.C:
		}
	}
}

func (t *EventStreamTrigger) stream(ctx context.Context, handle func(Event)) (time.Duration, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, t.url, nil)
	if err != nil {
		return 0, err
	}
	req.Header.Set("Accept", "text/event-stream")
	req.Header.Set("Cache-Control", "no-cache")
	resp, err := t.client.Do(req)
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return 0, &TransportError{Op: "GET " + t.url, StatusCode: resp.StatusCode}
	}
	return ReadEvents(resp.Body, handle)
}

// ReadEvents parses an event stream from r, calling handle for every
// dispatched event. It returns the last retry interval announced by the
// server and the error that ended the stream, io.EOF included.
func ReadEvents(r io.Reader, handle func(Event)) (time.Duration, error) {
	var (
		retry time.Duration
		ev    Event
		data  strings.Builder
		has   bool
	)
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 4096), 1<<20)
	for scanner.Scan() {
		line := scanner.Text()
		if line == "" {
			if has {
				ev.Data = strings.TrimSuffix(data.String(), "\n")
				if ev.Name == "" {
					ev.Name = "message"
				}
				handle(ev)
			}
			ev = Event{ID: ev.ID}
			data.Reset()
			has = false
			continue
		}
		if strings.HasPrefix(line, ":") {
			continue
		}
		field, value, _ := strings.Cut(line, ":")
		value = strings.TrimPrefix(value, " ")
		switch field {
		case "event":
			ev.Name = value
			has = true
		case "data":
			data.WriteString(value)
			data.WriteByte('\n')
			has = true
		case "id":
			ev.ID = value
		case "retry":
			if ms, err := strconv.Atoi(value); err == nil && ms >= 0 {
				retry = time.Duration(ms) * time.Millisecond
			}
		}
	}
	if err := scanner.Err(); err != nil {
		return retry, fmt.Errorf("usersync: read event stream: %w", err)
	}
	return retry, io.EOF
}
