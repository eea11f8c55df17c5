package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"i4.energy/across/nbiotgw/messaging"
	"i4.energy/across/nbiotgw/modem"
)

type publishCall struct {
	Topic   string
	Payload string
}

type fakePublisher struct {
	mu    sync.Mutex
	calls []publishCall
	err   error
}

func (p *fakePublisher) Publish(_ context.Context, topic, payload string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.err != nil {
		return p.err
	}
	p.calls = append(p.calls, publishCall{topic, payload})
	return nil
}

func (p *fakePublisher) Close(context.Context) error { return nil }

type fakeFetcher struct {
	body string
	err  error
}

func (f fakeFetcher) Fetch(_ context.Context, userID string, w io.Writer) error {
	if f.err != nil {
		return f.err
	}
	_, err := io.WriteString(w, f.body)
	return err
}

func newTestServer(p messaging.Publisher, f messaging.Fetcher) *Server {
	return &Server{
		Logger:    slog.New(slog.DiscardHandler),
		Messenger: messaging.NewMessenger(p, messaging.Config{SettleDelay: time.Millisecond}),
		Fetcher:   f,
	}
}

func postRecords(s *Server, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, "/records", strings.NewReader(body))
	rec := httptest.NewRecorder()
	s.ServeHTTP(rec, req)
	return rec
}

func TestHandleRecords(t *testing.T) {
	t.Run("Shared timestamp", func(t *testing.T) {
		p := &fakePublisher{}
		rec := postRecords(newTestServer(p, nil),
			`{"records":[{"sensor":"light","readings":[{"value":1.234},{"value":2.345}],"timestamp":"10:00:00"}]}`)

		assert.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, []publishCall{{"ubiss/light", "group,light,1.234,2.345,ts,10:00:00"}}, p.calls)
	})

	t.Run("Per reading timestamps over several sensors", func(t *testing.T) {
		p := &fakePublisher{}
		rec := postRecords(newTestServer(p, nil), `{"records":[
			{"sensor":"temperature","readings":[{"value":21.5,"timestamp":"10:00:00"},{"value":21.75,"timestamp":"10:00:05"}]},
			{"sensor":"light","readings":[{"value":5}],"timestamp":"10:00:06"}
		]}`)

		assert.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, []publishCall{{
			"ubiss/multiple",
			"group,temperature,21.5,21.75,ts,10:00:00,10:00:05,light,5,ts,10:00:06",
		}}, p.calls)
	})

	t.Run("Bad requests", func(t *testing.T) {
		tests := []struct {
			name string
			body string
		}{
			{"invalid json", `{"records":`},
			{"no records", `{"records":[]}`},
			{"no sensor", `{"records":[{"readings":[{"value":1}],"timestamp":"10:00:00"}]}`},
			{"missing timestamp", `{"records":[{"sensor":"light","readings":[{"value":1}]}]}`},
		}
		for _, tt := range tests {
			t.Run(tt.name, func(t *testing.T) {
				p := &fakePublisher{}
				rec := postRecords(newTestServer(p, nil), tt.body)
				assert.Equal(t, http.StatusBadRequest, rec.Code)
				assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))
				assert.Empty(t, p.calls)
			})
		}
	})

	t.Run("Payload too large", func(t *testing.T) {
		p := &fakePublisher{err: fmt.Errorf("%w: 600 bytes, buffer is 512", modem.ErrPayloadTooLarge)}
		rec := postRecords(newTestServer(p, nil),
			`{"records":[{"sensor":"light","readings":[{"value":1}],"timestamp":"10:00:00"}]}`)
		assert.Equal(t, http.StatusRequestEntityTooLarge, rec.Code)
	})

	t.Run("Uplink failure", func(t *testing.T) {
		p := &fakePublisher{err: modem.ErrCommandRejected}
		rec := postRecords(newTestServer(p, nil),
			`{"records":[{"sensor":"light","readings":[{"value":1}],"timestamp":"10:00:00"}]}`)
		assert.Equal(t, http.StatusInternalServerError, rec.Code)
		assert.Contains(t, rec.Body.String(), "command rejected")
	})

	t.Run("Wrong method", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/records", nil)
		rec := httptest.NewRecorder()
		newTestServer(&fakePublisher{}, nil).ServeHTTP(rec, req)
		assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
	})
}

func TestHandleDownload(t *testing.T) {
	t.Run("Requests and returns the export", func(t *testing.T) {
		p := &fakePublisher{}
		s := newTestServer(p, fakeFetcher{body: "userid, group, light, 1.234\n"})

		req := httptest.NewRequest(http.MethodGet, "/download?sensor=light", nil)
		rec := httptest.NewRecorder()
		s.ServeHTTP(rec, req)

		require.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, "text/csv; charset=utf-8", rec.Header().Get("Content-Type"))
		assert.Equal(t, "userid, group, light, 1.234\n", rec.Body.String())
		assert.Equal(t, []publishCall{{"ubiss/download", "group,light"}}, p.calls)
	})

	t.Run("All sensors by default", func(t *testing.T) {
		p := &fakePublisher{}
		s := newTestServer(p, fakeFetcher{})

		req := httptest.NewRequest(http.MethodGet, "/download", nil)
		rec := httptest.NewRecorder()
		s.ServeHTTP(rec, req)

		assert.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, []publishCall{{"ubiss/download", "group,all"}}, p.calls)
	})

	t.Run("Fetch failure", func(t *testing.T) {
		s := newTestServer(&fakePublisher{}, fakeFetcher{err: fmt.Errorf("GET /group.csv: 404 Not Found")})

		req := httptest.NewRequest(http.MethodGet, "/download", nil)
		rec := httptest.NewRecorder()
		s.ServeHTTP(rec, req)

		assert.Equal(t, http.StatusBadGateway, rec.Code)
	})
}
