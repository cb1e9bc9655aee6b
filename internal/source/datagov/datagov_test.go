package datagov

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"hdbdash/internal/core"
	"hdbdash/internal/log"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sampleBody = `{
  "success": true,
  "result": {
    "resource_id": "d_test",
    "records": [
      {"_id": 1, "month": "2017-01", "town": "ANG MO KIO", "flat_type": "5 ROOM", "floor_area_sqm": "110", "resale_price": "500000"},
      {"_id": 2, "month": "2017-01", "town": "ANG MO KIO", "flat_type": "5 ROOM", "floor_area_sqm": "120", "resale_price": "520000"}
    ],
    "total": 2
  }
}`

type upstream struct {
	server *httptest.Server
	calls  atomic.Int64
	mu     sync.Mutex
	last   *http.Request
}

func newUpstream(t *testing.T, handler http.HandlerFunc) *upstream {
	t.Helper()
	u := &upstream{}
	u.server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		u.calls.Add(1)
		u.mu.Lock()
		u.last = r.Clone(context.Background())
		u.mu.Unlock()
		handler(w, r)
	}))
	t.Cleanup(u.server.Close)
	return u
}

func (u *upstream) lastQuery() map[string][]string {
	u.mu.Lock()
	defer u.mu.Unlock()
	return u.last.URL.Query()
}

func respond(body string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, body)
	}
}

func newTestClient(u *upstream, opts ...Option) *Client {
	base := []Option{
		WithBaseURL(u.server.URL),
		WithDatasetID("d_test"),
		WithLogger(log.Discard()),
	}
	return New(append(base, opts...)...)
}

func TestClient_Fetch(t *testing.T) {
	u := newUpstream(t, respond(sampleBody))
	c := newTestClient(u)

	ds, err := c.Fetch(context.Background(), core.Filter{Town: "ANG MO KIO", FlatType: "5 ROOM"}, 100)
	require.NoError(t, err)

	assert.Equal(t, "ANG MO KIO", ds.Town)
	assert.Equal(t, "5 ROOM", ds.FlatType)
	require.Len(t, ds.Records, 2)
	assert.Equal(t, "500000", ds.Records[0].ResalePrice)
	assert.Equal(t, "120", ds.Records[1].FloorAreaSqm)

	q := u.lastQuery()
	assert.Equal(t, "d_test", q["resource_id"][0])
	assert.Equal(t, "100", q["limit"][0])

	var filters map[string]string
	require.NoError(t, json.Unmarshal([]byte(q["filters"][0]), &filters))
	assert.Equal(t, map[string]string{"town": "ANG MO KIO", "flat_type": "5 ROOM"}, filters)
}

func TestClient_FetchOmitsEmptyFilterKeys(t *testing.T) {
	tests := []struct {
		name   string
		filter core.Filter
		want   map[string]string
	}{
		{"town only", core.Filter{Town: "BEDOK"}, map[string]string{"town": "BEDOK"}},
		{"flat type only", core.Filter{FlatType: "3 ROOM"}, map[string]string{"flat_type": "3 ROOM"}},
		{"neither", core.Filter{}, map[string]string{}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			u := newUpstream(t, respond(sampleBody))
			c := newTestClient(u)

			_, err := c.Fetch(context.Background(), tt.filter, 10)
			require.NoError(t, err)

			var filters map[string]string
			require.NoError(t, json.Unmarshal([]byte(u.lastQuery()["filters"][0]), &filters))
			assert.Equal(t, tt.want, filters)
		})
	}
}

func TestClient_FetchDefaultLimit(t *testing.T) {
	u := newUpstream(t, respond(sampleBody))
	c := newTestClient(u, WithDefaultLimit(250))

	_, err := c.Fetch(context.Background(), core.Filter{Town: "BEDOK"}, 0)
	require.NoError(t, err)
	assert.Equal(t, "250", u.lastQuery()["limit"][0])
}

func TestClient_FetchIsMemoized(t *testing.T) {
	u := newUpstream(t, respond(sampleBody))
	c := newTestClient(u)
	f := core.Filter{Town: "ANG MO KIO", FlatType: "5 ROOM"}

	first, err := c.Fetch(context.Background(), f, 100)
	require.NoError(t, err)
	second, err := c.Fetch(context.Background(), f, 100)
	require.NoError(t, err)

	assert.Equal(t, first, second)
	assert.EqualValues(t, 1, u.calls.Load())
	assert.EqualValues(t, 1, c.Requests())

	// A different limit is a different key.
	_, err = c.Fetch(context.Background(), f, 50)
	require.NoError(t, err)
	assert.EqualValues(t, 2, u.calls.Load())
}

func TestClient_FetchReturnsCopies(t *testing.T) {
	u := newUpstream(t, respond(sampleBody))
	c := newTestClient(u)
	f := core.Filter{Town: "ANG MO KIO"}

	first, err := c.Fetch(context.Background(), f, 100)
	require.NoError(t, err)
	first.Records[0].ResalePrice = "1"

	second, err := c.Fetch(context.Background(), f, 100)
	require.NoError(t, err)
	assert.Equal(t, "500000", second.Records[0].ResalePrice)
}

func TestClient_FetchConcurrentCallsShareRequest(t *testing.T) {
	release := make(chan struct{})
	u := newUpstream(t, func(w http.ResponseWriter, r *http.Request) {
		<-release
		respond(sampleBody)(w, r)
	})
	c := newTestClient(u)
	f := core.Filter{Town: "ANG MO KIO", FlatType: "5 ROOM"}

	var wg sync.WaitGroup
	errs := make([]error, 8)
	for i := range errs {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = c.Fetch(context.Background(), f, 100)
		}(i)
	}

	time.Sleep(50 * time.Millisecond)
	close(release)
	wg.Wait()

	for _, err := range errs {
		require.NoError(t, err)
	}
	assert.EqualValues(t, 1, u.calls.Load())
}

func TestClient_FetchCanceledCallerDoesNotFailOthers(t *testing.T) {
	release := make(chan struct{})
	u := newUpstream(t, func(w http.ResponseWriter, r *http.Request) {
		<-release
		respond(sampleBody)(w, r)
	})
	c := newTestClient(u)
	f := core.Filter{Town: "ANG MO KIO", FlatType: "5 ROOM"}

	ctxA, cancelA := context.WithCancel(context.Background())
	errA := make(chan error, 1)
	go func() {
		_, err := c.Fetch(ctxA, f, 100)
		errA <- err
	}()
	require.Eventually(t, func() bool { return u.calls.Load() == 1 }, time.Second, 5*time.Millisecond)

	type result struct {
		ds  core.Dataset
		err error
	}
	resB := make(chan result, 1)
	go func() {
		ds, err := c.Fetch(context.Background(), f, 100)
		resB <- result{ds, err}
	}()
	time.Sleep(20 * time.Millisecond)

	cancelA()
	err := <-errA
	require.ErrorIs(t, err, core.ErrNetwork)
	assert.ErrorIs(t, err, context.Canceled)

	close(release)
	b := <-resB
	require.NoError(t, b.err)
	assert.Len(t, b.ds.Records, 2)
	assert.EqualValues(t, 1, u.calls.Load())

	// The shared result was memoized for later callers.
	_, err = c.Fetch(context.Background(), f, 100)
	require.NoError(t, err)
	assert.EqualValues(t, 1, u.calls.Load())
}

func TestWithTimeout_CopiesCustomClient(t *testing.T) {
	hc := &http.Client{Timeout: time.Minute}
	c := New(WithHTTPClient(hc), WithTimeout(5*time.Second))

	assert.Equal(t, time.Minute, hc.Timeout)
	assert.Equal(t, 5*time.Second, c.http.Timeout)
	assert.NotSame(t, hc, c.http)
}

func TestClient_FetchErrors(t *testing.T) {
	tests := []struct {
		name    string
		handler http.HandlerFunc
		wantErr error
	}{
		{
			name: "server error",
			handler: func(w http.ResponseWriter, r *http.Request) {
				http.Error(w, "boom", http.StatusInternalServerError)
			},
			wantErr: core.ErrNetwork,
		},
		{
			name: "not found",
			handler: func(w http.ResponseWriter, r *http.Request) {
				http.NotFound(w, r)
			},
			wantErr: core.ErrNetwork,
		},
		{
			name:    "invalid json",
			handler: respond(`{"result":`),
			wantErr: core.ErrMalformedResponse,
		},
		{
			name:    "missing records",
			handler: respond(`{"success": true, "result": {"total": 0}}`),
			wantErr: core.ErrMalformedResponse,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			u := newUpstream(t, tt.handler)
			c := newTestClient(u)

			_, err := c.Fetch(context.Background(), core.Filter{Town: "BEDOK"}, 10)
			require.Error(t, err)
			assert.ErrorIs(t, err, tt.wantErr)
		})
	}
}

func TestClient_FetchErrorsAreNotMemoized(t *testing.T) {
	var fail atomic.Bool
	fail.Store(true)
	u := newUpstream(t, func(w http.ResponseWriter, r *http.Request) {
		if fail.Load() {
			http.Error(w, "unavailable", http.StatusServiceUnavailable)
			return
		}
		respond(sampleBody)(w, r)
	})
	c := newTestClient(u)
	f := core.Filter{Town: "ANG MO KIO"}

	_, err := c.Fetch(context.Background(), f, 10)
	require.ErrorIs(t, err, core.ErrNetwork)

	fail.Store(false)
	ds, err := c.Fetch(context.Background(), f, 10)
	require.NoError(t, err)
	assert.Len(t, ds.Records, 2)
	assert.EqualValues(t, 2, u.calls.Load())
}

func TestClient_FetchEmptyIsNotAnError(t *testing.T) {
	u := newUpstream(t, respond(`{"success": true, "result": {"records": []}}`))
	c := newTestClient(u)

	ds, err := c.Fetch(context.Background(), core.Filter{Town: "BEDOK"}, 10)
	require.NoError(t, err)
	assert.True(t, ds.Empty())
}

func TestClient_FetchTimeout(t *testing.T) {
	done := make(chan struct{})
	t.Cleanup(func() { close(done) })
	u := newUpstream(t, func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-done:
		case <-r.Context().Done():
		}
	})
	c := newTestClient(u, WithTimeout(20*time.Millisecond))

	_, err := c.Fetch(context.Background(), core.Filter{Town: "BEDOK"}, 10)
	require.Error(t, err)
	assert.ErrorIs(t, err, core.ErrNetwork)
}

func TestClient_RequestURL(t *testing.T) {
	c := New(WithBaseURL("https://example.test/search"), WithDatasetID("d_x"))

	got, err := c.RequestURL(core.Filter{Town: "ANG MO KIO"}, 5)
	require.NoError(t, err)
	assert.Equal(t,
		"https://example.test/search?resource_id=d_x&filters=%7B%22town%22%3A%22ANG+MO+KIO%22%7D&limit=5",
		got)
}
