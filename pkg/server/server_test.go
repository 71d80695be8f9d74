package server

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"net"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/matzehuels/layerview/pkg/cache"
	"github.com/matzehuels/layerview/pkg/errors"
	lvio "github.com/matzehuels/layerview/pkg/io"
	"github.com/matzehuels/layerview/pkg/observability"
	"github.com/matzehuels/layerview/pkg/pipeline"
	"github.com/matzehuels/layerview/pkg/slice"
)

const timeout = 5 * time.Second

type fixture struct {
	srv    *Server
	sess   *pipeline.Session
	broker *Broker
	dir    string
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	b := NewBroker()
	sess, err := pipeline.NewSession(pipeline.Options{
		ManualPopulate:  true,
		DisablePrefetch: true,
		OnFrame:         b.Frame,
		OnProgress:      b.Progress,
		OnLoading:       b.Loading,
	})
	require.NoError(t, err)
	t.Cleanup(sess.Close)

	fc, err := cache.NewFileCache(t.TempDir())
	require.NoError(t, err)
	dir := t.TempDir()
	srv := New(sess, pipeline.NewRunner(fc, nil, nil), Options{ProjectDir: dir, Broker: b})
	return &fixture{srv: srv, sess: sess, broker: b, dir: dir}
}

func (f *fixture) do(t *testing.T, method, target, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, target, strings.NewReader(body))
	rec := httptest.NewRecorder()
	f.srv.Handler().ServeHTTP(rec, req)
	return rec
}

func (f *fixture) waitIdle(t *testing.T) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	require.NoError(t, f.sess.WaitIdle(ctx))
}

func errorCode(t *testing.T, rec *httptest.ResponseRecorder) errors.Code {
	t.Helper()
	var body errorBody
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body), rec.Body.String())
	return body.Error.Code
}

func TestStatusEndpoint(t *testing.T) {
	f := newFixture(t)
	rec := f.do(t, http.MethodGet, "/api/status", "")
	require.Equal(t, http.StatusOK, rec.Code)

	var st pipeline.Status
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &st))
	require.Equal(t, "idle", st.State)
	require.Equal(t, 100, st.MergedCapacity)
}

func TestLayerWithoutProject(t *testing.T) {
	f := newFixture(t)
	rec := f.do(t, http.MethodPut, "/api/layer/3", "")
	require.Equal(t, http.StatusConflict, rec.Code)
	require.Equal(t, errors.ErrCodeNoProject, errorCode(t, rec))
}

func TestSyntheticAndFrame(t *testing.T) {
	f := newFixture(t)

	rec := f.do(t, http.MethodPost, "/api/project/synthetic", `{"layers": 20, "parts": 1}`)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	var pr projectResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &pr))
	require.Equal(t, 20, pr.Layers)
	require.NotEmpty(t, pr.ProjectID)

	rec = f.do(t, http.MethodGet, "/api/frame", "")
	require.Equal(t, http.StatusNotFound, rec.Code)

	rec = f.do(t, http.MethodPut, "/api/layer/5", "")
	require.Equal(t, http.StatusAccepted, rec.Code)
	f.waitIdle(t)

	rec = f.do(t, http.MethodGet, "/api/frame", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var fr frameResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &fr))
	require.Equal(t, 5, fr.Layers)
	require.Equal(t, pr.ProjectID, fr.ProjectID)
	require.Positive(t, fr.Triangles)

	rec = f.do(t, http.MethodGet, "/api/frame?format=obj", "")
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, "model/obj", rec.Header().Get("Content-Type"))
	require.True(t, strings.HasPrefix(rec.Body.String(), "# layerview cumulative mesh, layers 1-5"))
}

func TestLayerValidation(t *testing.T) {
	f := newFixture(t)
	require.Equal(t, http.StatusCreated, f.do(t, http.MethodPost, "/api/project/synthetic", `{"layers": 10}`).Code)

	for _, target := range []string{"/api/layer/abc", "/api/layer/0", "/api/layer/11"} {
		rec := f.do(t, http.MethodPut, target, "")
		require.Equal(t, http.StatusBadRequest, rec.Code, target)
		require.Equal(t, errors.ErrCodeInvalidLayer, errorCode(t, rec), target)
	}
}

func TestGeometryEndpoint(t *testing.T) {
	f := newFixture(t)
	require.Equal(t, http.StatusCreated, f.do(t, http.MethodPost, "/api/project/synthetic", `{"layers": 10}`).Code)

	rec := f.do(t, http.MethodGet, "/api/geometry/5?format=obj", "")
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, "MISS", rec.Header().Get("X-Cache"))
	first := rec.Body.String()

	rec = f.do(t, http.MethodGet, "/api/geometry/5?format=obj", "")
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, "HIT", rec.Header().Get("X-Cache"))
	require.Equal(t, first, rec.Body.String())

	rec = f.do(t, http.MethodGet, "/api/geometry/5", "")
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, "application/json", rec.Header().Get("Content-Type"))

	rec = f.do(t, http.MethodGet, "/api/geometry/5?format=stl", "")
	require.Equal(t, http.StatusBadRequest, rec.Code)
	require.Equal(t, errors.ErrCodeInvalidFormat, errorCode(t, rec))

	rec = f.do(t, http.MethodGet, "/api/geometry/11", "")
	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestLoadProjectBody(t *testing.T) {
	f := newFixture(t)

	rec := f.do(t, http.MethodPost, "/api/project", `{"name": "tiny", "layers": [{"regions": []}, {"regions": []}]}`)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	var pr projectResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &pr))
	require.Equal(t, "tiny", pr.Name)
	require.Equal(t, 2, pr.Layers)

	rec = f.do(t, http.MethodPost, "/api/project", `{"layers": [`)
	require.Equal(t, http.StatusBadRequest, rec.Code)
	require.Equal(t, errors.ErrCodeInvalidProject, errorCode(t, rec))
}

func TestLoadProjectPath(t *testing.T) {
	f := newFixture(t)
	p := slice.Synthetic(slice.SyntheticOptions{Name: "disk", Layers: 3, Parts: 1})
	require.NoError(t, lvio.ExportProject(p, filepath.Join(f.dir, "disk.json")))

	rec := f.do(t, http.MethodPost, "/api/project?path=disk.json", "")
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	rec = f.do(t, http.MethodPost, "/api/project?path=../etc/passwd", "")
	require.Equal(t, http.StatusBadRequest, rec.Code)
	require.Equal(t, errors.ErrCodeInvalidPath, errorCode(t, rec))

	rec = f.do(t, http.MethodPost, "/api/project?path=missing.json", "")
	require.Equal(t, http.StatusNotFound, rec.Code)
}

func TestLoadProjectPathDisabled(t *testing.T) {
	sess, err := pipeline.NewSession(pipeline.Options{ManualPopulate: true})
	require.NoError(t, err)
	defer sess.Close()
	srv := New(sess, nil, Options{})

	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/project?path=x.json", nil))
	require.Equal(t, http.StatusNotImplemented, rec.Code)
}

func TestStatusFor(t *testing.T) {
	tests := []struct {
		err  error
		want int
	}{
		{errors.New(errors.ErrCodeInvalidLayer, "x"), http.StatusBadRequest},
		{errors.New(errors.ErrCodeInvalidPath, "x"), http.StatusBadRequest},
		{errors.New(errors.ErrCodeFileNotFound, "x"), http.StatusNotFound},
		{errors.New(errors.ErrCodeNoProject, "x"), http.StatusConflict},
		{errors.New(errors.ErrCodeNetwork, "x"), http.StatusBadGateway},
		{errors.New(errors.ErrCodeTimeout, "x"), http.StatusGatewayTimeout},
		{errors.New(errors.ErrCodeUnsupported, "x"), http.StatusNotImplemented},
		{fmt.Errorf("wrapped: %w", errors.New(errors.ErrCodeInvalidFormat, "x")), http.StatusBadRequest},
		{context.Canceled, http.StatusServiceUnavailable},
		{fmt.Errorf("boom"), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		if got := StatusFor(tt.err); got != tt.want {
			t.Errorf("StatusFor(%v) = %d, want %d", tt.err, got, tt.want)
		}
	}
}

type recordingHTTPHooks struct {
	observability.NoopHTTPHooks
	mu       sync.Mutex
	statuses []int
}

func (h *recordingHTTPHooks) OnResponse(_ context.Context, _, _ string, status int, _ time.Duration) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.statuses = append(h.statuses, status)
}

func TestHTTPHooks(t *testing.T) {
	hooks := &recordingHTTPHooks{}
	observability.SetHTTPHooks(hooks)
	defer observability.Reset()

	f := newFixture(t)
	f.do(t, http.MethodGet, "/api/status", "")
	f.do(t, http.MethodPut, "/api/layer/1", "")

	hooks.mu.Lock()
	defer hooks.mu.Unlock()
	require.Equal(t, []int{http.StatusOK, http.StatusConflict}, hooks.statuses)
}

func TestEventsStream(t *testing.T) {
	f := newFixture(t)
	ts := httptest.NewServer(f.srv.Handler())
	defer ts.Close()

	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, ts.URL+"/api/events", nil)
	require.NoError(t, err)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, "text/event-stream", resp.Header.Get("Content-Type"))

	require.Eventually(t, func() bool { return f.broker.Subscribers() == 1 }, timeout, time.Millisecond)

	require.Equal(t, http.StatusCreated, f.do(t, http.MethodPost, "/api/project/synthetic", `{"layers": 8}`).Code)
	require.Equal(t, http.StatusAccepted, f.do(t, http.MethodPut, "/api/layer/4", "").Code)

	sc := bufio.NewScanner(resp.Body)
	var frame frameResponse
	for sc.Scan() {
		if sc.Text() != "event: frame" {
			continue
		}
		require.True(t, sc.Scan())
		data, ok := strings.CutPrefix(sc.Text(), "data: ")
		require.True(t, ok)
		require.NoError(t, json.Unmarshal([]byte(data), &frame))
		break
	}
	require.Equal(t, 4, frame.Layers)
}

func TestBroker(t *testing.T) {
	b := NewBroker()
	ch, unsubscribe := b.Subscribe()
	require.Equal(t, 1, b.Subscribers())

	b.Loading(true)
	ev := <-ch
	require.Equal(t, "loading", ev.Type)
	require.JSONEq(t, `{"loading": true}`, string(ev.Data))

	unsubscribe()
	unsubscribe()
	require.Zero(t, b.Subscribers())

	ch2, _ := b.Subscribe()
	b.Close()
	_, ok := <-ch2
	require.False(t, ok, "Close closes subscriber channels")

	ch3, _ := b.Subscribe()
	_, ok = <-ch3
	require.False(t, ok, "subscribing after Close yields a closed channel")
}

func TestServeShutdown(t *testing.T) {
	f := newFixture(t)
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- f.srv.Serve(ctx, ln, time.Second) }()

	resp, err := http.Get("http://" + ln.Addr().String() + "/api/status")
	require.NoError(t, err)
	resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	cancel()
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(timeout):
		t.Fatal("Serve did not return after cancel")
	}
}
