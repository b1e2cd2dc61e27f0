// Package restmock runs a programmable HTTP mock server for tests.
//
// Stubs declare canned responses per method and chi route pattern; every
// incoming request is recorded for later verification, and blocked waiters
// can await the next request with a timeout. An inspection console under
// /_qakit/ exposes the server's stubs and recorded traffic as JSON, so a
// developer can point a browser (or curl) at a running mock and see exactly
// what the system under test sent.
package restmock

import (
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sync"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
)

// consolePrefix reserves the inspection console namespace.
const consolePrefix = "/_qakit"

// incomingBuffer bounds the await-request channel. Requests beyond the
// buffer are still recorded; only the await signal is dropped.
const incomingBuffer = 64

// Request is one recorded incoming request.
type Request struct {
	ID      string      `json:"id"`
	Method  string      `json:"method"`
	Path    string      `json:"path"`
	Query   url.Values  `json:"query,omitempty"`
	Headers http.Header `json:"headers"`
	Body    string      `json:"body,omitempty"`
	At      time.Time   `json:"at"`
}

// Server is a running mock HTTP server.
type Server struct {
	mu       sync.Mutex
	srv      *httptest.Server
	stubs    []*stubState
	recorded []Request
	incoming chan Request
	logger   *slog.Logger
	now      func() time.Time
}

type stubState struct {
	stub  Stub
	delay time.Duration
	calls int
}

// Option configures a Server.
type Option func(*Server)

// WithLogger sets the server's logger. Defaults to a discarding logger so
// mock traffic doesn't pollute test output.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Server) { s.logger = logger }
}

// WithNow overrides the wall clock used for request timestamps.
// Tests that snapshot recorded traffic pin it to a frozen clock.
func WithNow(now func() time.Time) Option {
	return func(s *Server) { s.now = now }
}

// NewServer starts a mock server on an ephemeral port.
func NewServer(opts ...Option) *Server {
	s := &Server{
		incoming: make(chan Request, incomingBuffer),
		logger:   slog.New(slog.NewTextHandler(io.Discard, nil)),
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	s.srv = httptest.NewServer(http.HandlerFunc(s.serve))
	return s
}

// ForT starts a mock server scoped to the test.
func ForT(t *testing.T, opts ...Option) *Server {
	t.Helper()
	s := NewServer(opts...)
	t.Cleanup(s.Close)
	return s
}

// URL returns the server's base URL.
func (s *Server) URL() string {
	return s.srv.URL
}

// Close shuts the server down.
func (s *Server) Close() {
	s.srv.Close()
}

// Client returns an HTTP client configured for the server.
func (s *Server) Client() *http.Client {
	return s.srv.Client()
}

// Handler exposes the mock as an http.Handler, for callers that mount it on
// their own listener instead of the ephemeral test server.
func (s *Server) Handler() http.Handler {
	return http.HandlerFunc(s.serve)
}

// Stub registers a stub. Later registrations win when patterns overlap
// exactly, so a test can override a file-loaded stub inline.
func (s *Server) Stub(stub Stub) error {
	delay, err := stub.validate()
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.stubs = append([]*stubState{{stub: stub, delay: delay}}, s.stubs...)
	s.logger.Info("stub registered", "name", stub.Name)
	return nil
}

// Recorded returns a copy of all recorded requests in arrival order.
func (s *Server) Recorded() []Request {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Request, len(s.recorded))
	copy(out, s.recorded)
	return out
}

// Count returns how many recorded requests match method and exact path.
func (s *Server) Count(method, path string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	count := 0
	for _, r := range s.recorded {
		if r.Method == method && r.Path == path {
			count++
		}
	}
	return count
}

// AwaitRequest blocks until the next incoming request or the timeout.
// Requests that arrived before the call are buffered, so publish-then-await
// does not race.
func (s *Server) AwaitRequest(timeout time.Duration) (Request, error) {
	deadline := time.NewTimer(timeout)
	defer deadline.Stop()
	select {
	case req := <-s.incoming:
		return req, nil
	case <-deadline.C:
		return Request{}, &TimeoutError{Timeout: timeout}
	}
}

// Reset clears recorded requests and stub call counters. Registered stubs
// survive so a scenario can reuse one server across steps.
func (s *Server) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.recorded = nil
	for _, st := range s.stubs {
		st.calls = 0
	}
	// Drain pending await signals.
	for {
		select {
		case <-s.incoming:
		default:
			return
		}
	}
}

// serve records the request, then dispatches to the console or a stub.
func (s *Server) serve(w http.ResponseWriter, r *http.Request) {
	body, _ := io.ReadAll(r.Body)

	req := Request{
		ID:      uuid.NewString(),
		Method:  r.Method,
		Path:    r.URL.Path,
		Query:   r.URL.Query(),
		Headers: r.Header.Clone(),
		Body:    string(body),
		At:      s.now().UTC(),
	}

	if consoleHandled(s, w, r) {
		return
	}

	s.mu.Lock()
	s.recorded = append(s.recorded, req)
	s.mu.Unlock()

	select {
	case s.incoming <- req:
	default:
	}

	s.logger.Info("request received", "method", req.Method, "path", req.Path, "id", req.ID)
	s.dispatch(w, r)
}

// dispatch routes the request through a chi router built from the current
// stubs. The router is rebuilt per request: stub sets are tiny and tests
// register stubs while the server is live, which chi's mux doesn't allow.
func (s *Server) dispatch(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	router := chi.NewRouter()
	seen := make(map[string]bool)
	for _, st := range s.stubs {
		key := st.stub.Method + " " + st.stub.Path
		if seen[key] {
			continue // Later registrations shadow earlier ones.
		}
		seen[key] = true
		state := st
		router.Method(st.stub.Method, st.stub.Path, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			s.respond(state, w)
		}))
	}
	router.NotFound(s.unmatched)
	router.MethodNotAllowed(s.unmatched)
	s.mu.Unlock()

	router.ServeHTTP(w, r)
}

// respond writes the stub's response, honoring sequences, delay, and the
// Times limit.
func (s *Server) respond(st *stubState, w http.ResponseWriter) {
	s.mu.Lock()
	st.calls++
	call := st.calls
	stub := st.stub
	delay := st.delay
	s.mu.Unlock()

	if stub.Times > 0 && call > stub.Times {
		s.writeDiagnostic(w, http.StatusTeapot, "stub exhausted",
			map[string]any{"stub": stub.Name, "times": stub.Times})
		return
	}

	if delay > 0 {
		time.Sleep(delay)
	}

	status := stub.Status
	headers := stub.Headers
	body := stub.Body
	if len(stub.Responses) > 0 {
		idx := call - 1
		if idx >= len(stub.Responses) {
			idx = len(stub.Responses) - 1 // Last response repeats.
		}
		resp := stub.Responses[idx]
		status = resp.Status
		headers = resp.Headers
		body = resp.Body
	}

	for k, v := range headers {
		w.Header().Set(k, v)
	}
	w.WriteHeader(status)
	if body != "" {
		io.WriteString(w, body)
	}
}

// unmatched answers requests no stub matches with a diagnostic listing the
// known stubs. 418 is deliberately distinctive: a 404 could be mistaken for
// a stubbed not-found response.
func (s *Server) unmatched(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	known := make([]string, 0, len(s.stubs))
	for _, st := range s.stubs {
		known = append(known, st.stub.Name)
	}
	s.mu.Unlock()

	s.logger.Warn("unmatched request", "method", r.Method, "path", r.URL.Path)
	s.writeDiagnostic(w, http.StatusTeapot, "no stub matches request", map[string]any{
		"method": r.Method,
		"path":   r.URL.Path,
		"stubs":  known,
	})
}

func (s *Server) writeDiagnostic(w http.ResponseWriter, status int, msg string, details map[string]any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]any{
		"error":   msg,
		"details": details,
	})
}
