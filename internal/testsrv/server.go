// Package testsrv is an in-process fake of the screening service for tests.
// It keeps sessions per X-User-Id the way the real service does, issues
// guest tokens, and counts calls per route so tests can assert exactly which
// network round-trips an operation made.
package testsrv

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"sort"
	"strings"
	gosync "sync"
	"testing"
	"time"

	"github.com/gorilla/mux"
)

// Route names, as counted by Calls.
const (
	RouteGuestLogin  = "guest-login"
	RouteGuestLogout = "guest-logout"
	RouteList        = "sessions-list"
	RouteCurrent     = "sessions-current"
	RouteCreate      = "sessions-create"
	RouteSetActive   = "sessions-set-active"
	RouteRename      = "sessions-rename"
	RouteDelete      = "sessions-delete"
	RouteFiles       = "sessions-files"
	RouteUpload      = "upload"
	RouteRank        = "rank"
	RouteInsights    = "insights"
)

// DefaultGuestTTL matches the service's guest lifetime.
const DefaultGuestTTL = 3 * time.Minute

// anonymousUser is the service's identity for requests without X-User-Id.
const anonymousUser = "guest"

// Request is one recorded call.
type Request struct {
	Route         string
	Method        string
	Path          string
	UserID        string
	Authorization string
	RequestID     string
}

type session struct {
	id      string
	name    string
	created time.Time
	files   []string
}

type user struct {
	sessions map[string]*session
	active   string
}

type failure struct {
	status   int
	detail   string
	envelope bool
}

// Server is the fake service. Safe for concurrent use.
type Server struct {
	srv *httptest.Server

	mu       gosync.Mutex
	users    map[string]*user
	guests   map[string]time.Time
	calls    map[string]int
	requests []Request
	failures map[string][]failure
	seq      int

	// GuestTTL is the lifetime of issued guest tokens.
	GuestTTL time.Duration

	// Now is the server clock.
	Now func() time.Time
}

// New starts a fake service that is shut down when the test ends.
func New(t testing.TB) *Server {
	t.Helper()

	s := &Server{
		users:    make(map[string]*user),
		guests:   make(map[string]time.Time),
		calls:    make(map[string]int),
		failures: make(map[string][]failure),
		GuestTTL: DefaultGuestTTL,
		Now:      time.Now,
	}

	s.srv = httptest.NewServer(s.router())
	t.Cleanup(s.srv.Close)

	return s
}

// URL is the API root, including the "/api" prefix.
func (s *Server) URL() string {
	return s.srv.URL + "/api"
}

// Client returns an HTTP client for the server.
func (s *Server) Client() *http.Client {
	return s.srv.Client()
}

// Calls returns how many requests hit the named route.
func (s *Server) Calls(route string) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.calls[route]
}

// TotalCalls returns how many requests hit any route.
func (s *Server) TotalCalls() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	return len(s.requests)
}

// Requests returns every recorded request in arrival order.
func (s *Server) Requests() []Request {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]Request, len(s.requests))
	copy(out, s.requests)

	return out
}

// Routes returns the names of recorded requests in arrival order.
func (s *Server) Routes() []string {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]string, 0, len(s.requests))
	for _, r := range s.requests {
		out = append(out, r.Route)
	}

	return out
}

// ResetCalls forgets every recorded request.
func (s *Server) ResetCalls() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.calls = make(map[string]int)
	s.requests = nil
}

// FailNext makes the next call to route fail with status and a FastAPI
// style detail message.
func (s *Server) FailNext(route string, status int, detail string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.failures[route] = append(s.failures[route], failure{status: status, detail: detail})
}

// FailEnvelopeNext makes the next call to route answer 200 with an
// unsuccessful envelope.
func (s *Server) FailEnvelopeNext(route string, message string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.failures[route] = append(s.failures[route], failure{envelope: true, detail: message})
}

// SeedSession creates a session for userID without counting a call.
func (s *Server) SeedSession(userID, name string) string {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.createLocked(userID, name).id
}

// DeleteRemotely removes a session behind the client's back.
func (s *Server) DeleteRemotely(userID, id string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	u := s.userLocked(userID)
	delete(u.sessions, id)

	if u.active == id {
		u.active = ""
	}
}

// Active returns the server-side active session of userID.
func (s *Server) Active(userID string) string {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.userLocked(userID).active
}

// SessionNames returns the session names of userID, sorted.
func (s *Server) SessionNames(userID string) []string {
	s.mu.Lock()
	defer s.mu.Unlock()

	var names []string
	for _, sess := range s.userLocked(userID).sessions {
		names = append(names, sess.name)
	}

	sort.Strings(names)

	return names
}

// GuestValid reports whether token is a live guest token.
func (s *Server) GuestValid(token string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	exp, ok := s.guests[token]

	return ok && s.Now().Before(exp)
}

func (s *Server) router() *mux.Router {
	r := mux.NewRouter()
	r.Use(s.record)

	api := r.PathPrefix("/api").Subrouter()

	api.HandleFunc("/auth/guest-login", s.guestLogin).Methods(http.MethodPost).Name(RouteGuestLogin)
	api.HandleFunc("/auth/guest-logout", s.guestLogout).Methods(http.MethodPost).Name(RouteGuestLogout)
	api.HandleFunc("/sessions/list", s.list).Methods(http.MethodGet).Name(RouteList)
	api.HandleFunc("/sessions/current", s.current).Methods(http.MethodGet).Name(RouteCurrent)
	api.HandleFunc("/sessions/create", s.create).Methods(http.MethodPost).Name(RouteCreate)
	api.HandleFunc("/sessions/{id}/set-active", s.setActive).Methods(http.MethodPost).Name(RouteSetActive)
	api.HandleFunc("/sessions/{id}/name", s.rename).Methods(http.MethodPut).Name(RouteRename)
	api.HandleFunc("/sessions/{id}/files", s.files).Methods(http.MethodGet).Name(RouteFiles)
	api.HandleFunc("/sessions/{id}", s.delete).Methods(http.MethodDelete).Name(RouteDelete)
	api.HandleFunc("/upload", s.upload).Methods(http.MethodPost).Name(RouteUpload)
	api.HandleFunc("/rank", s.rank).Methods(http.MethodPost).Name(RouteRank)
	api.HandleFunc("/insights", s.insights).Methods(http.MethodGet).Name(RouteInsights)

	return r
}

// record counts the call and serves any injected failure for the route.
func (s *Server) record(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		name := ""
		if route := mux.CurrentRoute(r); route != nil {
			name = route.GetName()
		}

		s.mu.Lock()
		s.calls[name]++
		s.requests = append(s.requests, Request{
			Route:         name,
			Method:        r.Method,
			Path:          r.URL.Path,
			UserID:        r.Header.Get("X-User-Id"),
			Authorization: r.Header.Get("Authorization"),
			RequestID:     r.Header.Get("X-Request-Id"),
		})

		var f *failure
		if queue := s.failures[name]; len(queue) > 0 {
			f = &queue[0]
			s.failures[name] = queue[1:]
		}
		s.mu.Unlock()

		if f != nil {
			if f.envelope {
				writeJSON(w, http.StatusOK, map[string]any{"status": "error", "message": f.detail})
				return
			}

			writeJSON(w, f.status, map[string]any{"detail": f.detail})

			return
		}

		next.ServeHTTP(w, r)
	})
}

func (s *Server) guestLogin(w http.ResponseWriter, _ *http.Request) {
	s.mu.Lock()
	s.seq++
	token := fmt.Sprintf("guest-token-%08d", s.seq)
	expiry := s.Now().Add(s.GuestTTL)
	s.guests[token] = expiry
	s.mu.Unlock()

	writeJSON(w, http.StatusOK, map[string]any{
		"access_token": token,
		"token_type":   "bearer",
		"expires_at":   expiry.UTC().Format(time.RFC3339Nano),
	})
}

func (s *Server) guestLogout(w http.ResponseWriter, r *http.Request) {
	token := strings.TrimPrefix(r.Header.Get("Authorization"), "Bearer ")

	s.mu.Lock()
	delete(s.guests, token)
	s.mu.Unlock()

	writeJSON(w, http.StatusOK, map[string]any{"status": "success"})
}

func (s *Server) list(w http.ResponseWriter, r *http.Request) {
	uid := userID(r)

	s.mu.Lock()
	u := s.userLocked(uid)
	sessions := make([]*session, 0, len(u.sessions))

	for _, sess := range u.sessions {
		sessions = append(sessions, sess)
	}

	sort.Slice(sessions, func(i, j int) bool {
		if !sessions[i].created.Equal(sessions[j].created) {
			return sessions[i].created.After(sessions[j].created)
		}

		return sessions[i].id > sessions[j].id
	})

	out := make([]map[string]any, 0, len(sessions))
	for _, sess := range sessions {
		out = append(out, map[string]any{
			"session_id": sess.id,
			"name":       sess.name,
			"created":    sess.created.Format("2006-01-02T15:04:05.000000"),
			"blob_count": len(sess.files),
		})
	}
	s.mu.Unlock()

	writeJSON(w, http.StatusOK, map[string]any{
		"status":   "success",
		"user_id":  uid,
		"sessions": out,
		"total":    len(out),
	})
}

func (s *Server) current(w http.ResponseWriter, r *http.Request) {
	uid := userID(r)

	s.mu.Lock()
	u := s.userLocked(uid)
	if u.active == "" {
		s.createLocked(uid, "")
	}
	active := u.active
	s.mu.Unlock()

	writeJSON(w, http.StatusOK, map[string]any{
		"status":       "success",
		"session_id":   active,
		"session_path": uid + "/" + active + "/",
		"user_id":      uid,
	})
}

func (s *Server) create(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Name string `json:"name"`
	}

	if err := decodeBody(r, &body); err != nil {
		writeJSON(w, http.StatusUnprocessableEntity, map[string]any{"detail": err.Error()})
		return
	}

	uid := userID(r)

	s.mu.Lock()
	sess := s.createLocked(uid, body.Name)
	s.mu.Unlock()

	writeJSON(w, http.StatusOK, map[string]any{
		"status":       "success",
		"session_id":   sess.id,
		"name":         sess.name,
		"session_path": uid + "/" + sess.id + "/",
		"user_id":      uid,
	})
}

func (s *Server) setActive(w http.ResponseWriter, r *http.Request) {
	uid, id := userID(r), mux.Vars(r)["id"]

	s.mu.Lock()
	s.userLocked(uid).active = id
	s.mu.Unlock()

	writeJSON(w, http.StatusOK, map[string]any{
		"status":       "success",
		"message":      "Active session updated",
		"session_id":   id,
		"session_path": uid + "/" + id + "/",
	})
}

func (s *Server) rename(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Name string `json:"name"`
	}

	if err := decodeBody(r, &body); err != nil || body.Name == "" {
		writeJSON(w, http.StatusUnprocessableEntity, map[string]any{
			"detail": []map[string]any{{"msg": "field required", "loc": []string{"body", "name"}}},
		})

		return
	}

	uid, id := userID(r), mux.Vars(r)["id"]

	s.mu.Lock()
	sess, ok := s.userLocked(uid).sessions[id]
	if ok {
		sess.name = body.Name
	}
	s.mu.Unlock()

	if !ok {
		writeJSON(w, http.StatusInternalServerError, map[string]any{"detail": "Failed to update session name"})
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{"status": "success", "session_id": id, "name": body.Name})
}

func (s *Server) delete(w http.ResponseWriter, r *http.Request) {
	uid, id := userID(r), mux.Vars(r)["id"]

	s.mu.Lock()
	u := s.userLocked(uid)
	deleted := 0

	if sess, ok := u.sessions[id]; ok {
		deleted = len(sess.files) + 1
		delete(u.sessions, id)
	}

	if u.active == id {
		u.active = ""
	}
	s.mu.Unlock()

	writeJSON(w, http.StatusOK, map[string]any{"status": "success", "session_id": id, "deleted_blobs": deleted})
}

func (s *Server) files(w http.ResponseWriter, r *http.Request) {
	uid, id := userID(r), mux.Vars(r)["id"]
	prefix := r.URL.Query().Get("prefix")

	s.mu.Lock()
	var files []string

	if sess, ok := s.userLocked(uid).sessions[id]; ok {
		for _, f := range sess.files {
			if strings.HasPrefix(f, prefix) {
				files = append(files, f)
			}
		}
	}
	s.mu.Unlock()

	if files == nil {
		files = []string{}
	}

	writeJSON(w, http.StatusOK, map[string]any{"status": "success", "session_id": id, "files": files, "total": len(files)})
}

func (s *Server) upload(w http.ResponseWriter, r *http.Request) {
	f, hdr, err := r.FormFile("file")
	if err != nil {
		writeJSON(w, http.StatusUnprocessableEntity, map[string]any{"detail": "file: field required"})
		return
	}
	defer f.Close()

	content, err := io.ReadAll(f)
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]any{"detail": err.Error()})
		return
	}

	uid := userID(r)
	blobName := "raw_resumes/" + hdr.Filename

	s.mu.Lock()
	u := s.userLocked(uid)
	if u.active == "" {
		s.createLocked(uid, "")
	}
	sess := u.sessions[u.active]
	sess.files = append(sess.files, blobName)
	s.mu.Unlock()

	writeJSON(w, http.StatusOK, map[string]any{
		"status":    "success",
		"file":      hdr.Filename,
		"parsed":    map[string]any{"text_length": len(content)},
		"blob_url":  "memory://" + uid + "/" + sess.id + "/" + blobName,
		"blob_name": blobName,
	})
}

func (s *Server) rank(w http.ResponseWriter, r *http.Request) {
	var body struct {
		JobDescription string `json:"job_description"`
	}

	if err := decodeBody(r, &body); err != nil || body.JobDescription == "" {
		writeJSON(w, http.StatusUnprocessableEntity, map[string]any{
			"detail": []map[string]any{{"msg": "field required", "loc": []string{"body", "job_description"}}},
		})

		return
	}

	uid := userID(r)

	s.mu.Lock()
	var files []string

	for _, sess := range s.userLocked(uid).sessions {
		files = append(files, sess.files...)
	}
	s.mu.Unlock()

	if len(files) == 0 {
		writeJSON(w, http.StatusInternalServerError, map[string]any{"detail": "404: No resumes found in blob storage"})
		return
	}

	sort.Strings(files)

	ranked := make([]map[string]any, 0, len(files))
	for i, f := range files {
		score := 1.0 / float64(i+1)
		ranked = append(ranked, map[string]any{
			"file":            strings.TrimPrefix(f, "raw_resumes/"),
			"embedding_score": score,
			"tfidf_score":     score,
			"hybrid_score":    score,
			"skills":          []string{"go"},
		})
	}

	writeJSON(w, http.StatusOK, map[string]any{"status": "success", "ranked_resumes": ranked})
}

func (s *Server) insights(w http.ResponseWriter, r *http.Request) {
	uid := userID(r)

	s.mu.Lock()
	total := 0

	for _, sess := range s.userLocked(uid).sessions {
		total += len(sess.files)
	}
	s.mu.Unlock()

	writeJSON(w, http.StatusOK, map[string]any{
		"status": "success",
		"insights": map[string]any{
			"total_resumes":       total,
			"average_score":       0,
			"high_matches":        0,
			"medium_matches":      0,
			"low_matches":         total,
			"skills_distribution": []any{},
			"score_distribution":  []any{},
		},
	})
}

func (s *Server) userLocked(id string) *user {
	u, ok := s.users[id]
	if !ok {
		u = &user{sessions: make(map[string]*session)}
		s.users[id] = u
	}

	return u
}

// createLocked creates a session and makes it active, as the service does.
func (s *Server) createLocked(uid, name string) *session {
	s.seq++

	now := s.Now()
	id := fmt.Sprintf("session_%s_%04d", now.Format("20060102_150405"), s.seq)

	if name == "" {
		name = "Session " + now.Format("20060102_150405")
	}

	sess := &session{id: id, name: name, created: now.Add(time.Duration(s.seq) * time.Microsecond)}

	u := s.userLocked(uid)
	u.sessions[id] = sess
	u.active = id

	return sess
}

func userID(r *http.Request) string {
	if id := r.Header.Get("X-User-Id"); id != "" {
		return id
	}

	return anonymousUser
}

func decodeBody(r *http.Request, v any) error {
	if r.Body == nil {
		return nil
	}

	err := json.NewDecoder(r.Body).Decode(v)
	if err == io.EOF {
		return nil
	}

	return err
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
