// Package apptest runs an in-memory document store that speaks enough of
// the account, databases and realtime APIs for tests.
package apptest

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sort"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/Makepad-fr/tada/internal/config"
	"github.com/Makepad-fr/tada/internal/model"
)

const (
	Project           = "test-project"
	DatabaseID        = "db"
	TodosCollectionID = "todos"
	StepsCollectionID = "steps"
)

type document map[string]any

type failure struct {
	method string
	path   string
	status int
}

// Server is a fake store. All methods are safe for concurrent use.
type Server struct {
	*httptest.Server

	mu          sync.Mutex
	clock       time.Time
	collections map[string]map[string]document
	users       map[string]model.Identity
	sessions    map[string]string // secret -> user id
	loginTokens map[string]string // secret -> user id
	oauthUser   string
	failures    []failure
	subscribers map[*subscriber]struct{}
}

type subscriber struct {
	conn     *websocket.Conn
	channels map[string]bool
	writeMu  sync.Mutex
}

func (sub *subscriber) write(v any) error {
	sub.writeMu.Lock()
	defer sub.writeMu.Unlock()
	return sub.conn.WriteJSON(v)
}

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// New starts a server that is shut down when the test ends.
func New(t testing.TB) *Server {
	s := &Server{
		clock: time.Date(2024, 9, 5, 10, 0, 0, 0, time.UTC),
		collections: map[string]map[string]document{
			TodosCollectionID: {},
			StepsCollectionID: {},
		},
		users:       map[string]model.Identity{},
		sessions:    map[string]string{},
		loginTokens: map[string]string{},
		subscribers: map[*subscriber]struct{}{},
	}
	s.Server = httptest.NewServer(s.routes())
	t.Cleanup(func() {
		s.DropSubscribers()
		s.Close()
	})
	return s
}

// Config points a client at this server.
func (s *Server) Config() *config.Config {
	return &config.Config{
		Endpoint:          s.URL + "/v1",
		Project:           Project,
		DatabaseID:        DatabaseID,
		TodosCollectionID: TodosCollectionID,
		StepsCollectionID: StepsCollectionID,
		RequestTimeout:    5 * time.Second,
		LogLevel:          "debug",
	}
}

func (s *Server) routes() http.Handler {
	r := chi.NewRouter()
	r.Route("/v1", func(r chi.Router) {
		r.Use(s.failureInjector)
		r.Use(s.requireProject)
		r.Get("/realtime", s.realtime)
		r.Get("/account", s.getAccount)
		r.Get("/account/tokens/oauth2/{provider}", s.oauth2Token)
		r.Post("/account/sessions/token", s.createSession)
		r.Delete("/account/sessions/{session}", s.deleteSession)
		r.Route("/databases/{db}/collections/{coll}/documents", func(r chi.Router) {
			r.Use(s.requireSession)
			r.Get("/", s.listDocuments)
			r.Post("/", s.createDocument)
			r.Patch("/{id}", s.updateDocument)
			r.Delete("/{id}", s.deleteDocument)
		})
	})
	return r
}

// ---------------------------------------------------
// Test controls
// ---------------------------------------------------

// AddUser registers a user and returns a live session secret for it.
func (s *Server) AddUser(id model.Identity) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.users[id.ID] = id
	secret := "session-" + uuid.NewString()
	s.sessions[secret] = id.ID
	return secret
}

// SetOAuthUser makes the oauth2 redirect log in as userID. An empty id
// makes the provider refuse.
func (s *Server) SetOAuthUser(userID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.oauthUser = userID
}

// FailNext makes the next request whose method matches and whose path
// contains path answer with status.
func (s *Server) FailNext(method, path string, status int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failures = append(s.failures, failure{method: method, path: path, status: status})
}

// Seed inserts a document directly, without notifying subscribers.
func (s *Server) Seed(collection string, fields map[string]any) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	id, _ := fields["$id"].(string)
	if id == "" {
		id = uuid.NewString()
	}
	s.insert(collection, id, fields)
	return id
}

// Document returns a copy of a stored document.
func (s *Server) Document(collection, id string) (map[string]any, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	doc, ok := s.collections[collection][id]
	if !ok {
		return nil, false
	}
	out := make(map[string]any, len(doc))
	for k, v := range doc {
		out[k] = v
	}
	return out, true
}

// Count is the number of documents in a collection.
func (s *Server) Count(collection string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.collections[collection])
}

// Subscribers is the number of open realtime connections.
func (s *Server) Subscribers() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.subscribers)
}

// DropSubscribers closes every realtime connection from the server side.
func (s *Server) DropSubscribers() {
	s.mu.Lock()
	subs := make([]*subscriber, 0, len(s.subscribers))
	for sub := range s.subscribers {
		subs = append(subs, sub)
	}
	s.mu.Unlock()
	for _, sub := range subs {
		sub.conn.Close()
	}
}

// Publish sends a change event for a document as if it had been written.
func (s *Server) Publish(collection, id, action string) {
	s.publish(collection, id, action, document{"$id": id})
}

// ---------------------------------------------------
// Middleware
// ---------------------------------------------------

func (s *Server) failureInjector(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		s.mu.Lock()
		for i, f := range s.failures {
			if f.method == r.Method && strings.Contains(r.URL.Path, f.path) {
				s.failures = append(s.failures[:i], s.failures[i+1:]...)
				s.mu.Unlock()
				writeError(w, f.status, "injected_failure", "injected failure")
				return
			}
		}
		s.mu.Unlock()
		next.ServeHTTP(w, r)
	})
}

func (s *Server) requireProject(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		project := r.Header.Get("X-Appwrite-Project")
		if project == "" {
			project = r.URL.Query().Get("project")
		}
		if project != Project {
			writeError(w, http.StatusNotFound, "project_not_found", "Project with the requested ID could not be found.")
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) requireSession(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if _, ok := s.userFor(r); !ok {
			writeError(w, http.StatusUnauthorized, "general_unauthorized_scope", "User (role: guests) missing scope (documents.read)")
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) userFor(r *http.Request) (model.Identity, bool) {
	secret := r.Header.Get("X-Appwrite-Session")
	s.mu.Lock()
	defer s.mu.Unlock()
	uid, ok := s.sessions[secret]
	if !ok {
		return model.Identity{}, false
	}
	return s.users[uid], true
}

// ---------------------------------------------------
// Account
// ---------------------------------------------------

func (s *Server) getAccount(w http.ResponseWriter, r *http.Request) {
	id, ok := s.userFor(r)
	if !ok {
		writeError(w, http.StatusUnauthorized, "general_unauthorized_scope", "User (role: guests) missing scope (account)")
		return
	}
	writeJSON(w, http.StatusOK, id)
}

func (s *Server) oauth2Token(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	s.mu.Lock()
	uid := s.oauthUser
	secret := ""
	if uid != "" {
		secret = "login-" + uuid.NewString()
		s.loginTokens[secret] = uid
	}
	s.mu.Unlock()

	if uid == "" {
		target, _ := url.Parse(q.Get("failure"))
		target.RawQuery = url.Values{"error": {"access_denied"}}.Encode()
		http.Redirect(w, r, target.String(), http.StatusFound)
		return
	}
	target, err := url.Parse(q.Get("success"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "general_argument_invalid", err.Error())
		return
	}
	target.RawQuery = url.Values{"userId": {uid}, "secret": {secret}}.Encode()
	http.Redirect(w, r, target.String(), http.StatusFound)
}

func (s *Server) createSession(w http.ResponseWriter, r *http.Request) {
	var args struct {
		UserID string `json:"userId"`
		Secret string `json:"secret"`
	}
	if err := json.NewDecoder(r.Body).Decode(&args); err != nil {
		writeError(w, http.StatusBadRequest, "general_argument_invalid", err.Error())
		return
	}
	s.mu.Lock()
	uid, ok := s.loginTokens[args.Secret]
	if ok && uid == args.UserID {
		delete(s.loginTokens, args.Secret)
	}
	s.mu.Unlock()
	if !ok || uid != args.UserID {
		writeError(w, http.StatusUnauthorized, "user_invalid_token", "Invalid token passed in the request.")
		return
	}

	secret := "session-" + uuid.NewString()
	s.mu.Lock()
	s.sessions[secret] = uid
	s.mu.Unlock()

	cookies, _ := json.Marshal(map[string]string{"a_session_" + Project: secret})
	w.Header().Set("X-Fallback-Cookies", string(cookies))
	writeJSON(w, http.StatusCreated, map[string]any{
		"$id":    uuid.NewString(),
		"userId": uid,
		"secret": "",
		"expire": time.Now().Add(24 * time.Hour).UTC().Format(time.RFC3339),
	})
}

func (s *Server) deleteSession(w http.ResponseWriter, r *http.Request) {
	secret := r.Header.Get("X-Appwrite-Session")
	s.mu.Lock()
	_, ok := s.sessions[secret]
	delete(s.sessions, secret)
	s.mu.Unlock()
	if !ok || chi.URLParam(r, "session") != "current" {
		writeError(w, http.StatusUnauthorized, "general_unauthorized_scope", "User (role: guests) missing scope (account)")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// ---------------------------------------------------
// Documents
// ---------------------------------------------------

func (s *Server) collection(w http.ResponseWriter, r *http.Request) (string, bool) {
	coll := chi.URLParam(r, "coll")
	if chi.URLParam(r, "db") != DatabaseID {
		writeError(w, http.StatusNotFound, "database_not_found", "Database not found")
		return "", false
	}
	s.mu.Lock()
	_, ok := s.collections[coll]
	s.mu.Unlock()
	if !ok {
		writeError(w, http.StatusNotFound, "collection_not_found", "Collection with the requested ID could not be found.")
		return "", false
	}
	return coll, true
}

func (s *Server) listDocuments(w http.ResponseWriter, r *http.Request) {
	coll, ok := s.collection(w, r)
	if !ok {
		return
	}
	desc := false
	for _, raw := range r.URL.Query()["queries[]"] {
		var q struct {
			Method    string `json:"method"`
			Attribute string `json:"attribute"`
		}
		if err := json.Unmarshal([]byte(raw), &q); err != nil {
			writeError(w, http.StatusBadRequest, "general_query_invalid", err.Error())
			return
		}
		if q.Method == "orderDesc" && q.Attribute == "$createdAt" {
			desc = true
		}
	}

	s.mu.Lock()
	docs := make([]document, 0, len(s.collections[coll]))
	for _, d := range s.collections[coll] {
		docs = append(docs, d)
	}
	s.mu.Unlock()

	sort.Slice(docs, func(i, j int) bool {
		a, b := docs[i]["$createdAt"].(string), docs[j]["$createdAt"].(string)
		if desc {
			return a > b
		}
		return a < b
	})
	writeJSON(w, http.StatusOK, map[string]any{"total": len(docs), "documents": docs})
}

func (s *Server) createDocument(w http.ResponseWriter, r *http.Request) {
	coll, ok := s.collection(w, r)
	if !ok {
		return
	}
	var args struct {
		DocumentID string         `json:"documentId"`
		Data       map[string]any `json:"data"`
	}
	if err := json.NewDecoder(r.Body).Decode(&args); err != nil {
		writeError(w, http.StatusBadRequest, "general_argument_invalid", err.Error())
		return
	}
	if args.DocumentID == "" || args.DocumentID == "unique()" {
		args.DocumentID = uuid.NewString()
	}

	s.mu.Lock()
	if _, exists := s.collections[coll][args.DocumentID]; exists {
		s.mu.Unlock()
		writeError(w, http.StatusConflict, "document_already_exists", "Document with the requested ID already exists.")
		return
	}
	doc := s.insert(coll, args.DocumentID, args.Data)
	s.mu.Unlock()

	s.publish(coll, args.DocumentID, "create", doc)
	writeJSON(w, http.StatusCreated, doc)
}

func (s *Server) updateDocument(w http.ResponseWriter, r *http.Request) {
	coll, ok := s.collection(w, r)
	if !ok {
		return
	}
	id := chi.URLParam(r, "id")
	var args struct {
		Data map[string]any `json:"data"`
	}
	if err := json.NewDecoder(r.Body).Decode(&args); err != nil {
		writeError(w, http.StatusBadRequest, "general_argument_invalid", err.Error())
		return
	}

	s.mu.Lock()
	doc, exists := s.collections[coll][id]
	if !exists {
		s.mu.Unlock()
		writeError(w, http.StatusNotFound, "document_not_found", "Document with the requested ID could not be found.")
		return
	}
	for k, v := range args.Data {
		if !strings.HasPrefix(k, "$") {
			doc[k] = v
		}
	}
	s.clock = s.clock.Add(time.Second)
	doc["$updatedAt"] = s.clock.Format(time.RFC3339Nano)
	snapshot := copyDoc(doc)
	s.mu.Unlock()

	s.publish(coll, id, "update", snapshot)
	writeJSON(w, http.StatusOK, snapshot)
}

func (s *Server) deleteDocument(w http.ResponseWriter, r *http.Request) {
	coll, ok := s.collection(w, r)
	if !ok {
		return
	}
	id := chi.URLParam(r, "id")
	s.mu.Lock()
	doc, exists := s.collections[coll][id]
	delete(s.collections[coll], id)
	s.mu.Unlock()
	if !exists {
		writeError(w, http.StatusNotFound, "document_not_found", "Document with the requested ID could not be found.")
		return
	}
	s.publish(coll, id, "delete", doc)
	w.WriteHeader(http.StatusNoContent)
}

// insert must be called with mu held.
func (s *Server) insert(coll, id string, fields map[string]any) document {
	s.clock = s.clock.Add(time.Second)
	doc := document{}
	for k, v := range fields {
		doc[k] = v
	}
	doc["$id"] = id
	if _, ok := doc["$createdAt"]; !ok {
		doc["$createdAt"] = s.clock.Format(time.RFC3339Nano)
	}
	doc["$updatedAt"] = doc["$createdAt"]
	doc["$collectionId"] = coll
	doc["$databaseId"] = DatabaseID
	s.collections[coll][id] = doc
	return copyDoc(doc)
}

func copyDoc(d document) document {
	out := make(document, len(d))
	for k, v := range d {
		out[k] = v
	}
	return out
}

// ---------------------------------------------------
// Realtime
// ---------------------------------------------------

func (s *Server) realtime(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	sub := &subscriber{conn: conn, channels: map[string]bool{}}
	for _, ch := range r.URL.Query()["channels[]"] {
		sub.channels[ch] = true
	}

	s.mu.Lock()
	s.subscribers[sub] = struct{}{}
	s.mu.Unlock()
	defer func() {
		s.mu.Lock()
		delete(s.subscribers, sub)
		s.mu.Unlock()
		conn.Close()
	}()

	channels := make([]string, 0, len(sub.channels))
	for ch := range sub.channels {
		channels = append(channels, ch)
	}
	if err := sub.write(frame("connected", map[string]any{"channels": channels})); err != nil {
		return
	}

	for {
		var in struct {
			Type string          `json:"type"`
			Data json.RawMessage `json:"data"`
		}
		if err := conn.ReadJSON(&in); err != nil {
			return
		}
		switch in.Type {
		case "ping":
			_ = sub.write(frame("pong", nil))
		case "authentication":
			var data struct {
				Session string `json:"session"`
			}
			_ = json.Unmarshal(in.Data, &data)
			s.mu.Lock()
			_, ok := s.sessions[data.Session]
			s.mu.Unlock()
			if !ok {
				_ = sub.write(frame("error", map[string]any{"code": 1003, "message": "Session is not valid."}))
				continue
			}
			_ = sub.write(frame("response", map[string]any{"to": "authentication", "success": true}))
		}
	}
}

func frame(typ string, data any) map[string]any {
	f := map[string]any{"type": typ}
	if data != nil {
		f["data"] = data
	}
	return f
}

func (s *Server) publish(coll, id, action string, payload document) {
	channel := fmt.Sprintf("databases.%s.collections.%s.documents", DatabaseID, coll)
	events := []string{
		fmt.Sprintf("databases.%s.collections.%s.documents.%s.%s", DatabaseID, coll, id, action),
		fmt.Sprintf("databases.%s.collections.%s.documents.%s", DatabaseID, coll, id),
		"databases.*.collections.*.documents.*." + action,
		"databases.*.collections.*.documents.*",
	}
	msg := frame("event", map[string]any{
		"events":    events,
		"channels":  []string{channel, "documents", channel + "." + id},
		"timestamp": time.Now().UTC().Format(time.RFC3339Nano),
		"payload":   payload,
	})

	s.mu.Lock()
	targets := make([]*subscriber, 0, len(s.subscribers))
	for sub := range s.subscribers {
		if sub.channels[channel] {
			targets = append(targets, sub)
		}
	}
	s.mu.Unlock()
	for _, sub := range targets {
		_ = sub.write(msg)
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, typ, msg string) {
	writeJSON(w, status, map[string]any{"message": msg, "code": status, "type": typ})
}
