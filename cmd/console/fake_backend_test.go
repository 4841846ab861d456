package main

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"sync"
	"testing"

	"github.com/lllypuk/userdesk/internal/userapi"
)

// fakeUsersAPI is an in-memory users REST backend mounted under /api.
type fakeUsersAPI struct {
	mu     sync.Mutex
	users  []userapi.User
	nextID int64
}

func newFakeUsersAPI(t *testing.T, users ...userapi.User) (*fakeUsersAPI, *httptest.Server) {
	t.Helper()

	api := &fakeUsersAPI{users: users, nextID: int64(len(users)) + 1}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/users", api.list)
	mux.HandleFunc("POST /api/users", api.create)
	mux.HandleFunc("PUT /api/users/{id}", api.update)
	mux.HandleFunc("DELETE /api/users/{id}", api.remove)

	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)

	return api, srv
}

func (a *fakeUsersAPI) list(w http.ResponseWriter, r *http.Request) {
	a.mu.Lock()
	defer a.mu.Unlock()

	page, _ := strconv.Atoi(r.URL.Query().Get("page"))
	size, _ := strconv.Atoi(r.URL.Query().Get("size"))
	q := r.URL.Query().Get("q")

	var matched []userapi.User
	for _, u := range a.users {
		if q == "" || strings.Contains(u.Username, q) {
			matched = append(matched, u)
		}
	}

	start := min(page*size, len(matched))
	end := min(start+size, len(matched))

	writeJSON(w, http.StatusOK, userapi.PageResult{
		Content:       matched[start:end],
		TotalElements: len(matched),
		Number:        page,
		Size:          size,
	})
}

func (a *fakeUsersAPI) create(w http.ResponseWriter, r *http.Request) {
	var req userapi.CreateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"message": "bad body"})
		return
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	for _, u := range a.users {
		if u.Username == req.Username {
			writeJSON(w, http.StatusConflict, map[string]string{"message": "Username already exists"})
			return
		}
	}

	u := userapi.User{ID: a.nextID, Username: req.Username, Email: req.Email}
	a.nextID++
	a.users = append([]userapi.User{u}, a.users...)
	writeJSON(w, http.StatusCreated, u)
}

func (a *fakeUsersAPI) update(w http.ResponseWriter, r *http.Request) {
	id, _ := strconv.ParseInt(r.PathValue("id"), 10, 64)

	var req userapi.UpdateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"message": "bad body"})
		return
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	for i, u := range a.users {
		if u.ID == id {
			a.users[i].Username = req.Username
			a.users[i].Email = req.Email
			writeJSON(w, http.StatusOK, a.users[i])
			return
		}
	}
	writeJSON(w, http.StatusNotFound, map[string]string{"error": "Not Found"})
}

func (a *fakeUsersAPI) remove(w http.ResponseWriter, r *http.Request) {
	id, _ := strconv.ParseInt(r.PathValue("id"), 10, 64)

	a.mu.Lock()
	defer a.mu.Unlock()

	for i, u := range a.users {
		if u.ID == id {
			a.users = append(a.users[:i], a.users[i+1:]...)
			w.WriteHeader(http.StatusNoContent)
			return
		}
	}
	w.WriteHeader(http.StatusNotFound)
}

func (a *fakeUsersAPI) count() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.users)
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}
