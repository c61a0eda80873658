package friends

import (
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"followbot/internal/components/chrono"
	"followbot/internal/components/telemetry"
	"followbot/internal/session"
)

const usersPath = "/apisite/friends/v1/users"

type reply struct {
	code  int
	body  string
	token string
}

type recorded struct {
	method string
	path   string
	token  string
	dog    string
}

// fakeRemote scripts the friends API: each (method, path) gets a queue of
// replies that are handed out in order. Unscripted requests fail the test.
type fakeRemote struct {
	t        *testing.T
	mu       sync.Mutex
	replies  map[string][]reply
	requests []recorded
	server   *httptest.Server
}

func newFakeRemote(t *testing.T) *fakeRemote {
	f := &fakeRemote{t: t, replies: map[string][]reply{}}
	f.server = httptest.NewServer(http.HandlerFunc(f.handle))
	t.Cleanup(f.server.Close)
	return f
}

func followUrlPath(id int64) string {
	return fmt.Sprintf("%s/%d/follow", usersPath, id)
}

func (f *fakeRemote) script(method string, id int64, replies ...reply) {
	f.mu.Lock()
	defer f.mu.Unlock()
	key := method + " " + followUrlPath(id)
	f.replies[key] = append(f.replies[key], replies...)
}

func (f *fakeRemote) handle(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()

	rec := recorded{
		method: r.Method,
		path:   r.URL.Path,
		token:  r.Header.Get(session.TokenHeader),
	}
	if dog, err := r.Cookie(session.CookieDogSecurity); err == nil {
		rec.dog = dog.Value
	}
	f.requests = append(f.requests, rec)

	key := r.Method + " " + r.URL.Path
	queue := f.replies[key]
	if len(queue) == 0 {
		f.t.Errorf("unexpected request: %s", key)
		w.WriteHeader(http.StatusInternalServerError)
		return
	}
	next := queue[0]
	f.replies[key] = queue[1:]

	if next.token != "" {
		w.Header().Set("x-csrf-token", next.token)
	}
	code := next.code
	if code == 0 {
		code = http.StatusOK
	}
	w.WriteHeader(code)
	_, _ = w.Write([]byte(next.body))
}

func (f *fakeRemote) recorded() []recorded {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]recorded(nil), f.requests...)
}

func (f *fakeRemote) count(method string, id int64) int {
	n := 0
	for _, r := range f.recorded() {
		if r.method == method && r.path == followUrlPath(id) {
			n++
		}
	}
	return n
}

type harness struct {
	remote  *fakeRemote
	session *session.Session
	clock   *chrono.FakeImpl
	tel     *telemetry.Recorder
	client  *Client
}

func newHarness(t *testing.T, token string) harness {
	remote := newFakeRemote(t)
	sess := session.FromCredentials(session.Credentials{
		DogSecurity:  "dog",
		PekoSecurity: "peko",
		Token:        token,
	})
	clock := chrono.NewFakeImpl(time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC))
	tel := &telemetry.Recorder{}

	client := NewClient(sess, clock, tel, Options{
		BaseUrl: remote.server.URL + usersPath,
		Timeout: 5 * time.Second,
	})

	return harness{
		remote:  remote,
		session: sess,
		clock:   clock,
		tel:     tel,
		client:  client,
	}
}
