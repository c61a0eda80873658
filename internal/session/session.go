// Package session holds the authentication state shared by every request made
// against the remote service: the session cookies and the current CSRF token.
package session

import (
	"net/http"
	"sort"
	"strings"
	"sync"

	"github.com/go-resty/resty/v2"
)

// TokenHeader is the request header the CSRF token is sent in.
const TokenHeader = "x-csrf-token"

// Cookie names the remote service authenticates with.
const (
	CookieDogSecurity   = ".DOGSECURITY"
	CookiePekoSecurity  = ".PEKOSECURITY"
	CookiePuppySecurity = ".PUPPYSECURITY"
	CookieCfClearance   = "cf_clearance"
)

// Credentials are the operator-supplied strings a Session is created from.
// Empty values are not attached.
type Credentials struct {
	DogSecurity   string `json:"dog_security" envconfig:"DOG_SECURITY"`
	PekoSecurity  string `json:"peko_security" envconfig:"PEKO_SECURITY"`
	PuppySecurity string `json:"puppy_security" envconfig:"PUPPY_SECURITY"`
	CfClearance   string `json:"cf_clearance" envconfig:"CF_CLEARANCE"`
	Token         string `json:"csrf_token" envconfig:"CSRF_TOKEN"`
}

// Session is the only mutable state shared between the status prober and the
// follow executor. Cookies and token are opaque and never validated.
//
// Requests never hold a copy of the token: Attach reads it when the request is
// sent, so a rotation is visible to the very next send.
type Session struct {
	mu      sync.RWMutex
	cookies map[string]string
	token   string
}

func New() *Session {
	return &Session{cookies: map[string]string{}}
}

// FromCredentials creates a Session with every non-empty credential set.
func FromCredentials(creds Credentials) *Session {
	s := New()
	s.SetCookie(CookieDogSecurity, creds.DogSecurity)
	s.SetCookie(CookiePekoSecurity, creds.PekoSecurity)
	s.SetCookie(CookiePuppySecurity, creds.PuppySecurity)
	s.SetCookie(CookieCfClearance, creds.CfClearance)
	s.SetToken(creds.Token)
	return s
}

// SetCookie stores a cookie, an empty value removes it.
func (s *Session) SetCookie(name, value string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if value == "" {
		delete(s.cookies, name)
		return
	}
	s.cookies[name] = value
}

// Cookie returns the current value of a cookie.
func (s *Session) Cookie(name string) (string, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	value, ok := s.cookies[name]
	return value, ok
}

// Cookies returns the current cookies sorted by name.
func (s *Session) Cookies() []*http.Cookie {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]*http.Cookie, 0, len(s.cookies))
	for name, value := range s.cookies {
		out = append(out, &http.Cookie{Name: name, Value: value})
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].Name < out[j].Name
	})
	return out
}

// Token returns the current CSRF token, if any.
func (s *Session) Token() (string, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.token, s.token != ""
}

// SetToken replaces the CSRF token. Surrounding whitespace from pasted tokens is
// dropped, an empty token clears it.
func (s *Session) SetToken(token string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.token = strings.TrimSpace(token)
}

// Absorb keeps cookies the remote service re-issued in a response.
func (s *Session) Absorb(cookies []*http.Cookie) {
	for _, c := range cookies {
		if c.Name == "" || c.Value == "" {
			continue
		}
		s.SetCookie(c.Name, c.Value)
	}
}

func isStateChanging(method string) bool {
	return method != http.MethodGet && method != http.MethodHead
}

// Attach is a resty request middleware, it runs on every send (retries included)
// and attaches the cookies and token as they are at that moment.
func (s *Session) Attach(_ *resty.Client, req *resty.Request) error {
	req.Cookies = s.Cookies()
	if !isStateChanging(req.Method) {
		return nil
	}
	if token, ok := s.Token(); ok {
		req.SetHeader(TokenHeader, token)
	}
	return nil
}

// Capture is a resty response middleware that absorbs re-issued cookies.
func (s *Session) Capture(_ *resty.Client, res *resty.Response) error {
	s.Absorb(res.Cookies())
	return nil
}

// Bind installs Attach and Capture on a client. The client's own cookie jar is
// removed so the Session is the single owner of cookies.
func (s *Session) Bind(client *resty.Client) {
	client.SetCookieJar(nil)
	client.OnBeforeRequest(s.Attach)
	client.OnAfterResponse(s.Capture)
}
