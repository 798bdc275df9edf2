// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Keyward Contributors

package httpapi_test

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"path"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/keyward/keyward/internal/auth"
	"github.com/keyward/keyward/internal/auth/memstore"
	"github.com/keyward/keyward/internal/httpapi"
)

const password = "Passw0rd!"

type plainHasher struct{}

func (plainHasher) Hash(pw string) (string, error) {
	if pw == "" {
		return "", auth.ErrEmptyPassword
	}
	return "plain$" + pw, nil
}

func (plainHasher) Verify(pw, hash string) (bool, error) { return hash == "plain$"+pw, nil }

func (plainHasher) NeedsUpgrade(string) bool { return false }

type outbox struct {
	mu   sync.Mutex
	msgs []auth.Message
	err  error
}

func (o *outbox) Send(_ context.Context, msg auth.Message) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.err != nil {
		return o.err
	}
	o.msgs = append(o.msgs, msg)
	return nil
}

// lastToken returns the token at the end of the most recently mailed link.
func (o *outbox) lastToken(t *testing.T) string {
	t.Helper()
	o.mu.Lock()
	defer o.mu.Unlock()
	require.NotEmpty(t, o.msgs, "no email sent")
	msg := o.msgs[len(o.msgs)-1]
	link := msg.MergeInfo["verifyLink"]
	if link == "" {
		link = msg.MergeInfo["password_reset_link"]
	}
	require.NotEmpty(t, link)
	return path.Base(link)
}

type clock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *clock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

// recorder captures metrics observations.
type recorder struct {
	mu       sync.Mutex
	requests []string
	gate     []string
}

func (r *recorder) ObserveHTTPRequest(method, route string, status int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.requests = append(r.requests, method+" "+route+" "+http.StatusText(status))
}

func (r *recorder) ObserveGate(outcome string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.gate = append(r.gate, outcome)
}

type fixture struct {
	store    *memstore.Store
	mail     *outbox
	clock    *clock
	recorder *recorder
	server   *httpapi.Server
}

func newFixture(t *testing.T, cfg httpapi.Config) *fixture {
	t.Helper()
	f := &fixture{
		mail:     &outbox{},
		clock:    &clock{now: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)},
		recorder: &recorder{},
	}
	f.store = memstore.New().WithClock(f.clock.Now)

	tokens, err := auth.NewTokenManager(f.store, auth.WithTokenClock(f.clock.Now))
	require.NoError(t, err)
	notifier := auth.NewNotifier(f.mail, auth.NotifierConfig{
		PublicURL:             "https://keyward.test",
		Company:               "Keyward",
		VerificationTemplate:  "tpl-verify",
		ResetPasswordTemplate: "tpl-reset",
	})
	svc, err := auth.NewService(f.store, tokens, plainHasher{}, notifier, auth.DefaultServiceConfig(),
		auth.WithClock(f.clock.Now))
	require.NoError(t, err)
	gate := auth.NewGate(f.store).WithClock(f.clock.Now)

	f.server, err = httpapi.New(svc, gate, cfg, httpapi.WithRecorder(f.recorder))
	require.NoError(t, err)
	return f
}

type request struct {
	method  string
	path    string
	body    string
	ctype   string
	header  map[string]string
	cookies []*http.Cookie
}

func (f *fixture) do(t *testing.T, r request) *httptest.ResponseRecorder {
	t.Helper()
	var body io.Reader
	if r.body != "" {
		body = strings.NewReader(r.body)
	}
	req := httptest.NewRequest(r.method, r.path, body)
	if r.body != "" {
		ctype := r.ctype
		if ctype == "" {
			ctype = "application/json"
		}
		req.Header.Set("Content-Type", ctype)
	}
	for k, v := range r.header {
		req.Header.Set(k, v)
	}
	for _, c := range r.cookies {
		req.AddCookie(c)
	}
	rec := httptest.NewRecorder()
	f.server.Handler().ServeHTTP(rec, req)
	return rec
}

func (f *fixture) postJSON(t *testing.T, path, body string, cookies ...*http.Cookie) *httptest.ResponseRecorder {
	t.Helper()
	return f.do(t, request{method: http.MethodPost, path: path, body: body, cookies: cookies})
}

func (f *fixture) get(t *testing.T, path string, cookies ...*http.Cookie) *httptest.ResponseRecorder {
	t.Helper()
	return f.do(t, request{method: http.MethodGet, path: path, cookies: cookies})
}

// registerVerified registers a user over HTTP and follows the mailed link.
func (f *fixture) registerVerified(t *testing.T, username, email string) {
	t.Helper()
	rec := f.postJSON(t, "/api/auth/register",
		`{"username":"`+username+`","email":"`+email+`","password":"`+password+`"}`)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	rec = f.get(t, "/api/auth/verify-email/"+f.mail.lastToken(t))
	require.Equal(t, http.StatusNoContent, rec.Code, rec.Body.String())
}

// login returns the session cookie.
func (f *fixture) login(t *testing.T, email string) *http.Cookie {
	t.Helper()
	rec := f.postJSON(t, "/api/auth/login", `{"email":"`+email+`","password":"`+password+`"}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	return sessionCookie(t, rec)
}

func sessionCookie(t *testing.T, rec *httptest.ResponseRecorder) *http.Cookie {
	t.Helper()
	for _, c := range rec.Result().Cookies() {
		if c.Name == auth.SessionCookieName {
			return c
		}
	}
	t.Fatal("no session cookie set")
	return nil
}

type errorBody struct {
	Error struct {
		Message string `json:"message"`
		Errors  []struct {
			Message string `json:"message"`
			Field   string `json:"field"`
		} `json:"errors"`
	} `json:"error"`
}

func decodeError(t *testing.T, rec *httptest.ResponseRecorder) errorBody {
	t.Helper()
	var body errorBody
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body), rec.Body.String())
	return body
}

func (b errorBody) fields() []string {
	out := make([]string, 0, len(b.Error.Errors))
	for _, e := range b.Error.Errors {
		out = append(out, e.Field)
	}
	return out
}

type userEnvelope struct {
	Data       auth.PublicUser `json:"data"`
	APIVersion string          `json:"apiVersion"`
}
