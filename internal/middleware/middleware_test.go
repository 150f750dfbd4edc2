package middleware

import (
	"context"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shopfront/accounts/internal/config"
	"github.com/shopfront/accounts/internal/logger"
	"github.com/shopfront/accounts/internal/model"
	"github.com/shopfront/accounts/internal/service"
	"github.com/shopfront/accounts/internal/testutil"
)

type stubResolver struct {
	tokens map[string]*model.User
	calls  int
}

func (s *stubResolver) ResolveSession(_ context.Context, token string) (*model.User, *model.Session, error) {
	s.calls++
	user, ok := s.tokens[token]
	if !ok {
		return nil, nil, service.ErrSessionInvalid
	}
	return user, &model.Session{ID: "sess-1", UserID: user.ID}, nil
}

func newTestMiddleware(t *testing.T, cfg *config.Config, resolver SessionResolver) *Middleware {
	t.Helper()
	if cfg == nil {
		cfg = testutil.Config()
	}
	rdb, _ := testutil.NewRedis(t)
	return New(rdb, logger.Nop(), cfg, resolver)
}

var okHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("ok"))
})

func TestRequestID(t *testing.T) {
	m := newTestMiddleware(t, nil, nil)

	var seen string
	h := m.RequestID(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = GetRequestID(r.Context())
	}))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.NotEmpty(t, seen)
	assert.Equal(t, seen, rec.Header().Get("X-Request-ID"))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("X-Request-ID", "abc-123")
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.Equal(t, "abc-123", seen)
}

func TestCSRF_IssuesCookieOnSafeRequest(t *testing.T) {
	m := newTestMiddleware(t, nil, nil)

	var token string
	h := m.CSRF(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token = CSRFToken(r.Context())
	}))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/accounts/login/", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	cookies := rec.Result().Cookies()
	require.Len(t, cookies, 1)
	assert.Equal(t, "csrftoken", cookies[0].Name)
	assert.Equal(t, token, cookies[0].Value)
	assert.Len(t, token, 64)
}

func TestCSRF_UnsafeRequests(t *testing.T) {
	m := newTestMiddleware(t, nil, nil)
	h := m.CSRF(okHandler)
	token := strings.Repeat("ab", 32)

	post := func(form url.Values, header string, cookie bool) int {
		req := httptest.NewRequest(http.MethodPost, "/accounts/login/", strings.NewReader(form.Encode()))
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
		if cookie {
			req.AddCookie(&http.Cookie{Name: "csrftoken", Value: token})
		}
		if header != "" {
			req.Header.Set(CSRFHeader, header)
		}
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		return rec.Code
	}

	assert.Equal(t, http.StatusForbidden, post(url.Values{}, "", false), "no cookie, no token")
	assert.Equal(t, http.StatusForbidden, post(url.Values{}, "", true), "cookie without token")
	assert.Equal(t, http.StatusForbidden, post(url.Values{CSRFFormField: {strings.Repeat("cd", 32)}}, "", true), "mismatch")
	assert.Equal(t, http.StatusForbidden, post(url.Values{CSRFFormField: {token}}, "", false), "token without cookie")
	assert.Equal(t, http.StatusOK, post(url.Values{CSRFFormField: {token}}, "", true), "form field")
	assert.Equal(t, http.StatusOK, post(url.Values{}, token, true), "header")
}

func TestRateLimit(t *testing.T) {
	cfg := testutil.Config()
	cfg.Security.RateLimiting.Enabled = true
	m := newTestMiddleware(t, cfg, nil)

	h := m.RateLimit(RateLimitConfig{Name: "login", Limit: 2, Window: time.Minute, KeyFn: IPKey})(okHandler)

	codes := make([]int, 3)
	var last *httptest.ResponseRecorder
	for i := range codes {
		req := httptest.NewRequest(http.MethodPost, "/accounts/login/", nil)
		req.RemoteAddr = "192.0.2.1:" + []string{"1000", "1001", "1002"}[i]
		last = httptest.NewRecorder()
		h.ServeHTTP(last, req)
		codes[i] = last.Code
	}

	assert.Equal(t, []int{http.StatusOK, http.StatusOK, http.StatusTooManyRequests}, codes)
	assert.Equal(t, "2", last.Header().Get("X-RateLimit-Limit"))
	assert.Equal(t, "0", last.Header().Get("X-RateLimit-Remaining"))
	assert.NotEmpty(t, last.Header().Get("Retry-After"))

	// a different client has its own window
	req := httptest.NewRequest(http.MethodPost, "/accounts/login/", nil)
	req.RemoteAddr = "192.0.2.2:1000"
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestRateLimit_Disabled(t *testing.T) {
	m := newTestMiddleware(t, nil, nil)
	h := m.RateLimit(RateLimitConfig{Name: "login", Limit: 1, Window: time.Minute, KeyFn: IPKey})(okHandler)

	for i := 0; i < 3; i++ {
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/", nil))
		assert.Equal(t, http.StatusOK, rec.Code)
	}
}

func TestSession(t *testing.T) {
	user := &model.User{ID: "usr_1", Email: "d@d.com"}
	resolver := &stubResolver{tokens: map[string]*model.User{"good": user}}
	m := newTestMiddleware(t, nil, resolver)

	var got *model.User
	h := m.Session(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got = CurrentUser(r.Context())
	}))

	req := httptest.NewRequest(http.MethodGet, "/accounts/", nil)
	req.AddCookie(&http.Cookie{Name: "sessionid", Value: "good"})
	h.ServeHTTP(httptest.NewRecorder(), req)
	require.NotNil(t, got)
	assert.Equal(t, "usr_1", got.ID)

	req = httptest.NewRequest(http.MethodGet, "/accounts/", nil)
	req.AddCookie(&http.Cookie{Name: "sessionid", Value: "stale"})
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.Nil(t, got)
	cookies := rec.Result().Cookies()
	require.Len(t, cookies, 1)
	assert.Equal(t, "sessionid", cookies[0].Name)
	assert.Less(t, cookies[0].MaxAge, 0)

	resolver.calls = 0
	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, 0, resolver.calls, "no cookie, no lookup")
}

func TestRequireLogin(t *testing.T) {
	m := newTestMiddleware(t, nil, nil)
	h := m.RequireLogin(okHandler)

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/accounts/profile/?tab=1", nil))
	assert.Equal(t, http.StatusFound, rec.Code)
	assert.Equal(t, "/accounts/login/?next=%2Faccounts%2Fprofile%2F%3Ftab%3D1", rec.Header().Get("Location"))

	req := httptest.NewRequest(http.MethodGet, "/accounts/profile/", nil)
	req = req.WithContext(context.WithValue(req.Context(), UserKey, &model.User{ID: "usr_1"}))
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestLoginForbidden(t *testing.T) {
	m := newTestMiddleware(t, nil, nil)
	h := m.LoginForbidden(okHandler)

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/password-reset/", nil))
	assert.Equal(t, http.StatusOK, rec.Code)

	req := httptest.NewRequest(http.MethodGet, "/password-reset/", nil)
	req = req.WithContext(context.WithValue(req.Context(), UserKey, &model.User{ID: "usr_1"}))
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusForbidden, rec.Code)
}

func TestRecover(t *testing.T) {
	m := newTestMiddleware(t, nil, nil)
	h := m.Recover(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		panic("boom")
	}))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Equal(t, "no-store", rec.Header().Get("Cache-Control"))
	assert.Contains(t, rec.Body.String(), "A server error occurred.")
}

func TestRecover_AbortHandlerPropagates(t *testing.T) {
	m := newTestMiddleware(t, nil, nil)
	h := m.Recover(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		panic(http.ErrAbortHandler)
	}))

	assert.PanicsWithValue(t, http.ErrAbortHandler, func() {
		h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/", nil))
	})
}

func TestSecurityHeaders(t *testing.T) {
	m := newTestMiddleware(t, nil, nil)
	rec := httptest.NewRecorder()
	m.SecurityHeaders(okHandler).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))

	assert.Equal(t, "nosniff", rec.Header().Get("X-Content-Type-Options"))
	assert.Equal(t, "DENY", rec.Header().Get("X-Frame-Options"))
	assert.Empty(t, rec.Header().Get("Strict-Transport-Security"))
}

func TestClientIP(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.RemoteAddr = "192.0.2.9:4444"
	assert.Equal(t, "192.0.2.9", clientIP(req))

	req.Header.Set("X-Forwarded-For", "203.0.113.5, 10.0.0.1")
	assert.Equal(t, "203.0.113.5", clientIP(req))
}
