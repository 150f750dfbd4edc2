package router_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"net/url"
	"regexp"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shopfront/accounts/internal/config"
	"github.com/shopfront/accounts/internal/handler"
	"github.com/shopfront/accounts/internal/middleware"
	"github.com/shopfront/accounts/internal/model"
	"github.com/shopfront/accounts/internal/router"
	"github.com/shopfront/accounts/internal/testutil"
)

type healthy struct{}

func (healthy) HealthCheck(context.Context) error { return nil }

type site struct {
	env *testutil.Env
	srv *httptest.Server
}

func newSite(t *testing.T, cfg *config.Config) *site {
	t.Helper()
	env := testutil.NewEnv(t, cfg)
	pages, err := handler.LoadPages()
	require.NoError(t, err)

	h := handler.New(healthy{}, env.Redis, env.Log, env.Config, env.Accounts, env.Resets, pages)
	mw := middleware.New(env.Redis, env.Log, env.Config, env.Accounts)
	srv := httptest.NewServer(router.New(h, mw, env.Config))
	t.Cleanup(srv.Close)

	return &site{env: env, srv: srv}
}

func (s *site) browser(t *testing.T) *testutil.Browser {
	return testutil.NewBrowser(t, s.srv.URL)
}

func (s *site) createUser(t *testing.T, email, password string) *model.User {
	t.Helper()
	user, err := s.env.Accounts.CreateUser(context.Background(), "", email, password)
	require.NoError(t, err)
	return user
}

func login(b *testutil.Browser, email, password string) *testutil.Response {
	return b.Submit("/accounts/login/", "login_form", url.Values{
		"login-username": {email},
		"login-password": {password},
		"login_submit":   {"Log In"},
	})
}

// emailLinkPattern finds site links in email bodies
var emailLinkPattern = regexp.MustCompile(`http://example\.com(?P<path>[-A-Za-z0-9\/\._]+)`)

func TestPasswordReset(t *testing.T) {
	s := newSite(t, nil)
	s.createUser(t, "lucy@example.com", "password")
	b := s.browser(t)

	resp := b.Submit("/password-reset/", "password_reset_form", url.Values{"email": {"lucy@example.com"}})
	require.Equal(t, http.StatusFound, resp.StatusCode)
	assert.Equal(t, "/password-reset/done/", resp.Location())

	msgs := s.env.Outbox.Messages()
	require.Len(t, msgs, 1)
	m := emailLinkPattern.FindStringSubmatch(msgs[0].TextBody)
	require.NotNil(t, m, "no link in reset email")
	path := m[emailLinkPattern.SubexpIndex("path")]

	confirm := b.Get(path)
	require.Equal(t, http.StatusOK, confirm.StatusCode)
	require.True(t, testutil.HasForm(confirm.Body, "password_reset_form"))

	resp = b.Submit(path, "password_reset_form", url.Values{
		"new_password1": {"monkey"},
		"new_password2": {"monkey"},
	})
	require.Equal(t, http.StatusFound, resp.StatusCode)
	assert.Equal(t, "/password-reset/complete/", resp.Location())

	// the link is spent
	again := b.Get(path)
	assert.Equal(t, http.StatusOK, again.StatusCode)
	assert.Contains(t, again.Body, "The password reset link was invalid")

	resp = login(s.browser(t), "lucy@example.com", "monkey")
	assert.Equal(t, http.StatusFound, resp.StatusCode)
	assert.Equal(t, "/accounts/", resp.Location())
}

func TestPasswordReset_UnknownEmailLooksTheSame(t *testing.T) {
	s := newSite(t, nil)
	b := s.browser(t)

	resp := b.Submit("/password-reset/", "password_reset_form", url.Values{"email": {"nobody@example.com"}})
	require.Equal(t, http.StatusFound, resp.StatusCode)
	assert.Equal(t, "/password-reset/done/", resp.Location())
	assert.Equal(t, 0, s.env.Outbox.Len())
}

func TestPasswordReset_MismatchedPasswords(t *testing.T) {
	s := newSite(t, nil)
	s.createUser(t, "lucy@example.com", "password")
	b := s.browser(t)

	b.Submit("/password-reset/", "password_reset_form", url.Values{"email": {"lucy@example.com"}})
	m := emailLinkPattern.FindStringSubmatch(s.env.Outbox.Messages()[0].TextBody)
	require.NotNil(t, m)
	path := m[1]

	resp := b.Submit(path, "password_reset_form", url.Values{"new_password1": {"monkey"}, "new_password2": {"donkey"}})
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, resp.Body, "The two password fields didn&#39;t match.")
}

func TestPasswordReset_ForbiddenWhenLoggedIn(t *testing.T) {
	s := newSite(t, nil)
	s.createUser(t, "d@d.com", "mypassword")
	b := s.browser(t)
	require.Equal(t, http.StatusFound, login(b, "d@d.com", "mypassword").StatusCode)

	resp := b.Get("/password-reset/")
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)
}

func TestLogin(t *testing.T) {
	tests := []struct {
		name  string
		email string
	}{
		{"plain", "d@d.com"},
		{"capitals in local part", "Andrew.Smith@test.com"},
		{"capitals in host", "Andrew.Smith@teSt.com"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := newSite(t, nil)
			s.createUser(t, tt.email, "mypassword")
			b := s.browser(t)

			resp := login(b, tt.email, "mypassword")
			require.Equal(t, http.StatusFound, resp.StatusCode)
			assert.Equal(t, "/accounts/", resp.Location())
			assert.NotEmpty(t, b.Cookie("sessionid"))
		})
	}
}

func TestLogin_BadPasswordRerendersForm(t *testing.T) {
	s := newSite(t, nil)
	s.createUser(t, "d@d.com", "mypassword")

	resp := login(s.browser(t), "d@d.com", "wrong")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.True(t, testutil.HasForm(resp.Body, "login_form"))
	assert.Contains(t, resp.Body, "Please enter a correct username and password")
}

func TestLogin_RedirectsToNext(t *testing.T) {
	s := newSite(t, nil)
	s.createUser(t, "d@d.com", "mypassword")
	b := s.browser(t)

	resp := b.Get("/accounts/profile/")
	require.Equal(t, http.StatusFound, resp.StatusCode)
	loginURL := resp.Location()
	assert.Equal(t, "/accounts/login/?next=%2Faccounts%2Fprofile%2F", loginURL)

	resp = b.Submit(loginURL, "login_form", url.Values{
		"login-username": {"d@d.com"},
		"login-password": {"mypassword"},
		"login_submit":   {"Log In"},
		"next":           {"/accounts/profile/"},
	})
	require.Equal(t, http.StatusFound, resp.StatusCode)
	assert.Equal(t, "/accounts/profile/", resp.Location())
}

func TestLogin_IgnoresOffsiteNext(t *testing.T) {
	s := newSite(t, nil)
	s.createUser(t, "d@d.com", "mypassword")

	resp := s.browser(t).Submit("/accounts/login/", "login_form", url.Values{
		"login-username": {"d@d.com"},
		"login-password": {"mypassword"},
		"login_submit":   {"Log In"},
		"next":           {"http://evil.example.net/"},
	})
	require.Equal(t, http.StatusFound, resp.StatusCode)
	assert.Equal(t, "/accounts/", resp.Location())
}

func TestRegister(t *testing.T) {
	s := newSite(t, nil)
	b := s.browser(t)

	resp := b.Submit("/accounts/register/", "register_form", url.Values{
		"registration-email":     {"terry@boom.com"},
		"registration-password1": {"hedgehog"},
		"registration-password2": {"hedgehog"},
	})
	require.Equal(t, http.StatusFound, resp.StatusCode)
	assert.Equal(t, "/accounts/", resp.Location())

	// registration logs the customer in
	resp = b.Get("/accounts/")
	require.Equal(t, http.StatusFound, resp.StatusCode)
	assert.Equal(t, "/accounts/profile/", resp.Location())

	resp = b.Get("/accounts/profile/")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, resp.Body, "terry@boom.com")
}

func TestRegister_FromLoginPage(t *testing.T) {
	s := newSite(t, nil)

	resp := s.browser(t).Submit("/accounts/login/", "register_form", url.Values{
		"registration-email":     {"terry@boom.com"},
		"registration-password1": {"hedgehog"},
		"registration-password2": {"hedgehog"},
		"registration_submit":    {"Register"},
	})
	require.Equal(t, http.StatusFound, resp.StatusCode)
	assert.Equal(t, "/accounts/", resp.Location())
	assert.Equal(t, 1, s.env.Users.Len())
}

func TestRegister_InvalidForms(t *testing.T) {
	s := newSite(t, nil)
	s.createUser(t, "taken@boom.com", "hedgehog")

	tests := []struct {
		name   string
		fields url.Values
		want   string
	}{
		{
			name: "mismatch",
			fields: url.Values{
				"registration-email":     {"terry@boom.com"},
				"registration-password1": {"hedgehog"},
				"registration-password2": {"hedgehug"},
			},
			want: "The two password fields didn&#39;t match.",
		},
		{
			name: "duplicate email",
			fields: url.Values{
				"registration-email":     {"TAKEN@boom.com"},
				"registration-password1": {"hedgehog"},
				"registration-password2": {"hedgehog"},
			},
			want: "A user with that email address already exists",
		},
		{
			name: "short password",
			fields: url.Values{
				"registration-email":     {"terry@boom.com"},
				"registration-password1": {"hog"},
				"registration-password2": {"hog"},
			},
			want: "This password is too short",
		},
		{
			name: "missing email",
			fields: url.Values{
				"registration-password1": {"hedgehog"},
				"registration-password2": {"hedgehog"},
			},
			want: "This field is required.",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp := s.browser(t).Submit("/accounts/register/", "register_form", tt.fields)
			assert.Equal(t, http.StatusOK, resp.StatusCode)
			assert.Contains(t, resp.Body, tt.want)
		})
	}
	assert.Equal(t, 1, s.env.Users.Len())
}

func TestProfile_UpdateNameSendsNoEmail(t *testing.T) {
	s := newSite(t, nil)
	user := s.createUser(t, "d@d.com", "mypassword")
	b := s.browser(t)
	require.Equal(t, http.StatusFound, login(b, "d@d.com", "mypassword").StatusCode)

	resp := b.Submit("/accounts/profile/edit/", "profile_form", url.Values{
		"first_name": {"Terry"},
		"email":      {"d@d.com"},
	})
	require.Equal(t, http.StatusFound, resp.StatusCode)
	assert.Equal(t, "/accounts/profile/", resp.Location())
	assert.Equal(t, 0, s.env.Outbox.Len())

	stored, err := s.env.Users.GetByID(context.Background(), user.ID)
	require.NoError(t, err)
	assert.Equal(t, "Terry", stored.FirstName)
}

func TestProfile_EmailChangeNotifiesOldAddress(t *testing.T) {
	s := newSite(t, nil)
	user := s.createUser(t, "d@d.com", "mypassword")
	b := s.browser(t)
	require.Equal(t, http.StatusFound, login(b, "d@d.com", "mypassword").StatusCode)

	resp := b.Submit("/accounts/profile/edit/", "profile_form", url.Values{
		"email": {"a.new.email@user.com"},
	})
	require.Equal(t, http.StatusFound, resp.StatusCode)

	msgs := s.env.Outbox.Messages()
	require.Len(t, msgs, 1)
	assert.Equal(t, []string{"d@d.com"}, msgs[0].To)
	assert.Contains(t, msgs[0].TextBody, "your email address has been changed")

	stored, err := s.env.Users.GetByID(context.Background(), user.ID)
	require.NoError(t, err)
	assert.Equal(t, "a.new.email@user.com", stored.Email)
}

func TestChangePassword(t *testing.T) {
	s := newSite(t, nil)
	s.createUser(t, "d@d.com", "mypassword")
	b := s.browser(t)
	require.Equal(t, http.StatusFound, login(b, "d@d.com", "mypassword").StatusCode)

	resp := b.Submit("/accounts/change-password/", "change_password_form", url.Values{
		"old_password":  {"mypassword"},
		"new_password1": {"anotherfancypassword"},
		"new_password2": {"anotherfancypassword"},
	})
	require.Equal(t, http.StatusFound, resp.StatusCode)
	assert.Equal(t, "/accounts/profile/", resp.Location())

	msgs := s.env.Outbox.Messages()
	require.Len(t, msgs, 1)
	assert.Contains(t, msgs[0].TextBody, "your password has been changed")

	// the session that changed the password survives
	assert.Equal(t, http.StatusOK, b.Get("/accounts/profile/").StatusCode)
}

func TestChangePassword_WrongOldPassword(t *testing.T) {
	s := newSite(t, nil)
	s.createUser(t, "d@d.com", "mypassword")
	b := s.browser(t)
	require.Equal(t, http.StatusFound, login(b, "d@d.com", "mypassword").StatusCode)

	resp := b.Submit("/accounts/change-password/", "change_password_form", url.Values{
		"old_password":  {"nope"},
		"new_password1": {"anotherfancypassword"},
		"new_password2": {"anotherfancypassword"},
	})
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, resp.Body, "Your old password was entered incorrectly")
	assert.Equal(t, 0, s.env.Outbox.Len())
}

func TestLogout(t *testing.T) {
	s := newSite(t, nil)
	s.createUser(t, "d@d.com", "mypassword")
	b := s.browser(t)
	require.Equal(t, http.StatusFound, login(b, "d@d.com", "mypassword").StatusCode)

	resp := b.Post("/accounts/logout/", nil)
	require.Equal(t, http.StatusFound, resp.StatusCode)
	assert.Equal(t, "/", resp.Location())

	resp = b.Get("/accounts/")
	assert.Equal(t, http.StatusFound, resp.StatusCode)
	assert.True(t, strings.HasPrefix(resp.Location(), "/accounts/login/"))
}

func TestLogout_Get(t *testing.T) {
	s := newSite(t, nil)
	s.createUser(t, "d@d.com", "mypassword")
	b := s.browser(t)
	require.Equal(t, http.StatusFound, login(b, "d@d.com", "mypassword").StatusCode)

	resp := b.Get("/accounts/logout/")
	require.Equal(t, http.StatusFound, resp.StatusCode)
	assert.Equal(t, "/", resp.Location())

	resp = b.Get("/accounts/")
	assert.Equal(t, http.StatusFound, resp.StatusCode)
	assert.True(t, strings.HasPrefix(resp.Location(), "/accounts/login/"))
}

func TestDeleteProfile(t *testing.T) {
	s := newSite(t, nil)
	s.createUser(t, "d@d.com", "mypassword")
	b := s.browser(t)
	require.Equal(t, http.StatusFound, login(b, "d@d.com", "mypassword").StatusCode)

	resp := b.Submit("/accounts/profile/delete/", "delete_profile_form", url.Values{"password": {"wrong"}})
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, 1, s.env.Users.Len())

	resp = b.Submit("/accounts/profile/delete/", "delete_profile_form", url.Values{"password": {"mypassword"}})
	require.Equal(t, http.StatusFound, resp.StatusCode)
	assert.Equal(t, "/", resp.Location())
	assert.Equal(t, 0, s.env.Users.Len())

	// the account is gone so the login form comes back
	assert.Equal(t, http.StatusOK, login(s.browser(t), "d@d.com", "mypassword").StatusCode)
}

func TestEmailHistory(t *testing.T) {
	s := newSite(t, nil)
	b := s.browser(t)
	resp := b.Submit("/accounts/register/", "register_form", url.Values{
		"registration-email":     {"terry@boom.com"},
		"registration-password1": {"hedgehog"},
		"registration-password2": {"hedgehog"},
	})
	require.Equal(t, http.StatusFound, resp.StatusCode)

	list := b.Get("/accounts/emails/")
	require.Equal(t, http.StatusOK, list.StatusCode)
	m := regexp.MustCompile(`href="/accounts/emails/([^/"]+)/"`).FindStringSubmatch(list.Body)
	require.NotNil(t, m, "no email listed")

	detail := b.Get("/accounts/emails/" + m[1] + "/")
	assert.Equal(t, http.StatusOK, detail.StatusCode)
	assert.Contains(t, detail.Body, "terry@boom.com")

	assert.Equal(t, http.StatusNotFound, b.Get("/accounts/emails/eml_missing/").StatusCode)
}

func TestCSRFRequired(t *testing.T) {
	s := newSite(t, nil)
	s.createUser(t, "d@d.com", "mypassword")

	resp, err := http.PostForm(s.srv.URL+"/accounts/login/", url.Values{
		"login-username": {"d@d.com"},
		"login-password": {"mypassword"},
	})
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)
}

func TestHealthAndMetrics(t *testing.T) {
	s := newSite(t, nil)
	b := s.browser(t)

	assert.Equal(t, http.StatusOK, b.Get("/health").StatusCode)
	assert.Equal(t, http.StatusOK, b.Get("/ready").StatusCode)

	b.Get("/")
	resp := b.Get("/metrics")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, resp.Body, "shopfront_http_requests_total")
}

func TestLoginRateLimit(t *testing.T) {
	cfg := testutil.Config()
	cfg.Security.RateLimiting.Enabled = true
	cfg.Security.RateLimiting.Login.Limit = 2
	s := newSite(t, cfg)
	s.createUser(t, "d@d.com", "mypassword")
	b := s.browser(t)

	for i := 0; i < 2; i++ {
		assert.Equal(t, http.StatusOK, login(b, "d@d.com", "wrong").StatusCode)
	}
	assert.Equal(t, http.StatusTooManyRequests, login(b, "d@d.com", "mypassword").StatusCode)
}
