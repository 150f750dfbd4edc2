package testutil

import (
	"html"
	"io"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"regexp"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

// Browser drives a test server the way a person with a browser would:
// cookies persist, redirects are not followed, and forms are submitted with
// the CSRF token taken from the cookie.
type Browser struct {
	t      *testing.T
	base   *url.URL
	client *http.Client
}

// Response is a fully read HTTP response
type Response struct {
	StatusCode int
	Header     http.Header
	Body       string
}

// Location returns the path of a redirect target
func (r *Response) Location() string {
	loc := r.Header.Get("Location")
	if u, err := url.Parse(loc); err == nil && u.Host == "" {
		return u.RequestURI()
	}
	return loc
}

// NewBrowser returns a Browser for the server at baseURL
func NewBrowser(t *testing.T, baseURL string) *Browser {
	t.Helper()
	base, err := url.Parse(baseURL)
	require.NoError(t, err)
	jar, err := cookiejar.New(nil)
	require.NoError(t, err)

	return &Browser{
		t:    t,
		base: base,
		client: &http.Client{
			Jar: jar,
			CheckRedirect: func(*http.Request, []*http.Request) error {
				return http.ErrUseLastResponse
			},
		},
	}
}

// Get fetches path
func (b *Browser) Get(path string) *Response {
	b.t.Helper()
	resp, err := b.client.Get(b.base.ResolveReference(mustParse(b.t, path)).String())
	require.NoError(b.t, err)
	return readResponse(b.t, resp)
}

// Post submits fields to path with the current CSRF token
func (b *Browser) Post(path string, fields url.Values) *Response {
	b.t.Helper()
	form := url.Values{}
	for k, v := range fields {
		form[k] = v
	}
	if token := b.Cookie("csrftoken"); token != "" && form.Get("csrfmiddlewaretoken") == "" {
		form.Set("csrfmiddlewaretoken", token)
	}

	resp, err := b.client.PostForm(b.base.ResolveReference(mustParse(b.t, path)).String(), form)
	require.NoError(b.t, err)
	return readResponse(b.t, resp)
}

var formPattern = regexp.MustCompile(`<form id="([^"]+)"[^>]*action="([^"]*)"`)

// Submit loads page, finds the form with id formID and posts fields to its
// action
func (b *Browser) Submit(page, formID string, fields url.Values) *Response {
	b.t.Helper()
	resp := b.Get(page)
	require.Equal(b.t, http.StatusOK, resp.StatusCode, "GET %s", page)

	action := ""
	for _, m := range formPattern.FindAllStringSubmatch(resp.Body, -1) {
		if m[1] == formID {
			action = html.UnescapeString(m[2])
			break
		}
	}
	require.NotEmpty(b.t, action, "form %q not found on %s", formID, page)
	return b.Post(action, fields)
}

// Cookie returns the value of the named cookie for the server, or ""
func (b *Browser) Cookie(name string) string {
	for _, c := range b.client.Jar.Cookies(b.base) {
		if c.Name == name {
			return c.Value
		}
	}
	return ""
}

// HasForm reports whether body contains a form with id formID
func HasForm(body, formID string) bool {
	return strings.Contains(body, `<form id="`+formID+`"`)
}

func readResponse(t *testing.T, resp *http.Response) *Response {
	t.Helper()
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return &Response{StatusCode: resp.StatusCode, Header: resp.Header, Body: string(body)}
}

func mustParse(t *testing.T, path string) *url.URL {
	t.Helper()
	u, err := url.Parse(path)
	require.NoError(t, err)
	return u
}
