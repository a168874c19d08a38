package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync"
	"testing"
	"time"

	"docucloud.org/internal/auth"
	"docucloud.org/internal/blob"
	"docucloud.org/internal/share"
)

// stubMailer captures reset links so tests can extract the raw token.
type stubMailer struct {
	mu    sync.Mutex
	links []string
}

func (m *stubMailer) SendPasswordReset(ctx context.Context, to, resetURL string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.links = append(m.links, resetURL)
	return nil
}

func (m *stubMailer) lastToken(t *testing.T) string {
	t.Helper()
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.links) == 0 {
		t.Fatal("no reset mail captured")
	}
	u, err := url.Parse(m.links[len(m.links)-1])
	if err != nil {
		t.Fatalf("parse reset link: %v", err)
	}
	return u.Query().Get("token")
}

type apiClient struct {
	baseURL string
	client  *http.Client
	t       *testing.T

	shares *share.MemoryStore
	docs   *share.MemoryDocumentStore
	mailer *stubMailer
}

func newTestAPI(t *testing.T) *apiClient {
	t.Helper()

	codec, err := auth.NewCodec("access-secret-test", "refresh-secret-test")
	if err != nil {
		t.Fatalf("NewCodec: %v", err)
	}
	store := auth.NewMemoryStore()
	sessions := auth.NewService(store, codec)
	mailer := &stubMailer{}
	resets := auth.NewResetService(store, mailer, "http://localhost:3000/reset-password")

	shares := share.NewMemoryStore()
	docs := share.NewMemoryDocumentStore()
	presigner, err := blob.NewLocalPresigner("http://localhost:9000", "presign-secret")
	if err != nil {
		t.Fatalf("NewLocalPresigner: %v", err)
	}
	gate := share.NewGate(shares, docs, presigner, "http://localhost:8080")

	api := New(ReadyProbe{}, "test", sessions, resets, gate, WithRateLimit(1000, 1000))

	srv := httptest.NewServer(api.Handler())
	t.Cleanup(srv.Close)

	return &apiClient{
		baseURL: srv.URL,
		client:  srv.Client(),
		t:       t,
		shares:  shares,
		docs:    docs,
		mailer:  mailer,
	}
}

func (c *apiClient) do(method, path string, body any, headers map[string]string) *http.Response {
	c.t.Helper()
	var payload []byte
	if body != nil {
		var err error
		payload, err = json.Marshal(body)
		if err != nil {
			c.t.Fatalf("marshal body: %v", err)
		}
	}
	req, err := http.NewRequest(method, c.baseURL+path, bytes.NewReader(payload))
	if err != nil {
		c.t.Fatalf("new request: %v", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	resp, err := c.client.Do(req)
	if err != nil {
		c.t.Fatalf("do request: %v", err)
	}
	return resp
}

func (c *apiClient) post(path string, body any, headers map[string]string) *http.Response {
	return c.do(http.MethodPost, path, body, headers)
}

func (c *apiClient) put(path string, body any, headers map[string]string) *http.Response {
	return c.do(http.MethodPut, path, body, headers)
}

func (c *apiClient) delete(path string, headers map[string]string) *http.Response {
	return c.do(http.MethodDelete, path, nil, headers)
}

func (c *apiClient) get(path string, params url.Values) *http.Response {
	c.t.Helper()
	u, err := url.Parse(c.baseURL + path)
	if err != nil {
		c.t.Fatalf("parse url: %v", err)
	}
	if params != nil {
		u.RawQuery = params.Encode()
	}
	resp, err := c.client.Get(u.String())
	if err != nil {
		c.t.Fatalf("get request: %v", err)
	}
	return resp
}

func (c *apiClient) register(email, password string) {
	c.t.Helper()
	resp := c.post("/auth/register", registerRequest{Email: email, Password: password, Name: "Test"}, nil)
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusCreated {
		c.t.Fatalf("register status = %d", resp.StatusCode)
	}
}

func (c *apiClient) login(email, password string) loginResponse {
	c.t.Helper()
	resp := c.post("/auth/login", loginRequest{Email: email, Password: password}, nil)
	if resp.StatusCode != http.StatusOK {
		resp.Body.Close()
		c.t.Fatalf("login status = %d", resp.StatusCode)
	}
	return decode[loginResponse](c.t, resp)
}

func withBearer(token string) map[string]string {
	return map[string]string{"Authorization": "Bearer " + token}
}

func decode[T any](t *testing.T, r *http.Response) T {
	t.Helper()
	defer r.Body.Close()
	var v T
	if err := json.NewDecoder(r.Body).Decode(&v); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	return v
}

func expectStatus(t *testing.T, resp *http.Response, want int) {
	t.Helper()
	defer resp.Body.Close()
	if resp.StatusCode != want {
		t.Fatalf("status = %d, want %d", resp.StatusCode, want)
	}
}

func TestAuthSessionFlow(t *testing.T) {
	c := newTestAPI(t)

	c.register("alice@example.com", "password123")

	resp := c.post("/auth/register", registerRequest{Email: "alice@example.com", Password: "password123"}, nil)
	expectStatus(t, resp, http.StatusConflict)

	resp = c.post("/auth/login", loginRequest{Email: "alice@example.com", Password: "wrong-pass"}, nil)
	expectStatus(t, resp, http.StatusUnauthorized)

	session := c.login("alice@example.com", "password123")
	if session.AccessToken == "" || session.RefreshToken == "" || session.UserID == "" {
		t.Fatalf("incomplete login payload: %+v", session)
	}

	resp = c.post("/auth/refresh", refreshRequest{RefreshToken: session.RefreshToken}, nil)
	if resp.StatusCode != http.StatusOK {
		resp.Body.Close()
		t.Fatalf("refresh status = %d", resp.StatusCode)
	}
	rotated := decode[refreshResponse](t, resp)
	if rotated.RefreshToken == session.RefreshToken {
		t.Fatal("refresh token was not rotated")
	}

	// Replaying the consumed token is an opaque rejection.
	resp = c.post("/auth/refresh", refreshRequest{RefreshToken: session.RefreshToken}, nil)
	expectStatus(t, resp, http.StatusForbidden)

	resp = c.post("/auth/logout", nil, withBearer(rotated.AccessToken))
	expectStatus(t, resp, http.StatusNoContent)

	resp = c.post("/auth/refresh", refreshRequest{RefreshToken: rotated.RefreshToken}, nil)
	expectStatus(t, resp, http.StatusForbidden)
}

func TestRefreshRejectsGarbage(t *testing.T) {
	c := newTestAPI(t)

	resp := c.post("/auth/refresh", refreshRequest{RefreshToken: "not-a-token"}, nil)
	expectStatus(t, resp, http.StatusForbidden)

	resp = c.post("/auth/refresh", refreshRequest{}, nil)
	expectStatus(t, resp, http.StatusForbidden)
}

func TestProtectedRoutesRequireBearer(t *testing.T) {
	c := newTestAPI(t)

	resp := c.put("/documents/1/share", shareRequest{Permission: "READ"}, nil)
	expectStatus(t, resp, http.StatusUnauthorized)

	resp = c.put("/documents/1/share", shareRequest{Permission: "READ"}, withBearer("garbage"))
	expectStatus(t, resp, http.StatusUnauthorized)

	resp = c.post("/auth/logout", nil, nil)
	expectStatus(t, resp, http.StatusUnauthorized)
}

func TestShareFlow(t *testing.T) {
	c := newTestAPI(t)

	c.register("owner@example.com", "password123")
	owner := c.login("owner@example.com", "password123")
	c.register("other@example.com", "password123")
	other := c.login("other@example.com", "password123")

	c.docs.Put(&share.Document{ID: 1, OwnerID: owner.UserID, Name: "report.pdf", Bucket: "documents", Key: owner.UserID + "/report.pdf"})

	// Only the owner may issue a share.
	resp := c.put("/documents/1/share", shareRequest{Permission: "READ"}, withBearer(other.AccessToken))
	expectStatus(t, resp, http.StatusForbidden)

	resp = c.put("/documents/1/share", shareRequest{Permission: "READ", Password: "s3cret-pw", ExpiresDays: 7}, withBearer(owner.AccessToken))
	if resp.StatusCode != http.StatusOK {
		resp.Body.Close()
		t.Fatalf("create share status = %d", resp.StatusCode)
	}
	created := decode[shareResponse](t, resp)
	if created.ShareID == "" || !strings.Contains(created.ShareURL, created.ShareID) {
		t.Fatalf("bad share payload: %+v", created)
	}
	if created.ExpiresAt == nil {
		t.Fatal("bounded share has no expiry")
	}

	accessPath := "/documents/shares/" + created.ShareID + "/access"

	// Anonymous, no password.
	resp = c.get(accessPath, nil)
	expectStatus(t, resp, http.StatusUnauthorized)

	resp = c.get(accessPath, url.Values{"password": {"wrong"}})
	expectStatus(t, resp, http.StatusUnauthorized)

	resp = c.get(accessPath, url.Values{"password": {"s3cret-pw"}})
	if resp.StatusCode != http.StatusOK {
		resp.Body.Close()
		t.Fatalf("access status = %d", resp.StatusCode)
	}
	access := decode[shareAccessResponse](t, resp)
	if access.DownloadURL == "" || access.WriteAllowed {
		t.Fatalf("bad access payload: %+v", access)
	}

	// Revocation is issuer-only.
	resp = c.delete("/documents/shares/"+created.ShareID, withBearer(other.AccessToken))
	expectStatus(t, resp, http.StatusForbidden)

	resp = c.delete("/documents/shares/"+created.ShareID, withBearer(owner.AccessToken))
	expectStatus(t, resp, http.StatusNoContent)

	// After revocation the link is gone, even with the right password.
	resp = c.get(accessPath, url.Values{"password": {"s3cret-pw"}})
	expectStatus(t, resp, http.StatusNotFound)

	resp = c.delete("/documents/shares/"+created.ShareID, withBearer(owner.AccessToken))
	expectStatus(t, resp, http.StatusNotFound)
}

func TestShareAccessExpired(t *testing.T) {
	c := newTestAPI(t)

	past := time.Now().UTC().Add(-time.Hour)
	err := c.shares.Create(context.Background(), &share.Capability{
		ID:           "expired-share",
		DocumentID:   1,
		IssuerUserID: "owner-1",
		Permission:   share.PermissionRead,
		ExpiresAt:    &past,
	})
	if err != nil {
		t.Fatalf("seed capability: %v", err)
	}

	resp := c.get("/documents/shares/expired-share/access", nil)
	expectStatus(t, resp, http.StatusGone)
}

func TestShareBadPaths(t *testing.T) {
	c := newTestAPI(t)
	c.register("alice@example.com", "password123")
	session := c.login("alice@example.com", "password123")

	resp := c.put("/documents/not-a-number/share", shareRequest{Permission: "READ"}, withBearer(session.AccessToken))
	expectStatus(t, resp, http.StatusNotFound)

	resp = c.put("/documents/1/share", shareRequest{Permission: "EXECUTE"}, withBearer(session.AccessToken))
	expectStatus(t, resp, http.StatusBadRequest)

	resp = c.get("/documents/shares/some-id/extra/access", nil)
	expectStatus(t, resp, http.StatusNotFound)
}

func TestForgotAndResetPassword(t *testing.T) {
	c := newTestAPI(t)
	c.register("alice@example.com", "old-password-1")

	// Identical response body whether or not the account exists.
	respKnown := c.post("/auth/forgot-password", forgotPasswordRequest{Email: "alice@example.com"}, nil)
	known := decode[messageResponse](t, respKnown)
	respUnknown := c.post("/auth/forgot-password", forgotPasswordRequest{Email: "nobody@example.com"}, nil)
	unknown := decode[messageResponse](t, respUnknown)
	if known.Message != unknown.Message {
		t.Fatalf("enumeration oracle: %q vs %q", known.Message, unknown.Message)
	}

	token := c.mailer.lastToken(t)

	resp := c.post("/auth/reset-password", resetPasswordRequest{Token: token, NewPassword: "short"}, nil)
	expectStatus(t, resp, http.StatusBadRequest)

	resp = c.post("/auth/reset-password", resetPasswordRequest{Token: token, NewPassword: "new-password-1"}, nil)
	expectStatus(t, resp, http.StatusOK)

	// Single use.
	resp = c.post("/auth/reset-password", resetPasswordRequest{Token: token, NewPassword: "third-password-1"}, nil)
	expectStatus(t, resp, http.StatusBadRequest)

	resp = c.post("/auth/login", loginRequest{Email: "alice@example.com", Password: "old-password-1"}, nil)
	expectStatus(t, resp, http.StatusUnauthorized)
	c.login("alice@example.com", "new-password-1")
}

func TestHealthEndpoints(t *testing.T) {
	c := newTestAPI(t)

	resp := c.get("/healthz", nil)
	if resp.StatusCode != http.StatusOK {
		resp.Body.Close()
		t.Fatalf("healthz status = %d", resp.StatusCode)
	}
	health := decode[map[string]any](t, resp)
	if health["status"] != "ok" {
		t.Fatalf("healthz payload: %v", health)
	}

	resp = c.get("/readyz", nil)
	expectStatus(t, resp, http.StatusOK)
}

func TestMethodNotAllowed(t *testing.T) {
	c := newTestAPI(t)

	resp := c.get("/auth/login", nil)
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusMethodNotAllowed {
		t.Fatalf("status = %d", resp.StatusCode)
	}
	if allow := resp.Header.Get("Allow"); !strings.Contains(allow, http.MethodPost) {
		t.Fatalf("Allow header = %q", allow)
	}
}

func TestUnknownRouteRequiresAuth(t *testing.T) {
	// Authentication runs before routing, so an unknown path is refused
	// rather than revealed.
	c := newTestAPI(t)
	resp := c.get("/no-such-route", nil)
	expectStatus(t, resp, http.StatusUnauthorized)
}
