package httpapi

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"golang.org/x/crypto/bcrypt"

	"leadtrack.io/internal/auth"
	"leadtrack.io/internal/lead"
	"leadtrack.io/internal/store/memory"
	"leadtrack.io/internal/stream"
)

type apiClient struct {
	baseURL string
	client  *http.Client
	store   *memory.Store
	t       *testing.T
}

func newTestAPI(t *testing.T) *apiClient {
	t.Helper()

	store := memory.New()
	tokens, err := auth.NewTokens(auth.TokenConfig{Secret: "test-secret"}, nil)
	if err != nil {
		t.Fatalf("NewTokens: %v", err)
	}
	authSvc, err := auth.NewService(store, tokens, auth.WithBcryptCost(bcrypt.MinCost))
	if err != nil {
		t.Fatalf("auth.NewService: %v", err)
	}
	dir, err := auth.NewDirectory(store, nil)
	if err != nil {
		t.Fatalf("NewDirectory: %v", err)
	}
	hub := stream.New[lead.StatusChange]()
	leads, err := lead.NewService(store, auth.NewGuard(store), lead.WithEvents(hub))
	if err != nil {
		t.Fatalf("lead.NewService: %v", err)
	}

	api := New(authSvc, dir, leads, ReadyProbe{Store: store}, Config{
		Version:    "test",
		RateBurst:  100,
		RatePerSec: 100,
		Events:     hub,
	})
	srv := httptest.NewServer(api.Handler())
	t.Cleanup(srv.Close)

	return &apiClient{
		baseURL: srv.URL,
		client:  srv.Client(),
		store:   store,
		t:       t,
	}
}

func (c *apiClient) do(method, path, token string, body any) *http.Response {
	c.t.Helper()
	var rdr io.Reader
	switch b := body.(type) {
	case nil:
	case string:
		rdr = strings.NewReader(b)
	default:
		payload, err := json.Marshal(b)
		if err != nil {
			c.t.Fatalf("marshal body: %v", err)
		}
		rdr = bytes.NewReader(payload)
	}
	req, err := http.NewRequest(method, c.baseURL+path, rdr)
	if err != nil {
		c.t.Fatalf("new request: %v", err)
	}
	if rdr != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set(authHeader, bearer+token)
	}
	resp, err := c.client.Do(req)
	if err != nil {
		c.t.Fatalf("do request: %v", err)
	}
	c.t.Cleanup(func() { _ = resp.Body.Close() })
	return resp
}

func (c *apiClient) expect(resp *http.Response, code int) {
	c.t.Helper()
	if resp.StatusCode != code {
		b, _ := io.ReadAll(resp.Body)
		c.t.Fatalf("%s %s: expected %d, got %d: %s", resp.Request.Method, resp.Request.URL.Path, code, resp.StatusCode, b)
	}
}

func decode[T any](t *testing.T, resp *http.Response) T {
	t.Helper()
	var out T
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	return out
}

// register creates a user and returns an access token for it.
func (c *apiClient) register(email, role string, companyID string) (auth.Identity, string) {
	c.t.Helper()
	body := map[string]any{"email": email, "password": "pw-" + email, "name": email, "role": role}
	if companyID != "" {
		body["company_id"] = companyID
	}
	resp := c.do(http.MethodPost, "/api/auth/register", "", body)
	c.expect(resp, http.StatusCreated)
	user := decode[struct {
		User auth.Identity `json:"user"`
	}](c.t, resp).User

	resp = c.do(http.MethodPost, "/api/auth/login", "", map[string]string{"email": email, "password": "pw-" + email})
	c.expect(resp, http.StatusOK)
	sess := decode[sessionResponse](c.t, resp)
	if sess.AccessToken == "" || sess.RefreshToken == "" || sess.TokenType != "Bearer" {
		c.t.Fatalf("incomplete session: %+v", sess)
	}
	return user, sess.AccessToken
}

func (c *apiClient) company(name string) auth.Company {
	c.t.Helper()
	resp := c.do(http.MethodPost, "/api/companies", "", map[string]string{"name": name})
	c.expect(resp, http.StatusCreated)
	return decode[struct {
		Company auth.Company `json:"company"`
	}](c.t, resp).Company
}

func TestHealthAndInfo(t *testing.T) {
	c := newTestAPI(t)

	c.expect(c.do(http.MethodGet, "/healthz", "", nil), http.StatusOK)
	c.expect(c.do(http.MethodGet, "/readyz", "", nil), http.StatusOK)

	resp := c.do(http.MethodGet, "/v1/info", "", nil)
	c.expect(resp, http.StatusOK)
	info := decode[map[string]string](t, resp)
	if info["version"] != "test" {
		t.Fatalf("unexpected info: %v", info)
	}
	if resp.Header.Get("X-Content-Type-Options") != "nosniff" {
		t.Fatal("security headers missing")
	}
	if resp.Header.Get(requestIDHeader) == "" {
		t.Fatal("request id header missing")
	}

	resp = c.do(http.MethodGet, "/metrics", "", nil)
	c.expect(resp, http.StatusOK)
	metrics, _ := io.ReadAll(resp.Body)
	if !bytes.Contains(metrics, []byte(`route="/v1/info"`)) {
		t.Fatal("expected route pattern label for /v1/info")
	}
}

func TestLeadLifecycle(t *testing.T) {
	c := newTestAPI(t)
	acme := c.company("Acme")

	admin, adminToken := c.register("boss@acme.io", "ADMIN", acme.ID)
	if admin.Role != auth.RoleAdmin {
		t.Fatalf("admin role = %s", admin.Role)
	}
	alice, aliceToken := c.register("alice@acme.io", "", acme.ID)
	if alice.Role != auth.RoleSalesExecutive {
		t.Fatalf("default role = %s", alice.Role)
	}

	resp := c.do(http.MethodGet, "/api/auth/me", aliceToken, nil)
	c.expect(resp, http.StatusOK)
	me := decode[struct {
		User auth.Identity `json:"user"`
	}](t, resp).User
	if me.ID != alice.ID {
		t.Fatalf("me = %s, want %s", me.ID, alice.ID)
	}

	resp = c.do(http.MethodPost, "/api/leads", aliceToken, map[string]string{
		"title": "Rooftop solar",
		"phone": "(650) 253-0000",
	})
	c.expect(resp, http.StatusCreated)
	created := decode[struct {
		Lead lead.Lead `json:"lead"`
	}](t, resp).Lead
	if created.Status != lead.StatusNew || created.OwnerID != alice.ID {
		t.Fatalf("unexpected lead: %+v", created)
	}
	if created.Phone != "+16502530000" {
		t.Fatalf("phone = %q", created.Phone)
	}

	path := "/api/leads/" + created.ID
	c.expect(c.do(http.MethodPatch, path, aliceToken, map[string]string{
		"status": "CONTACTED",
		"notes":  "called",
	}), http.StatusOK)
	c.expect(c.do(http.MethodPatch, path, aliceToken, map[string]string{
		"title": "Rooftop solar, 12kW",
	}), http.StatusOK)

	resp = c.do(http.MethodGet, path, adminToken, nil)
	c.expect(resp, http.StatusOK)
	detail := decode[struct {
		Lead lead.Detail `json:"lead"`
	}](t, resp).Lead
	if detail.Status != "CONTACTED" || detail.Title != "Rooftop solar, 12kW" {
		t.Fatalf("unexpected lead: %+v", detail.Lead)
	}
	if len(detail.History) != 1 {
		t.Fatalf("history entries = %d, want 1", len(detail.History))
	}
	h := detail.History[0]
	if h.OldStatus != lead.StatusNew || h.NewStatus != "CONTACTED" || h.ChangedByID != alice.ID || h.Notes != "called" {
		t.Fatalf("unexpected history: %+v", h)
	}

	c.expect(c.do(http.MethodDelete, path, aliceToken, nil), http.StatusForbidden)
	c.expect(c.do(http.MethodDelete, path, adminToken, nil), http.StatusNoContent)
	c.expect(c.do(http.MethodGet, path, adminToken, nil), http.StatusNotFound)
}

func TestLeadVisibility(t *testing.T) {
	c := newTestAPI(t)
	acme := c.company("Acme")
	_, aliceToken := c.register("alice@acme.io", "", acme.ID)
	_, bobToken := c.register("bob@acme.io", "", acme.ID)

	resp := c.do(http.MethodPost, "/api/leads", aliceToken, map[string]string{"title": "Alice's lead"})
	c.expect(resp, http.StatusCreated)
	l := decode[struct {
		Lead lead.Lead `json:"lead"`
	}](t, resp).Lead

	c.expect(c.do(http.MethodGet, "/api/leads/"+l.ID, bobToken, nil), http.StatusForbidden)
	c.expect(c.do(http.MethodPatch, "/api/leads/"+l.ID, bobToken, map[string]string{"status": "WON"}), http.StatusForbidden)

	resp = c.do(http.MethodGet, "/api/leads", bobToken, nil)
	c.expect(resp, http.StatusOK)
	list := decode[struct {
		Leads []lead.Lead `json:"leads"`
	}](t, resp).Leads
	if len(list) != 0 {
		t.Fatalf("bob sees %d leads", len(list))
	}

	c.expect(c.do(http.MethodGet, "/api/leads/not-a-ulid", aliceToken, nil), http.StatusBadRequest)
}

func TestAuthFailures(t *testing.T) {
	c := newTestAPI(t)
	c.register("alice@acme.io", "", "")

	resp := c.do(http.MethodGet, "/api/leads", "", nil)
	c.expect(resp, http.StatusUnauthorized)
	body := decode[map[string]any](t, resp)
	if body["error"] == nil || body["request_id"] == nil {
		t.Fatalf("expected error and request_id, got %v", body)
	}

	c.expect(c.do(http.MethodGet, "/api/auth/me", "garbage", nil), http.StatusUnauthorized)
	c.expect(c.do(http.MethodPost, "/api/auth/login", "", map[string]string{
		"email": "alice@acme.io", "password": "wrong",
	}), http.StatusUnauthorized)
	c.expect(c.do(http.MethodPost, "/api/auth/register", "", map[string]string{
		"email": "ALICE@acme.io", "password": "again",
	}), http.StatusConflict)
	c.expect(c.do(http.MethodPost, "/api/auth/register", "", map[string]string{
		"email": "not-an-email", "password": "pw",
	}), http.StatusBadRequest)
	c.expect(c.do(http.MethodPost, "/api/auth/login", "", `{"email":"a@b.io","password":"x","extra":1}`), http.StatusBadRequest)
	c.expect(c.do(http.MethodPost, "/api/auth/login", "", `{"email":"a@b.io"} {}`), http.StatusBadRequest)
	c.expect(c.do(http.MethodPut, "/healthz", "", nil), http.StatusMethodNotAllowed)
	c.expect(c.do(http.MethodGet, "/nope", "", nil), http.StatusNotFound)
}

func TestDirectoryEndpoints(t *testing.T) {
	c := newTestAPI(t)
	acme := c.company("Acme")
	globex := c.company("Globex")

	_, adminToken := c.register("root@acme.io", "ADMIN", acme.ID)
	_, mgrToken := c.register("mgr@acme.io", "MANAGER", acme.ID)
	rep, repToken := c.register("rep@acme.io", "", "")

	c.expect(c.do(http.MethodPost, "/api/companies", "", map[string]string{"name": "Acme"}), http.StatusConflict)

	resp := c.do(http.MethodGet, "/api/companies", repToken, nil)
	c.expect(resp, http.StatusOK)
	list := decode[struct {
		Companies []auth.CompanyDetail `json:"companies"`
	}](t, resp).Companies
	if len(list) != 2 {
		t.Fatalf("companies = %d", len(list))
	}

	assign := map[string]string{"user_id": rep.ID, "company_id": acme.ID}
	c.expect(c.do(http.MethodPatch, "/api/users/assign", repToken, assign), http.StatusForbidden)
	c.expect(c.do(http.MethodPatch, "/api/users/assign", mgrToken, map[string]string{
		"user_id": rep.ID, "company_id": globex.ID,
	}), http.StatusForbidden)
	resp = c.do(http.MethodPatch, "/api/users/assign", mgrToken, assign)
	c.expect(resp, http.StatusOK)

	resp = c.do(http.MethodGet, "/api/users/company/"+acme.ID, repToken, nil)
	c.expect(resp, http.StatusOK)
	users := decode[struct {
		Users []auth.Identity `json:"users"`
	}](t, resp).Users
	if len(users) != 3 {
		t.Fatalf("acme members = %d, want 3", len(users))
	}

	resp = c.do(http.MethodPut, "/api/users/"+rep.ID, mgrToken, map[string]string{"name": "Rep One", "role": "MANAGER"})
	c.expect(resp, http.StatusOK)
	updated := decode[struct {
		User auth.Identity `json:"user"`
	}](t, resp).User
	if updated.Name != "Rep One" || updated.Role != auth.RoleManager {
		t.Fatalf("unexpected user: %+v", updated)
	}
	c.expect(c.do(http.MethodPut, "/api/users/"+rep.ID, mgrToken, map[string]string{"role": "ADMIN"}), http.StatusForbidden)

	// rep's token predates the promotion; the role is read from the store.
	c.expect(c.do(http.MethodPatch, "/api/companies/"+acme.ID, repToken, map[string]any{"size": 12}), http.StatusOK)
	c.expect(c.do(http.MethodDelete, "/api/companies/"+acme.ID, mgrToken, nil), http.StatusForbidden)
	c.expect(c.do(http.MethodDelete, "/api/companies/"+acme.ID, adminToken, nil), http.StatusConflict)
	c.expect(c.do(http.MethodDelete, "/api/companies/"+globex.ID, adminToken, nil), http.StatusNoContent)
}
