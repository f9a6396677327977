package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"golang.org/x/crypto/bcrypt"

	"github.com/oarkflow/accessguard"
	"github.com/oarkflow/accessguard/logger"
	"github.com/oarkflow/accessguard/stores"
)

func init() {
	gin.SetMode(gin.TestMode)
}

type staticRegistry struct{}

func (staticRegistry) Ready() bool               { return true }
func (staticRegistry) HasModel(name string) bool { return name == "sale.order" }
func (staticRegistry) Fields(model string) map[string]accessguard.FieldInfo {
	if model != "sale.order" {
		return nil
	}
	return map[string]accessguard.FieldInfo{
		"name":  {Type: "char"},
		"state": {Type: "selection"},
	}
}

type staticDirectory struct {
	users map[string]*User
}

func (d *staticDirectory) UserByEmail(ctx context.Context, email string) (*User, error) {
	for _, u := range d.users {
		if u.Email == email {
			return u, nil
		}
	}
	return nil, fmt.Errorf("no such user: %s", email)
}

func (d *staticDirectory) UserByID(ctx context.Context, id string) (*User, error) {
	u, ok := d.users[id]
	if !ok {
		return nil, fmt.Errorf("no such user: %s", id)
	}
	return u, nil
}

type apiEnv struct {
	server *Server
	engine *accessguard.Engine
}

func newTestServer(t *testing.T) *apiEnv {
	t.Helper()
	subRules := stores.NewMemorySubRuleStore()
	engine, err := accessguard.NewEngine(
		stores.NewMemoryRuleSetStore(subRules),
		subRules,
		stores.NewMemoryGroupStore(),
		stores.NewMemoryViewNodeStore(),
		stores.NewMemoryReferenceStore(),
		accessguard.WithLogger(logger.NewNullLogger()),
		accessguard.WithModelRegistry(staticRegistry{}),
	)
	if err != nil {
		t.Fatalf("new engine: %v", err)
	}
	t.Cleanup(engine.Close)

	hash, err := bcrypt.GenerateFromPassword([]byte("hunter2"), bcrypt.MinCost)
	if err != nil {
		t.Fatalf("hash password: %v", err)
	}
	dir := &staticDirectory{users: map[string]*User{
		"u1": {ID: "u1", Email: "alice@example.com", Name: "Alice", CompanyID: "c1", PasswordHash: string(hash), Active: true},
		"u2": {ID: "u2", Email: "bob@example.com", Name: "Bob", CompanyID: "c1", PasswordHash: string(hash), Active: true},
	}}
	server := NewServer(engine, dir, "test-secret", WithServerLogger(logger.NewNullLogger()))
	return &apiEnv{server: server, engine: engine}
}

func (env *apiEnv) do(t *testing.T, method, path, token string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("encode body: %v", err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	env.server.Router().ServeHTTP(w, req)
	return w
}

func (env *apiEnv) login(t *testing.T, email, password string) (*httptest.ResponseRecorder, string) {
	t.Helper()
	w := env.do(t, http.MethodPost, "/api/v1/auth/login", "", gin.H{"email": email, "password": password})
	var out struct {
		Token string `json:"token"`
	}
	if w.Code == http.StatusOK {
		if err := json.Unmarshal(w.Body.Bytes(), &out); err != nil {
			t.Fatalf("decode login response: %v", err)
		}
	}
	return w, out.Token
}

func (env *apiEnv) restrictUser(t *testing.T, userID string, mutate func(*accessguard.RuleSet)) *accessguard.RuleSet {
	t.Helper()
	rs := &accessguard.RuleSet{
		Name:                  "restrictions for " + userID,
		Active:                true,
		UserIDs:               []string{userID},
		ApplyWithoutCompanies: true,
	}
	if mutate != nil {
		mutate(rs)
	}
	if err := env.engine.CreateRuleSet(context.Background(), rs); err != nil {
		t.Fatalf("create rule set: %v", err)
	}
	return rs
}

func TestLoginIssuesToken(t *testing.T) {
	env := newTestServer(t)

	w, token := env.login(t, "alice@example.com", "hunter2")
	if w.Code != http.StatusOK {
		t.Fatalf("login status = %d: %s", w.Code, w.Body.String())
	}
	if token == "" {
		t.Fatalf("login response carried no token")
	}

	// the token opens the protected routes
	w = env.do(t, http.MethodGet, "/api/v1/access/sale.order/read", token, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("authorized check status = %d: %s", w.Code, w.Body.String())
	}
}

func TestLoginRejectsBadCredentials(t *testing.T) {
	env := newTestServer(t)

	w, _ := env.login(t, "alice@example.com", "wrong")
	if w.Code != http.StatusUnauthorized {
		t.Fatalf("wrong password status = %d", w.Code)
	}
	w, _ = env.login(t, "ghost@example.com", "hunter2")
	if w.Code != http.StatusUnauthorized {
		t.Fatalf("unknown user status = %d", w.Code)
	}
}

func TestLoginHonorsDisableLogin(t *testing.T) {
	env := newTestServer(t)
	env.restrictUser(t, "u1", func(rs *accessguard.RuleSet) {
		rs.DisableLogin = true
	})

	w, _ := env.login(t, "alice@example.com", "hunter2")
	if w.Code != http.StatusForbidden {
		t.Fatalf("disabled login status = %d: %s", w.Code, w.Body.String())
	}
	// other users still get in
	w, _ = env.login(t, "bob@example.com", "hunter2")
	if w.Code != http.StatusOK {
		t.Fatalf("unrestricted login status = %d: %s", w.Code, w.Body.String())
	}
}

func TestProtectedRoutesRequireToken(t *testing.T) {
	env := newTestServer(t)

	w := env.do(t, http.MethodGet, "/api/v1/access/sale.order/read", "", nil)
	if w.Code != http.StatusUnauthorized {
		t.Fatalf("missing token status = %d", w.Code)
	}
	w = env.do(t, http.MethodGet, "/api/v1/access/sale.order/read", "not-a-jwt", nil)
	if w.Code != http.StatusUnauthorized {
		t.Fatalf("garbage token status = %d", w.Code)
	}
}

func TestCheckAccessEndpoint(t *testing.T) {
	env := newTestServer(t)
	rs := env.restrictUser(t, "u1", nil)
	if err := env.engine.CreateModelAccess(context.Background(), &accessguard.ModelAccess{
		RuleSetID: rs.ID, Model: "sale.order", HideEdit: true,
	}); err != nil {
		t.Fatalf("create model access: %v", err)
	}

	_, token := env.login(t, "alice@example.com", "hunter2")

	w := env.do(t, http.MethodGet, "/api/v1/access/sale.order/write", token, nil)
	if w.Code != http.StatusForbidden {
		t.Fatalf("denied op status = %d: %s", w.Code, w.Body.String())
	}
	var denied struct {
		Outcome string `json:"outcome"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &denied); err != nil {
		t.Fatalf("decode denial: %v", err)
	}
	if denied.Outcome != "denied" {
		t.Fatalf("outcome = %q, want denied", denied.Outcome)
	}

	w = env.do(t, http.MethodGet, "/api/v1/access/sale.order/read", token, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("allowed op status = %d: %s", w.Code, w.Body.String())
	}
}

func TestRewriteViewEndpoint(t *testing.T) {
	env := newTestServer(t)
	rs := env.restrictUser(t, "u1", nil)
	if err := env.engine.CreateFieldAccess(context.Background(), &accessguard.FieldAccess{
		RuleSetID: rs.ID, Model: "sale.order", Fields: []string{"state"}, Invisible: true,
	}); err != nil {
		t.Fatalf("create field access: %v", err)
	}

	_, token := env.login(t, "alice@example.com", "hunter2")

	w := env.do(t, http.MethodPost, "/api/v1/views/sale.order/form/rewrite", token,
		gin.H{"arch": `<form><field name="state"/></form>`})
	if w.Code != http.StatusOK {
		t.Fatalf("rewrite status = %d: %s", w.Code, w.Body.String())
	}
	var out struct {
		Arch string `json:"arch"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &out); err != nil {
		t.Fatalf("decode rewrite: %v", err)
	}
	if out.Arch == "" || !bytes.Contains([]byte(out.Arch), []byte(`invisible="1"`)) {
		t.Fatalf("rewritten arch missing restriction: %s", out.Arch)
	}

	w = env.do(t, http.MethodPost, "/api/v1/views/sale.order/form/rewrite", token, gin.H{})
	if w.Code != http.StatusBadRequest {
		t.Fatalf("missing arch status = %d", w.Code)
	}
}

func TestDebugRedirectStripsFlag(t *testing.T) {
	env := newTestServer(t)
	env.restrictUser(t, "u1", func(rs *accessguard.RuleSet) {
		rs.DisableDebug = true
	})

	_, token := env.login(t, "alice@example.com", "hunter2")

	w := env.do(t, http.MethodGet, "/api/v1/access/sale.order/read?debug=1", token, nil)
	if w.Code != http.StatusSeeOther {
		t.Fatalf("debug request status = %d, want redirect", w.Code)
	}
	loc := w.Header().Get("Location")
	if loc != "/api/v1/access/sale.order/read" {
		t.Fatalf("redirect location = %q", loc)
	}

	// users without the restriction keep the flag
	_, token2 := env.login(t, "bob@example.com", "hunter2")
	w = env.do(t, http.MethodGet, "/api/v1/access/sale.order/read?debug=1", token2, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("unrestricted debug status = %d", w.Code)
	}
}

func TestRuleSetAdminEndpoints(t *testing.T) {
	env := newTestServer(t)
	_, token := env.login(t, "alice@example.com", "hunter2")

	w := env.do(t, http.MethodPost, "/api/v1/admin/rule-sets", token, gin.H{
		"name": "created over http", "active": true, "user_ids": []string{"u2"},
	})
	if w.Code != http.StatusCreated {
		t.Fatalf("create status = %d: %s", w.Code, w.Body.String())
	}
	var created struct {
		RuleSet accessguard.RuleSet `json:"rule_set"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &created); err != nil {
		t.Fatalf("decode created: %v", err)
	}
	if created.RuleSet.ID == "" {
		t.Fatalf("created rule set has no id")
	}

	// validation failures surface as bad requests
	w = env.do(t, http.MethodPost, "/api/v1/admin/rule-sets", token, gin.H{"active": true})
	if w.Code != http.StatusBadRequest {
		t.Fatalf("invalid create status = %d: %s", w.Code, w.Body.String())
	}

	w = env.do(t, http.MethodPut, "/api/v1/admin/rule-sets/"+created.RuleSet.ID, token, gin.H{
		"name": "renamed over http", "active": true, "user_ids": []string{"u2"},
	})
	if w.Code != http.StatusOK {
		t.Fatalf("update status = %d: %s", w.Code, w.Body.String())
	}

	w = env.do(t, http.MethodGet, "/api/v1/admin/rule-sets", token, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("list status = %d", w.Code)
	}
	var listed struct {
		RuleSets []*accessguard.RuleSet `json:"rule_sets"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &listed); err != nil {
		t.Fatalf("decode list: %v", err)
	}
	if len(listed.RuleSets) != 1 || listed.RuleSets[0].Name != "renamed over http" {
		t.Fatalf("list contents wrong: %+v", listed.RuleSets)
	}

	w = env.do(t, http.MethodDelete, "/api/v1/admin/rule-sets/"+created.RuleSet.ID, token, nil)
	if w.Code != http.StatusNoContent {
		t.Fatalf("delete status = %d", w.Code)
	}
}
