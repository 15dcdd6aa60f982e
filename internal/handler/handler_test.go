package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/time/rate"

	"chatdir/internal/app/directory"
	"chatdir/internal/app/storage"
	"chatdir/internal/app/user"
	"chatdir/internal/configs"
	"chatdir/internal/pkg/auth/token"
	"chatdir/internal/pkg/errs"
	"chatdir/internal/pkg/limiter"
	"chatdir/internal/pkg/pow"
)

type envelope struct {
	Code    int             `json:"code"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`

	Path      string `json:"path"`
	RequestID string `json:"requestId"`
}

type testServer struct {
	t       *testing.T
	handler http.Handler
	deps    *AppDeps
}

func newDeps(t *testing.T, path string) *AppDeps {
	t.Helper()

	dir, err := directory.Open(context.Background(), storage.NewFileStore(path))
	require.NoError(t, err)

	return &AppDeps{
		Config:    &configs.AppConfig{Environment: "test"},
		Directory: dir,
		Tokens:    token.IDIssuer{},
	}
}

func newTestServer(t *testing.T, deps *AppDeps) *testServer {
	t.Helper()
	if deps == nil {
		deps = newDeps(t, filepath.Join(t.TempDir(), "users.json"))
	}
	return &testServer{t: t, handler: Router(deps), deps: deps}
}

func (s *testServer) do(method, path string, body any, headers map[string]string) (int, envelope, string) {
	s.t.Helper()

	var reader *bytes.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(s.t, err)
		reader = bytes.NewReader(raw)
	} else {
		reader = bytes.NewReader(nil)
	}

	r := httptest.NewRequest(method, path, reader)
	if body != nil {
		r.Header.Set("Content-Type", "application/json")
	}
	for k, v := range headers {
		r.Header.Set(k, v)
	}

	w := httptest.NewRecorder()
	s.handler.ServeHTTP(w, r)

	var env envelope
	require.NoError(s.t, json.Unmarshal(w.Body.Bytes(), &env), w.Body.String())
	return w.Code, env, w.Body.String()
}

func (s *testServer) createUser(name, password string) user.View {
	s.t.Helper()

	status, env, _ := s.do(http.MethodPost, "/users", map[string]string{"name": name, "password": password}, nil)
	require.Equal(s.t, http.StatusOK, status)

	var data struct {
		User user.View `json:"user"`
	}
	require.NoError(s.t, json.Unmarshal(env.Data, &data))
	return data.User
}

func decode[T any](t *testing.T, raw json.RawMessage) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(raw, &v))
	return v
}

func TestHealth(t *testing.T) {
	s := newTestServer(t, nil)

	status, env, _ := s.do(http.MethodGet, "/health", nil, nil)
	assert.Equal(t, http.StatusOK, status)
	assert.Equal(t, 0, env.Code)
	assert.JSONEq(t, `{"status":"ok","service":"chatdir","users":0}`, string(env.Data))
}

func TestCreateAndGetUser(t *testing.T) {
	s := newTestServer(t, nil)

	created := s.createUser("Ana", "x")
	assert.NotEmpty(t, created.ID)
	assert.Equal(t, "Ana", created.Name)
	assert.Equal(t, []string{}, created.ChatRefs)

	status, env, body := s.do(http.MethodGet, "/users/"+created.ID, nil, nil)
	require.Equal(t, http.StatusOK, status)
	assert.NotContains(t, body, "password")
	assert.Equal(t, created, decode[struct {
		User user.View `json:"user"`
	}](t, env.Data).User)
}

func TestCreateUser_Validation(t *testing.T) {
	s := newTestServer(t, nil)

	status, env, _ := s.do(http.MethodPost, "/users", map[string]string{"name": "", "password": "x"}, nil)
	assert.Equal(t, http.StatusBadRequest, status)
	assert.Equal(t, errs.ErrInvalidName, env.Code)

	status, env, _ = s.do(http.MethodPost, "/users", map[string]string{"name": "Ana"}, nil)
	assert.Equal(t, http.StatusBadRequest, status)
	assert.Equal(t, errs.ErrInvalidPassword, env.Code)

	status, env, _ = s.do(http.MethodPost, "/users", json.RawMessage(`{"name": 7, "password": "x"}`), nil)
	assert.Equal(t, http.StatusBadRequest, status)
	assert.Equal(t, errs.ErrInvalidJSONFormat, env.Code)

	r := httptest.NewRequest(http.MethodPost, "/users", bytes.NewBufferString(`name=Ana`))
	r.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	w := httptest.NewRecorder()
	s.handler.ServeHTTP(w, r)
	assert.Equal(t, http.StatusUnsupportedMediaType, w.Code)

	assert.Equal(t, 0, s.deps.Directory.Len())
}

func TestListUsers_OmitsPasswords(t *testing.T) {
	s := newTestServer(t, nil)

	a := s.createUser("Ana", "secret-a")
	b := s.createUser("Bo", "secret-b")

	status, env, body := s.do(http.MethodGet, "/users", nil, nil)
	require.Equal(t, http.StatusOK, status)
	assert.NotContains(t, body, "password")
	assert.NotContains(t, body, "secret-")

	list := decode[struct {
		Users []user.View `json:"users"`
	}](t, env.Data).Users
	assert.Equal(t, []user.View{a, b}, list)
}

func TestGetUser_NotFound(t *testing.T) {
	s := newTestServer(t, nil)

	status, env, _ := s.do(http.MethodGet, "/users/missing", nil, nil)
	assert.Equal(t, http.StatusNotFound, status)
	assert.Equal(t, errs.ErrUserNotFound, env.Code)
	assert.Equal(t, "/users/missing", env.Path)
	assert.NotEmpty(t, env.RequestID)

	status, _, _ = s.do(http.MethodPatch, "/users/missing", map[string]string{"name": "x"}, nil)
	assert.Equal(t, http.StatusNotFound, status)

	status, _, _ = s.do(http.MethodDelete, "/users/missing", nil, nil)
	assert.Equal(t, http.StatusNotFound, status)

	status, _, _ = s.do(http.MethodGet, "/users/missing/chatRefs", nil, nil)
	assert.Equal(t, http.StatusNotFound, status)

	status, _, _ = s.do(http.MethodPost, "/users/missing/chatRefs", map[string]string{"chat_id": "c1"}, nil)
	assert.Equal(t, http.StatusNotFound, status)
}

func TestUpdateUser(t *testing.T) {
	s := newTestServer(t, nil)
	ana := s.createUser("Ana", "x")

	status, env, _ := s.do(http.MethodPatch, "/users/"+ana.ID, map[string]string{"name": "Ana Maria"}, nil)
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, "Ana Maria", decode[struct {
		User user.View `json:"user"`
	}](t, env.Data).User.Name)

	status, env, _ = s.do(http.MethodPatch, "/users/"+ana.ID, map[string]string{}, nil)
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, "Ana Maria", decode[struct {
		User user.View `json:"user"`
	}](t, env.Data).User.Name)
}

func TestDeleteUser(t *testing.T) {
	s := newTestServer(t, nil)
	ana := s.createUser("Ana", "x")

	status, _, _ := s.do(http.MethodDelete, "/users/"+ana.ID, nil, nil)
	require.Equal(t, http.StatusOK, status)

	status, env, _ := s.do(http.MethodGet, "/users/"+ana.ID, nil, nil)
	assert.Equal(t, http.StatusNotFound, status)
	assert.Equal(t, errs.ErrUserNotFound, env.Code)

	status, _, _ = s.do(http.MethodPost, "/login", map[string]string{"name": "Ana", "password": "x"}, nil)
	assert.Equal(t, http.StatusUnauthorized, status)
}

func TestLogin(t *testing.T) {
	s := newTestServer(t, nil)
	ana := s.createUser("Ana", "x")

	status, env, _ := s.do(http.MethodPost, "/login", map[string]string{"name": "ANA", "password": "x"}, nil)
	require.Equal(t, http.StatusOK, status)

	session := decode[directory.Session](t, env.Data)
	assert.Equal(t, ana.ID, session.Token)
	assert.Equal(t, ana, session.User)

	status, env, _ = s.do(http.MethodPost, "/login", map[string]string{"name": "Ana", "password": "X"}, nil)
	assert.Equal(t, http.StatusUnauthorized, status)
	assert.Equal(t, errs.ErrInvalidCredentials, env.Code)
	assert.Empty(t, env.Data)
}

func TestLogin_IgnoresExtraFields(t *testing.T) {
	s := newTestServer(t, nil)

	ana := s.createUser("Ana", "x")

	status, env, _ := s.do(http.MethodPost, "/login", map[string]string{"name": "ana", "password": "x", "remember": "yes"}, nil)
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, ana.ID, decode[directory.Session](t, env.Data).User.ID)
}

func TestMe(t *testing.T) {
	s := newTestServer(t, nil)
	ana := s.createUser("Ana", "x")

	status, env, _ := s.do(http.MethodGet, "/me", nil, map[string]string{"Authorization": "Bearer " + ana.ID})
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, ana, decode[struct {
		User user.View `json:"user"`
	}](t, env.Data).User)

	status, env, _ = s.do(http.MethodGet, "/me", nil, nil)
	assert.Equal(t, http.StatusUnauthorized, status)
	assert.Equal(t, errs.ErrUnauthorized, env.Code)

	status, _, _ = s.do(http.MethodGet, "/me", nil, map[string]string{"Authorization": "Bearer unknown"})
	assert.Equal(t, http.StatusUnauthorized, status)

	status, _, _ = s.do(http.MethodGet, "/me", nil, map[string]string{"Authorization": ana.ID})
	assert.Equal(t, http.StatusUnauthorized, status)
}

func TestMe_SignedTokens(t *testing.T) {
	issuer, err := token.NewSignedIssuer("test-secret")
	require.NoError(t, err)

	dir, err := directory.Open(context.Background(),
		storage.NewFileStore(filepath.Join(t.TempDir(), "users.json")),
		directory.WithTokenIssuer(issuer))
	require.NoError(t, err)

	s := newTestServer(t, &AppDeps{
		Config:    &configs.AppConfig{Environment: "test"},
		Directory: dir,
		Tokens:    issuer,
	})
	ana := s.createUser("Ana", "x")

	_, env, _ := s.do(http.MethodPost, "/login", map[string]string{"name": "ana", "password": "x"}, nil)
	session := decode[directory.Session](t, env.Data)
	assert.NotEqual(t, ana.ID, session.Token)

	status, _, _ := s.do(http.MethodGet, "/me", nil, map[string]string{"Authorization": "Bearer " + session.Token})
	assert.Equal(t, http.StatusOK, status)

	status, _, _ = s.do(http.MethodGet, "/me", nil, map[string]string{"Authorization": "Bearer " + ana.ID})
	assert.Equal(t, http.StatusUnauthorized, status)
}

func TestChatRefs_Idempotent(t *testing.T) {
	s := newTestServer(t, nil)
	ana := s.createUser("Ana", "x")
	path := "/users/" + ana.ID + "/chatRefs"

	for range 2 {
		status, env, _ := s.do(http.MethodPost, path, map[string]string{"chat_id": "c1"}, nil)
		require.Equal(t, http.StatusOK, status)
		assert.Equal(t, []string{"c1"}, decode[struct {
			User user.View `json:"user"`
		}](t, env.Data).User.ChatRefs)
	}

	status, env, _ := s.do(http.MethodGet, path, nil, nil)
	require.Equal(t, http.StatusOK, status)
	assert.JSONEq(t, `{"userId":"`+ana.ID+`","chatRefs":["c1"]}`, string(env.Data))

	status, env, _ = s.do(http.MethodPost, path, map[string]string{"chat_id": ""}, nil)
	assert.Equal(t, http.StatusBadRequest, status)
	assert.Equal(t, errs.ErrInvalidChatID, env.Code)
}

func TestLocalChats_SortedUnion(t *testing.T) {
	s := newTestServer(t, nil)

	status, env, _ := s.do(http.MethodGet, "/local/chats", nil, nil)
	require.Equal(t, http.StatusOK, status)
	assert.JSONEq(t, `{"chatRefs":[]}`, string(env.Data))

	ana := s.createUser("Ana", "x")
	bo := s.createUser("Bo", "y")
	for _, ref := range []string{"c2", "c1"} {
		s.do(http.MethodPost, "/users/"+ana.ID+"/chatRefs", map[string]string{"chat_id": ref}, nil)
	}
	for _, ref := range []string{"c3", "c1"} {
		s.do(http.MethodPost, "/users/"+bo.ID+"/chatRefs", map[string]string{"chat_id": ref}, nil)
	}

	_, env, _ = s.do(http.MethodGet, "/local/chats", nil, nil)
	assert.JSONEq(t, `{"chatRefs":["c1","c2","c3"]}`, string(env.Data))
}

func TestRestart_ServesPersistedUsers(t *testing.T) {
	path := filepath.Join(t.TempDir(), "users.json")

	first := newTestServer(t, newDeps(t, path))
	a := first.createUser("Ana", "x")
	b := first.createUser("Bo", "y")

	second := newTestServer(t, newDeps(t, path))
	status, env, _ := second.do(http.MethodGet, "/users", nil, nil)
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, []user.View{a, b}, decode[struct {
		Users []user.View `json:"users"`
	}](t, env.Data).Users)
}

func TestCreateUser_ProofOfWork(t *testing.T) {
	deps := newDeps(t, filepath.Join(t.TempDir(), "users.json"))
	deps.Pow = pow.NewManager(1)
	t.Cleanup(deps.Pow.Stop)
	s := newTestServer(t, deps)

	body := map[string]string{"name": "Ana", "password": "x"}

	status, env, _ := s.do(http.MethodPost, "/users", body, nil)
	assert.Equal(t, http.StatusForbidden, status)
	assert.Equal(t, errs.ErrPowChallengeRequired, env.Code)

	_, env, _ = s.do(http.MethodGet, "/pow/challenge", nil, nil)
	challenge := decode[struct {
		Nonce      string `json:"nonce"`
		Difficulty int    `json:"difficulty"`
	}](t, env.Data)
	require.Equal(t, 1, challenge.Difficulty)
	require.NotEmpty(t, challenge.Nonce)

	status, env, _ = s.do(http.MethodPost, "/pow/verify", map[string]string{
		"nonce":   challenge.Nonce,
		"counter": pow.Solve(challenge.Nonce, challenge.Difficulty),
	}, nil)
	require.Equal(t, http.StatusOK, status)
	proof := decode[struct {
		Token string `json:"token"`
	}](t, env.Data).Token

	headers := map[string]string{pow.TokenHeaderKey: proof}
	status, _, _ = s.do(http.MethodPost, "/users", body, headers)
	assert.Equal(t, http.StatusOK, status)

	status, _, _ = s.do(http.MethodPost, "/users", body, headers)
	assert.Equal(t, http.StatusForbidden, status, "proof tokens are single use")
	assert.Equal(t, 1, s.deps.Directory.Len())
}

func TestPowVerify_RejectsBadProof(t *testing.T) {
	deps := newDeps(t, filepath.Join(t.TempDir(), "users.json"))
	deps.Pow = pow.NewManager(1)
	t.Cleanup(deps.Pow.Stop)
	s := newTestServer(t, deps)

	status, env, _ := s.do(http.MethodPost, "/pow/verify", map[string]string{"nonce": "unknown", "counter": pow.Solve("unknown", 1)}, nil)
	assert.Equal(t, http.StatusBadRequest, status)
	assert.Equal(t, errs.ErrPowChallengeInvalid, env.Code)
}

func TestPow_DisabledByDefault(t *testing.T) {
	s := newTestServer(t, nil)

	_, env, _ := s.do(http.MethodGet, "/pow/challenge", nil, nil)
	assert.JSONEq(t, `{"nonce":"","difficulty":0}`, string(env.Data))

	s.createUser("Ana", "x")
}

func TestLogin_RateLimited(t *testing.T) {
	deps := newDeps(t, filepath.Join(t.TempDir(), "users.json"))
	deps.LoginLimiter = limiter.NewIPRateLimiter(rate.Limit(0.001), 2)
	t.Cleanup(deps.LoginLimiter.Stop)
	s := newTestServer(t, deps)

	body := map[string]string{"name": "nobody", "password": "x"}
	for range 2 {
		status, _, _ := s.do(http.MethodPost, "/login", body, nil)
		assert.Equal(t, http.StatusUnauthorized, status)
	}

	status, env, _ := s.do(http.MethodPost, "/login", body, nil)
	assert.Equal(t, http.StatusTooManyRequests, status)
	assert.Equal(t, errs.ErrRateLimitExceeded, env.Code)
}

func TestCreateUser_NotThrottledByDefault(t *testing.T) {
	for _, k := range []string{"ENVIRONMENT", "PORT", "STORAGE_DRIVER", "POW_DIFFICULTY",
		"TRUST_PROXY", "LOGIN_RATE", "LOGIN_BURST", "SIGNUP_RATE", "SIGNUP_BURST"} {
		t.Setenv(k, "")
	}
	cfg, err := configs.LoadConfig()
	require.NoError(t, err)

	deps := newDeps(t, filepath.Join(t.TempDir(), "users.json"))
	deps.Config = cfg
	deps.LoginLimiter = limiter.NewOptional(cfg.LoginRate, cfg.LoginBurst)
	deps.SignupLimiter = limiter.NewOptional(cfg.SignupRate, cfg.SignupBurst)
	s := newTestServer(t, deps)

	for i := range 12 {
		status, _, _ := s.do(http.MethodPost, "/users", map[string]string{"name": "user", "password": "pw"}, nil)
		require.Equal(t, http.StatusOK, status, "create #%d", i+1)
	}
	for range 12 {
		status, _, _ := s.do(http.MethodPost, "/login", map[string]string{"name": "user", "password": "pw"}, nil)
		require.Equal(t, http.StatusOK, status)
	}
	assert.Equal(t, 12, s.deps.Directory.Len())
}

func TestRateLimit_ForwardedHeadersIgnoredUnlessTrusted(t *testing.T) {
	newLimited := func(trustProxy bool) *testServer {
		deps := newDeps(t, filepath.Join(t.TempDir(), "users.json"))
		deps.Config.TrustProxy = trustProxy
		deps.LoginLimiter = limiter.NewIPRateLimiter(rate.Limit(0.001), 1)
		t.Cleanup(deps.LoginLimiter.Stop)
		return newTestServer(t, deps)
	}
	body := map[string]string{"name": "nobody", "password": "x"}

	s := newLimited(false)
	status, _, _ := s.do(http.MethodPost, "/login", body, map[string]string{"X-Forwarded-For": "203.0.113.1"})
	assert.Equal(t, http.StatusUnauthorized, status)
	status, _, _ = s.do(http.MethodPost, "/login", body, map[string]string{"X-Forwarded-For": "203.0.113.2"})
	assert.Equal(t, http.StatusTooManyRequests, status, "spoofed header must not open a new bucket")

	s = newLimited(true)
	status, _, _ = s.do(http.MethodPost, "/login", body, map[string]string{"X-Forwarded-For": "203.0.113.1"})
	assert.Equal(t, http.StatusUnauthorized, status)
	status, _, _ = s.do(http.MethodPost, "/login", body, map[string]string{"X-Forwarded-For": "203.0.113.2"})
	assert.Equal(t, http.StatusUnauthorized, status, "behind a trusted proxy each client has its own bucket")
}
