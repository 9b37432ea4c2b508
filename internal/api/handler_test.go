package api_test

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"

	"github.com/gyaneshwarpardhi/sense/internal/api"
	"github.com/gyaneshwarpardhi/sense/internal/classifier"
	"github.com/gyaneshwarpardhi/sense/internal/config"
	"github.com/gyaneshwarpardhi/sense/internal/engine"
	"github.com/gyaneshwarpardhi/sense/internal/errsink"
	"github.com/gyaneshwarpardhi/sense/internal/expectation"
	"github.com/gyaneshwarpardhi/sense/internal/provider"
	"github.com/gyaneshwarpardhi/sense/internal/ruleconf"
	"github.com/gyaneshwarpardhi/sense/internal/statistics"
)

const startupRules = `
- name: tests
  type: TestEvent
  match:
    field: type
    equal: Test
`

func newServer(t *testing.T, secret string) *httptest.Server {
	t.Helper()
	compiler, err := ruleconf.NewCompiler()
	require.NoError(t, err)
	var defs []ruleconf.Definition
	require.NoError(t, yaml.Unmarshal([]byte(startupRules), &defs))
	rules, err := compiler.CompileAll(defs)
	require.NoError(t, err)
	reg := classifier.NewRegistry(rules...)

	cache, err := provider.NewCached(provider.NewMemoryStore(), provider.CacheConf{})
	require.NoError(t, err)
	buckets, err := statistics.NewBuckets(statistics.DefaultBuckets)
	require.NoError(t, err)
	exps := expectation.NewEngine(errsink.Log())

	ctx, cancel := context.WithCancel(context.Background())
	eng := engine.New(ctx, engine.Deps{
		Classifier: classifier.New(reg, cache, errsink.Log()),
		Buckets:    buckets,
		Statistics: statistics.NewAggregated(errsink.Log(), buckets, exps),
		Recorder:   cache,
	}, config.EngineConf{ClassifyWorkers: 2, QueueDepth: 16, EventTimeoutMs: 2000})

	srv := httptest.NewServer(api.New(api.Deps{
		Engine:       eng,
		Registry:     reg,
		Compiler:     compiler,
		Expectations: exps,
		AwaitTimeout: time.Second,
		JWTSecret:    secret,
	}))
	t.Cleanup(func() {
		srv.Close()
		cancel()
		eng.Shutdown()
	})
	return srv
}

func do(t *testing.T, method, target, body string) (*http.Response, map[string]any) {
	t.Helper()
	req, err := http.NewRequest(method, target, strings.NewReader(body))
	require.NoError(t, err)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	var out map[string]any
	_ = json.NewDecoder(resp.Body).Decode(&out)
	return resp, out
}

func TestNotifications(t *testing.T) {
	srv := newServer(t, "")

	resp, body := do(t, http.MethodPost, srv.URL+"/v1/notifications",
		`{"name":"two-tests","expected_events":{"TestEvent":2},"description":"wait for two"}`)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "two-tests", body["name"])

	resp, _ = do(t, http.MethodPost, srv.URL+"/v1/notifications", `{"name":"two-tests","expected_events":{"TestEvent":1}}`)
	assert.Equal(t, http.StatusConflict, resp.StatusCode)

	resp, _ = do(t, http.MethodPost, srv.URL+"/v1/notifications", `{"name":"zero","expected_events":{"TestEvent":0}}`)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp, body = do(t, http.MethodGet, srv.URL+"/v1/notifications", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Len(t, body["active"], 1)

	for _, id := range []string{"a", "b"} {
		resp, body = do(t, http.MethodPost, srv.URL+"/v1/events", `{"id":"`+id+`","name":"TestLogin","type":"Test"}`)
		require.Equal(t, http.StatusOK, resp.StatusCode)
		assert.Equal(t, true, body["accepted"])
		assert.Equal(t, "TestEvent", body["type"])
	}

	resp, body = do(t, http.MethodGet, srv.URL+"/v1/notifications/two-tests/await?timeout=2s", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, true, body["satisfied"])

	// satisfied expectations are gone
	resp, _ = do(t, http.MethodDelete, srv.URL+"/v1/notifications/two-tests", "")
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestAwait(t *testing.T) {
	srv := newServer(t, "")

	resp, _ := do(t, http.MethodGet, srv.URL+"/v1/notifications/unknown/await", "")
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	resp, _ = do(t, http.MethodGet, srv.URL+"/v1/notifications/unknown/await?timeout=soon", "")
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp, _ = do(t, http.MethodPost, srv.URL+"/v1/notifications", `{"name":"never","expected_events":{"Other":1}}`)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	resp, _ = do(t, http.MethodGet, srv.URL+"/v1/notifications/never/await?timeout=20ms", "")
	assert.Equal(t, http.StatusRequestTimeout, resp.StatusCode)

	// timed out expectations are removed
	resp, _ = do(t, http.MethodDelete, srv.URL+"/v1/notifications/never", "")
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestRemoveNotification(t *testing.T) {
	srv := newServer(t, "")

	resp, _ := do(t, http.MethodPost, srv.URL+"/v1/notifications", `{"name":"n","expected_events":{"X":1}}`)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	resp, _ = do(t, http.MethodDelete, srv.URL+"/v1/notifications/n", "")
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)
}

func TestRules(t *testing.T) {
	srv := newServer(t, "")

	resp, body := do(t, http.MethodPost, srv.URL+"/v1/rules",
		`{"name":"suites","type":"SuiteEvent","match":{"field":"type","equal":"Suite"}}`)
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	handle, _ := body["handle"].(string)
	require.True(t, strings.HasPrefix(handle, "suites#"), handle)

	resp, body = do(t, http.MethodGet, srv.URL+"/v1/rules", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Len(t, body["rules"], 2)

	resp, body = do(t, http.MethodPost, srv.URL+"/v1/events", `{"id":"s","name":"Suite A","type":"Suite"}`)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "SuiteEvent", body["type"])

	resp, _ = do(t, http.MethodDelete, srv.URL+"/v1/rules/"+url.PathEscape(handle), "")
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)
	resp, _ = do(t, http.MethodDelete, srv.URL+"/v1/rules/"+url.PathEscape(handle), "")
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	resp, _ = do(t, http.MethodDelete, srv.URL+"/v1/rules/tests", "")
	assert.Equal(t, http.StatusConflict, resp.StatusCode)

	resp, _ = do(t, http.MethodPost, srv.URL+"/v1/rules", `{"name":"broken","type":"B","match":{"expr":"nope("}}`)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp, _ = do(t, http.MethodPost, srv.URL+"/v1/rules/reload", "")
	assert.Equal(t, http.StatusNotImplemented, resp.StatusCode)
}

func TestEventsAndStats(t *testing.T) {
	srv := newServer(t, "")

	now := time.Now().UTC().Format(time.RFC3339Nano)
	resp, body := do(t, http.MethodPost, srv.URL+"/v1/events/batch", fmt.Sprintf(
		`[{"id":"1","type":"Test","start_time":%[1]q},{"id":"2","type":"Test","start_time":%[1]q},{"id":"3","type":"Suite","start_time":%[1]q}]`, now))
	require.Equal(t, http.StatusAccepted, resp.StatusCode)
	assert.EqualValues(t, 3, body["queued"])

	resp, _ = do(t, http.MethodPost, srv.URL+"/v1/events/batch", `[]`)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	resp, body = do(t, http.MethodPost, srv.URL+"/v1/events/batch", fmt.Sprintf(`[{"id":"4","type":"Test","start_time":%q},null]`, now))
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Contains(t, body["error"], "event 1 is null")
	resp, _ = do(t, http.MethodPost, srv.URL+"/v1/events", `{`)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	assert.Eventually(t, func() bool {
		resp, body := do(t, http.MethodGet, srv.URL+"/v1/stats", "")
		if resp.StatusCode != http.StatusOK {
			return false
		}
		tiers, _ := body["buckets"].([]any)
		total := 0.0
		for _, tier := range tiers {
			stats, _ := tier.(map[string]any)["stats"].([]any)
			for _, s := range stats {
				total += s.(map[string]any)["count"].(float64)
			}
		}
		return total == 2
	}, 2*time.Second, 10*time.Millisecond)

	resp, _ = do(t, http.MethodGet, srv.URL+"/healthz", "")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	resp, body = do(t, http.MethodGet, srv.URL+"/readyz", "")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "ready", body["status"])
}

func TestAuth(t *testing.T) {
	const secret = "s3cret"
	srv := newServer(t, secret)

	resp, _ := do(t, http.MethodGet, srv.URL+"/v1/rules", "")
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	resp, _ = do(t, http.MethodGet, srv.URL+"/healthz", "")
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	sign := func(method jwt.SigningMethod, key any) string {
		tok, err := jwt.NewWithClaims(method, jwt.RegisteredClaims{
			Subject:   "ci",
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Minute)),
		}).SignedString(key)
		require.NoError(t, err)
		return tok
	}
	call := func(token string) int {
		req, err := http.NewRequest(http.MethodGet, srv.URL+"/v1/rules", nil)
		require.NoError(t, err)
		req.Header.Set("Authorization", "Bearer "+token)
		resp, err := http.DefaultClient.Do(req)
		require.NoError(t, err)
		resp.Body.Close()
		return resp.StatusCode
	}

	assert.Equal(t, http.StatusOK, call(sign(jwt.SigningMethodHS256, []byte(secret))))
	assert.Equal(t, http.StatusUnauthorized, call(sign(jwt.SigningMethodHS256, []byte("other"))))
	assert.Equal(t, http.StatusUnauthorized, call("not-a-token"))
}
