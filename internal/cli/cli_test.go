package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/netask/internal/dispatch"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func envelopeServer(t *testing.T) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/ok", func(w http.ResponseWriter, r *http.Request) {
		assert.NoError(t, r.ParseForm())
		fmt.Fprintf(w, `{"result":"hello %s"}`, r.PostForm.Get("name"))
	})
	mux.HandleFunc("/object", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"result":{"id":7}}`))
	})
	mux.HandleFunc("/whoami", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprintf(w, `{"result":"%s"}`, r.Header.Get("X-User"))
	})
	mux.HandleFunc("/fail", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"code":7,"message":"denied"}`))
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func execute(t *testing.T, args ...string) (string, string, error) {
	t.Helper()

	configPath, metricsAddr, verbose = "", "", false
	postParams, postHeaders, postSync, postJSON, postSave = nil, nil, false, false, ""
	fetchChunkSize, fetchNoProgress = 0, false
	probeWatch = false

	var stdout, stderr bytes.Buffer
	rootCmd.SetOut(&stdout)
	rootCmd.SetErr(&stderr)
	rootCmd.SetArgs(args)
	err := rootCmd.ExecuteContext(context.Background())
	return stdout.String(), stderr.String(), err
}

func TestParseParams(t *testing.T) {
	params, err := parseParams([]string{"a=1", "b=x=y", "a=2", "empty="})
	require.NoError(t, err)
	require.Equal(t, map[string]string{"a": "2", "b": "x=y", "empty": ""}, params)

	_, err = parseParams([]string{"novalue"})
	require.Error(t, err)
	_, err = parseParams([]string{"=v"})
	require.Error(t, err)
}

func TestPostSync(t *testing.T) {
	srv := envelopeServer(t)

	stdout, _, err := execute(t, "post", srv.URL+"/ok", "-p", "name=bob", "--sync")
	require.NoError(t, err)
	require.Equal(t, "hello bob\n", stdout)
}

func TestPostHeaders(t *testing.T) {
	srv := envelopeServer(t)

	stdout, _, err := execute(t, "post", srv.URL+"/whoami", "-H", "X-User=carol", "--sync")
	require.NoError(t, err)
	require.Equal(t, "carol\n", stdout)

	_, _, err = execute(t, "post", srv.URL+"/whoami", "-H", "broken")
	require.Error(t, err)
}

func TestPostAsync(t *testing.T) {
	srv := envelopeServer(t)

	stdout, _, err := execute(t, "post", srv.URL+"/ok", "-p", "name=ann")
	require.NoError(t, err)
	require.Equal(t, "hello ann\n", stdout)
}

func TestPostJSON(t *testing.T) {
	srv := envelopeServer(t)

	stdout, _, err := execute(t, "post", srv.URL+"/object", "--sync", "--json")
	require.NoError(t, err)

	var out struct {
		OK      bool            `json:"ok"`
		Status  int             `json:"status"`
		Payload json.RawMessage `json:"payload"`
	}
	require.NoError(t, json.Unmarshal([]byte(stdout), &out))
	require.True(t, out.OK)
	require.Equal(t, http.StatusOK, out.Status)
	require.JSONEq(t, `{"id":7}`, string(out.Payload))
}

func TestPostApplicationFailure(t *testing.T) {
	srv := envelopeServer(t)

	stdout, _, err := execute(t, "post", srv.URL+"/fail", "--json")
	require.Error(t, err)

	var r reported
	require.True(t, errors.As(err, &r))
	f, ok := dispatch.AsFailure(err)
	require.True(t, ok)
	require.Equal(t, dispatch.KindApplication, f.Kind)

	var out outcome
	require.NoError(t, json.Unmarshal([]byte(stdout), &out))
	require.False(t, out.OK)
	require.Equal(t, "application", out.Kind)
	require.NotNil(t, out.Code)
	require.Equal(t, 7, *out.Code)
	require.Equal(t, "denied", out.Message)
}

func TestPostHumanFailureGoesToStderr(t *testing.T) {
	srv := envelopeServer(t)

	stdout, stderr, err := execute(t, "post", srv.URL+"/fail", "--sync")
	require.Error(t, err)
	require.Empty(t, stdout)
	require.Contains(t, stderr, "application failure")
	require.Contains(t, stderr, "denied")
}

func TestPostSaveAndReplay(t *testing.T) {
	srv := envelopeServer(t)
	backup := filepath.Join(t.TempDir(), "pending.jsonl")

	_, _, err := execute(t, "post", srv.URL+"/ok", "-p", "name=one", "--sync", "--save", backup)
	require.NoError(t, err)
	_, _, err = execute(t, "post", srv.URL+"/fail", "--sync", "--save", backup)
	require.Error(t, err)

	data, err := os.ReadFile(backup)
	require.NoError(t, err)
	require.Len(t, strings.Split(strings.TrimSpace(string(data)), "\n"), 2)

	stdout, _, err := execute(t, "replay", backup)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "1 of 2 requests failed")
	assert.Contains(t, stdout, srv.URL+"/ok")
	assert.Contains(t, stdout, "Succeeded")
}

func TestReplayEmptyFile(t *testing.T) {
	backup := filepath.Join(t.TempDir(), "empty.jsonl")
	require.NoError(t, os.WriteFile(backup, nil, 0644))

	stdout, _, err := execute(t, "replay", backup)
	require.NoError(t, err)
	require.Contains(t, stdout, "nothing to replay")
}

func TestFetchWithoutTerminal(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("file contents"))
	}))
	defer srv.Close()

	dest := filepath.Join(t.TempDir(), "out.txt")
	stdout, _, err := execute(t, "fetch", srv.URL, dest, "--chunk-size", "4")
	require.NoError(t, err)
	require.Contains(t, stdout, dest)

	got, err := os.ReadFile(dest)
	require.NoError(t, err)
	require.Equal(t, "file contents", string(got))
}

func TestProbeRequiresEndpoints(t *testing.T) {
	_, _, err := execute(t, "probe")
	require.EqualError(t, err, "no endpoints configured")
}

func TestProbe(t *testing.T) {
	up := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	defer up.Close()
	down := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer down.Close()

	cfgPath := filepath.Join(t.TempDir(), "netask.yaml")
	cfg := fmt.Sprintf(`endpoints:
  - name: api
    url: %s
  - name: backup
    url: %s
health:
  timeout: 1s
`, up.URL, down.URL)
	require.NoError(t, os.WriteFile(cfgPath, []byte(cfg), 0644))

	stdout, _, err := execute(t, "probe", "--config", cfgPath)
	require.Error(t, err)
	require.Contains(t, err.Error(), "backup")
	require.Contains(t, stdout, "api")
	require.Contains(t, stdout, "status 503")
}
