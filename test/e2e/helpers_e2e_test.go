//go:build e2e

package e2e_test

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

// getenv returns the value of the environment variable k or def if empty.
func getenv(k, def string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}
	return def
}

var baseURL = getenv("E2E_BASE_URL", "http://localhost:8080/v1")

const dumpDir = "dumps"

// dumpJSON writes a response body to the dump directory for post-run triage.
func dumpJSON(t *testing.T, name string, v any) {
	t.Helper()
	if err := os.MkdirAll(dumpDir, 0o755); err != nil {
		t.Logf("dump dir: %v", err)
		return
	}
	b, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		t.Logf("dump marshal: %v", err)
		return
	}
	if err := os.WriteFile(filepath.Join(dumpDir, name), b, 0o644); err != nil {
		t.Logf("dump write: %v", err)
	}
}

func clearDumpDirectory(t *testing.T) {
	t.Helper()
	_ = os.RemoveAll(dumpDir)
}

// waitForAppReady polls /healthz until the API answers or the timeout lapses.
func waitForAppReady(t *testing.T, client *http.Client, timeout time.Duration) {
	t.Helper()
	healthz := baseURL[:len(baseURL)-len("/v1")] + "/healthz"
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		resp, err := client.Get(healthz)
		if err == nil {
			resp.Body.Close()
			if resp.StatusCode == http.StatusOK {
				return
			}
		}
		time.Sleep(time.Second)
	}
	t.Skip("app not available; skipping E2E")
}

// createResearch enqueues a research job and returns the decoded body plus
// the HTTP status. 429s get a short retry so back-to-back runs do not flake.
func createResearch(t *testing.T, client *http.Client, payload map[string]any, headers map[string]string) (map[string]any, int) {
	t.Helper()
	body, err := json.Marshal(payload)
	require.NoError(t, err)

	var lastStatus int
	for i := 0; i < 6; i++ {
		req, err := http.NewRequest(http.MethodPost, baseURL+"/research", bytes.NewReader(body))
		require.NoError(t, err)
		req.Header.Set("Content-Type", "application/json")
		for k, v := range headers {
			req.Header.Set(k, v)
		}
		resp, err := client.Do(req)
		require.NoError(t, err)
		lastStatus = resp.StatusCode
		if resp.StatusCode == http.StatusTooManyRequests {
			resp.Body.Close()
			time.Sleep(500 * time.Millisecond)
			continue
		}
		defer resp.Body.Close()
		var result map[string]any
		require.NoError(t, json.NewDecoder(resp.Body).Decode(&result))
		return result, resp.StatusCode
	}
	return map[string]any{}, lastStatus
}

// fetchJob retrieves a research job by id.
func fetchJob(t *testing.T, client *http.Client, jobID string) map[string]any {
	t.Helper()
	resp, err := client.Get(baseURL + "/research/" + jobID)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var result map[string]any
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&result))
	return result
}

// waitForTerminal polls the job until it leaves the queued/running states or
// the timeout lapses, and returns the last observed body.
func waitForTerminal(t *testing.T, client *http.Client, jobID string, timeout time.Duration) map[string]any {
	t.Helper()
	deadline := time.Now().Add(timeout)
	var last map[string]any
	for time.Now().Before(deadline) {
		last = fetchJob(t, client, jobID)
		st, _ := last["status"].(string)
		if st == "completed" || st == "failed" {
			return last
		}
		time.Sleep(2 * time.Second)
	}
	return last
}

func fetchActiveTask(t *testing.T, client *http.Client, sessionID string) (map[string]any, int) {
	t.Helper()
	resp, err := client.Get(fmt.Sprintf("%s/sessions/%s/active-task", baseURL, sessionID))
	require.NoError(t, err)
	defer resp.Body.Close()
	var result map[string]any
	_ = json.NewDecoder(resp.Body).Decode(&result)
	return result, resp.StatusCode
}

func fetchMessages(t *testing.T, client *http.Client, sessionID string) map[string]any {
	t.Helper()
	resp, err := client.Get(fmt.Sprintf("%s/sessions/%s/messages", baseURL, sessionID))
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var result map[string]any
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&result))
	return result
}
