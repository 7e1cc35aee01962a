//go:build e2e

package e2e_test

import (
	"fmt"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestE2E_Validation_RejectsBadRequests(t *testing.T) {
	client := &http.Client{Timeout: httpTimeout}
	waitForAppReady(t, client, appReadyTimeout)

	tests := []struct {
		name    string
		payload map[string]any
	}{
		{
			name:    "missing identifiers",
			payload: map[string]any{"research_idea": "x"},
		},
		{
			name: "bad model tier",
			payload: map[string]any{
				"user_id": "e2e-user", "session_id": "e2e-bad", "model_tier": "ultra",
			},
		},
		{
			name: "bad level",
			payload: map[string]any{
				"user_id": "e2e-user", "session_id": "e2e-bad", "breadth": "extreme",
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			body, status := createResearch(t, client, tt.payload, nil)
			assert.Equal(t, http.StatusBadRequest, status, "body: %#v", body)
		})
	}
}

func TestE2E_Idempotency_SameKeyReturnsSameJob(t *testing.T) {
	client := &http.Client{Timeout: httpTimeout}
	waitForAppReady(t, client, appReadyTimeout)

	sessionID := fmt.Sprintf("e2e-idem-%d", time.Now().UnixNano())
	key := fmt.Sprintf("e2e-key-%d", time.Now().UnixNano())
	payload := map[string]any{
		"user_id":       "e2e-user",
		"session_id":    sessionID,
		"research_idea": "Idempotency probe.",
		"model_tier":    "mini",
	}
	hdr := map[string]string{"Idempotency-Key": key}

	first, status := createResearch(t, client, payload, hdr)
	require.Equal(t, http.StatusCreated, status)
	second, status := createResearch(t, client, payload, hdr)
	require.Equal(t, http.StatusCreated, status)

	assert.Equal(t, first["job_id"], second["job_id"], "same key must map to one job")
}

func TestE2E_SessionConflict_OneJobInFlight(t *testing.T) {
	client := &http.Client{Timeout: httpTimeout}
	waitForAppReady(t, client, appReadyTimeout)

	sessionID := fmt.Sprintf("e2e-conflict-%d", time.Now().UnixNano())
	payload := map[string]any{
		"user_id":       "e2e-user",
		"session_id":    sessionID,
		"research_idea": "Conflict probe.",
		"model_tier":    "mini",
	}

	_, status := createResearch(t, client, payload, nil)
	require.Equal(t, http.StatusCreated, status)

	// A second enqueue into the same session must be refused while the first
	// job is queued or running.
	body, status := createResearch(t, client, payload, nil)
	assert.Equal(t, http.StatusConflict, status, "body: %#v", body)
}

func TestE2E_GetUnknownJob_NotFound(t *testing.T) {
	client := &http.Client{Timeout: httpTimeout}
	waitForAppReady(t, client, appReadyTimeout)

	resp, err := client.Get(baseURL + "/research/no-such-job")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestE2E_Security_Headers(t *testing.T) {
	client := &http.Client{Timeout: httpTimeout}
	waitForAppReady(t, client, appReadyTimeout)

	resp, err := client.Get(baseURL[:len(baseURL)-len("/v1")] + "/healthz")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, "nosniff", resp.Header.Get("X-Content-Type-Options"))
}
