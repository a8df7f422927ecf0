/*
handlers_test.go - HTTP surface tests

Tests for:
- The scan endpoint and its error mapping
- Redemption with ownership via the X-Subject-ID header
- Admin adjust/reset endpoints
- Program stats
*/
package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tally/loyalty-engine/ledger"
	"github.com/tally/loyalty-engine/store/sqlite"
)

func newTestServer(t *testing.T) (*httptest.Server, *sqlite.Store) {
	t.Helper()

	store, err := sqlite.New(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	core := ledger.NewCore(store, store, store)
	server := httptest.NewServer(NewRouter(NewHandler(core, store)))
	t.Cleanup(server.Close)

	ctx := context.Background()
	require.NoError(t, store.SaveSubject(ctx, sqlite.Subject{
		ID: "subj-a", Name: "Ada", Email: "ada@example.com", CreatedAt: time.Now().UTC(),
	}))
	require.NoError(t, store.SaveSubject(ctx, sqlite.Subject{
		ID: "subj-b", Name: "Ben", Email: "ben@example.com", CreatedAt: time.Now().UTC(),
	}))
	require.NoError(t, store.SaveProgram(ctx, ledger.Program{
		ID:            "prog-cafe",
		Name:          "Beanloop Coffee",
		TargetScore:   3,
		CashPerRedeem: decimal.RequireFromString("5.0"),
		Active:        true,
	}))

	return server, store
}

func postJSON(t *testing.T, url string, body any, headers map[string]string) *http.Response {
	t.Helper()
	payload, err := json.Marshal(body)
	require.NoError(t, err)

	req, err := http.NewRequest(http.MethodPost, url, bytes.NewReader(payload))
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	return resp
}

func decodeJSON[T any](t *testing.T, resp *http.Response) T {
	t.Helper()
	defer resp.Body.Close()
	var out T
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	return out
}

func TestScanEndpoint(t *testing.T) {
	server, _ := newTestServer(t)

	resp := postJSON(t, server.URL+"/api/mobile/scan",
		ScanRequest{SubjectID: "subj-a", ProgramID: "prog-cafe"}, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	body := decodeJSON[ScanResponse](t, resp)
	assert.True(t, body.Success)
	assert.Equal(t, 1, body.NewScore)
	assert.Equal(t, 2, body.ScansUntilReward)
	assert.False(t, body.RewardEarned)
}

func TestScanEndpoint_FullCardConflicts(t *testing.T) {
	server, _ := newTestServer(t)

	for i := 0; i < 3; i++ {
		resp := postJSON(t, server.URL+"/api/mobile/scan",
			ScanRequest{SubjectID: "subj-a", ProgramID: "prog-cafe"}, nil)
		require.Equal(t, http.StatusOK, resp.StatusCode)
		resp.Body.Close()
	}

	resp := postJSON(t, server.URL+"/api/mobile/scan",
		ScanRequest{SubjectID: "subj-a", ProgramID: "prog-cafe"}, nil)
	assert.Equal(t, http.StatusConflict, resp.StatusCode)
	resp.Body.Close()
}

func TestScanEndpoint_UnknownProgram(t *testing.T) {
	server, _ := newTestServer(t)

	resp := postJSON(t, server.URL+"/api/mobile/scan",
		ScanRequest{SubjectID: "subj-a", ProgramID: "prog-ghost"}, nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	resp.Body.Close()
}

func TestRedeemEndpoint_OwnershipViaHeader(t *testing.T) {
	server, _ := newTestServer(t)

	var cardID string
	for i := 0; i < 3; i++ {
		resp := postJSON(t, server.URL+"/api/mobile/scan",
			ScanRequest{SubjectID: "subj-a", ProgramID: "prog-cafe"}, nil)
		require.Equal(t, http.StatusOK, resp.StatusCode)
		cardID = decodeJSON[ScanResponse](t, resp).Card.ID
	}

	// Another subject cannot redeem this card.
	resp := postJSON(t, fmt.Sprintf("%s/api/cards/%s/redeem", server.URL, cardID), nil,
		map[string]string{"X-Subject-ID": "subj-b"})
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)
	resp.Body.Close()

	// The owner can.
	resp = postJSON(t, fmt.Sprintf("%s/api/cards/%s/redeem", server.URL, cardID), nil,
		map[string]string{"X-Subject-ID": "subj-a"})
	require.Equal(t, http.StatusOK, resp.StatusCode)

	body := decodeJSON[RedeemResponse](t, resp)
	assert.Equal(t, 0, body.Card.Score)
	assert.Equal(t, 1, body.Card.RewardsEarned)
	assert.True(t, body.CashValue.Equal(decimal.RequireFromString("5.0")))

	// And not twice.
	resp = postJSON(t, fmt.Sprintf("%s/api/cards/%s/redeem", server.URL, cardID), nil,
		map[string]string{"X-Subject-ID": "subj-a"})
	assert.Equal(t, http.StatusConflict, resp.StatusCode)
	resp.Body.Close()
}

func TestCreateCardEndpoint_Duplicate(t *testing.T) {
	server, _ := newTestServer(t)

	resp := postJSON(t, server.URL+"/api/cards",
		CreateCardRequest{SubjectID: "subj-a", ProgramID: "prog-cafe"}, nil)
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	resp.Body.Close()

	resp = postJSON(t, server.URL+"/api/cards",
		CreateCardRequest{SubjectID: "subj-a", ProgramID: "prog-cafe"}, nil)
	assert.Equal(t, http.StatusConflict, resp.StatusCode)
	resp.Body.Close()
}

func TestAdminAdjustAndReset(t *testing.T) {
	server, _ := newTestServer(t)

	resp := postJSON(t, server.URL+"/api/admin/adjust",
		AdjustRequest{SubjectID: "subj-a", ProgramID: "prog-cafe", Delta: 100}, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	adjusted := decodeJSON[AdjustResponse](t, resp)
	assert.Equal(t, 3, adjusted.NewScore, "delta clamps at target")

	resp = postJSON(t, server.URL+"/api/admin/reset",
		ResetRequest{SubjectID: "subj-a", ProgramID: "prog-cafe"}, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	resp.Body.Close()

	resp = postJSON(t, server.URL+"/api/admin/reset",
		ResetRequest{SubjectID: "subj-a", ProgramID: "prog-ghost"}, nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	resp.Body.Close()
}

func TestProgramStatsEndpoint(t *testing.T) {
	server, _ := newTestServer(t)

	for i := 0; i < 3; i++ {
		resp := postJSON(t, server.URL+"/api/mobile/scan",
			ScanRequest{SubjectID: "subj-a", ProgramID: "prog-cafe"}, nil)
		require.Equal(t, http.StatusOK, resp.StatusCode)
		resp.Body.Close()
	}

	resp, err := http.Get(server.URL + "/api/programs/prog-cafe/stats")
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	stats := decodeJSON[StatsDTO](t, resp)
	assert.Equal(t, 1, stats.TotalCards)
	assert.Equal(t, 3, stats.TotalScans)
	assert.Equal(t, 1, stats.NearReward)
}

func TestSeedDemoEndpoint(t *testing.T) {
	server, store := newTestServer(t)

	resp := postJSON(t, server.URL+"/api/seed/demo", nil, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	resp.Body.Close()

	programs, err := store.ListPrograms(context.Background())
	require.NoError(t, err)
	assert.GreaterOrEqual(t, len(programs), 6)

	cards, err := store.ListCardsForSubject(context.Background(), "subj-demo")
	require.NoError(t, err)
	assert.NotEmpty(t, cards)
}
