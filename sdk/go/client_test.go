package fixersdk

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestClientSendsTokenAndDecodes(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "Bearer tok", r.Header.Get("Authorization"))
		require.Empty(t, r.Header.Get("X-Actor-Id"))
		switch r.URL.Path {
		case "/v0/me":
			_ = json.NewEncoder(w).Encode(map[string]any{
				"actor":     map[string]any{"id": "alice", "currency": 1000, "reputation": 0, "tier": "street"},
				"standings": []any{},
			})
		case "/v0/contracts/c-1/assign":
			require.Equal(t, http.MethodPost, r.Method)
			require.Equal(t, "application/json", r.Header.Get("Content-Type"))
			var body struct {
				Assignments map[string]string `json:"assignments"`
			}
			require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
			require.Equal(t, "op-1", body.Assignments["hacking"])
			_ = json.NewEncoder(w).Encode(map[string]any{"id": "c-1", "status": "active", "assignments": body.Assignments})
		default:
			http.NotFound(w, r)
		}
	}))
	defer srv.Close()

	c := New(srv.URL+"/", "tok")
	ctx := context.Background()

	p, err := c.Profile(ctx)
	require.NoError(t, err)
	require.Equal(t, "alice", p.Actor.ID)
	require.Equal(t, int64(1000), p.Actor.Currency)

	contract, err := c.AssignOperatives(ctx, "c-1", map[string]string{"hacking": "op-1"})
	require.NoError(t, err)
	require.Equal(t, "active", contract.Status)
	require.Equal(t, "op-1", contract.Assignments["hacking"])
}

func TestClientFallsBackToActorHeader(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Empty(t, r.Header.Get("Authorization"))
		require.Equal(t, "bob", r.Header.Get("X-Actor-Id"))
		_ = json.NewEncoder(w).Encode(map[string]any{"applied": true, "trp_elapsed": 120})
	}))
	defer srv.Close()

	c := New(srv.URL, "")
	c.ActorID = "bob"
	res, err := c.Tick(context.Background())
	require.NoError(t, err)
	require.True(t, res.Applied)
	require.Equal(t, int64(120), res.TRP)
}

func TestClientDecodesErrorEnvelope(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusUnprocessableEntity)
		_, _ = w.Write([]byte(`{"error":{"code":"insufficient_resources","message":"not enough eddies"}}`))
	}))
	defer srv.Close()

	_, err := New(srv.URL, "tok").Purchase(context.Background(), "ghost-protocol")
	require.Error(t, err)
	require.True(t, IsCode(err, "insufficient_resources"))

	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	require.Equal(t, http.StatusUnprocessableEntity, apiErr.StatusCode)
	require.Equal(t, "not enough eddies", apiErr.Message)
}

func TestClientPagesWithCursor(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/v0/events", r.URL.Path)
		require.Equal(t, "5", r.URL.Query().Get("limit"))
		require.Equal(t, "12", r.URL.Query().Get("cursor"))
		_ = json.NewEncoder(w).Encode(map[string]any{
			"items":       []any{map[string]any{"id": 13, "type": "contract.accepted", "entity_kind": "contract"}},
			"next_cursor": "13",
		})
	}))
	defer srv.Close()

	page, err := New(srv.URL, "tok").EventsPage(context.Background(), 5, "12")
	require.NoError(t, err)
	require.Len(t, page.Items, 1)
	require.Equal(t, "contract.accepted", page.Items[0].Type)
	require.Equal(t, "13", page.NextCursor)
}
