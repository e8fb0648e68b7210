package backend

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/sony/gobreaker"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/atomic"
	"go.uber.org/zap"

	"tush00nka/teledrive/internal/model"
)

func TestRankSendsKeywordsAndItems(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req rankingRequest
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "cats", req.Keywords)
		if assert.Len(t, req.Items, 2) {
			assert.Equal(t, "b", req.Items[1].ID)
		}

		json.NewEncoder(w).Encode(rankingResponse{SearchResults: []string{"b", "a"}})
	}))
	defer srv.Close()

	rc := NewRankingClient(srv.URL, time.Second, zap.NewNop().Sugar())
	ids, err := rc.Rank(context.Background(), "cats", []model.MediaItem{{ID: "a"}, {ID: "b"}})
	require.NoError(t, err)
	assert.Equal(t, []string{"b", "a"}, ids)
}

func TestRankOpensBreakerAfterFailures(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Inc()
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	rc := NewRankingClient(srv.URL, time.Second, zap.NewNop().Sugar())
	for i := 0; i < 3; i++ {
		_, err := rc.Rank(context.Background(), "x", nil)
		require.Error(t, err)
	}

	_, err := rc.Rank(context.Background(), "x", nil)
	assert.ErrorIs(t, err, gobreaker.ErrOpenState)
	assert.Equal(t, int32(3), calls.Load())
}
