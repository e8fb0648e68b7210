package gallery

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"tush00nka/teledrive/internal/model"
)

func TestSearchEmptyTermReturnsAll(t *testing.T) {
	q := NewQueryEngine(&fakeRanker{err: errors.New("must not be called")}, zap.NewNop().Sugar())
	all := sampleItems()

	for _, term := range []string{"", "   "} {
		got, err := q.Search(context.Background(), term, all)
		require.NoError(t, err)
		assert.Equal(t, all, got)
	}
}

func TestSearchSubstringOverNameAndTags(t *testing.T) {
	q := NewQueryEngine(nil, zap.NewNop().Sugar())
	all := sampleItems()

	tests := []struct {
		term string
		want []string
	}{
		{"pets", []string{"id1", "id2"}},
		{"PETS", []string{"id1", "id2"}},
		{"report", []string{"id3"}},
		{"o", []string{"id1", "id2", "id3"}},
		{"zebra", []string{}},
	}

	for _, tt := range tests {
		t.Run(tt.term, func(t *testing.T) {
			got, err := q.Search(context.Background(), tt.term, all)
			require.NoError(t, err)
			assert.Equal(t, tt.want, ids(got))
		})
	}

	assert.Equal(t, sampleItems(), all)
}

func TestSearchResultsAreSubsetOfAll(t *testing.T) {
	q := NewQueryEngine(&fakeRanker{ids: []string{"ghost", "id3", "id3"}}, zap.NewNop().Sugar())
	all := sampleItems()

	got, err := q.Search(context.Background(), "pets", all)
	require.NoError(t, err)

	known := map[string]bool{}
	for _, it := range all {
		known[it.ID] = true
	}
	for _, it := range got {
		assert.True(t, known[it.ID], it.ID)
	}
	assert.Equal(t, []string{"id3", "id1", "id2"}, ids(got))
}

func TestSearchRankingFailureFallsBack(t *testing.T) {
	q := NewQueryEngine(&fakeRanker{err: errors.New("circuit open")}, zap.NewNop().Sugar())

	got, err := q.Search(context.Background(), "pets", sampleItems())
	require.NoError(t, err)
	assert.Equal(t, []string{"id1", "id2"}, ids(got))
}

func TestSearchCancelledContext(t *testing.T) {
	q := NewQueryEngine(nil, zap.NewNop().Sugar())
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := q.Search(ctx, "pets", sampleItems())
	assert.ErrorIs(t, err, context.Canceled)
}

func TestMatches(t *testing.T) {
	item := model.MediaItem{Name: "Holiday", Tags: []string{"Beach"}}
	assert.True(t, Matches(item, "holi"))
	assert.True(t, Matches(item, "beach"))
	assert.False(t, Matches(item, "mountain"))
}
