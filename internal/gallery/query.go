package gallery

import (
	"context"
	"strings"

	"go.uber.org/zap"

	"tush00nka/teledrive/internal/model"
	"tush00nka/teledrive/internal/pkg/metrics"
)

// Ranker orders item ids by relevance to a search term.
type Ranker interface {
	Rank(ctx context.Context, term string, items []model.MediaItem) ([]string, error)
}

type QueryEngine struct {
	ranker Ranker
	log    *zap.SugaredLogger
}

// NewQueryEngine builds a search engine. ranker may be nil.
func NewQueryEngine(ranker Ranker, log *zap.SugaredLogger) *QueryEngine {
	return &QueryEngine{ranker: ranker, log: log}
}

// Search filters all by term. An empty term returns all unchanged.
// Ranking failures fall back to the plain substring result; the only error
// returned is a cancelled context.
func (q *QueryEngine) Search(ctx context.Context, term string, all []model.MediaItem) ([]model.MediaItem, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	needle := strings.ToLower(strings.TrimSpace(term))
	if needle == "" {
		return model.CloneItems(all), nil
	}

	matches := filter(all, needle)

	if q.ranker == nil {
		return matches, nil
	}

	ids, err := q.ranker.Rank(ctx, strings.TrimSpace(term), all)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		metrics.RankingFallbacks.Inc()
		q.log.Warnw("ranking failed, using substring search", "term", term, "error", err)
		return matches, nil
	}

	return mergeRanked(ids, all, matches), nil
}

// Matches reports whether needle (already lower-cased) occurs in the item's
// name or any tag.
func Matches(item model.MediaItem, needle string) bool {
	if strings.Contains(strings.ToLower(item.Name), needle) {
		return true
	}
	for _, tag := range item.Tags {
		if strings.Contains(strings.ToLower(tag), needle) {
			return true
		}
	}
	return false
}

// mergeRanked puts ranked items that exist in all first, then the remaining
// substring matches in their original order.
func mergeRanked(ids []string, all, matches []model.MediaItem) []model.MediaItem {
	byID := make(map[string]model.MediaItem, len(all))
	for _, it := range all {
		byID[it.ID] = it
	}

	out := make([]model.MediaItem, 0, len(matches)+len(ids))
	seen := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		it, ok := byID[id]
		if !ok {
			continue
		}
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, it)
	}
	for _, it := range matches {
		if _, dup := seen[it.ID]; !dup {
			out = append(out, it)
		}
	}
	return out
}
