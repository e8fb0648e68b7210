package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/sony/gobreaker"
	"go.uber.org/zap"

	"tush00nka/teledrive/internal/model"
	"tush00nka/teledrive/internal/pkg/metrics"
)

type rankingItem struct {
	ID   string   `json:"id"`
	Name string   `json:"name"`
	Tags []string `json:"tags"`
}

type rankingRequest struct {
	Keywords string        `json:"keywords"`
	Items    []rankingItem `json:"items"`
}

type rankingResponse struct {
	SearchResults []string `json:"searchResults"`
}

// RankingClient asks an external relevance service to order items for a search term.
type RankingClient struct {
	url     string
	http    *http.Client
	breaker *gobreaker.CircuitBreaker
	log     *zap.SugaredLogger
}

func NewRankingClient(url string, timeout time.Duration, log *zap.SugaredLogger) *RankingClient {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &RankingClient{
		url:  url,
		http: &http.Client{Timeout: timeout},
		breaker: gobreaker.NewCircuitBreaker(gobreaker.Settings{
			Name:        "ranking",
			MaxRequests: 1,
			Interval:    30 * time.Second,
			Timeout:     30 * time.Second,
			ReadyToTrip: func(counts gobreaker.Counts) bool {
				return counts.ConsecutiveFailures >= 3
			},
			OnStateChange: func(name string, from, to gobreaker.State) {
				log.Infow("circuit breaker state changed", "name", name, "from", from.String(), "to", to.String())
			},
		}),
		log: log,
	}
}

// Rank returns ids in relevance order. Ids may include unknown or repeated values.
func (r *RankingClient) Rank(ctx context.Context, term string, items []model.MediaItem) ([]string, error) {
	payload := rankingRequest{Keywords: term, Items: make([]rankingItem, 0, len(items))}
	for _, it := range items {
		payload.Items = append(payload.Items, rankingItem{ID: it.ID, Name: it.Name, Tags: it.Tags})
	}

	out, err := r.breaker.Execute(func() (interface{}, error) {
		return r.call(ctx, payload)
	})
	if err != nil {
		metrics.BackendRequests.WithLabelValues("rank", "error").Inc()
		return nil, err
	}
	metrics.BackendRequests.WithLabelValues("rank", "ok").Inc()
	return out.([]string), nil
}

func (r *RankingClient) call(ctx context.Context, payload rankingRequest) ([]string, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal rank request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, r.url, bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("build rank request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := r.http.Do(req)
	if err != nil {
		return nil, &NetworkError{Op: "rank", Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		io.Copy(io.Discard, io.LimitReader(resp.Body, maxErrorBody))
		return nil, &RemoteError{Op: "rank", StatusCode: resp.StatusCode, Message: fmt.Sprintf("Server error: %d", resp.StatusCode)}
	}

	var body rankingResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return nil, &RemoteError{Op: "rank", StatusCode: resp.StatusCode, Message: fmt.Sprintf("Malformed response from server: %v", err)}
	}
	return body.SearchResults, nil
}
