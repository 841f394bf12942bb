package pricing

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"
)

// Recommender supplies a dynamic hourly price for a spot and interval.
type Recommender interface {
	Recommend(ctx context.Context, spotID string, start, end time.Time) (*DynamicPrice, error)
}

// HTTPRecommender asks the pricing model service for a recommendation.
type HTTPRecommender struct {
	baseURL string
	client  *http.Client
}

func NewHTTPRecommender(baseURL string, timeout time.Duration) *HTTPRecommender {
	if timeout <= 0 {
		timeout = 2 * time.Second
	}
	return &HTTPRecommender{baseURL: baseURL, client: &http.Client{Timeout: timeout}}
}

func (r *HTTPRecommender) Recommend(ctx context.Context, spotID string, start, end time.Time) (*DynamicPrice, error) {
	q := url.Values{}
	q.Set("start", start.UTC().Format(time.RFC3339))
	q.Set("end", end.UTC().Format(time.RFC3339))
	u := fmt.Sprintf("%s/spots/%s/price?%s", r.baseURL, url.PathEscape(spotID), q.Encode())

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")
	res, err := r.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer res.Body.Close()

	body, _ := io.ReadAll(io.LimitReader(res.Body, 1<<16))
	if res.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("pricing service: %s (%d)", string(body), res.StatusCode)
	}
	var dp DynamicPrice
	if err := json.Unmarshal(body, &dp); err != nil {
		return nil, fmt.Errorf("parse pricing response: %w", err)
	}
	return &dp, nil
}
