// Package ml calls the model service for batch probability inference.
package ml

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"
)

// Predictor is an HTTP client for the probability model service.
type Predictor struct {
	endpoint string
	client   *http.Client
	logger   *slog.Logger
}

// NewPredictor creates a Predictor for the given endpoint.
func NewPredictor(endpoint string, timeout time.Duration, logger *slog.Logger) *Predictor {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &Predictor{
		endpoint: endpoint,
		client:   &http.Client{Timeout: timeout},
		logger:   logger.With(slog.String("component", "ml_predictor")),
	}
}

type predictRequest struct {
	Rows []map[string]float64 `json:"rows"`
}

type predictResponse struct {
	Probs []float64 `json:"probs"`
}

// PredictBatch returns one probability per feature row, in input order.
func (p *Predictor) PredictBatch(ctx context.Context, rows []map[string]float64) ([]float64, error) {
	if len(rows) == 0 {
		return nil, nil
	}

	body, err := json.Marshal(predictRequest{Rows: rows})
	if err != nil {
		return nil, fmt.Errorf("ml: marshal predict request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("ml: build predict request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := p.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("ml: predict: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		data, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("ml: predict returned %d: %s", resp.StatusCode, data)
	}

	var out predictResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("ml: decode predict response: %w", err)
	}
	if len(out.Probs) != len(rows) {
		return nil, fmt.Errorf("ml: predict returned %d probs for %d rows", len(out.Probs), len(rows))
	}
	return out.Probs, nil
}
