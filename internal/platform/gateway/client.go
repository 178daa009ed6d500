package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"time"
)

// Client is the HTTP implementation of Gateway. Every call is bounded by the
// client timeout; nothing is retried here, a failed call leaves the bill for
// the next sweep.
type Client struct {
	baseURL string
	apiKey  string
	http    *http.Client
}

func NewClient(baseURL, apiKey string, timeout time.Duration) *Client {
	return &Client{
		baseURL: baseURL,
		apiKey:  apiKey,
		http:    &http.Client{Timeout: timeout},
	}
}

type submitResponse struct {
	Status SubmitStatus `json:"status"`
}

func (c *Client) SubmitBill(ctx context.Context, req SubmitRequest) (SubmitStatus, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return "", fmt.Errorf("encode submit request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/v1/charges", bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("build submit request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+c.apiKey)
	// Idempotency key keeps a replayed submission from double-charging.
	httpReq.Header.Set("Idempotency-Key", req.BillUUID.String())

	resp, err := c.http.Do(httpReq)
	if err != nil {
		return "", fmt.Errorf("submit bill %s: %w", req.BillUUID, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		var gwErr Error
		if err := json.NewDecoder(resp.Body).Decode(&gwErr); err != nil || gwErr.Message == "" {
			return "", fmt.Errorf("submit bill %s: gateway returned %d", req.BillUUID, resp.StatusCode)
		}
		return "", &gwErr
	}

	var out submitResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", fmt.Errorf("decode submit response: %w", err)
	}
	return out.Status, nil
}

type transfersResponse struct {
	Transfers []Transfer `json:"transfers"`
}

func (c *Client) ListSettledTransfers(ctx context.Context, recipientID string, start, end time.Time) ([]Transfer, error) {
	q := url.Values{}
	q.Set("status", "settled")
	q.Set("from", start.UTC().Format(time.RFC3339))
	q.Set("to", end.UTC().Format(time.RFC3339))

	endpoint := fmt.Sprintf("%s/v1/recipients/%s/transfers?%s", c.baseURL, url.PathEscape(recipientID), q.Encode())
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("build transfers request: %w", err)
	}
	httpReq.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.http.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("list transfers for %s: %w", recipientID, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		var gwErr Error
		if err := json.NewDecoder(resp.Body).Decode(&gwErr); err != nil || gwErr.Message == "" {
			return nil, fmt.Errorf("list transfers for %s: gateway returned %d", recipientID, resp.StatusCode)
		}
		return nil, &gwErr
	}

	var out transfersResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("decode transfers response: %w", err)
	}
	return out.Transfers, nil
}
