package repository

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"booking-engine/internal/domain/entity"
)

const maxErrorBody = 4 << 10

// apiEnvelope is the response wrapper used by the platform services
type apiEnvelope struct {
	Success *bool           `json:"success"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
}

// doJSON sends a JSON request and decodes the response into out.
// Transport failures, 5xx and 429 become upstream errors so callers may retry;
// 404 becomes a NotFoundError for notFoundKind when it is set.
func doJSON(ctx context.Context, client *http.Client, service, method, url string, body, out interface{}, notFoundKind, notFoundKey string) error {
	var reader io.Reader
	if body != nil {
		jsonData, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to marshal %s request: %w", service, err)
		}
		reader = bytes.NewBuffer(jsonData)
	}

	req, err := http.NewRequestWithContext(ctx, method, url, reader)
	if err != nil {
		return fmt.Errorf("failed to create %s request: %w", service, err)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := client.Do(req)
	if err != nil {
		return &entity.UpstreamError{Service: service, Err: fmt.Errorf("failed to send request: %w", err)}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		statusErr := fmt.Errorf("%s returned status %d: %s", service, resp.StatusCode, bytes.TrimSpace(snippet))
		switch {
		case resp.StatusCode == http.StatusNotFound && notFoundKind != "":
			return &entity.NotFoundError{Kind: notFoundKind, Key: notFoundKey}
		case resp.StatusCode >= 500, resp.StatusCode == http.StatusTooManyRequests:
			return &entity.UpstreamError{Service: service, Err: statusErr}
		}
		return statusErr
	}

	if out == nil {
		io.Copy(io.Discard, resp.Body)
		return nil
	}

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return &entity.UpstreamError{Service: service, Err: fmt.Errorf("failed to read response: %w", err)}
	}
	if err := decodeEnvelope(raw, out); err != nil {
		return &entity.UpstreamError{Service: service, Err: fmt.Errorf("failed to decode response: %w", err)}
	}
	return nil
}

// decodeEnvelope accepts both {"data": {...}} and bare payloads
func decodeEnvelope(raw []byte, out interface{}) error {
	var env apiEnvelope
	if err := json.Unmarshal(raw, &env); err == nil && env.Success != nil && len(env.Data) > 0 && string(env.Data) != "null" {
		return json.Unmarshal(env.Data, out)
	}
	return json.Unmarshal(raw, out)
}
