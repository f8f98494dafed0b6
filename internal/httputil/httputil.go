// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package httputil provides HTTP helpers shared by the remote API clients:
// JSON request execution and classification of failures into error kinds.
package httputil

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/pdiddy/cafe-collector/pkg/types"
)

// maxErrorBody bounds how much of an error response is kept in the error message.
const maxErrorBody = 512

// Classify maps an HTTP status to an error kind:
// 429 and 5xx are transient, 401 and 403 are fatal configuration errors,
// any other non-2xx status is a refused request. 2xx returns nil.
func Classify(status int) error {
	switch {
	case status >= 200 && status < 300:
		return nil
	case status == http.StatusTooManyRequests, status >= 500, status == http.StatusRequestTimeout:
		return types.ErrTransient
	case status == http.StatusUnauthorized, status == http.StatusForbidden:
		return types.ErrFatalConfig
	default:
		return types.ErrRequest
	}
}

// DoJSON marshals body (when non-nil), sends the request with the given
// headers, and returns the raw response body. Transport failures are
// transient unless the context ended; non-2xx statuses are returned as
// *types.RemoteError classified by Classify.
func DoJSON(ctx context.Context, client *http.Client, service, method, url string, headers map[string]string, body any) ([]byte, error) {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("marshaling %s request: %w", service, err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, url, reader)
	if err != nil {
		return nil, fmt.Errorf("creating %s request: %w", service, err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	if client == nil {
		client = http.DefaultClient
	}

	resp, err := client.Do(req)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		return nil, &types.RemoteError{Service: service, Message: err.Error(), Kind: types.ErrTransient}
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &types.RemoteError{Service: service, StatusCode: resp.StatusCode, Message: "reading body: " + err.Error(), Kind: types.ErrTransient}
	}

	if kind := Classify(resp.StatusCode); kind != nil {
		return nil, &types.RemoteError{
			Service:    service,
			StatusCode: resp.StatusCode,
			Message:    truncate(strings.TrimSpace(string(data)), maxErrorBody),
			Kind:       kind,
		}
	}
	return data, nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
