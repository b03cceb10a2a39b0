// Copyright 2025 gridforge LLC
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package catalog

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"gitlab.com/tozd/go/errors"
)

// HTTP is the JSON-over-HTTP implementation of Client.
type HTTP struct {
	base   string
	client *http.Client
}

var _ Client = (*HTTP)(nil)

// NewHTTP creates a catalog client for the service at baseURL.
func NewHTTP(baseURL string, timeout time.Duration) *HTTP {
	return &HTTP{
		base: strings.TrimRight(baseURL, "/"),
		client: &http.Client{
			Timeout: timeout,
			Transport: &http.Transport{
				MaxIdleConnsPerHost: 10,
			},
		},
	}
}

func (h *HTTP) ActiveReplicas(ctx context.Context, fileIDs []string) (Result, error) {
	return h.lookup(ctx, "/api/v1/replicas/active", fileIDs)
}

func (h *HTTP) AllReplicas(ctx context.Context, fileIDs []string) (Result, error) {
	return h.lookup(ctx, "/api/v1/replicas", fileIDs)
}

func (h *HTTP) lookup(ctx context.Context, path string, fileIDs []string) (Result, error) {
	logger := zerolog.Ctx(ctx)

	body := struct {
		FileIDs []string `json:"file_ids"`
	}{FileIDs: fileIDs}
	data, err := json.Marshal(body)
	if err != nil {
		return Result{}, errors.Errorf("encoding request body: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, h.base+path, bytes.NewReader(data))
	if err != nil {
		return Result{}, errors.Errorf("creating request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	start := time.Now()
	resp, err := h.client.Do(req)
	if err != nil {
		return Result{}, errors.Errorf("making request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return Result{}, errors.Errorf("unexpected status code %d: %s", resp.StatusCode, strings.TrimSpace(string(msg)))
	}

	var out Result
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return Result{}, errors.Errorf("decoding response: %w", err)
	}

	logger.Debug().
		Int("files", len(fileIDs)).
		Int("resolved", len(out.Successful)).
		Int("failed", len(out.Failed)).
		Dur("elapsed", time.Since(start)).
		Msg("replica lookup completed")

	return out, nil
}
