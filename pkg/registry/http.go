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

package registry

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
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

// NewHTTP creates a registry client for the service at baseURL.
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

func (h *HTTP) Transformations(ctx context.Context, filter TransformationFilter) ([]Transformation, error) {
	var out []Transformation
	if err := h.post(ctx, "/api/v1/transformations/query", filter, &out); err != nil {
		return nil, errors.Errorf("querying transformations: %w", err)
	}
	return out, nil
}

func (h *HTTP) Transformation(ctx context.Context, name string) (Transformation, error) {
	var out Transformation
	if err := h.get(ctx, "/api/v1/transformations/"+url.PathEscape(name), &out); err != nil {
		return Transformation{}, errors.Errorf("fetching transformation %s: %w", name, err)
	}
	return out, nil
}

func (h *HTTP) TransformationFiles(ctx context.Context, id int64, status FileStatus) ([]File, error) {
	var out []File
	path := fmt.Sprintf("/api/v1/transformations/%d/files?status=%s", id, url.QueryEscape(string(status)))
	if err := h.get(ctx, path, &out); err != nil {
		return nil, errors.Errorf("listing files for transformation %d: %w", id, err)
	}
	return out, nil
}

func (h *HTTP) AddTask(ctx context.Context, id int64, fileIDs []string, location string) error {
	body := struct {
		Location string   `json:"location"`
		FileIDs  []string `json:"file_ids"`
	}{Location: location, FileIDs: fileIDs}
	path := fmt.Sprintf("/api/v1/transformations/%d/tasks", id)
	if err := h.post(ctx, path, body, nil); err != nil {
		return errors.Errorf("adding task for transformation %d: %w", id, err)
	}
	return nil
}

func (h *HTTP) SetParameter(ctx context.Context, id int64, name, value string) error {
	body := struct {
		Name  string `json:"name"`
		Value string `json:"value"`
	}{Name: name, Value: value}
	path := fmt.Sprintf("/api/v1/transformations/%d/parameters", id)
	if err := h.post(ctx, path, body, nil); err != nil {
		return errors.Errorf("setting parameter %s on transformation %d: %w", name, id, err)
	}
	return nil
}

func (h *HTTP) SetFileStatus(ctx context.Context, id int64, status FileStatus, fileIDs []string) error {
	body := struct {
		Status  FileStatus `json:"status"`
		FileIDs []string   `json:"file_ids"`
	}{Status: status, FileIDs: fileIDs}
	path := fmt.Sprintf("/api/v1/transformations/%d/files/status", id)
	if err := h.post(ctx, path, body, nil); err != nil {
		return errors.Errorf("setting file status on transformation %d: %w", id, err)
	}
	return nil
}

func (h *HTTP) get(ctx context.Context, path string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, h.base+path, nil)
	if err != nil {
		return errors.Errorf("creating request: %w", err)
	}
	return h.do(ctx, req, out)
}

func (h *HTTP) post(ctx context.Context, path string, in, out any) error {
	data, err := json.Marshal(in)
	if err != nil {
		return errors.Errorf("encoding request body: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, h.base+path, bytes.NewReader(data))
	if err != nil {
		return errors.Errorf("creating request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	return h.do(ctx, req, out)
}

func (h *HTTP) do(ctx context.Context, req *http.Request, out any) error {
	logger := zerolog.Ctx(ctx)
	logger.Trace().Str("method", req.Method).Str("url", req.URL.String()).Msg("registry request")

	resp, err := h.client.Do(req)
	if err != nil {
		return errors.Errorf("making request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return errors.Errorf("unexpected status code %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return errors.Errorf("decoding response: %w", err)
	}
	return nil
}
