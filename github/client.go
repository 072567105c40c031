//
// Copyright (c) 2025 Sumicare
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//   http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package github provides a typed client for the subset of the GitHub REST
// API used by the release tooling: releases and their binary assets.
package github

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"time"
)

// API configuration constants.
const (
	// APIVersion is the GitHub REST API version header value.
	APIVersion = "2022-11-28"

	// assetsPerPage is the page size used when listing release assets.
	assetsPerPage = 100

	// httpTimeout is the default timeout for HTTP requests.
	httpTimeout = 30 * time.Second
)

// Sentinel errors for GitHub API operations. Callers match them with
// errors.Is instead of inspecting HTTP status codes.
var (
	// ErrNotFound indicates the requested release or asset does not exist.
	ErrNotFound = errors.New("not found")

	// ErrUnauthorized indicates the request was rejected due to missing or invalid credentials.
	ErrUnauthorized = errors.New("unauthorized")

	// ErrRateLimited indicates the request was rejected by GitHub rate limiting.
	ErrRateLimited = errors.New("rate limited")

	// ErrHTTPRequest indicates an HTTP request to the GitHub API failed.
	ErrHTTPRequest = errors.New("HTTP request failed")
)

type (
	// HTTPClient interface for HTTP operations (allows mocking).
	HTTPClient interface {
		// Do sends an HTTP request and returns an HTTP response.
		Do(req *http.Request) (*http.Response, error)
	}

	// Client provides methods to interact with the GitHub REST API.
	Client struct {
		httpClient HTTPClient
		apiURL     string
		uploadURL  string
		authToken  string
	}

	// Release represents a release from the GitHub API.
	Release struct {
		ID      int64   `json:"id"`
		TagName string  `json:"tag_name"`
		Name    string  `json:"name"`
		Body    string  `json:"body"`
		Assets  []Asset `json:"assets"`
	}

	// Asset represents a release asset from the GitHub API.
	Asset struct {
		ID                 int64  `json:"id"`
		Name               string `json:"name"`
		BrowserDownloadURL string `json:"browser_download_url"`
		Size               int64  `json:"size"`
	}

	// releaseRequest is the payload for creating or updating a release.
	releaseRequest struct {
		TagName string `json:"tag_name,omitempty"`
		Name    string `json:"name,omitempty"`
		Body    string `json:"body,omitempty"`
	}
)

// NewClient creates a new GitHub API client with default settings.
// It automatically uses GITHUB_TOKEN or GITHUB_API_TOKEN environment variable if set.
func NewClient() *Client {
	token := os.Getenv("GITHUB_TOKEN")
	if token == "" {
		token = os.Getenv("GITHUB_API_TOKEN")
	}

	return &Client{
		httpClient: &http.Client{Timeout: httpTimeout},
		apiURL:     "https://api.github.com",
		uploadURL:  "https://uploads.github.com",
		authToken:  token,
	}
}

// NewClientWithHTTP creates a new GitHub client with a custom HTTP client.
// The upload URL defaults to the API URL, which matches mock servers that
// serve both hosts from one listener.
func NewClientWithHTTP(httpClient HTTPClient, apiURL string) *Client {
	return &Client{
		httpClient: httpClient,
		apiURL:     apiURL,
		uploadURL:  apiURL,
		authToken:  os.Getenv("GITHUB_TOKEN"),
	}
}

// NewClientWithToken creates a new GitHub client with explicit token.
func NewClientWithToken(token string) *Client {
	return &Client{
		httpClient: &http.Client{Timeout: httpTimeout},
		apiURL:     "https://api.github.com",
		uploadURL:  "https://uploads.github.com",
		authToken:  token,
	}
}

// SetToken sets the authentication token.
func (client *Client) SetToken(token string) {
	client.authToken = token
}

// GetToken returns the current auth token (for testing).
func (client *Client) GetToken() string {
	return client.authToken
}

// GetReleaseByTag fetches the release identified by tag, including its
// embedded asset list.
func (client *Client) GetReleaseByTag(ctx context.Context, owner, repo, tag string) (*Release, error) {
	reqURL := fmt.Sprintf("%s/repos/%s/%s/releases/tags/%s", client.apiURL, owner, repo, url.PathEscape(tag))

	var release Release
	if err := client.doJSON(ctx, http.MethodGet, reqURL, nil, &release); err != nil {
		return nil, fmt.Errorf("fetching release %s: %w", tag, err)
	}

	return &release, nil
}

// CreateRelease creates a new release for the given tag.
func (client *Client) CreateRelease(ctx context.Context, owner, repo, tag, name, body string) (*Release, error) {
	reqURL := fmt.Sprintf("%s/repos/%s/%s/releases", client.apiURL, owner, repo)

	payload := releaseRequest{TagName: tag, Name: name, Body: body}

	var release Release
	if err := client.doJSON(ctx, http.MethodPost, reqURL, &payload, &release); err != nil {
		return nil, fmt.Errorf("creating release %s: %w", tag, err)
	}

	return &release, nil
}

// UpdateRelease replaces the release body via a single PATCH call.
func (client *Client) UpdateRelease(ctx context.Context, owner, repo string, releaseID int64, body string) (*Release, error) {
	reqURL := fmt.Sprintf("%s/repos/%s/%s/releases/%d", client.apiURL, owner, repo, releaseID)

	payload := releaseRequest{Body: body}

	var release Release
	if err := client.doJSON(ctx, http.MethodPatch, reqURL, &payload, &release); err != nil {
		return nil, fmt.Errorf("updating release %d: %w", releaseID, err)
	}

	return &release, nil
}

// ListAssets fetches all assets of a release, following pagination.
func (client *Client) ListAssets(ctx context.Context, owner, repo string, releaseID int64) ([]Asset, error) {
	assets := make([]Asset, 0, assetsPerPage)

	for page := 1; ; page++ {
		reqURL := fmt.Sprintf("%s/repos/%s/%s/releases/%d/assets?per_page=%d&page=%d",
			client.apiURL, owner, repo, releaseID, assetsPerPage, page)

		var batch []Asset
		if err := client.doJSON(ctx, http.MethodGet, reqURL, nil, &batch); err != nil {
			return nil, fmt.Errorf("listing assets of release %d: %w", releaseID, err)
		}

		assets = append(assets, batch...)

		if len(batch) < assetsPerPage {
			return assets, nil
		}
	}
}

// UploadAsset uploads the file at filePath as a release asset under the
// given name. The upload goes to the dedicated uploads host.
func (client *Client) UploadAsset(ctx context.Context, owner, repo string, releaseID int64, name, filePath string) (*Asset, error) {
	file, err := os.Open(filePath)
	if err != nil {
		return nil, fmt.Errorf("opening %s: %w", filePath, err)
	}
	defer file.Close()

	info, err := file.Stat()
	if err != nil {
		return nil, fmt.Errorf("stat %s: %w", filePath, err)
	}

	reqURL := fmt.Sprintf("%s/repos/%s/%s/releases/%d/assets?name=%s",
		client.uploadURL, owner, repo, releaseID, url.QueryEscape(name))

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, reqURL, file)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}

	req.ContentLength = info.Size()

	client.setCommonHeaders(req)
	req.Header.Set("Content-Type", "application/octet-stream")

	resp, err := client.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("http request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
		return nil, fmt.Errorf("uploading asset %s: %w", name, client.statusError(resp))
	}

	var asset Asset
	if err := json.NewDecoder(resp.Body).Decode(&asset); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}

	return &asset, nil
}

// DeleteAsset removes a release asset by id.
func (client *Client) DeleteAsset(ctx context.Context, owner, repo string, assetID int64) error {
	reqURL := fmt.Sprintf("%s/repos/%s/%s/releases/assets/%d", client.apiURL, owner, repo, assetID)

	if err := client.doJSON(ctx, http.MethodDelete, reqURL, nil, nil); err != nil {
		return fmt.Errorf("deleting asset %d: %w", assetID, err)
	}

	return nil
}

// doJSON sends a request with an optional JSON payload and decodes the
// JSON response into result when result is non-nil.
func (client *Client) doJSON(ctx context.Context, method, reqURL string, payload, result any) error {
	var body io.Reader = http.NoBody

	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			return fmt.Errorf("encoding payload: %w", err)
		}

		body = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, reqURL, body)
	if err != nil {
		return fmt.Errorf("creating request: %w", err)
	}

	client.setCommonHeaders(req)

	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := client.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("http request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
		return client.statusError(resp)
	}

	if result == nil {
		return nil
	}

	if err := json.NewDecoder(resp.Body).Decode(result); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}

	return nil
}

// setCommonHeaders sets the API version, accept and authorization headers.
func (client *Client) setCommonHeaders(req *http.Request) {
	req.Header.Set("X-Github-Api-Version", APIVersion)
	req.Header.Set("Accept", "application/vnd.github+json")

	if client.authToken != "" {
		req.Header.Set("Authorization", "Bearer "+client.authToken)
	}
}

// statusError maps a non-success HTTP response to one of the sentinel
// errors, preserving the response body for diagnostics.
func (client *Client) statusError(resp *http.Response) error {
	body, readErr := io.ReadAll(resp.Body)
	if readErr != nil {
		body = []byte("(failed to read body)")
	}

	switch resp.StatusCode {
	case http.StatusNotFound:
		return fmt.Errorf("%w: %s", ErrNotFound, string(body))
	case http.StatusUnauthorized:
		return fmt.Errorf("%w: %s", ErrUnauthorized, string(body))
	case http.StatusForbidden, http.StatusTooManyRequests:
		return fmt.Errorf("%w: %s", ErrRateLimited, string(body))
	default:
		return fmt.Errorf("%w: %d %s", ErrHTTPRequest, resp.StatusCode, string(body))
	}
}
