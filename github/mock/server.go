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

// Package mock provides an in-memory GitHub releases API server used in
// tests for simulating release and asset operations as well as remote
// platform descriptor documents.
package mock

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strconv"
	"sync"
)

type (
	// Asset mirrors the release asset payload returned by the GitHub API.
	Asset struct {
		ID                 int64  `json:"id"`
		Name               string `json:"name"`
		BrowserDownloadURL string `json:"browser_download_url"`
		Size               int64  `json:"size"`
	}

	// Release mirrors the release payload returned by the GitHub API.
	Release struct {
		ID      int64   `json:"id"`
		TagName string  `json:"tag_name"`
		Name    string  `json:"name"`
		Body    string  `json:"body"`
		Assets  []Asset `json:"assets"`
	}

	// Server is an in-memory mock of the GitHub releases API.
	Server struct {
		server        *httptest.Server
		releases      map[string][]*Release
		documents     map[string]any
		statuses      map[string]int
		uploads       map[string]int
		deletes       map[string]int
		nextReleaseID int64
		nextAssetID   int64
		mu            sync.RWMutex
	}
)

// NewServer creates a new mock GitHub API server.
func NewServer() *Server {
	srv := &Server{
		releases:  make(map[string][]*Release),
		documents: make(map[string]any),
		statuses:  make(map[string]int),
		uploads:   make(map[string]int),
		deletes:   make(map[string]int),
	}

	mux := http.NewServeMux()

	mux.HandleFunc("GET /repos/{owner}/{repo}/releases/tags/{tag}", srv.handleGetReleaseByTag)
	mux.HandleFunc("POST /repos/{owner}/{repo}/releases", srv.handleCreateRelease)
	mux.HandleFunc("PATCH /repos/{owner}/{repo}/releases/{id}", srv.handleUpdateRelease)
	// A wildcard final segment keeps this pattern strictly less specific
	// than "GET /repos/{owner}/{repo}/releases/tags/{tag}"; registering the
	// literal "assets" segment instead makes ServeMux panic because neither
	// pattern would be more specific than the other.
	mux.HandleFunc("GET /repos/{owner}/{repo}/releases/{id}/{action}", func(writer http.ResponseWriter, req *http.Request) {
		if req.PathValue("action") != "assets" {
			srv.handleDocument(writer, req)
			return
		}

		srv.handleListAssets(writer, req)
	})
	mux.HandleFunc("POST /repos/{owner}/{repo}/releases/{id}/assets", srv.handleUploadAsset)
	mux.HandleFunc("DELETE /repos/{owner}/{repo}/releases/assets/{id}", srv.handleDeleteAsset)
	mux.HandleFunc("/", srv.handleDocument)

	srv.server = httptest.NewServer(http.HandlerFunc(func(writer http.ResponseWriter, req *http.Request) {
		srv.mu.RLock()

		code, forced := srv.statuses[req.URL.Path]
		srv.mu.RUnlock()

		if forced {
			http.Error(writer, http.StatusText(code), code)
			return
		}

		mux.ServeHTTP(writer, req)
	}))

	return srv
}

// URL returns the base URL of the mock server.
func (server *Server) URL() string {
	return server.server.URL
}

// Close shuts down the mock server.
func (server *Server) Close() {
	server.server.Close()
}

// Client returns the HTTP client for the mock server.
func (server *Server) Client() *http.Client {
	return server.server.Client()
}

// AddRelease registers a release with pre-existing assets and returns it.
func (server *Server) AddRelease(owner, repo, tag string, assetNames ...string) *Release {
	server.mu.Lock()
	defer server.mu.Unlock()

	server.nextReleaseID++

	release := &Release{
		ID:      server.nextReleaseID,
		TagName: tag,
		Name:    tag,
		Assets:  make([]Asset, 0, len(assetNames)),
	}

	for _, name := range assetNames {
		server.nextAssetID++

		release.Assets = append(release.Assets, Asset{
			ID:                 server.nextAssetID,
			Name:               name,
			BrowserDownloadURL: server.downloadURL(owner, repo, tag, name),
			Size:               1,
		})
	}

	repoPath := owner + "/" + repo
	server.releases[repoPath] = append(server.releases[repoPath], release)

	return release
}

// GetRelease returns a copy of the registered release for assertions, or nil.
func (server *Server) GetRelease(owner, repo, tag string) *Release {
	server.mu.RLock()
	defer server.mu.RUnlock()

	release := server.findByTag(owner, repo, tag)
	if release == nil {
		return nil
	}

	snapshot := *release
	snapshot.Assets = append([]Asset(nil), release.Assets...)

	return &snapshot
}

// RegisterJSON registers a JSON document served at the given path. Used for
// platform descriptor fixtures.
func (server *Server) RegisterJSON(path string, data any) {
	server.mu.Lock()
	defer server.mu.Unlock()

	server.documents[path] = data
}

// RegisterStatus forces all requests to the given path to answer with the
// given HTTP status code.
func (server *Server) RegisterStatus(path string, code int) {
	server.mu.Lock()
	defer server.mu.Unlock()

	server.statuses[path] = code
}

// UploadCount returns how many times an asset with the given name was uploaded.
func (server *Server) UploadCount(name string) int {
	server.mu.RLock()
	defer server.mu.RUnlock()

	return server.uploads[name]
}

// DeleteCount returns how many times an asset with the given name was deleted.
func (server *Server) DeleteCount(name string) int {
	server.mu.RLock()
	defer server.mu.RUnlock()

	return server.deletes[name]
}

// downloadURL builds the browser download URL for an asset.
func (server *Server) downloadURL(owner, repo, tag, name string) string {
	return fmt.Sprintf("%s/%s/%s/releases/download/%s/%s", server.server.URL, owner, repo, tag, name)
}

// findByTag returns the registered release with the given tag, or nil.
// Callers must hold the lock.
func (server *Server) findByTag(owner, repo, tag string) *Release {
	for _, release := range server.releases[owner+"/"+repo] {
		if release.TagName == tag {
			return release
		}
	}

	return nil
}

// findByID returns the registered release with the given id, or nil.
// Callers must hold the lock.
func (server *Server) findByID(owner, repo string, id int64) *Release {
	for _, release := range server.releases[owner+"/"+repo] {
		if release.ID == id {
			return release
		}
	}

	return nil
}

// handleGetReleaseByTag serves GET /repos/{owner}/{repo}/releases/tags/{tag}.
func (server *Server) handleGetReleaseByTag(writer http.ResponseWriter, req *http.Request) {
	server.mu.RLock()
	defer server.mu.RUnlock()

	release := server.findByTag(req.PathValue("owner"), req.PathValue("repo"), req.PathValue("tag"))
	if release == nil {
		http.NotFound(writer, req)
		return
	}

	writeJSON(writer, release)
}

// handleCreateRelease serves POST /repos/{owner}/{repo}/releases.
func (server *Server) handleCreateRelease(writer http.ResponseWriter, req *http.Request) {
	var payload struct {
		TagName string `json:"tag_name"`
		Name    string `json:"name"`
		Body    string `json:"body"`
	}

	if err := json.NewDecoder(req.Body).Decode(&payload); err != nil {
		http.Error(writer, err.Error(), http.StatusBadRequest)
		return
	}

	server.mu.Lock()
	defer server.mu.Unlock()

	server.nextReleaseID++

	release := &Release{
		ID:      server.nextReleaseID,
		TagName: payload.TagName,
		Name:    payload.Name,
		Body:    payload.Body,
		Assets:  make([]Asset, 0, 4),
	}

	repoPath := req.PathValue("owner") + "/" + req.PathValue("repo")
	server.releases[repoPath] = append(server.releases[repoPath], release)

	writeJSONStatus(writer, http.StatusCreated, release)
}

// handleUpdateRelease serves PATCH /repos/{owner}/{repo}/releases/{id}.
func (server *Server) handleUpdateRelease(writer http.ResponseWriter, req *http.Request) {
	id, err := strconv.ParseInt(req.PathValue("id"), 10, 64)
	if err != nil {
		http.Error(writer, err.Error(), http.StatusBadRequest)
		return
	}

	var payload struct {
		Body string `json:"body"`
	}

	if err := json.NewDecoder(req.Body).Decode(&payload); err != nil {
		http.Error(writer, err.Error(), http.StatusBadRequest)
		return
	}

	server.mu.Lock()
	defer server.mu.Unlock()

	release := server.findByID(req.PathValue("owner"), req.PathValue("repo"), id)
	if release == nil {
		http.NotFound(writer, req)
		return
	}

	release.Body = payload.Body

	writeJSON(writer, release)
}

// handleListAssets serves GET /repos/{owner}/{repo}/releases/{id}/assets.
// Pagination is ignored: all assets fit in one page in tests.
func (server *Server) handleListAssets(writer http.ResponseWriter, req *http.Request) {
	id, err := strconv.ParseInt(req.PathValue("id"), 10, 64)
	if err != nil {
		http.Error(writer, err.Error(), http.StatusBadRequest)
		return
	}

	server.mu.RLock()
	defer server.mu.RUnlock()

	release := server.findByID(req.PathValue("owner"), req.PathValue("repo"), id)
	if release == nil {
		http.NotFound(writer, req)
		return
	}

	writeJSON(writer, release.Assets)
}

// handleUploadAsset serves POST /repos/{owner}/{repo}/releases/{id}/assets.
func (server *Server) handleUploadAsset(writer http.ResponseWriter, req *http.Request) {
	id, err := strconv.ParseInt(req.PathValue("id"), 10, 64)
	if err != nil {
		http.Error(writer, err.Error(), http.StatusBadRequest)
		return
	}

	name := req.URL.Query().Get("name")
	if name == "" {
		http.Error(writer, "name query parameter required", http.StatusBadRequest)
		return
	}

	content, err := io.ReadAll(req.Body)
	if err != nil {
		http.Error(writer, err.Error(), http.StatusBadRequest)
		return
	}

	server.mu.Lock()
	defer server.mu.Unlock()

	owner, repo := req.PathValue("owner"), req.PathValue("repo")

	release := server.findByID(owner, repo, id)
	if release == nil {
		http.NotFound(writer, req)
		return
	}

	server.nextAssetID++
	server.uploads[name]++

	asset := Asset{
		ID:                 server.nextAssetID,
		Name:               name,
		BrowserDownloadURL: server.downloadURL(owner, repo, release.TagName, name),
		Size:               int64(len(content)),
	}

	release.Assets = append(release.Assets, asset)

	writeJSONStatus(writer, http.StatusCreated, asset)
}

// handleDeleteAsset serves DELETE /repos/{owner}/{repo}/releases/assets/{id}.
func (server *Server) handleDeleteAsset(writer http.ResponseWriter, req *http.Request) {
	id, err := strconv.ParseInt(req.PathValue("id"), 10, 64)
	if err != nil {
		http.Error(writer, err.Error(), http.StatusBadRequest)
		return
	}

	server.mu.Lock()
	defer server.mu.Unlock()

	for _, release := range server.releases[req.PathValue("owner")+"/"+req.PathValue("repo")] {
		for i, asset := range release.Assets {
			if asset.ID == id {
				server.deletes[asset.Name]++

				release.Assets = append(release.Assets[:i], release.Assets[i+1:]...)

				writer.WriteHeader(http.StatusNoContent)

				return
			}
		}
	}

	http.NotFound(writer, req)
}

// handleDocument serves registered JSON documents or 404.
func (server *Server) handleDocument(writer http.ResponseWriter, req *http.Request) {
	server.mu.RLock()

	data, ok := server.documents[req.URL.Path]
	server.mu.RUnlock()

	if !ok {
		http.NotFound(writer, req)
		return
	}

	writer.Header().Set("Content-Type", "application/json")

	_ = json.NewEncoder(writer).Encode(data) //nolint:errcheck,errchkjson // we'll ignore mocked errors
}

// writeJSON encodes data as a JSON response.
func writeJSON(writer http.ResponseWriter, data any) {
	writeJSONStatus(writer, http.StatusOK, data)
}

// writeJSONStatus encodes data as a JSON response with an explicit status code.
func writeJSONStatus(writer http.ResponseWriter, code int, data any) {
	writer.Header().Set("Content-Type", "application/json")
	writer.WriteHeader(code)

	_ = json.NewEncoder(writer).Encode(data) //nolint:errcheck,errchkjson // we'll ignore mocked errors
}
