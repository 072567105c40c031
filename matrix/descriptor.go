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

package matrix

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/sumicare/tebako-release-tools/github"
)

var (
	// errDescriptorFetch is returned when a platform descriptor cannot be retrieved.
	errDescriptorFetch = errors.New("descriptor fetch failed")
	// errDescriptorParse is returned when a platform descriptor body is not valid JSON.
	errDescriptorParse = errors.New("descriptor parse failed")
)

type (
	// Environment is one concrete OS/toolchain environment belonging to a
	// platform family. Platform is filled in after fetching, with any
	// installer suffix stripped from the family name.
	Environment struct {
		OS        string `json:"os"`
		AlpineVer string `json:"ALPINE_VER,omitempty"`
		Platform  string `json:"platform,omitempty"`
	}

	// Descriptor is the per-family document describing supported runtime
	// versions and build environments.
	Descriptor struct {
		Ruby []string      `json:"ruby"`
		Env  []Environment `json:"env"`
	}

	// descriptorDocument is the remote envelope carrying the full descriptor.
	descriptorDocument struct {
		Full Descriptor `json:"full"`
	}
)

// FetchDescriptor retrieves and decodes the platform descriptor at url.
// A non-success HTTP response or unreachable host is a fetch error; a
// malformed body is a parse error. Both are fatal for matrix generation.
func FetchDescriptor(ctx context.Context, httpClient github.HTTPClient, url string) (*Descriptor, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, http.NoBody)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}

	resp, err := httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %w", errDescriptorFetch, url, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%w: %s: status %d", errDescriptorFetch, url, resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %w", errDescriptorFetch, url, err)
	}

	var document descriptorDocument
	if err := json.Unmarshal(body, &document); err != nil {
		return nil, fmt.Errorf("%w: %s: %w", errDescriptorParse, url, err)
	}

	return &document.Full, nil
}
