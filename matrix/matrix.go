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

// Package matrix computes the CI build matrix for prebuilt tebako Ruby
// packages from remote per-platform descriptor documents.
package matrix

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"regexp"
	"sort"
	"strings"
	"time"

	"github.com/Masterminds/semver/v3"

	"github.com/sumicare/tebako-release-tools/cli"
	"github.com/sumicare/tebako-release-tools/github"
)

// Architecture identifiers emitted into build jobs.
const (
	ArchX8664 = "x86_64"
	ArchARM64 = "arm64"
	ArchX64   = "x64"
)

// Platform family names after installer-suffix stripping.
const (
	PlatformMacOS   = "macos"
	PlatformUbuntu  = "ubuntu"
	PlatformWindows = "windows"
	PlatformAlpine  = "alpine"
)

// msysSuffix is the installer suffix stripped from descriptor family names.
const msysSuffix = "-msys"

// defaultHTTPTimeout bounds descriptor fetches.
const defaultHTTPTimeout = 30 * time.Second

var (
	// errPlatformNameExtraction is returned when an os string does not match
	// the expected version pattern for its platform family.
	errPlatformNameExtraction = errors.New("cannot extract platform version")
	// errAlpineVerMissing is returned when an alpine environment lacks ALPINE_VER.
	errAlpineVerMissing = errors.New("ALPINE_VER missing in alpine environment")
	// errUnknownPlatform is returned for an environment with an unrecognized platform family.
	errUnknownPlatform = errors.New("unknown platform family")

	// macosOSPattern extracts the major version from os strings like "macos-14".
	macosOSPattern = regexp.MustCompile(`macos-(\d+)`)
	// ubuntuOSPattern extracts major.minor from os strings like "ubuntu-22.04".
	ubuntuOSPattern = regexp.MustCompile(`ubuntu-(\d+\.\d+)`)
)

type (
	// Job is one entry of the build matrix consumed by the downstream
	// parallel build fan-out.
	Job struct {
		RuntimeVersion string `json:"runtimeVersion"`
		Platform       string `json:"platform"`
		PlatformName   string `json:"platformName"`
		Arch           string `json:"arch"`
		Filename       string `json:"filename"`
		ReleaseInfo    string `json:"releaseInfo,omitempty"`
	}

	// Matrix is the build-matrix.json document shape.
	Matrix struct {
		Include []Job `json:"include"`
	}

	// Config configures the matrix Builder.
	Config struct {
		// DescriptorBaseURL is the root under which per-family descriptor
		// documents live as {base}/{version}/{family}.json.
		DescriptorBaseURL string
		// Families lists the platform descriptor documents to fetch, in order.
		Families []string
		// OutputPath is where WriteMatrix persists the matrix.
		OutputPath string
		// RepoOwner and RepoName identify the release repository used for
		// the existing-asset lookup.
		RepoOwner string
		RepoName  string
		// WindowsExeSuffix appends ".exe" to windows artifact names.
		WindowsExeSuffix bool
		// SkipExistingLookupOnForceRebuild skips the release-asset lookup
		// entirely when a rebuild is forced.
		SkipExistingLookupOnForceRebuild bool
	}

	// Builder computes the build matrix for one tebako version.
	Builder struct {
		Config *Config
		Github *github.Client
		HTTP   github.HTTPClient
	}
)

// NewBuilder creates a Builder, filling unset config fields with defaults.
func NewBuilder(config *Config) *Builder {
	cfg := *config

	if cfg.DescriptorBaseURL == "" {
		cfg.DescriptorBaseURL = "https://raw.githubusercontent.com/tamatebako/tebako-ruby-packaging/main/environments"
	}

	if len(cfg.Families) == 0 {
		cfg.Families = []string{PlatformMacOS, PlatformUbuntu, PlatformWindows + msysSuffix, PlatformAlpine}
	}

	if cfg.OutputPath == "" {
		cfg.OutputPath = "build-matrix.json"
	}

	if cfg.RepoOwner == "" {
		cfg.RepoOwner = "tamatebako"
	}

	if cfg.RepoName == "" {
		cfg.RepoName = "tebako-ruby-packaging"
	}

	return &Builder{
		Config: &cfg,
		HTTP:   &http.Client{Timeout: defaultHTTPTimeout},
	}
}

// WithGithubClient sets the GitHub client used for the existing-asset lookup.
// Without a client the lookup is skipped and no releaseInfo is attached.
func (builder *Builder) WithGithubClient(client *github.Client) *Builder {
	builder.Github = client
	return builder
}

// WithHTTPClient sets the HTTP client used for descriptor fetches.
func (builder *Builder) WithHTTPClient(httpClient github.HTTPClient) *Builder {
	builder.HTTP = httpClient
	return builder
}

// Build fetches all platform descriptors for version and expands them into
// the ordered, deduplicated job list. Descriptor fetch or parse failures and
// platform-name extraction failures are fatal. Release-asset lookup failures
// only degrade to jobs without releaseInfo.
func (builder *Builder) Build(ctx context.Context, version string, forceRebuild bool) ([]Job, error) {
	descriptors := make([]*Descriptor, 0, len(builder.Config.Families))

	for _, family := range builder.Config.Families {
		url := fmt.Sprintf("%s/%s/%s.json", builder.Config.DescriptorBaseURL, version, family)

		descriptor, err := FetchDescriptor(ctx, builder.HTTP, url)
		if err != nil {
			return nil, err
		}

		tagEnvironments(descriptor, family)
		descriptors = append(descriptors, descriptor)
	}

	released := builder.lookupReleasedAssets(ctx, version, forceRebuild)

	return expandJobs(version, descriptors, builder.Config.WindowsExeSuffix, released)
}

// encodeMatrix renders jobs as the indented {"include": [...]} document.
func encodeMatrix(jobs []Job) ([]byte, error) {
	data, err := json.MarshalIndent(Matrix{Include: jobs}, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("encoding matrix: %w", err)
	}

	return append(data, '\n'), nil
}

// WriteMatrix persists jobs as {"include": [...]} to path.
func (builder *Builder) WriteMatrix(path string, jobs []Job) error {
	data, err := encodeMatrix(jobs)
	if err != nil {
		return err
	}

	if err := os.WriteFile(path, data, 0o600); err != nil {
		return fmt.Errorf("writing %s: %w", path, err)
	}

	return nil
}

// tagEnvironments stamps every environment of a descriptor with its owning
// platform family, installer suffix stripped.
func tagEnvironments(descriptor *Descriptor, family string) {
	platform := strings.TrimSuffix(family, msysSuffix)

	for i := range descriptor.Env {
		descriptor.Env[i].Platform = platform
	}
}

// lookupReleasedAssets returns a filename-to-download-URL map for assets
// already published on the release tagged v{version}. Any lookup failure is
// downgraded to a warning: the matrix can still drive fresh builds.
func (builder *Builder) lookupReleasedAssets(ctx context.Context, version string, forceRebuild bool) map[string]string {
	if builder.Github == nil {
		return nil
	}

	if forceRebuild && builder.Config.SkipExistingLookupOnForceRebuild {
		return nil
	}

	tag := "v" + version

	release, err := builder.Github.GetReleaseByTag(ctx, builder.Config.RepoOwner, builder.Config.RepoName, tag)
	if err != nil {
		cli.Warnf("No release info for %s: %v", tag, err)
		return nil
	}

	released := make(map[string]string, len(release.Assets))
	for _, asset := range release.Assets {
		released[asset.Name] = asset.BrowserDownloadURL
	}

	return released
}

// expandJobs produces the cross product of runtime versions and build
// environments, deriving artifact names and deduplicating by filename.
func expandJobs(version string, descriptors []*Descriptor, windowsExe bool, released map[string]string) ([]Job, error) {
	runtimeVersions := runtimeVersionUnion(descriptors)

	environments := make([]Environment, 0, 8)
	for _, descriptor := range descriptors {
		environments = append(environments, descriptor.Env...)
	}

	jobs := make([]Job, 0, len(runtimeVersions)*len(environments)*2)
	seen := make(map[string]bool)

	for _, runtimeVersion := range runtimeVersions {
		for _, env := range environments {
			platformName, err := platformName(env)
			if err != nil {
				return nil, err
			}

			for _, arch := range architectures(env.Platform) {
				filename := artifactName(version, runtimeVersion, platformName, arch, env.Platform, windowsExe)
				if seen[filename] {
					continue
				}

				seen[filename] = true

				jobs = append(jobs, Job{
					RuntimeVersion: runtimeVersion,
					Platform:       env.Platform,
					PlatformName:   platformName,
					Arch:           arch,
					Filename:       filename,
					ReleaseInfo:    released[filename],
				})
			}
		}
	}

	return jobs, nil
}

// runtimeVersionUnion returns the distinct runtime versions across all
// descriptors in semver order, unparseable versions sorted lexically last.
func runtimeVersionUnion(descriptors []*Descriptor) []string {
	seen := make(map[string]bool)
	parsed := make([]*semver.Version, 0, 8)
	unparsed := make([]string, 0)

	for _, descriptor := range descriptors {
		for _, version := range descriptor.Ruby {
			if seen[version] {
				continue
			}

			seen[version] = true

			sv, err := semver.NewVersion(version)
			if err != nil {
				unparsed = append(unparsed, version)
				continue
			}

			parsed = append(parsed, sv)
		}
	}

	sort.Sort(semver.Collection(parsed))
	sort.Strings(unparsed)

	versions := make([]string, 0, len(parsed)+len(unparsed))
	for _, sv := range parsed {
		versions = append(versions, sv.Original())
	}

	return append(versions, unparsed...)
}

// architectures returns the architecture fan-out for a platform family.
// Windows builds are not arch-parametrized.
func architectures(platform string) []string {
	if platform == PlatformWindows {
		return []string{ArchX64}
	}

	return []string{ArchX8664, ArchARM64}
}

// platformName derives the versioned platform identifier for an environment.
// A pattern mismatch is a configuration error and is never defaulted.
func platformName(env Environment) (string, error) {
	switch env.Platform {
	case PlatformMacOS:
		match := macosOSPattern.FindStringSubmatch(env.OS)
		if match == nil {
			return "", fmt.Errorf("%w: %q does not match macos-(\\d+)", errPlatformNameExtraction, env.OS)
		}

		return PlatformMacOS + match[1], nil

	case PlatformUbuntu:
		match := ubuntuOSPattern.FindStringSubmatch(env.OS)
		if match == nil {
			return "", fmt.Errorf("%w: %q does not match ubuntu-(\\d+\\.\\d+)", errPlatformNameExtraction, env.OS)
		}

		return PlatformUbuntu + match[1], nil

	case PlatformAlpine:
		if env.AlpineVer == "" {
			return "", fmt.Errorf("%w: os %q", errAlpineVerMissing, env.OS)
		}

		return PlatformAlpine + env.AlpineVer, nil

	case PlatformWindows:
		return PlatformWindows, nil

	default:
		return "", fmt.Errorf("%w: %q", errUnknownPlatform, env.Platform)
	}
}

// artifactName composes the deterministic artifact filename. The ".exe"
// suffix for windows artifacts is off by default; both naming policies exist
// in CI history, so it is kept as an explicit option.
func artifactName(version, runtimeVersion, platformName, arch, platform string, windowsExe bool) string {
	name := fmt.Sprintf("tebako-ruby-%s-%s-%s-%s", version, runtimeVersion, platformName, arch)

	if windowsExe && platform == PlatformWindows {
		name += ".exe"
	}

	return name
}
