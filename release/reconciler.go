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

// Package release publishes a directory of built tebako packages to a
// GitHub release and regenerates the release notes.
package release

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/sumicare/tebako-release-tools/cli"
	"github.com/sumicare/tebako-release-tools/github"
)

// ChecksumsAssetName is the checksum manifest uploaded alongside packages.
const ChecksumsAssetName = "SHA256SUMS"

var (
	// errGithubClientRequired is returned when the reconciler is constructed without a client.
	errGithubClientRequired = errors.New("github client required")
	// errRepoRequired is returned when owner or repository name is missing.
	errRepoRequired = errors.New("repository owner and name required")
	// errTagRequired is returned when the release tag is missing.
	errTagRequired = errors.New("release tag required")
	// errPackagesDirRequired is returned when the packages directory is missing.
	errPackagesDirRequired = errors.New("packages directory required")
	// errNoPackages is returned when the packages directory contains no files.
	errNoPackages = errors.New("no packages found")
)

type (
	// Config configures the Reconciler. All fields except ForceRebuild and
	// SkipChecksums are required.
	Config struct {
		Github      *github.Client
		RepoOwner   string
		RepoName    string
		Tag         string
		PackagesDir string
		// ForceRebuild replaces assets that already exist on the release.
		ForceRebuild bool
		// SkipChecksums disables generation and upload of the SHA256SUMS asset.
		SkipChecksums bool
	}

	// Reconciler idempotently publishes local packages as release assets.
	Reconciler struct {
		config *Config
	}
)

// NewReconciler validates the configuration and creates a Reconciler.
func NewReconciler(config *Config) (*Reconciler, error) {
	switch {
	case config.Github == nil:
		return nil, errGithubClientRequired
	case config.RepoOwner == "" || config.RepoName == "":
		return nil, errRepoRequired
	case config.Tag == "":
		return nil, errTagRequired
	case config.PackagesDir == "":
		return nil, errPackagesDirRequired
	}

	cfg := *config

	return &Reconciler{config: &cfg}, nil
}

// Reconcile ensures the release exists, uploads missing packages (replacing
// existing ones when a rebuild is forced), and rewrites the release notes.
// Any API error aborts the run; there is no partial-failure recovery.
func (reconciler *Reconciler) Reconcile(ctx context.Context) error {
	cfg := reconciler.config

	release, err := reconciler.ensureRelease(ctx)
	if err != nil {
		return err
	}

	packages, err := listPackages(cfg.PackagesDir)
	if err != nil {
		return err
	}

	// Immutable snapshot of the remote asset state, fetched once and
	// threaded through the whole run.
	assets, err := cfg.Github.ListAssets(ctx, cfg.RepoOwner, cfg.RepoName, release.ID)
	if err != nil {
		return err
	}

	published := make([]string, 0, len(packages))

	for _, name := range packages {
		if err := reconciler.publishPackage(ctx, release.ID, name, assets); err != nil {
			return err
		}

		published = append(published, name)
	}

	if !cfg.SkipChecksums {
		if err := reconciler.publishChecksums(ctx, release.ID, packages, assets); err != nil {
			return err
		}
	}

	notes := BuildNotes(cfg.Tag, time.Now(), published)

	if _, err := cfg.Github.UpdateRelease(ctx, cfg.RepoOwner, cfg.RepoName, release.ID, notes); err != nil {
		return err
	}

	cli.Msgf("Release %s reconciled with %d packages", cfg.Tag, len(published))

	return nil
}

// ensureRelease fetches the release for the configured tag, creating it
// with a generated title and empty notes when it does not exist yet.
func (reconciler *Reconciler) ensureRelease(ctx context.Context) (*github.Release, error) {
	cfg := reconciler.config

	release, err := cfg.Github.GetReleaseByTag(ctx, cfg.RepoOwner, cfg.RepoName, cfg.Tag)
	if err == nil {
		return release, nil
	}

	if !errors.Is(err, github.ErrNotFound) {
		return nil, err
	}

	cli.Msgf("Creating release %s", cfg.Tag)

	title := "tebako-ruby " + cfg.Tag

	return cfg.Github.CreateRelease(ctx, cfg.RepoOwner, cfg.RepoName, cfg.Tag, title, BuildNotes(cfg.Tag, time.Now(), nil))
}

// publishPackage uploads a single package, honoring the force-rebuild policy
// for assets that already exist on the release.
func (reconciler *Reconciler) publishPackage(ctx context.Context, releaseID int64, name string, assets []github.Asset) error {
	cfg := reconciler.config

	path := filepath.Join(cfg.PackagesDir, name)

	if strings.HasSuffix(name, ".tar.xz") {
		if err := VerifyXZ(path); err != nil {
			return err
		}
	}

	existing := assetByName(assets, name)

	if existing != nil {
		if !cfg.ForceRebuild {
			cli.Msgf("Skipping %s: already published", name)
			return nil
		}

		if err := cfg.Github.DeleteAsset(ctx, cfg.RepoOwner, cfg.RepoName, existing.ID); err != nil {
			return err
		}
	}

	cli.Msgf("Uploading %s", name)

	if _, err := cfg.Github.UploadAsset(ctx, cfg.RepoOwner, cfg.RepoName, releaseID, name, path); err != nil {
		return err
	}

	return nil
}

// publishChecksums writes the SHA256SUMS manifest over all packages and
// uploads it, replacing any previous manifest asset.
func (reconciler *Reconciler) publishChecksums(ctx context.Context, releaseID int64, packages []string, assets []github.Asset) error {
	cfg := reconciler.config

	path := filepath.Join(cfg.PackagesDir, ChecksumsAssetName)

	if err := WriteChecksums(cfg.PackagesDir, packages, path); err != nil {
		return err
	}

	if existing := assetByName(assets, ChecksumsAssetName); existing != nil {
		if err := cfg.Github.DeleteAsset(ctx, cfg.RepoOwner, cfg.RepoName, existing.ID); err != nil {
			return err
		}
	}

	if _, err := cfg.Github.UploadAsset(ctx, cfg.RepoOwner, cfg.RepoName, releaseID, ChecksumsAssetName, path); err != nil {
		return err
	}

	return nil
}

// listPackages returns the package filenames in dir in directory order.
// The checksum manifest from a previous run is not a package.
func listPackages(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("reading packages directory: %w", err)
	}

	names := make([]string, 0, len(entries))

	for _, entry := range entries {
		if entry.IsDir() || entry.Name() == ChecksumsAssetName {
			continue
		}

		names = append(names, entry.Name())
	}

	if len(names) == 0 {
		return nil, fmt.Errorf("%w in %s", errNoPackages, dir)
	}

	return names, nil
}

// assetByName returns the asset with the given name, or nil.
func assetByName(assets []github.Asset, name string) *github.Asset {
	for i := range assets {
		if assets[i].Name == name {
			return &assets[i]
		}
	}

	return nil
}
