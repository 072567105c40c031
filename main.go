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

package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/sumicare/tebako-release-tools/github"
	"github.com/sumicare/tebako-release-tools/matrix"
	"github.com/sumicare/tebako-release-tools/release"
)

var (
	// errUnknownCommand is returned for unsupported top-level commands.
	errUnknownCommand = errors.New("unknown command")
	// errVersionNotSet is returned when TEBAKO_VERSION is missing.
	errVersionNotSet = errors.New("TEBAKO_VERSION not set")
	// errTokenNotSet is returned when GITHUB_TOKEN is missing.
	errTokenNotSet = errors.New("GITHUB_TOKEN not set")
	// errTagNotSet is returned when RELEASE_TAG is missing.
	errTagNotSet = errors.New("RELEASE_TAG not set")
	// errPackagesDirNotSet is returned when PACKAGES_DIR is missing.
	errPackagesDirNotSet = errors.New("PACKAGES_DIR not set")
	// errInvalidRepo is returned when RELEASE_REPO is not of the form owner/name.
	errInvalidRepo = errors.New("RELEASE_REPO must be of the form owner/name")

	// version, commit and date are set via ldflags at build time by the release
	// tooling. These fields are surfaced via the "version" subcommand.
	version = "dev"
	// commit set via ldflags at build time by the release tooling.
	commit = "none" //nolint:gochecknoglobals // build metadata set via ldflags
	// date set via ldflags at build time by the release tooling.
	date = "unknown" //nolint:gochecknoglobals // build metadata set via ldflags
)

// main is the entry point for the tebako release tooling.
func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// run parses command-line arguments and dispatches to the appropriate handler.
func run() error {
	if len(os.Args) < 2 {
		return printUsage()
	}

	ctx := context.Background()

	switch command := os.Args[1]; command {
	case "version", "--version", "-v":
		fmt.Printf("tebako-release-tools %s (commit: %s, built: %s)\n", version, commit, date)
		return nil

	case "help", "--help", "-h":
		return printUsage()

	case "build-matrix":
		return cmdBuildMatrix(ctx)

	case "publish-release":
		return cmdPublishRelease(ctx)

	default:
		return fmt.Errorf("%w: %s", errUnknownCommand, command)
	}
}

// printUsage displays the CLI usage information to stdout.
func printUsage() error {
	fmt.Print(`tebako-release-tools - CI build-matrix and release publication for tebako Ruby packages

Usage:
  tebako-release-tools <command>

Commands:
  build-matrix     Compute the build matrix and write build-matrix.json
  publish-release  Upload built packages to the GitHub release for a tag
  version          Print version information
  help             Print this help message

Environment Variables:
  TEBAKO_VERSION   Tebako version the matrix is computed for (build-matrix)
  RELEASE_TAG      Release tag to publish to (publish-release)
  PACKAGES_DIR     Directory of built packages (publish-release)
  RELEASE_REPO     Release repository as owner/name (default tamatebako/tebako-ruby-packaging)
  GITHUB_TOKEN     GitHub credential; required for publish-release, optional for build-matrix
  FORCE_REBUILD    Set to "true" to rebuild and replace existing assets
  MATRIX_OUTPUT    Output path for the matrix (default build-matrix.json)

Examples:
  # Compute the matrix for tebako 0.6.0
  TEBAKO_VERSION=0.6.0 tebako-release-tools build-matrix

  # Publish built packages for v0.6.0
  GITHUB_TOKEN=... RELEASE_TAG=v0.6.0 PACKAGES_DIR=output \
    tebako-release-tools publish-release
`)

	return nil
}

// cmdBuildMatrix implements the `build-matrix` subcommand. It computes the
// job list for TEBAKO_VERSION and writes it to MATRIX_OUTPUT.
func cmdBuildMatrix(ctx context.Context) error {
	tebakoVersion := os.Getenv("TEBAKO_VERSION")
	if tebakoVersion == "" {
		return errVersionNotSet
	}

	owner, repo, err := releaseRepo()
	if err != nil {
		return err
	}

	builder := matrix.NewBuilder(&matrix.Config{
		OutputPath:                       os.Getenv("MATRIX_OUTPUT"),
		RepoOwner:                        owner,
		RepoName:                         repo,
		SkipExistingLookupOnForceRebuild: true,
	})

	// Without a token the anonymous client still works for public releases.
	builder.WithGithubClient(github.NewClient())

	jobs, err := builder.Build(ctx, tebakoVersion, forceRebuild())
	if err != nil {
		return err
	}

	return builder.WriteMatrix(builder.Config.OutputPath, jobs)
}

// cmdPublishRelease implements the `publish-release` subcommand. It uploads
// every package in PACKAGES_DIR to the release tagged RELEASE_TAG.
func cmdPublishRelease(ctx context.Context) error {
	if os.Getenv("GITHUB_TOKEN") == "" {
		return errTokenNotSet
	}

	tag := os.Getenv("RELEASE_TAG")
	if tag == "" {
		return errTagNotSet
	}

	packagesDir := os.Getenv("PACKAGES_DIR")
	if packagesDir == "" {
		return errPackagesDirNotSet
	}

	owner, repo, err := releaseRepo()
	if err != nil {
		return err
	}

	reconciler, err := release.NewReconciler(&release.Config{
		Github:       github.NewClient(),
		RepoOwner:    owner,
		RepoName:     repo,
		Tag:          tag,
		PackagesDir:  packagesDir,
		ForceRebuild: forceRebuild(),
	})
	if err != nil {
		return err
	}

	return reconciler.Reconcile(ctx)
}

// releaseRepo resolves the owner/name release repository from RELEASE_REPO.
func releaseRepo() (string, string, error) {
	repo := os.Getenv("RELEASE_REPO")
	if repo == "" {
		return "tamatebako", "tebako-ruby-packaging", nil
	}

	parts := strings.Split(repo, "/")
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		return "", "", fmt.Errorf("%w: %q", errInvalidRepo, repo)
	}

	return parts[0], parts[1], nil
}

// forceRebuild reports whether FORCE_REBUILD requests replacing assets.
func forceRebuild() bool {
	v := os.Getenv("FORCE_REBUILD")
	return v == "1" || strings.EqualFold(v, "true")
}
