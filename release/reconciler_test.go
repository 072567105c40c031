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

package release

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"github.com/ulikunitz/xz"

	"github.com/sumicare/tebako-release-tools/github"
	"github.com/sumicare/tebako-release-tools/github/mock"
)

// writePackage creates a plain package file in dir.
func writePackage(dir, name string) {
	GinkgoHelper()

	Expect(os.WriteFile(filepath.Join(dir, name), []byte("package "+name), 0o600)).To(Succeed())
}

// writeXZPackage creates a valid xz-compressed package file in dir.
func writeXZPackage(dir, name string) {
	GinkgoHelper()

	file, err := os.Create(filepath.Join(dir, name))
	Expect(err).NotTo(HaveOccurred())
	defer file.Close()

	writer, err := xz.NewWriter(file)
	Expect(err).NotTo(HaveOccurred())

	_, err = writer.Write([]byte("package " + name))
	Expect(err).NotTo(HaveOccurred())
	Expect(writer.Close()).To(Succeed())
}

var _ = Describe("Reconciler", func() {
	Describe("NewReconciler", func() {
		var config *Config

		BeforeEach(func() {
			config = &Config{
				Github:      github.NewClient(),
				RepoOwner:   "tamatebako",
				RepoName:    "tebako-ruby-packaging",
				Tag:         "v0.6.0",
				PackagesDir: "/tmp/packages",
			}
		})

		It("accepts a complete configuration", func() {
			reconciler, err := NewReconciler(config)
			Expect(err).NotTo(HaveOccurred())
			Expect(reconciler).NotTo(BeNil())
		})

		DescribeTable("rejects incomplete configuration",
			func(mutate func(*Config), sentinel error) {
				mutate(config)

				_, err := NewReconciler(config)
				Expect(err).To(MatchError(sentinel))
			},
			Entry("missing client", func(c *Config) { c.Github = nil }, errGithubClientRequired),
			Entry("missing owner", func(c *Config) { c.RepoOwner = "" }, errRepoRequired),
			Entry("missing repo name", func(c *Config) { c.RepoName = "" }, errRepoRequired),
			Entry("missing tag", func(c *Config) { c.Tag = "" }, errTagRequired),
			Entry("missing packages dir", func(c *Config) { c.PackagesDir = "" }, errPackagesDirRequired),
		)
	})

	Describe("Reconcile", func() {
		var (
			server *mock.Server
			dir    string
			ctx    context.Context
		)

		BeforeEach(func() {
			server = mock.NewServer()
			dir = GinkgoT().TempDir()
			ctx = context.Background()
		})

		AfterEach(func() {
			server.Close()
		})

		newReconciler := func(force, skipChecksums bool) *Reconciler {
			reconciler, err := NewReconciler(&Config{
				Github:        github.NewClientWithHTTP(server.Client(), server.URL()),
				RepoOwner:     "tamatebako",
				RepoName:      "tebako-ruby-packaging",
				Tag:           "v0.6.0",
				PackagesDir:   dir,
				ForceRebuild:  force,
				SkipChecksums: skipChecksums,
			})
			Expect(err).NotTo(HaveOccurred())

			return reconciler
		}

		It("creates the release when the tag does not exist yet", func() {
			writePackage(dir, "tebako-ruby-0.6.0-3.3.3-macos14-arm64")

			Expect(newReconciler(false, true).Reconcile(ctx)).To(Succeed())

			release := server.GetRelease("tamatebako", "tebako-ruby-packaging", "v0.6.0")
			Expect(release).NotTo(BeNil())
			Expect(release.Name).To(Equal("tebako-ruby v0.6.0"))
			Expect(server.UploadCount("tebako-ruby-0.6.0-3.3.3-macos14-arm64")).To(Equal(1))
		})

		It("uploads only packages missing from the release", func() {
			server.AddRelease("tamatebako", "tebako-ruby-packaging", "v0.6.0",
				"tebako-ruby-0.6.0-3.3.3-macos14-arm64")

			writePackage(dir, "tebako-ruby-0.6.0-3.3.3-macos14-arm64")
			writePackage(dir, "tebako-ruby-0.6.0-3.3.3-macos14-x86_64")

			Expect(newReconciler(false, true).Reconcile(ctx)).To(Succeed())

			Expect(server.UploadCount("tebako-ruby-0.6.0-3.3.3-macos14-arm64")).To(BeZero())
			Expect(server.DeleteCount("tebako-ruby-0.6.0-3.3.3-macos14-arm64")).To(BeZero())
			Expect(server.UploadCount("tebako-ruby-0.6.0-3.3.3-macos14-x86_64")).To(Equal(1))
		})

		It("replaces existing assets exactly once when a rebuild is forced", func() {
			server.AddRelease("tamatebako", "tebako-ruby-packaging", "v0.6.0",
				"tebako-ruby-0.6.0-3.3.3-macos14-arm64")

			writePackage(dir, "tebako-ruby-0.6.0-3.3.3-macos14-arm64")

			Expect(newReconciler(true, true).Reconcile(ctx)).To(Succeed())

			Expect(server.DeleteCount("tebako-ruby-0.6.0-3.3.3-macos14-arm64")).To(Equal(1))
			Expect(server.UploadCount("tebako-ruby-0.6.0-3.3.3-macos14-arm64")).To(Equal(1))
		})

		It("rewrites the release notes from the published packages", func() {
			server.AddRelease("tamatebako", "tebako-ruby-packaging", "v0.6.0")

			writePackage(dir, "tebako-ruby-0.6.0-3.3.3-macos14-arm64")
			writePackage(dir, "tebako-ruby-0.6.0-3.3.3-windows-x64")

			Expect(newReconciler(false, true).Reconcile(ctx)).To(Succeed())

			release := server.GetRelease("tamatebako", "tebako-ruby-packaging", "v0.6.0")
			Expect(release.Body).To(ContainSubstring("## tebako-ruby v0.6.0"))
			Expect(release.Body).To(ContainSubstring("### macOS executables"))
			Expect(release.Body).To(ContainSubstring("### Windows executables"))
			Expect(release.Body).To(ContainSubstring("- tebako-ruby-0.6.0-3.3.3-macos14-arm64"))
		})

		It("uploads a checksum manifest over all packages", func() {
			server.AddRelease("tamatebako", "tebako-ruby-packaging", "v0.6.0")

			writePackage(dir, "tebako-ruby-0.6.0-3.3.3-macos14-arm64")

			Expect(newReconciler(false, false).Reconcile(ctx)).To(Succeed())

			Expect(server.UploadCount(ChecksumsAssetName)).To(Equal(1))

			manifest, err := os.ReadFile(filepath.Join(dir, ChecksumsAssetName))
			Expect(err).NotTo(HaveOccurred())

			digest, err := FileSHA256(filepath.Join(dir, "tebako-ruby-0.6.0-3.3.3-macos14-arm64"))
			Expect(err).NotTo(HaveOccurred())
			Expect(string(manifest)).To(Equal(digest + "  tebako-ruby-0.6.0-3.3.3-macos14-arm64\n"))
		})

		It("replaces a previously uploaded checksum manifest", func() {
			server.AddRelease("tamatebako", "tebako-ruby-packaging", "v0.6.0", ChecksumsAssetName)

			writePackage(dir, "tebako-ruby-0.6.0-3.3.3-macos14-arm64")

			Expect(newReconciler(false, false).Reconcile(ctx)).To(Succeed())

			Expect(server.DeleteCount(ChecksumsAssetName)).To(Equal(1))
			Expect(server.UploadCount(ChecksumsAssetName)).To(Equal(1))
		})

		It("does not treat a leftover manifest as a package", func() {
			server.AddRelease("tamatebako", "tebako-ruby-packaging", "v0.6.0")

			writePackage(dir, "tebako-ruby-0.6.0-3.3.3-macos14-arm64")
			writePackage(dir, ChecksumsAssetName)

			Expect(newReconciler(false, true).Reconcile(ctx)).To(Succeed())

			Expect(server.UploadCount(ChecksumsAssetName)).To(BeZero())
		})

		It("skips the checksum manifest when configured", func() {
			server.AddRelease("tamatebako", "tebako-ruby-packaging", "v0.6.0")

			writePackage(dir, "tebako-ruby-0.6.0-3.3.3-macos14-arm64")

			Expect(newReconciler(false, true).Reconcile(ctx)).To(Succeed())

			Expect(server.UploadCount(ChecksumsAssetName)).To(BeZero())
			_, err := os.Stat(filepath.Join(dir, ChecksumsAssetName))
			Expect(err).To(MatchError(os.ErrNotExist))
		})

		It("rejects a corrupt tar.xz package before uploading", func() {
			server.AddRelease("tamatebako", "tebako-ruby-packaging", "v0.6.0")

			writePackage(dir, "tebako-ruby-0.6.0-3.3.3-macos14-arm64.tar.xz")

			err := newReconciler(false, true).Reconcile(ctx)
			Expect(err).To(MatchError(errCorruptPackage))
			Expect(server.UploadCount("tebako-ruby-0.6.0-3.3.3-macos14-arm64.tar.xz")).To(BeZero())
		})

		It("accepts a valid tar.xz package", func() {
			server.AddRelease("tamatebako", "tebako-ruby-packaging", "v0.6.0")

			writeXZPackage(dir, "tebako-ruby-0.6.0-3.3.3-macos14-arm64.tar.xz")

			Expect(newReconciler(false, true).Reconcile(ctx)).To(Succeed())
			Expect(server.UploadCount("tebako-ruby-0.6.0-3.3.3-macos14-arm64.tar.xz")).To(Equal(1))
		})

		It("fails for an empty packages directory", func() {
			server.AddRelease("tamatebako", "tebako-ruby-packaging", "v0.6.0")

			err := newReconciler(false, true).Reconcile(ctx)
			Expect(err).To(MatchError(errNoPackages))
		})

		It("fails for a missing packages directory", func() {
			server.AddRelease("tamatebako", "tebako-ruby-packaging", "v0.6.0")

			dir = filepath.Join(dir, "does-not-exist")

			err := newReconciler(false, true).Reconcile(ctx)
			Expect(err).To(HaveOccurred())
		})
	})
})

var _ = Describe("BuildNotes", func() {
	date := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

	It("renders only the header without packages", func() {
		notes := BuildNotes("v0.6.0", date, nil)
		Expect(notes).To(Equal("## tebako-ruby v0.6.0\n\nPublished 2024-05-01.\n"))
	})

	It("orders sections by platform priority, not upload order", func() {
		notes := BuildNotes("v0.6.0", date, []string{
			"tebako-ruby-0.6.0-3.3.3-macos14-arm64",
			"tebako-ruby-0.6.0-3.3.3-windows-x64",
		})

		windows := strings.Index(notes, "### Windows executables")
		macos := strings.Index(notes, "### macOS executables")
		Expect(windows).To(BeNumerically(">", 0))
		Expect(macos).To(BeNumerically(">", windows))
	})

	It("omits filenames matching no category", func() {
		notes := BuildNotes("v0.6.0", date, []string{ChecksumsAssetName})
		Expect(notes).NotTo(ContainSubstring(ChecksumsAssetName))
		Expect(notes).NotTo(ContainSubstring("###"))
	})

	It("assigns a filename to its first matching category only", func() {
		notes := BuildNotes("v0.6.0", date, []string{"windows-macos-crossbuild"})
		Expect(notes).To(ContainSubstring("### Windows executables"))
		Expect(notes).NotTo(ContainSubstring("### macOS executables"))
	})
})

var _ = Describe("Checksums", func() {
	It("computes the digest of a known file", func() {
		dir := GinkgoT().TempDir()
		path := filepath.Join(dir, "pkg")
		Expect(os.WriteFile(path, []byte("hello"), 0o600)).To(Succeed())

		digest, err := FileSHA256(path)
		Expect(err).NotTo(HaveOccurred())
		Expect(digest).To(Equal("2cf24dba5fb0a30e26e83b2ac5b9e29e1b161e5c1fa7425e73043362938b9824"))
	})

	It("fails for a missing file", func() {
		_, err := FileSHA256("/nonexistent/pkg")
		Expect(err).To(HaveOccurred())
	})

	It("writes one manifest line per file in order", func() {
		dir := GinkgoT().TempDir()
		Expect(os.WriteFile(filepath.Join(dir, "b"), []byte("b"), 0o600)).To(Succeed())
		Expect(os.WriteFile(filepath.Join(dir, "a"), []byte("a"), 0o600)).To(Succeed())

		path := filepath.Join(dir, ChecksumsAssetName)
		Expect(WriteChecksums(dir, []string{"b", "a"}, path)).To(Succeed())

		manifest, err := os.ReadFile(path)
		Expect(err).NotTo(HaveOccurred())

		lines := strings.Split(strings.TrimRight(string(manifest), "\n"), "\n")
		Expect(lines).To(HaveLen(2))
		Expect(lines[0]).To(HaveSuffix("  b"))
		Expect(lines[1]).To(HaveSuffix("  a"))
	})
})
