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
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
)

// checksumFilePermission is the file mode for the generated manifest.
const checksumFilePermission os.FileMode = 0o600

// FileSHA256 computes the hex SHA256 digest of the file at path.
func FileSHA256(path string) (string, error) {
	file, err := os.Open(path)
	if err != nil {
		return "", fmt.Errorf("opening %s: %w", path, err)
	}
	defer file.Close()

	hash := sha256.New()
	if _, err := io.Copy(hash, file); err != nil {
		return "", fmt.Errorf("hashing %s: %w", path, err)
	}

	return hex.EncodeToString(hash.Sum(nil)), nil
}

// WriteChecksums writes a sha256sum-style manifest for the named files in
// dir to path, one "digest  name" line per file in the given order.
func WriteChecksums(dir string, names []string, path string) error {
	var manifest strings.Builder

	for _, name := range names {
		digest, err := FileSHA256(filepath.Join(dir, name))
		if err != nil {
			return err
		}

		manifest.WriteString(digest + "  " + name + "\n")
	}

	if err := os.WriteFile(path, []byte(manifest.String()), checksumFilePermission); err != nil {
		return fmt.Errorf("writing %s: %w", path, err)
	}

	return nil
}
