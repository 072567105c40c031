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
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/ulikunitz/xz"
)

// errCorruptPackage is returned when a compressed package does not decode.
var errCorruptPackage = errors.New("corrupt package")

// VerifyXZ decodes the whole xz stream at path, without keeping the output,
// to reject truncated or corrupt packages before they are uploaded.
func VerifyXZ(path string) error {
	file, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("opening %s: %w", path, err)
	}
	defer file.Close()

	reader, err := xz.NewReader(file)
	if err != nil {
		return fmt.Errorf("%w: %s: %w", errCorruptPackage, path, err)
	}

	if _, err := io.Copy(io.Discard, reader); err != nil {
		return fmt.Errorf("%w: %s: %w", errCorruptPackage, path, err)
	}

	return nil
}
