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

// Package cli provides shared colored output helpers for the release tooling.
package cli

import (
	"fmt"
	"os"
	"testing"
)

// Msgf prints a success message to stderr with formatting.
func Msgf(format string, args ...any) {
	// Skip output during testing to avoid interfering with test runner
	if testing.Testing() {
		return
	}

	fmt.Fprintf(os.Stderr, "\033[32m"+format+"\033[39m\n", args...)
}

// Warnf prints a warning message to stderr with formatting.
func Warnf(format string, args ...any) {
	// Skip output during testing to avoid interfering with test runner
	if testing.Testing() {
		return
	}

	fmt.Fprintf(os.Stderr, "\033[33m"+format+"\033[39m\n", args...)
}

// Errf prints an error message to stderr with formatting.
func Errf(format string, args ...any) {
	// Skip output during testing to avoid interfering with test runner
	if testing.Testing() {
		return
	}

	fmt.Fprintf(os.Stderr, "\033[31m"+format+"\033[39m\n", args...)
}
