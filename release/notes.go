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
	"strings"
	"time"
)

// category groups asset filenames by a platform substring. Categories are
// checked in declaration order; a filename belongs to the first match.
type category struct {
	substring string
	title     string
}

// categories in priority order. Filenames matching none remain uploaded but
// are omitted from the notes.
var categories = []category{
	{substring: "windows", title: "Windows executables"},
	{substring: "macos", title: "macOS executables"},
	{substring: "linux-gnu", title: "Linux (glibc) executables"},
	{substring: "linux-musl", title: "Linux (musl) executables"},
}

// BuildNotes renders the release body: a header with tag and date, then one
// section per non-empty platform category listing filenames in upload order.
func BuildNotes(tag string, date time.Time, filenames []string) string {
	grouped := make(map[string][]string, len(categories))

	for _, name := range filenames {
		for _, cat := range categories {
			if strings.Contains(name, cat.substring) {
				grouped[cat.title] = append(grouped[cat.title], name)
				break
			}
		}
	}

	var body strings.Builder

	body.WriteString("## tebako-ruby " + tag + "\n\n")
	body.WriteString("Published " + date.UTC().Format("2006-01-02") + ".\n")

	for _, cat := range categories {
		names := grouped[cat.title]
		if len(names) == 0 {
			continue
		}

		body.WriteString("\n### " + cat.title + "\n\n")

		for _, name := range names {
			body.WriteString("- " + name + "\n")
		}
	}

	return body.String()
}
