/*
Copyright 2026 The redactedos-net Authors

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

    https://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

// Package strfmt maps the original kernel's hand-rolled printf-style
// string builder (needed there because the freestanding environment has
// no libc) onto the standard library's fmt package, which already
// implements %d %x %X %o %b %p %s %c %f %e %g with width/precision/flags.
// fmt has no %i, %u, %S or %a verbs. See DESIGN.md for why this is not
// reimplemented from scratch.
package strfmt

import (
	"fmt"
	"io"
)

// Sprintf is fmt.Sprintf. Kept as a named entry point so call sites read
// the same way the rest of the stack's wire-format code does.
func Sprintf(format string, args ...any) string {
	return fmt.Sprintf(format, args...)
}

// Fprintf is fmt.Fprintf.
func Fprintf(w io.Writer, format string, args ...any) (int, error) {
	return fmt.Fprintf(w, format, args...)
}

// Truncate enforces the original builder's fixed-size-buffer contract:
// a formatted string that would overflow max bytes is cut and marked
// with a trailing ellipsis marker instead of silently growing.
func Truncate(s string, max int) string {
	const marker = "..."
	if len(s) <= max {
		return s
	}
	if max <= len(marker) {
		return marker[:max]
	}
	return s[:max-len(marker)] + marker
}
