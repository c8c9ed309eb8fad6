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

// Package neterr defines the error taxonomy shared by every layer of the
// networking stack. Sentinel errors are compared with errors.Is; callers
// that need structured detail wrap one of these with fmt.Errorf("...: %w").
package neterr

import "errors"

var (
	// OutOfMemory is returned when the allocator backing a packet buffer
	// refuses an allocation.
	OutOfMemory = errors.New("out of memory")

	// InvalidArgument is returned for malformed input to a public API,
	// e.g. pull(n) with n greater than the buffer's live length.
	InvalidArgument = errors.New("invalid argument")

	// NotFound is returned when a named interface, L3, socket, or cache
	// entry does not exist.
	NotFound = errors.New("not found")

	// Timeout is returned when a blocking operation exceeds its budget.
	Timeout = errors.New("timed out")

	// Busy is returned when a port is already bound or a bounded slot
	// table (ping rendezvous, DHCP state table) is full.
	Busy = errors.New("busy")

	// WireFormat is returned when a packet fails validation (length,
	// checksum, pointer loop, magic cookie). Callers on the input path
	// must never propagate this out; it is absorbed and logged.
	WireFormat = errors.New("malformed wire format")

	// Protocol is returned for unexpected-but-valid messages (wrong xid,
	// wrong MAC, DHCPNAK). State machines treat this as a driving event,
	// not an exceptional exit.
	Protocol = errors.New("protocol error")

	// DriverFailure is returned when a driver rejects a TX submission.
	DriverFailure = errors.New("driver failure")
)
