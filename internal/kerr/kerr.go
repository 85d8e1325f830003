// Copyright 2015 Google Inc. All Rights Reserved.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package kerr defines the sentinel error kinds shared across the
// filesystem core, mirroring the kernel errno values a FUSE-style
// FileSystem implementation would return to its caller.
package kerr

import (
	"errors"
	"fmt"

	"github.com/mtkennerly/kfs/internal/klog"
)

var (
	// ErrName indicates an empty, too-long, or structurally invalid path
	// component.
	ErrName = errors.New("kfs: invalid name")

	// ErrNotFound indicates no entry exists along a resolved path.
	ErrNotFound = errors.New("kfs: not found")

	// ErrExists indicates the create target already exists.
	ErrExists = errors.New("kfs: already exists")

	// ErrNotEmpty indicates an attempt to remove a non-empty directory.
	ErrNotEmpty = errors.New("kfs: directory not empty")

	// ErrNoSpace indicates the free-sector map could not satisfy an
	// allocation request.
	ErrNoSpace = errors.New("kfs: no space on device")

	// ErrBusy indicates a write was attempted while deny-write is in effect.
	// Callers surface this as a short count, not an error, per spec; it is
	// exposed here only for layers that want to distinguish the case.
	ErrBusy = errors.New("kfs: write denied")

	// ErrInvalidPath indicates a path that cannot be used for the requested
	// operation: an intermediate component absent or not a directory, a
	// target of the wrong kind (a file where a directory is needed, or the
	// reverse), or a target that may not be removed (the root, "." or "..").
	ErrInvalidPath = errors.New("kfs: invalid path")
)

// FatalIO reports a block device failure. The buffer cache and everything
// beneath it treat device I/O as infallible, so a device error is not a
// recoverable condition: log it and bring the process down, matching the
// teacher's "panics the kernel" stance on FatalIO.
func FatalIO(op string, sector uint32, err error) {
	klog.Get().Printf("FATAL device I/O error during %s on sector %d: %v", op, sector, err)
	panic(fmt.Sprintf("kfs: fatal device I/O error during %s on sector %d: %v", op, sector, err))
}
