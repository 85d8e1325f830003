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

// Package device defines the raw block-device collaborator that the
// buffer cache mediates all disk I/O through. The scheduler, loader, and
// syscall dispatch are external collaborators per spec; so is the device
// itself — this package supplies the concrete implementations a
// standalone build of the filesystem core needs in order to run:
// FileDevice, backed by a regular file instead of a real disk partition,
// and the in-memory MemDevice.
package device

import "golang.org/x/net/context"

// SectorSize is the fixed unit of disk I/O. All on-disk structures are
// sector-aligned.
const SectorSize = 512

// Device is a synchronous, total block device: fixed-size sectors
// addressed by a dense index in [0, Size()). Implementations are assumed
// internally serialized; Read/Write never partially complete.
//
// Device I/O is treated as infallible above this layer: a non-nil error
// here is a FatalIO condition for every caller in this module.
type Device interface {
	// Read fills buf (which must be exactly SectorSize bytes) with the
	// contents of sector.
	Read(ctx context.Context, sector uint32, buf []byte) error

	// Write stores buf (which must be exactly SectorSize bytes) as the
	// contents of sector.
	Write(ctx context.Context, sector uint32, buf []byte) error

	// Size returns the device capacity in sectors.
	Size() uint32

	// Close releases any resources (file handles, advisory locks) held by
	// the device.
	Close() error
}
