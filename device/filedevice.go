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

package device

import (
	"fmt"
	"os"

	"github.com/detailyang/go-fallocate"
	"golang.org/x/net/context"
	"golang.org/x/sys/unix"
)

// FileDevice is a Device backed by a regular file, standing in for a disk
// partition the way the Pintos kernel's fs_device block device stands in
// for a raw partition when Pintos itself runs under an emulator.
type FileDevice struct {
	f        *os.File
	path     string
	capacity uint32 // sectors
}

// OpenFileDevice opens (without creating) the backing file at path and
// takes an advisory exclusive flock on it for the lifetime of the returned
// Device, refusing to hand back a Device if another process already holds
// the mount — the same role the teacher's per-platform flock helpers play
// for a FUSE mount point, generalized to a backing image file.
func OpenFileDevice(path string) (*FileDevice, error) {
	f, err := os.OpenFile(path, os.O_RDWR, 0)
	if err != nil {
		return nil, err
	}

	if err := unix.Flock(int(f.Fd()), unix.LOCK_EX|unix.LOCK_NB); err != nil {
		f.Close()
		return nil, fmt.Errorf("device %s is already mounted: %w", path, err)
	}

	fi, err := f.Stat()
	if err != nil {
		unix.Flock(int(f.Fd()), unix.LOCK_UN)
		f.Close()
		return nil, err
	}
	if fi.Size()%SectorSize != 0 {
		unix.Flock(int(f.Fd()), unix.LOCK_UN)
		f.Close()
		return nil, fmt.Errorf("device %s size %d is not a multiple of sector size %d", path, fi.Size(), SectorSize)
	}

	return &FileDevice{
		f:        f,
		path:     path,
		capacity: uint32(fi.Size() / SectorSize),
	}, nil
}

// CreateFileDevice creates a new backing file of the given capacity in
// sectors, preallocating its full extent up front via go-fallocate so that
// later sector writes do not fail with ENOSPC mid-growth. Where the host
// filesystem does not support fallocate, the file is instead extended
// sparsely with Truncate, which reserves no space.
func CreateFileDevice(path string, numSectors uint32) (*FileDevice, error) {
	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE|os.O_TRUNC, 0644)
	if err != nil {
		return nil, err
	}

	size := int64(numSectors) * SectorSize
	if err := fallocate.Fallocate(f, 0, size); err != nil {
		// Fall back to a sparse truncate; some filesystems (tmpfs, some
		// container overlay mounts) do not support fallocate.
		if terr := f.Truncate(size); terr != nil {
			f.Close()
			return nil, fmt.Errorf("preallocate %s: %w (truncate fallback: %v)", path, err, terr)
		}
	}

	if err := unix.Flock(int(f.Fd()), unix.LOCK_EX|unix.LOCK_NB); err != nil {
		f.Close()
		return nil, fmt.Errorf("device %s is already mounted: %w", path, err)
	}

	return &FileDevice{f: f, path: path, capacity: numSectors}, nil
}

// Read implements Device.
func (d *FileDevice) Read(ctx context.Context, sector uint32, buf []byte) error {
	if len(buf) != SectorSize {
		return fmt.Errorf("buffer length %d != sector size %d", len(buf), SectorSize)
	}
	if sector >= d.capacity {
		return fmt.Errorf("sector %d out of range [0, %d)", sector, d.capacity)
	}
	_, err := d.f.ReadAt(buf, int64(sector)*SectorSize)
	return err
}

// Write implements Device.
func (d *FileDevice) Write(ctx context.Context, sector uint32, buf []byte) error {
	if len(buf) != SectorSize {
		return fmt.Errorf("buffer length %d != sector size %d", len(buf), SectorSize)
	}
	if sector >= d.capacity {
		return fmt.Errorf("sector %d out of range [0, %d)", sector, d.capacity)
	}
	_, err := d.f.WriteAt(buf, int64(sector)*SectorSize)
	return err
}

// Size implements Device.
func (d *FileDevice) Size() uint32 {
	return d.capacity
}

// Close implements Device.
func (d *FileDevice) Close() error {
	unix.Flock(int(d.f.Fd()), unix.LOCK_UN)
	return d.f.Close()
}
