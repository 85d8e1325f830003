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

	"golang.org/x/net/context"
)

// MemDevice is an in-memory Device, used by tests and by the golden-path
// end-to-end scenarios in spec §8 that want a fresh formatted device
// without touching a real file.
type MemDevice struct {
	sectors [][]byte
}

// NewMemDevice allocates a zero-filled in-memory device of the given
// capacity in sectors.
func NewMemDevice(numSectors uint32) *MemDevice {
	d := &MemDevice{sectors: make([][]byte, numSectors)}
	for i := range d.sectors {
		d.sectors[i] = make([]byte, SectorSize)
	}
	return d
}

func (d *MemDevice) checkBounds(sector uint32, buf []byte) error {
	if sector >= uint32(len(d.sectors)) {
		return fmt.Errorf("sector %d out of range [0, %d)", sector, len(d.sectors))
	}
	if len(buf) != SectorSize {
		return fmt.Errorf("buffer length %d != sector size %d", len(buf), SectorSize)
	}
	return nil
}

// Read implements Device.
func (d *MemDevice) Read(ctx context.Context, sector uint32, buf []byte) error {
	if err := d.checkBounds(sector, buf); err != nil {
		return err
	}
	copy(buf, d.sectors[sector])
	return nil
}

// Write implements Device.
func (d *MemDevice) Write(ctx context.Context, sector uint32, buf []byte) error {
	if err := d.checkBounds(sector, buf); err != nil {
		return err
	}
	copy(d.sectors[sector], buf)
	return nil
}

// Size implements Device.
func (d *MemDevice) Size() uint32 {
	return uint32(len(d.sectors))
}

// Close implements Device.
func (d *MemDevice) Close() error {
	return nil
}
