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

// Package inode implements the on-disk inode layout and the open-inode
// table (spec §4.2, components C2/C3): a UNIX-style multi-level-index
// inode with on-demand growth, byte↔sector mapping, and deferred deletion
// once an inode's last open handle closes after its removed flag is set.
//
// Grounded on Pintos' filesys/inode.c (original_source/pintos), formalized
// with the teacher's invariant-checked-mutex idiom
// (samples/memfs/inode.go).
package inode

import (
	"encoding/binary"

	"github.com/mtkennerly/kfs/device"
)

const (
	// DirectCount is the number of direct block pointers in an on-disk
	// inode (spec §3, field direct[0..D)).
	DirectCount = 122

	// RecordsPerBlock is the number of sector pointers that fit in one
	// 512-byte index block (512 / 4).
	RecordsPerBlock = device.SectorSize / 4

	// Magic identifies a valid on-disk inode sector.
	Magic = 0x494E4F44

	// MaxFileSectors is the number of file sectors an inode can address
	// (indices 0 through MaxFileSectors-1): direct + indirect +
	// doubly-indirect capacity, 16,634 sectors.
	MaxFileSectors = DirectCount + RecordsPerBlock + RecordsPerBlock*RecordsPerBlock

	// MaxFileSize is the largest file size in bytes: 8,516,608 bytes,
	// about 8.12 MiB.
	MaxFileSize = MaxFileSectors * device.SectorSize

	// diskSize is the exact on-wire size of an inode sector (spec §6).
	diskSize = device.SectorSize

	offEnd            = 0
	offLength         = 4
	offDirect         = 8
	offIndirect       = offDirect + DirectCount*4 // 496
	offDoublyIndirect = offIndirect + 4           // 500
	offIsDir          = offDoublyIndirect + 4     // 504
	offMagic          = 508
)

// Disk is the in-memory mirror of one on-disk inode sector (spec §3, §6).
type Disk struct {
	End            uint32
	Length         uint32
	Direct         [DirectCount]uint32
	Indirect       uint32
	DoublyIndirect uint32
	IsDir          bool
	Magic          uint32
}

// Encode serializes d into a freshly allocated SectorSize-byte buffer,
// matching the little-endian layout in spec §6. Padding bytes are zero.
func (d *Disk) Encode() []byte {
	buf := make([]byte, diskSize)
	binary.LittleEndian.PutUint32(buf[offEnd:], d.End)
	binary.LittleEndian.PutUint32(buf[offLength:], d.Length)
	for i, p := range d.Direct {
		binary.LittleEndian.PutUint32(buf[offDirect+i*4:], p)
	}
	binary.LittleEndian.PutUint32(buf[offIndirect:], d.Indirect)
	binary.LittleEndian.PutUint32(buf[offDoublyIndirect:], d.DoublyIndirect)
	if d.IsDir {
		buf[offIsDir] = 1
	}
	binary.LittleEndian.PutUint32(buf[offMagic:], d.Magic)
	return buf
}

// DecodeDisk parses a SectorSize-byte buffer into a Disk.
func DecodeDisk(buf []byte) *Disk {
	d := &Disk{}
	d.End = binary.LittleEndian.Uint32(buf[offEnd:])
	d.Length = binary.LittleEndian.Uint32(buf[offLength:])
	for i := range d.Direct {
		d.Direct[i] = binary.LittleEndian.Uint32(buf[offDirect+i*4:])
	}
	d.Indirect = binary.LittleEndian.Uint32(buf[offIndirect:])
	d.DoublyIndirect = binary.LittleEndian.Uint32(buf[offDoublyIndirect:])
	d.IsDir = buf[offIsDir] != 0
	d.Magic = binary.LittleEndian.Uint32(buf[offMagic:])
	return d
}

// decodePointerBlock reinterprets a SectorSize-byte buffer as
// RecordsPerBlock little-endian uint32 sector pointers.
func decodePointerBlock(buf []byte) [RecordsPerBlock]uint32 {
	var out [RecordsPerBlock]uint32
	for i := range out {
		out[i] = binary.LittleEndian.Uint32(buf[i*4:])
	}
	return out
}

// encodePointerBlock is the inverse of decodePointerBlock.
func encodePointerBlock(block [RecordsPerBlock]uint32) []byte {
	buf := make([]byte, diskSize)
	for i, p := range block {
		binary.LittleEndian.PutUint32(buf[i*4:], p)
	}
	return buf
}

// bytesToSectors returns ceil(size / SectorSize).
func bytesToSectors(size uint32) uint32 {
	return (size + device.SectorSize - 1) / device.SectorSize
}
