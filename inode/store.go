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

package inode

import (
	"sync"

	"github.com/jacobsa/syncutil"
	"golang.org/x/net/context"

	"github.com/mtkennerly/kfs/cache"
	"github.com/mtkennerly/kfs/device"
	"github.com/mtkennerly/kfs/freemap"
	"github.com/mtkennerly/kfs/internal/kerr"
)

// Open is a reference-counted handle to an in-memory inode (spec §3,
// "Open inode"). At most one Open exists per sector at any instant; the
// Store enforces that via its table.
//
// INVARIANT: 0 <= DenyWriteCount <= OpenCount.
type Open struct {
	mu syncutil.InvariantMutex

	sector         uint32
	openCount      int // GUARDED_BY(mu)
	removed        bool
	denyWriteCount int
	disk           Disk

	// contentMu serializes compound check-then-write operations (directory
	// add/remove) across every view sharing this Open, independent of mu,
	// which guards only this struct's own fields. ReadAt/WriteAt already
	// take mu per call, so a caller holding contentMu during a multi-call
	// operation must not also try to hold mu across those calls.
	contentMu sync.Mutex
}

// Lock acquires o's content-level lock, letting a caller span several
// ReadAt/WriteAt calls (e.g. a directory's lookup-then-insert) as one
// atomic operation with respect to every other Open value for this sector.
func (o *Open) Lock() {
	o.contentMu.Lock()
}

// Unlock releases the lock taken by Lock.
func (o *Open) Unlock() {
	o.contentMu.Unlock()
}

func (o *Open) checkInvariants() {
	if o.denyWriteCount < 0 || o.denyWriteCount > o.openCount {
		panic("inode: deny-write count out of range")
	}
	if o.openCount < 0 {
		panic("inode: negative open count")
	}
}

// Sector returns the inode's own disk sector (its inumber).
func (o *Open) Sector() uint32 {
	return o.sector
}

// IsDir reports whether the inode represents a directory.
func (o *Open) IsDir() bool {
	o.mu.RLock()
	defer o.mu.RUnlock()
	return o.disk.IsDir
}

// Length returns the current file size in bytes.
func (o *Open) Length() uint32 {
	o.mu.RLock()
	defer o.mu.RUnlock()
	return o.disk.Length
}

// Store is the process-wide open-inode table plus the multi-level-index
// logic that reads and writes inode content through a buffer Cache (spec
// §4.2, components C2/C3).
type Store struct {
	tableMu sync.Mutex
	table   map[uint32]*Open // GUARDED_BY(tableMu)

	cache *cache.Cache
	free  *freemap.Map
	dev   device.Device
}

// NewStore creates a Store backed by the given cache, free-sector map, and
// device (the device is consulted only for its sector count, used as the
// "not yet allocated" sentinel for indirect/doubly_indirect fields).
func NewStore(c *cache.Cache, free *freemap.Map, dev device.Device) *Store {
	return &Store{
		table: make(map[uint32]*Open),
		cache: c,
		free:  free,
		dev:   dev,
	}
}

func (s *Store) sentinel() uint32 {
	return s.dev.Size()
}

// Create zeroes a disk-inode sector, sets length/is_dir/magic, grows it to
// ceil(length/512) data sectors, and writes it through the cache. On any
// sub-allocation failure, all allocations made for this inode are rolled
// back and false is returned (spec §4.2).
func (s *Store) Create(ctx context.Context, sector uint32, lengthBytes uint32, isDir bool) bool {
	disk := &Disk{
		Length:         lengthBytes,
		Magic:          Magic,
		IsDir:          isDir,
		Indirect:       s.sentinel(),
		DoublyIndirect: s.sentinel(),
	}

	needed := bytesToSectors(lengthBytes)
	if err := s.grow(ctx, disk, int(needed)); err != nil {
		s.destroy(ctx, disk)
		return false
	}

	s.cache.Write(ctx, sector, 0, disk.Encode(), 0, device.SectorSize)
	return true
}

// Open returns the shared Open for sector, bumping its open count if it is
// already resident in the table, or loading it from disk otherwise. Spec
// §4.2: lookup and insert are atomic under the table mutex.
func (s *Store) Open(ctx context.Context, sector uint32) *Open {
	s.tableMu.Lock()
	if o, ok := s.table[sector]; ok {
		o.mu.Lock()
		o.openCount++
		o.mu.Unlock()
		s.tableMu.Unlock()
		return o
	}

	o := &Open{sector: sector, openCount: 1}
	o.mu = syncutil.NewInvariantMutex(o.checkInvariants)
	buf := make([]byte, device.SectorSize)
	s.cache.Read(ctx, sector, 0, buf, 0, device.SectorSize)
	o.disk = *DecodeDisk(buf)
	s.table[sector] = o
	s.tableMu.Unlock()
	return o
}

// Close decrements o's open count; at zero it is removed from the table,
// and if its removed flag was set, every sector it owns (data, index
// blocks, and the inode's own sector) is released (spec §4.2, "deferred
// deletion").
func (s *Store) Close(ctx context.Context, o *Open) {
	s.tableMu.Lock()
	o.mu.Lock()
	o.openCount--
	removed := o.removed
	last := o.openCount == 0
	disk := o.disk
	sector := o.sector
	o.mu.Unlock()
	if last {
		delete(s.table, sector)
	}
	s.tableMu.Unlock()

	if last && removed {
		s.free.ReleaseOne(sector)
		s.destroy(ctx, &disk)
	}
}

// Remove marks o for deletion once its last open handle closes.
func (s *Store) Remove(o *Open) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.removed = true
}

// Removed reports whether o has been marked for deferred deletion.
func (s *Store) Removed(o *Open) bool {
	o.mu.RLock()
	defer o.mu.RUnlock()
	return o.removed
}

// DenyWrite increments o's deny-write count; until a matching AllowWrite,
// every WriteAt on o returns 0 without writing (it does not wait).
func (s *Store) DenyWrite(o *Open) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.denyWriteCount++
}

// AllowWrite decrements o's deny-write count.
func (s *Store) AllowWrite(o *Open) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.denyWriteCount == 0 {
		panic("inode: AllowWrite without matching DenyWrite")
	}
	o.denyWriteCount--
}

// ReadAt reads up to size bytes from o into buf[0:n] starting at offset,
// clipped to the current file length.
func (s *Store) ReadAt(ctx context.Context, o *Open, buf []byte, size int, offset uint32) int {
	o.mu.Lock()
	defer o.mu.Unlock()

	read := 0
	for size > 0 {
		sectorIdx := s.byteToSectorLocked(ctx, &o.disk, offset)
		sectorOfs := int(offset % device.SectorSize)

		left := int(o.disk.Length) - int(offset)
		sectorLeft := device.SectorSize - sectorOfs
		minLeft := sectorLeft
		if left < minLeft {
			minLeft = left
		}
		chunk := size
		if minLeft < chunk {
			chunk = minLeft
		}
		if chunk <= 0 {
			break
		}

		s.cache.Read(ctx, sectorIdx, sectorOfs, buf, read, chunk)

		size -= chunk
		offset += uint32(chunk)
		read += chunk
	}
	return read
}

// WriteAt writes up to size bytes from buf into o starting at offset,
// growing the file on demand if offset+size exceeds the current length.
// Returns 0 immediately if a DenyWrite is in effect (spec §7, "Busy").
func (s *Store) WriteAt(ctx context.Context, o *Open, buf []byte, size int, offset uint32) int {
	o.mu.Lock()
	defer o.mu.Unlock()

	if o.denyWriteCount > 0 {
		return 0
	}

	newSize := offset + uint32(size)
	if newSize > o.disk.Length {
		needed := int(bytesToSectors(newSize)) - int(o.disk.End)
		if needed > 0 {
			if err := s.grow(ctx, &o.disk, needed); err != nil {
				// Partial growth is kept (already reflected in disk.End);
				// shrink the visible length to what actually fits.
				o.disk.Length = o.disk.End * device.SectorSize
				s.cache.Write(ctx, o.sector, 0, o.disk.Encode(), 0, device.SectorSize)
			} else {
				o.disk.Length = newSize
				s.cache.Write(ctx, o.sector, 0, o.disk.Encode(), 0, device.SectorSize)
			}
		} else {
			o.disk.Length = newSize
			s.cache.Write(ctx, o.sector, 0, o.disk.Encode(), 0, device.SectorSize)
		}
	}

	written := 0
	for size > 0 {
		sectorOfs := int(offset % device.SectorSize)

		left := int(o.disk.Length) - int(offset)
		sectorLeft := device.SectorSize - sectorOfs
		minLeft := sectorLeft
		if left < minLeft {
			minLeft = left
		}
		chunk := size
		if minLeft < chunk {
			chunk = minLeft
		}
		if chunk <= 0 {
			break
		}

		sectorIdx := s.byteToSectorLocked(ctx, &o.disk, offset)
		s.cache.Write(ctx, sectorIdx, sectorOfs, buf, written, chunk)

		size -= chunk
		offset += uint32(chunk)
		written += chunk
	}
	return written
}

// byteToSectorLocked resolves a byte offset within an inode to a disk
// sector, per the mapping in spec §3. Caller must hold o.mu (the per-inode
// lock passed in via disk's owning Open).
func (s *Store) byteToSectorLocked(ctx context.Context, disk *Disk, offset uint32) uint32 {
	fileSector := offset / device.SectorSize
	return s.getDiskSector(ctx, disk, fileSector)
}

func (s *Store) getDiskSector(ctx context.Context, disk *Disk, fileSector uint32) uint32 {
	switch {
	case fileSector < DirectCount:
		return disk.Direct[fileSector]
	case fileSector < DirectCount+RecordsPerBlock:
		block := s.readPointerBlock(ctx, disk.Indirect)
		return block[fileSector-DirectCount]
	default:
		index := fileSector - DirectCount - RecordsPerBlock
		outer := index / RecordsPerBlock
		inner := index % RecordsPerBlock
		outerBlock := s.readPointerBlock(ctx, disk.DoublyIndirect)
		innerBlock := s.readPointerBlock(ctx, outerBlock[outer])
		return innerBlock[inner]
	}
}

func (s *Store) readPointerBlock(ctx context.Context, sector uint32) [RecordsPerBlock]uint32 {
	buf := make([]byte, device.SectorSize)
	s.cache.Read(ctx, sector, 0, buf, 0, device.SectorSize)
	return decodePointerBlock(buf)
}

func (s *Store) writePointerBlock(ctx context.Context, sector uint32, block [RecordsPerBlock]uint32) {
	s.cache.Write(ctx, sector, 0, encodePointerBlock(block), 0, device.SectorSize)
}

// allocZeroed allocates one sector from the free map and zero-fills it
// through the cache, per spec §4.2's growth algorithm.
func (s *Store) allocZeroed(ctx context.Context) (uint32, error) {
	secs, err := s.free.Alloc(1)
	if err != nil {
		return 0, err
	}
	s.cache.ZeroSector(ctx, secs[0])
	return secs[0], nil
}

// grow extends disk by `add` data sectors across the direct, indirect, and
// doubly-indirect phases, in that order, zero-filling each newly allocated
// data sector before disk.End is bumped. On failure, any index sector
// (indirect, doubly_indirect, or a second-level block) freshly allocated
// during this call is released; already-committed data sectors remain
// (spec §4.2).
func (s *Store) grow(ctx context.Context, disk *Disk, add int) error {
	if add <= 0 {
		return nil
	}

	// Phase 1: direct.
	for disk.End < DirectCount && add > 0 {
		sec, err := s.allocZeroed(ctx)
		if err != nil {
			return err
		}
		disk.Direct[disk.End] = sec
		disk.End++
		add--
	}
	if add == 0 {
		return nil
	}

	// Phase 2: indirect.
	freshIndirect := false
	if disk.Indirect == s.sentinel() {
		secs, err := s.free.Alloc(1)
		if err != nil {
			return err
		}
		disk.Indirect = secs[0]
		freshIndirect = true
		s.cache.ZeroSector(ctx, disk.Indirect)
	}

	idx := disk.End - DirectCount
	block := s.readPointerBlock(ctx, disk.Indirect)
	for idx < RecordsPerBlock && add > 0 {
		sec, err := s.allocZeroed(ctx)
		if err != nil {
			if idx == 0 && freshIndirect {
				s.free.ReleaseOne(disk.Indirect)
				disk.Indirect = s.sentinel()
			} else {
				s.writePointerBlock(ctx, disk.Indirect, block)
			}
			return err
		}
		block[idx] = sec
		disk.End++
		idx++
		add--
	}
	s.writePointerBlock(ctx, disk.Indirect, block)
	if add == 0 {
		return nil
	}

	// Phase 3: doubly indirect.
	freshDoubly := false
	if disk.DoublyIndirect == s.sentinel() {
		secs, err := s.free.Alloc(1)
		if err != nil {
			return err
		}
		disk.DoublyIndirect = secs[0]
		freshDoubly = true
		s.cache.ZeroSector(ctx, disk.DoublyIndirect)
	}

	index := disk.End - DirectCount - RecordsPerBlock
	outer := index / RecordsPerBlock
	inner := index % RecordsPerBlock
	outerBlock := s.readPointerBlock(ctx, disk.DoublyIndirect)

	for outer < RecordsPerBlock && add > 0 {
		freshSecondLevel := false
		if inner == 0 {
			secs, err := s.free.Alloc(1)
			if err != nil {
				if outer == 0 && freshDoubly {
					s.free.ReleaseOne(disk.DoublyIndirect)
					disk.DoublyIndirect = s.sentinel()
				} else {
					s.writePointerBlock(ctx, disk.DoublyIndirect, outerBlock)
				}
				return err
			}
			outerBlock[outer] = secs[0]
			freshSecondLevel = true
			s.cache.ZeroSector(ctx, outerBlock[outer])
		}

		innerBlock := s.readPointerBlock(ctx, outerBlock[outer])
		for inner < RecordsPerBlock && add > 0 {
			sec, err := s.allocZeroed(ctx)
			if err != nil {
				if inner == 0 && freshSecondLevel {
					s.free.ReleaseOne(outerBlock[outer])
					if outer == 0 && freshDoubly {
						s.free.ReleaseOne(disk.DoublyIndirect)
						disk.DoublyIndirect = s.sentinel()
					} else {
						s.writePointerBlock(ctx, disk.DoublyIndirect, outerBlock)
					}
				} else {
					s.writePointerBlock(ctx, outerBlock[outer], innerBlock)
				}
				return err
			}
			innerBlock[inner] = sec
			disk.End++
			inner++
			add--
		}
		s.writePointerBlock(ctx, outerBlock[outer], innerBlock)
		outer++
		inner = 0
	}
	s.writePointerBlock(ctx, disk.DoublyIndirect, outerBlock)
	if add == 0 {
		return nil
	}
	return kerr.ErrNoSpace
}

// destroy releases every sector disk owns: its allocated data sectors, its
// index blocks, and (by the caller) the inode's own sector. Mirrors
// Pintos' inode_destroy.
func (s *Store) destroy(ctx context.Context, disk *Disk) {
	idx := uint32(0)
	for idx < DirectCount && idx < disk.End {
		s.free.ReleaseOne(disk.Direct[idx])
		idx++
	}
	if idx == disk.End {
		return
	}

	idx -= DirectCount
	block := s.readPointerBlock(ctx, disk.Indirect)
	for idx < RecordsPerBlock && idx+DirectCount < disk.End {
		s.free.ReleaseOne(block[idx])
		idx++
	}
	s.free.ReleaseOne(disk.Indirect)
	if idx+DirectCount == disk.End {
		return
	}

	idx -= RecordsPerBlock
	outerBlock := s.readPointerBlock(ctx, disk.DoublyIndirect)
	outer := idx / RecordsPerBlock
	inner := idx % RecordsPerBlock
	for outer < RecordsPerBlock {
		innerBlock := s.readPointerBlock(ctx, outerBlock[outer])
		for inner < RecordsPerBlock && inner+(outer+1)*RecordsPerBlock+DirectCount < disk.End {
			s.free.ReleaseOne(innerBlock[inner])
			inner++
		}
		s.free.ReleaseOne(outerBlock[outer])
		if inner+(outer+1)*RecordsPerBlock+DirectCount == disk.End {
			s.free.ReleaseOne(disk.DoublyIndirect)
			return
		}
		outer++
		inner = 0
	}
	s.free.ReleaseOne(disk.DoublyIndirect)
}
