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

// Package cache implements the fixed-capacity block buffer cache (spec
// §4.1, component C1): CACHE_CAPACITY fixed slots holding 512-byte sector
// payloads, clock second-chance eviction, and write-back on eviction or
// shutdown. A single cache mutex guards slot metadata; the user-visible
// memcpy for a hit or a miss runs outside that mutex while the slot is
// pinned, so readers and writers of distinct sectors proceed in parallel
// for the copy itself.
//
// Grounded on the teacher's mutex-guarded, invariant-checked structures
// (samples/memfs/inode.go, samples/memfs/fs.go) and on Pintos'
// filesys/cache.c, which this formalizes: Pintos left its own cache lock
// commented out entirely; this package makes that locking real.
package cache

import (
	"sync"

	"github.com/jacobsa/syncutil"
	"golang.org/x/net/context"

	"github.com/mtkennerly/kfs/device"
	"github.com/mtkennerly/kfs/internal/kerr"
)

// Capacity is the fixed number of slots in the cache (spec §3).
const Capacity = 64

type slot struct {
	sectorID uint32
	valid    bool // INVARIANT: false means empty, regardless of other fields
	data     []byte
	accessed bool
	dirty    bool
	pinCount int
}

// Cache is a fixed-capacity, clock-evicted buffer cache sitting in front
// of a Device.
//
// INVARIANT: no two valid slots share a sectorID.
// INVARIANT: a slot with pinCount > 0 is never evicted.
type Cache struct {
	mu   syncutil.InvariantMutex
	cond *sync.Cond

	dev   device.Device
	slots []slot // GUARDED_BY(mu)
}

// New creates a Cache in front of dev with capacity slots, or Capacity
// slots if capacity is 0 or negative (spec §3's default, overridable via
// config.Config.CacheCapacity).
func New(dev device.Device, capacity int) *Cache {
	if capacity <= 0 {
		capacity = Capacity
	}
	c := &Cache{
		dev:   dev,
		slots: make([]slot, capacity),
	}
	for i := range c.slots {
		c.slots[i].data = make([]byte, device.SectorSize)
	}
	c.mu = syncutil.NewInvariantMutex(c.checkInvariants)
	c.cond = sync.NewCond(&c.mu)
	return c
}

func (c *Cache) checkInvariants() {
	seen := make(map[uint32]struct{})
	for _, s := range c.slots {
		if !s.valid {
			continue
		}
		if _, dup := seen[s.sectorID]; dup {
			panic("cache: duplicate sectorID among valid slots")
		}
		seen[s.sectorID] = struct{}{}
		if s.pinCount < 0 {
			panic("cache: negative pinCount")
		}
	}
}

// Shutdown flushes every dirty slot synchronously. Spec §4.1.
func (c *Cache) Shutdown(ctx context.Context) {
	c.mu.Lock()
	defer c.mu.Unlock()

	for i := range c.slots {
		if c.slots[i].valid && c.slots[i].dirty {
			c.flushLocked(ctx, i)
		}
	}
}

// flushLocked writes slot i back to the device and clears its dirty bit.
// Must be called with mu held.
func (c *Cache) flushLocked(ctx context.Context, i int) {
	if err := c.dev.Write(ctx, c.slots[i].sectorID, c.slots[i].data); err != nil {
		kerr.FatalIO("cache flush", c.slots[i].sectorID, err)
	}
	c.slots[i].dirty = false
}

// findLocked returns the index of the slot holding sector, or -1. Must be
// called with mu held.
func (c *Cache) findLocked(sector uint32) int {
	for i := range c.slots {
		if c.slots[i].valid && c.slots[i].sectorID == sector {
			return i
		}
	}
	return -1
}

// acquireSlotLocked implements the clock second-chance eviction policy
// (spec §4.1). Must be called with mu held; may block on c.cond if every
// slot is pinned, releasing mu while waiting.
func (c *Cache) acquireSlotLocked(ctx context.Context) int {
	for {
		for i := range c.slots {
			if !c.slots[i].valid {
				return i
			}
		}

		// At most two full passes: the first clears accessed bits, the
		// second finds an unpinned slot among those now cleared (unless
		// every slot remains pinned, in which case we wait and retry).
		for pass := 0; pass < 2; pass++ {
			for i := range c.slots {
				if c.slots[i].pinCount > 0 {
					continue
				}
				if c.slots[i].accessed {
					c.slots[i].accessed = false
					continue
				}
				if c.slots[i].dirty {
					c.flushLocked(ctx, i)
				}
				c.slots[i].valid = false
				return i
			}
		}

		c.cond.Wait()
	}
}

// loadLocked brings sector into a fresh slot and returns its index. Must
// be called with mu held; the device read happens while mu is held, which
// serializes cache misses through the single cache mutex (spec §4.1: the
// miss path records sector_id, performs the blocking read, and increments
// pin_count before the mutex is released).
func (c *Cache) loadLocked(ctx context.Context, sector uint32) int {
	idx := c.acquireSlotLocked(ctx)
	c.slots[idx].sectorID = sector
	c.slots[idx].valid = true
	c.slots[idx].accessed = false
	c.slots[idx].dirty = false
	if err := c.dev.Read(ctx, sector, c.slots[idx].data); err != nil {
		kerr.FatalIO("cache load", sector, err)
	}
	return idx
}

// Read copies size bytes starting at sectorOffset within sector into
// out[outOffset:outOffset+size]. Precondition: sectorOffset+size <=
// device.SectorSize.
func (c *Cache) Read(ctx context.Context, sector uint32, sectorOffset int, out []byte, outOffset int, size int) {
	c.mu.Lock()
	idx := c.findLocked(sector)
	if idx == -1 {
		idx = c.loadLocked(ctx, sector)
	}
	c.slots[idx].pinCount++
	data := c.slots[idx].data
	c.mu.Unlock()

	copy(out[outOffset:outOffset+size], data[sectorOffset:sectorOffset+size])

	c.mu.Lock()
	c.slots[idx].accessed = true
	c.slots[idx].pinCount--
	c.cond.Broadcast()
	c.mu.Unlock()
}

// Write copies size bytes from in[inOffset:inOffset+size] into sector at
// sectorOffset, marking the slot dirty. Precondition: sectorOffset+size <=
// device.SectorSize.
func (c *Cache) Write(ctx context.Context, sector uint32, sectorOffset int, in []byte, inOffset int, size int) {
	c.mu.Lock()
	idx := c.findLocked(sector)
	if idx == -1 {
		idx = c.loadLocked(ctx, sector)
	}
	c.slots[idx].pinCount++
	data := c.slots[idx].data
	c.mu.Unlock()

	copy(data[sectorOffset:sectorOffset+size], in[inOffset:inOffset+size])

	c.mu.Lock()
	c.slots[idx].accessed = true
	c.slots[idx].dirty = true
	c.slots[idx].pinCount--
	c.cond.Broadcast()
	c.mu.Unlock()
}

// ZeroSector overwrites the whole of sector with zero bytes; used by inode
// growth to zero-fill newly allocated data sectors before the file length
// is extended over them.
func (c *Cache) ZeroSector(ctx context.Context, sector uint32) {
	zeros := make([]byte, device.SectorSize)
	c.Write(ctx, sector, 0, zeros, 0, device.SectorSize)
}
