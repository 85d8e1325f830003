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

package inode_test

import (
	"bytes"
	"testing"

	"golang.org/x/net/context"

	"github.com/mtkennerly/kfs/cache"
	"github.com/mtkennerly/kfs/device"
	"github.com/mtkennerly/kfs/freemap"
	"github.com/mtkennerly/kfs/inode"
)

// newStore builds a Store over a fresh MemDevice, reserving sector 0 (an
// unused boot sector placeholder) and sector 1 (where every test below
// creates its inode directly, bypassing the free map the way fs.Facade's
// own Create reserves the sector first and passes it in).
func newStore(t *testing.T, numSectors uint32) (*inode.Store, device.Device) {
	t.Helper()
	dev := device.NewMemDevice(numSectors)
	free := freemap.New(numSectors, 0, 1)
	c := cache.New(dev, 0)
	return inode.NewStore(c, free, dev), dev
}

func TestSmallRoundTrip(t *testing.T) {
	ctx := context.Background()
	store, _ := newStore(t, 64)

	if !store.Create(ctx, 1, 0, false) {
		t.Fatal("Create failed")
	}
	o := store.Open(ctx, 1)

	payload := bytes.Repeat([]byte{0x5A}, 600)
	if n := store.WriteAt(ctx, o, payload, len(payload), 0); n != len(payload) {
		t.Fatalf("WriteAt wrote %d bytes, want %d", n, len(payload))
	}
	if got := o.Length(); got != 600 {
		t.Fatalf("Length() = %d, want 600", got)
	}

	out := make([]byte, 600)
	if n := store.ReadAt(ctx, o, out, len(out), 0); n != 600 {
		t.Fatalf("ReadAt returned %d bytes, want 600", n)
	}
	if !bytes.Equal(out, payload) {
		t.Fatal("round-tripped bytes do not match")
	}

	store.Close(ctx, o)
}

func TestLargeWriteSpansIndirectBlock(t *testing.T) {
	ctx := context.Background()
	// Enough sectors for 70000 bytes of data plus index overhead.
	store, _ := newStore(t, 2048)

	if !store.Create(ctx, 1, 0, false) {
		t.Fatal("Create failed")
	}
	o := store.Open(ctx, 1)

	const size = 70000
	payload := make([]byte, size)
	for i := range payload {
		payload[i] = byte(i)
	}
	if n := store.WriteAt(ctx, o, payload, size, 0); n != size {
		t.Fatalf("WriteAt wrote %d bytes, want %d", n, size)
	}

	out := make([]byte, size)
	if n := store.ReadAt(ctx, o, out, size, 0); n != size {
		t.Fatalf("ReadAt returned %d bytes, want %d", n, size)
	}
	if !bytes.Equal(out, payload) {
		t.Fatal("round-tripped large file does not match")
	}

	// 70000 bytes needs ceil(70000/512) = 137 sectors, spilling past the
	// 122 direct slots into the indirect block.
	wantSectors := (size + int(device.SectorSize) - 1) / int(device.SectorSize)
	if wantSectors != 137 {
		t.Fatalf("test assumption broken: expected 137 sectors, computed %d", wantSectors)
	}

	store.Close(ctx, o)
}

func TestDenyWriteBlocksWrites(t *testing.T) {
	ctx := context.Background()
	store, _ := newStore(t, 64)

	store.Create(ctx, 1, 100, false)
	o := store.Open(ctx, 1)

	store.DenyWrite(o)
	n := store.WriteAt(ctx, o, []byte("hello"), 5, 0)
	if n != 0 {
		t.Fatalf("WriteAt under DenyWrite returned %d, want 0", n)
	}
	store.AllowWrite(o)

	n = store.WriteAt(ctx, o, []byte("hello"), 5, 0)
	if n != 5 {
		t.Fatalf("WriteAt after AllowWrite returned %d, want 5", n)
	}

	store.Close(ctx, o)
}

func TestRemoveDefersDeletionUntilLastClose(t *testing.T) {
	ctx := context.Background()
	store, _ := newStore(t, 64)

	store.Create(ctx, 1, 600, false)
	first := store.Open(ctx, 1)
	second := store.Open(ctx, 1)

	store.Remove(first)
	if !store.Removed(second) {
		t.Fatal("Remove on one Open should mark the shared inode removed")
	}

	store.Close(ctx, first)
	// Still one reference outstanding; the remaining Open must still see
	// the shared in-memory state, removed flag included.
	if !store.Removed(second) {
		t.Fatal("inode should remain removed while still open")
	}

	store.Close(ctx, second)
}

func TestOpenSharesStateAcrossCallers(t *testing.T) {
	ctx := context.Background()
	store, _ := newStore(t, 64)

	store.Create(ctx, 1, 0, false)
	a := store.Open(ctx, 1)
	b := store.Open(ctx, 1)

	store.WriteAt(ctx, a, []byte("hi"), 2, 0)
	if got := b.Length(); got != 2 {
		t.Fatalf("second Open did not observe the first's write: Length() = %d", got)
	}

	store.Close(ctx, a)
	store.Close(ctx, b)
}
