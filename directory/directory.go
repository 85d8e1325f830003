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

// Package directory implements the linear-entry directory format layered
// on top of an inode (spec §4.3, component C4): lookup, add, remove, and
// ordered iteration, with "." and ".." wired in by the creator at create
// time.
//
// Grounded on the directory semantics spec.md describes (Pintos'
// filesys/directory.c was filtered out of the retrieval pack, so the
// layout below follows spec §3/§6 exactly) and on the teacher's
// samples/memfs/dir.go for the shape of an offset-addressed entry list
// whose check-then-mutate operations run under a single lock; here that
// lock lives on the shared *inode.Open rather than on Directory, since
// Directory views are disposable and reconstructed per path resolution.
package directory

import (
	"encoding/binary"

	"golang.org/x/net/context"

	"github.com/mtkennerly/kfs/inode"
	"github.com/mtkennerly/kfs/internal/kerr"
)

// NameMax is the longest a single path component (and so a directory
// entry's name) may be (spec §3, §9 "Open questions").
const NameMax = 14

// entrySize is the fixed on-disk width of one directory entry: a 4-byte
// in_use flag, a NAME_MAX+1-byte NUL-terminated name, and a 4-byte inode
// sector (spec §6).
const entrySize = 4 + (NameMax + 1) + 4

const (
	offInUse  = 0
	offName   = 4
	offSector = offName + NameMax + 1
)

// Entry is one decoded directory entry.
type Entry struct {
	InUse  bool
	Name   string
	Sector uint32
}

func encodeEntry(e Entry) []byte {
	buf := make([]byte, entrySize)
	if e.InUse {
		buf[offInUse] = 1
	}
	copy(buf[offName:offName+NameMax], e.Name)
	binary.LittleEndian.PutUint32(buf[offSector:], e.Sector)
	return buf
}

func decodeEntry(buf []byte) Entry {
	var e Entry
	e.InUse = buf[offInUse] != 0
	end := offName
	for end < offName+NameMax && buf[end] != 0 {
		end++
	}
	e.Name = string(buf[offName:end])
	e.Sector = binary.LittleEndian.Uint32(buf[offSector:])
	return e
}

// Store lists the inode operations a Directory performs on its content.
// Directory itself holds a concrete *inode.Store, not this interface, and
// *inode.Store has no Length method (a Directory reads its length through
// inode.Open.Length), so *inode.Store does not satisfy Store.
type Store interface {
	ReadAt(ctx context.Context, o *inode.Open, buf []byte, size int, offset uint32) int
	WriteAt(ctx context.Context, o *inode.Open, buf []byte, size int, offset uint32) int
	Length(o *inode.Open) uint32
}

// Directory is a view over an open inode whose content is a packed array
// of fixed-width entries.
type Directory struct {
	store *inode.Store
	inode *inode.Open
}

// New wraps an already-open directory inode.
func New(store *inode.Store, in *inode.Open) *Directory {
	return &Directory{store: store, inode: in}
}

// Inode returns the underlying open inode.
func (d *Directory) Inode() *inode.Open {
	return d.inode
}

// CloneFor returns a Directory view bound to a different already-open
// reference to the same underlying inode, used when a process table
// duplicates its descriptors (e.g. on fork) and must rebind an existing
// Directory to the child's own Open.
func (d *Directory) CloneFor(in *inode.Open) *Directory {
	return &Directory{store: d.store, inode: in}
}

func (d *Directory) entryCount() int {
	return int(d.inode.Length()) / entrySize
}

func (d *Directory) readEntry(ctx context.Context, i int) Entry {
	buf := make([]byte, entrySize)
	d.store.ReadAt(ctx, d.inode, buf, entrySize, uint32(i*entrySize))
	return decodeEntry(buf)
}

func (d *Directory) writeEntry(ctx context.Context, i int, e Entry) {
	d.store.WriteAt(ctx, d.inode, encodeEntry(e), entrySize, uint32(i*entrySize))
}

// Lookup scans entries sequentially for an in-use entry matching name
// byte-exactly. Spec §4.3: at most one match exists per name (directory
// uniqueness).
func (d *Directory) Lookup(ctx context.Context, name string) (uint32, bool) {
	n := d.entryCount()
	for i := 0; i < n; i++ {
		e := d.readEntry(ctx, i)
		if e.InUse && e.Name == name {
			return e.Sector, true
		}
	}
	return 0, false
}

// Add writes name→sector into the first unused slot, or appends. It fails
// if name is empty, longer than NameMax, or already present.
//
// The not-found check and the eventual write are one critical section,
// held under the underlying inode's content lock (d.inode.Lock), so two
// concurrent Add calls against Directory views sharing that inode (spec
// §4.3's "directory uniqueness") cannot both observe name absent and both
// insert it.
func (d *Directory) Add(ctx context.Context, name string, sector uint32) error {
	if name == "" || len(name) > NameMax {
		return kerr.ErrName
	}

	d.inode.Lock()
	defer d.inode.Unlock()

	if _, found := d.Lookup(ctx, name); found {
		return kerr.ErrExists
	}

	n := d.entryCount()
	for i := 0; i < n; i++ {
		e := d.readEntry(ctx, i)
		if !e.InUse {
			d.writeEntry(ctx, i, Entry{InUse: true, Name: name, Sector: sector})
			return nil
		}
	}
	d.writeEntry(ctx, n, Entry{InUse: true, Name: name, Sector: sector})
	return nil
}

// Remove clears the in_use flag on the entry matching name, under the same
// content lock Add uses. For a directory target, the caller is responsible
// for first verifying (via Readdir) that it holds no non-"."/".." entries.
func (d *Directory) Remove(ctx context.Context, name string) error {
	d.inode.Lock()
	defer d.inode.Unlock()

	n := d.entryCount()
	for i := 0; i < n; i++ {
		e := d.readEntry(ctx, i)
		if e.InUse && e.Name == name {
			e.InUse = false
			d.writeEntry(ctx, i, e)
			return nil
		}
	}
	return kerr.ErrNotFound
}

// Cursor is an opaque iteration position into a directory: a byte offset
// that each Readdir call advances past every entry it examines, including
// the unused and "."/".." entries it skips.
type Cursor uint32

// Readdir returns the next entry in on-disk order starting at *cur,
// skipping "." and "..", and advances *cur past it. ok is false once the
// end of the directory is reached.
func (d *Directory) Readdir(ctx context.Context, cur *Cursor) (name string, ok bool) {
	i := int(*cur) / entrySize
	n := d.entryCount()
	for i < n {
		e := d.readEntry(ctx, i)
		i++
		if e.InUse && e.Name != "." && e.Name != ".." {
			*cur = Cursor(i * entrySize)
			return e.Name, true
		}
	}
	*cur = Cursor(i * entrySize)
	return "", false
}

// IsEmpty reports whether the directory holds no entries other than "."
// and "..", the precondition for removing it (spec §4.4).
func (d *Directory) IsEmpty(ctx context.Context) bool {
	var cur Cursor
	_, ok := d.Readdir(ctx, &cur)
	return !ok
}

// InitialEntries is the number of entries the root directory is pre-sized
// for at format time, matching Pintos' do_format calling
// dir_create(ROOT_DIR_SECTOR, 16) (spec §6). The inode is growable
// regardless; Store.Create consumes InitialSize as the root's starting
// length so the first 16 entries don't each force a separate grow.
const InitialEntries = 16

// InitialSize is InitialEntries worth of encoded entries, in bytes.
const InitialSize = InitialEntries * entrySize
