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

package proctable

import (
	"sync"

	"golang.org/x/net/context"

	"github.com/mtkennerly/kfs/fs"
	"github.com/mtkennerly/kfs/inode"
	"github.com/mtkennerly/kfs/internal/kerr"
)

// reservedDescriptors are never handed out by Table.Open; they are
// reserved for stdin/stdout, handled outside this core (spec §4.5).
const reservedDescriptors = 2

// Table is one process' descriptor table plus its current working
// directory reference. Both are per-process state (spec §5); the
// Facade, Cache, and inode Store beneath it are process-wide and shared
// across every Table.
type Table struct {
	mu        sync.Mutex
	fa        *fs.Facade
	handles   map[int32]*Handle // GUARDED_BY(mu)
	nextFree  int32             // GUARDED_BY(mu)
	cwd       *inode.Open       // GUARDED_BY(mu)
}

// New creates an empty descriptor table for a process whose initial
// working directory is cwd (which the Table takes ownership of: it will
// be closed on Chdir or process exit).
func New(fa *fs.Facade, cwd *inode.Open) *Table {
	return &Table{
		fa:       fa,
		handles:  make(map[int32]*Handle),
		nextFree: reservedDescriptors,
		cwd:      cwd,
	}
}

// CWD returns the process' current working directory inode, or nil if
// unset.
func (t *Table) CWD() *inode.Open {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.cwd
}

// allocFD finds the smallest unused descriptor at or above the next_free
// hint (spec §4.5). Must be called with mu held.
func (t *Table) allocFD() int32 {
	fd := t.nextFree
	for {
		if _, used := t.handles[fd]; !used {
			return fd
		}
		fd++
	}
}

// openHandle installs h under a freshly allocated descriptor and returns
// it.
func (t *Table) openHandle(h *Handle) int32 {
	t.mu.Lock()
	defer t.mu.Unlock()
	fd := t.allocFD()
	h.Descriptor = fd
	t.handles[fd] = h
	t.nextFree = fd + 1
	return fd
}

// Create creates a new file or directory named by p relative to this
// process' CWD.
func (t *Table) Create(ctx context.Context, p string, initialSize uint32, isDir bool) error {
	return t.fa.Create(ctx, t.CWD(), p, initialSize, isDir)
}

// Open resolves p relative to this process' CWD and installs the result
// under a freshly allocated descriptor.
func (t *Table) Open(ctx context.Context, p string) (int32, error) {
	o, err := t.fa.Open(ctx, t.CWD(), p)
	if err != nil {
		return 0, err
	}
	h := newHandle(t.fa.Store, o)
	return t.openHandle(h), nil
}

// Close closes fd: its underlying inode is closed (files and directories
// alike), and the descriptor is freed for reuse. If fd is the smallest
// open descriptor, the next Open call returns fd again (spec §8,
// "descriptor reuse").
func (t *Table) Close(ctx context.Context, fd int32) {
	t.mu.Lock()
	h, ok := t.handles[fd]
	if !ok {
		t.mu.Unlock()
		return
	}
	delete(t.handles, fd)
	if fd < t.nextFree {
		t.nextFree = fd
	}
	t.mu.Unlock()

	if h.IsDir {
		t.fa.Store.Close(ctx, h.Dir.Inode)
	} else {
		t.fa.Store.Close(ctx, h.File.Inode)
	}
}

// Lookup returns the handle installed at fd, or nil if none.
func (t *Table) Lookup(fd int32) *Handle {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.handles[fd]
}

// Inumber returns the inode sector number backing fd.
func (t *Table) Inumber(fd int32) (uint32, error) {
	h := t.Lookup(fd)
	if h == nil {
		return 0, kerr.ErrNotFound
	}
	if h.IsDir {
		return h.Dir.Inode.Sector(), nil
	}
	return h.File.Inode.Sector(), nil
}

// IsDir reports whether fd was opened against a directory.
func (t *Table) IsDir(fd int32) (bool, error) {
	h := t.Lookup(fd)
	if h == nil {
		return false, kerr.ErrNotFound
	}
	return h.IsDir, nil
}

// Remove deletes the file or empty directory named by p, relative to this
// process' CWD. If p names this process' own current working directory,
// the CWD reference is detached before the directory entry is unlinked
// and closed after the unlink attempt, per spec §4.4/§9: other threads
// sharing that directory may keep it open until their own last close,
// but any new Chdir/Open along that path must fail once the entry is
// unlinked.
func (t *Table) Remove(ctx context.Context, p string) error {
	t.mu.Lock()
	cwd := t.cwd
	t.mu.Unlock()

	var detached *inode.Open
	if cwd != nil {
		res, err := t.fa.Open(ctx, cwd, p)
		if err == nil {
			sameAsCWD := res.Sector() == cwd.Sector()
			t.fa.Store.Close(ctx, res)
			if sameAsCWD {
				t.mu.Lock()
				detached = t.cwd
				t.cwd = nil
				t.mu.Unlock()
			}
		}
	}

	err := t.fa.Remove(ctx, cwd, p)
	if detached != nil {
		t.fa.Store.Close(ctx, detached)
	}
	return err
}

// Chdir swaps this process' CWD to the directory named by p, closing the
// previous one.
func (t *Table) Chdir(ctx context.Context, p string) error {
	next, err := t.fa.Chdir(ctx, t.CWD(), p)
	if err != nil {
		return err
	}

	t.mu.Lock()
	prev := t.cwd
	t.cwd = next
	t.mu.Unlock()

	if prev != nil {
		t.fa.Store.Close(ctx, prev)
	}
	return nil
}

// Exit closes every remaining handle in the table and the process' CWD,
// mirroring what Pintos' process_exit does to the opened-files hash table
// and thread.cwd_inode.
func (t *Table) Exit(ctx context.Context) {
	t.mu.Lock()
	handles := t.handles
	t.handles = make(map[int32]*Handle)
	cwd := t.cwd
	t.cwd = nil
	t.mu.Unlock()

	for _, h := range handles {
		if h.IsDir {
			t.fa.Store.Close(ctx, h.Dir.Inode)
		} else {
			t.fa.Store.Close(ctx, h.File.Inode)
		}
	}
	if cwd != nil {
		t.fa.Store.Close(ctx, cwd)
	}
}

// Fork duplicates this table's descriptors (re-opening, and so bumping
// open_count on, the inode behind each live handle) and its CWD reference
// into a new Table sharing the same Facade. This is the process-duplication
// hook Pintos' process.h exposes via struct thread.cwd_inode that the
// spec.md distillation omitted (spec.md §4 covers only the single-process
// shape of the handle table).
func (t *Table) Fork(ctx context.Context) *Table {
	t.mu.Lock()
	defer t.mu.Unlock()

	var cwd *inode.Open
	if t.cwd != nil {
		cwd = t.fa.Store.Open(ctx, t.cwd.Sector())
	}

	child := &Table{
		fa:       t.fa,
		handles:  make(map[int32]*Handle, len(t.handles)),
		nextFree: t.nextFree,
		cwd:      cwd,
	}
	for fd, h := range t.handles {
		if h.IsDir {
			in := t.fa.Store.Open(ctx, h.Dir.Inode.Sector())
			child.handles[fd] = &Handle{
				Descriptor: fd,
				IsDir:      true,
				Dir:        &Directory{dir: h.Dir.dir.CloneFor(in), Inode: in, cursor: h.Dir.cursor},
			}
		} else {
			in := t.fa.Store.Open(ctx, h.File.Inode.Sector())
			child.handles[fd] = &Handle{
				Descriptor: fd,
				IsDir:      false,
				File:       &File{store: t.fa.Store, Inode: in, pos: h.File.pos},
			}
		}
	}
	return child
}
