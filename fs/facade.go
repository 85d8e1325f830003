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

// Package fs implements the filesystem facade (spec §4.4, component C6):
// create/open/remove/chdir semantics, "." and ".." wiring, and the
// boot-sector layout in spec §6. Grounded on Pintos' filesys.c
// (original_source/pintos/src/filesys/filesys.c).
package fs

import (
	"golang.org/x/net/context"

	"github.com/mtkennerly/kfs/cache"
	"github.com/mtkennerly/kfs/device"
	"github.com/mtkennerly/kfs/directory"
	"github.com/mtkennerly/kfs/freemap"
	"github.com/mtkennerly/kfs/inode"
	"github.com/mtkennerly/kfs/internal/kerr"
	"github.com/mtkennerly/kfs/path"
)

// On-disk layout (spec §6).
const (
	BootSector    = 0
	RootDirSector = 1
	FreeMapSector = 2
	firstDataSector = 3
)

// Facade is the top-level filesystem object: a Device mediated by a
// buffer Cache, an inode Store, and a free-sector Map.
type Facade struct {
	Device device.Device
	Cache  *cache.Cache
	Store  *inode.Store
	Free   *freemap.Map
}

// Format creates a fresh filesystem on dev: a free map reserving the boot,
// root-directory, and free-map sectors, and a root directory inode with
// "." and ".." both pointing to itself (spec §6, §4.3). cacheCapacity
// overrides the buffer cache's default slot count; 0 keeps the default.
func Format(ctx context.Context, dev device.Device, cacheCapacity int) *Facade {
	free := freemap.New(dev.Size(), BootSector, RootDirSector, FreeMapSector)
	c := cache.New(dev, cacheCapacity)
	store := inode.NewStore(c, free, dev)

	fa := &Facade{Device: dev, Cache: c, Store: store, Free: free}

	if !store.Create(ctx, RootDirSector, directory.InitialSize, true) {
		panic("kfs: root directory creation failed")
	}
	root := store.Open(ctx, RootDirSector)
	dir := directory.New(store, root)
	if err := dir.Add(ctx, ".", RootDirSector); err != nil {
		panic("kfs: root directory creation failed: " + err.Error())
	}
	if err := dir.Add(ctx, "..", RootDirSector); err != nil {
		panic("kfs: root directory creation failed: " + err.Error())
	}
	store.Close(ctx, root)

	return fa
}

// Mount opens an already-formatted filesystem on dev. cacheCapacity
// overrides the buffer cache's default slot count; 0 keeps the default.
func Mount(dev device.Device, cacheCapacity int) *Facade {
	free := freemap.New(dev.Size(), BootSector, RootDirSector, FreeMapSector)
	c := cache.New(dev, cacheCapacity)
	store := inode.NewStore(c, free, dev)
	return &Facade{Device: dev, Cache: c, Store: store, Free: free}
}

// Shutdown flushes the cache and closes the device.
func (fa *Facade) Shutdown(ctx context.Context) {
	fa.Cache.Shutdown(ctx)
	fa.Device.Close()
}

// resolve is a thin wrapper binding this Facade's store and root sector
// into path.Resolve.
func (fa *Facade) resolve(ctx context.Context, cwd *inode.Open, p string) path.Result {
	return path.Resolve(ctx, fa.Store, RootDirSector, cwd, p)
}

// Create allocates a new inode named by the last component of p, inside
// the directory named by the rest of p, which must already exist (spec
// §4.4: resolve must return NotFoundLast). If isDir, "." and ".." are
// added pointing at the new directory and its parent respectively. Any
// failure after the inode sector is allocated rolls the allocation back.
func (fa *Facade) Create(ctx context.Context, cwd *inode.Open, p string, initialSize uint32, isDir bool) error {
	res := fa.resolve(ctx, cwd, p)
	switch res.Status {
	case path.Found:
		if res.Parent != nil {
			fa.Store.Close(ctx, res.Parent)
		}
		fa.Store.Close(ctx, res.Next)
		return kerr.ErrExists
	case path.Invalid:
		return kerr.ErrInvalidPath
	}
	// NotFoundLast.
	defer fa.Store.Close(ctx, res.Parent)

	secs, err := fa.Free.Alloc(1)
	if err != nil {
		return kerr.ErrNoSpace
	}
	sector := secs[0]

	if !fa.Store.Create(ctx, sector, initialSize, isDir) {
		fa.Free.ReleaseOne(sector)
		return kerr.ErrNoSpace
	}

	parentDir := directory.New(fa.Store, res.Parent)
	if err := parentDir.Add(ctx, res.LeafName, sector); err != nil {
		fa.Free.ReleaseOne(sector)
		return err
	}

	if isDir {
		newInode := fa.Store.Open(ctx, sector)
		newDir := directory.New(fa.Store, newInode)
		errDot := newDir.Add(ctx, ".", sector)
		errDotDot := newDir.Add(ctx, "..", res.Parent.Sector())
		fa.Store.Close(ctx, newInode)
		if errDot != nil || errDotDot != nil {
			parentDir.Remove(ctx, res.LeafName)
			fa.Free.ReleaseOne(sector)
			return kerr.ErrNoSpace
		}
	}

	return nil
}

// Open resolves p and returns its inode (spec §4.4: resolve must return
// Found). The caller owns the returned Open and must Close it through
// Store.
func (fa *Facade) Open(ctx context.Context, cwd *inode.Open, p string) (*inode.Open, error) {
	res := fa.resolve(ctx, cwd, p)
	if res.Parent != nil {
		fa.Store.Close(ctx, res.Parent)
	}
	switch res.Status {
	case path.Found:
		return res.Next, nil
	case path.NotFoundLast:
		return nil, kerr.ErrNotFound
	default:
		return nil, kerr.ErrInvalidPath
	}
}

// Remove deletes the file or (empty, non-root) directory named by p. A
// non-empty directory is rejected with ErrNotEmpty. Removing the root, or
// "." or "..", directly is forbidden (spec §4.4).
func (fa *Facade) Remove(ctx context.Context, cwd *inode.Open, p string) error {
	res := fa.resolve(ctx, cwd, p)
	if res.Status != path.Found {
		if res.Parent != nil {
			fa.Store.Close(ctx, res.Parent)
		}
		return kerr.ErrNotFound
	}
	defer fa.Store.Close(ctx, res.Parent)

	if res.LeafName == "." || res.LeafName == ".." || res.Next.Sector() == RootDirSector {
		fa.Store.Close(ctx, res.Next)
		return kerr.ErrInvalidPath
	}

	if res.Next.IsDir() {
		target := directory.New(fa.Store, res.Next)
		if !target.IsEmpty(ctx) {
			fa.Store.Close(ctx, res.Next)
			return kerr.ErrNotEmpty
		}
	}

	parentDir := directory.New(fa.Store, res.Parent)
	if err := parentDir.Remove(ctx, res.LeafName); err != nil {
		fa.Store.Close(ctx, res.Next)
		return err
	}
	fa.Store.Remove(res.Next)
	fa.Store.Close(ctx, res.Next)
	return nil
}

// Chdir resolves p to a directory and returns its freshly opened inode;
// the caller is responsible for swapping it into its CWD slot and closing
// the previous one (spec §4.4, §9: this spec defers actual sector release
// to last close, but new chdir/open under a removed CWD path must fail
// immediately).
func (fa *Facade) Chdir(ctx context.Context, cwd *inode.Open, p string) (*inode.Open, error) {
	res := fa.resolve(ctx, cwd, p)
	if res.Parent != nil {
		fa.Store.Close(ctx, res.Parent)
	}
	if res.Status != path.Found {
		return nil, kerr.ErrNotFound
	}
	if !res.Next.IsDir() {
		fa.Store.Close(ctx, res.Next)
		return nil, kerr.ErrInvalidPath
	}
	if fa.Store.Removed(res.Next) {
		fa.Store.Close(ctx, res.Next)
		return nil, kerr.ErrNotFound
	}
	return res.Next, nil
}

// Inumber returns the inode sector number (the inumber) for an open
// inode, mirroring Pintos' filesys_get_inode_number.
func (fa *Facade) Inumber(o *inode.Open) uint32 {
	return o.Sector()
}
