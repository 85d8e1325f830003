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

package path_test

import (
	"testing"

	"golang.org/x/net/context"

	"github.com/mtkennerly/kfs/cache"
	"github.com/mtkennerly/kfs/device"
	"github.com/mtkennerly/kfs/directory"
	"github.com/mtkennerly/kfs/freemap"
	"github.com/mtkennerly/kfs/inode"
	"github.com/mtkennerly/kfs/path"
)

const rootSector = 1

// setup builds a tiny tree: / (rootSector), /a (dir), /a/b.txt (file).
func setup(t *testing.T) *inode.Store {
	t.Helper()
	ctx := context.Background()
	dev := device.NewMemDevice(64)
	free := freemap.New(64, 0, rootSector)
	c := cache.New(dev, 0)
	store := inode.NewStore(c, free, dev)

	if !store.Create(ctx, rootSector, 0, true) {
		t.Fatal("root Create failed")
	}
	root := store.Open(ctx, rootSector)
	rootDir := directory.New(store, root)
	rootDir.Add(ctx, ".", rootSector)
	rootDir.Add(ctx, "..", rootSector)

	secs, err := free.Alloc(1)
	if err != nil {
		t.Fatal(err)
	}
	aSector := secs[0]
	if !store.Create(ctx, aSector, 0, true) {
		t.Fatal("a Create failed")
	}
	aInode := store.Open(ctx, aSector)
	aDir := directory.New(store, aInode)
	aDir.Add(ctx, ".", aSector)
	aDir.Add(ctx, "..", rootSector)
	rootDir.Add(ctx, "a", aSector)

	secs, err = free.Alloc(1)
	if err != nil {
		t.Fatal(err)
	}
	bSector := secs[0]
	if !store.Create(ctx, bSector, 0, false) {
		t.Fatal("b Create failed")
	}
	aDir.Add(ctx, "b.txt", bSector)

	store.Close(ctx, aInode)
	store.Close(ctx, root)
	return store
}

func TestResolveFound(t *testing.T) {
	ctx := context.Background()
	store := setup(t)

	res := path.Resolve(ctx, store, rootSector, nil, "/a/b.txt")
	if res.Status != path.Found {
		t.Fatalf("Status = %v, want Found", res.Status)
	}
	if res.LeafName != "b.txt" {
		t.Fatalf("LeafName = %q, want %q", res.LeafName, "b.txt")
	}
	store.Close(ctx, res.Parent)
	store.Close(ctx, res.Next)
}

func TestResolveNotFoundLast(t *testing.T) {
	ctx := context.Background()
	store := setup(t)

	res := path.Resolve(ctx, store, rootSector, nil, "/a/missing.txt")
	if res.Status != path.NotFoundLast {
		t.Fatalf("Status = %v, want NotFoundLast", res.Status)
	}
	if res.LeafName != "missing.txt" {
		t.Fatalf("LeafName = %q, want %q", res.LeafName, "missing.txt")
	}
	store.Close(ctx, res.Parent)
}

func TestResolveInvalidIntermediate(t *testing.T) {
	ctx := context.Background()
	store := setup(t)

	res := path.Resolve(ctx, store, rootSector, nil, "/missing/b.txt")
	if res.Status != path.Invalid {
		t.Fatalf("Status = %v, want Invalid", res.Status)
	}
}

func TestResolveInvalidThroughNonDirectory(t *testing.T) {
	ctx := context.Background()
	store := setup(t)

	res := path.Resolve(ctx, store, rootSector, nil, "/a/b.txt/c")
	if res.Status != path.Invalid {
		t.Fatalf("Status = %v, want Invalid", res.Status)
	}
}

func TestResolveRootItself(t *testing.T) {
	ctx := context.Background()
	store := setup(t)

	res := path.Resolve(ctx, store, rootSector, nil, "/")
	if res.Status != path.Found {
		t.Fatalf("Status = %v, want Found", res.Status)
	}
	if res.Next.Sector() != rootSector || res.Parent.Sector() != rootSector {
		t.Fatal("resolving \"/\" should return root as both Parent and Next")
	}
	store.Close(ctx, res.Parent)
	store.Close(ctx, res.Next)
}

func TestResolveTrailingSlashOnDirectoryIsInvalid(t *testing.T) {
	ctx := context.Background()
	store := setup(t)

	// Matches Pintos' get_next_part/find_file behavior: a path ending in a
	// slash after a real component never reaches a terminal match.
	res := path.Resolve(ctx, store, rootSector, nil, "/a/")
	if res.Status != path.Invalid {
		t.Fatalf("Status = %v, want Invalid", res.Status)
	}
}

func TestResolveRelativeRequiresCWD(t *testing.T) {
	ctx := context.Background()
	store := setup(t)

	res := path.Resolve(ctx, store, rootSector, nil, "a/b.txt")
	if res.Status != path.Invalid {
		t.Fatalf("Status = %v, want Invalid when cwd is nil", res.Status)
	}
}

func TestNextComponentRejectsOversizeComponent(t *testing.T) {
	rest := "this-name-is-too-long/rest"
	_, status := path.NextComponent(&rest)
	if status != -1 {
		t.Fatalf("status = %d, want -1", status)
	}
}
