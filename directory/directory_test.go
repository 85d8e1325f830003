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

package directory_test

import (
	"sync"
	"testing"

	"github.com/kylelemons/godebug/pretty"
	"golang.org/x/net/context"

	"github.com/mtkennerly/kfs/cache"
	"github.com/mtkennerly/kfs/device"
	"github.com/mtkennerly/kfs/directory"
	"github.com/mtkennerly/kfs/freemap"
	"github.com/mtkennerly/kfs/inode"
)

func newDir(t *testing.T) (*inode.Store, *directory.Directory) {
	t.Helper()
	ctx := context.Background()
	dev := device.NewMemDevice(64)
	free := freemap.New(64, 0, 1)
	c := cache.New(dev, 0)
	store := inode.NewStore(c, free, dev)

	if !store.Create(ctx, 1, 0, true) {
		t.Fatal("Create failed")
	}
	o := store.Open(ctx, 1)
	return store, directory.New(store, o)
}

func TestAddLookupRemove(t *testing.T) {
	ctx := context.Background()
	_, dir := newDir(t)

	if err := dir.Add(ctx, "a.txt", 5); err != nil {
		t.Fatal(err)
	}
	sector, ok := dir.Lookup(ctx, "a.txt")
	if !ok || sector != 5 {
		t.Fatalf("Lookup(a.txt) = (%d, %v), want (5, true)", sector, ok)
	}

	if err := dir.Remove(ctx, "a.txt"); err != nil {
		t.Fatal(err)
	}
	if _, ok := dir.Lookup(ctx, "a.txt"); ok {
		t.Fatal("a.txt still found after Remove")
	}
}

func TestAddRejectsDuplicateAndOversizeNames(t *testing.T) {
	ctx := context.Background()
	_, dir := newDir(t)

	if err := dir.Add(ctx, "x", 2); err != nil {
		t.Fatal(err)
	}
	if err := dir.Add(ctx, "x", 3); err == nil {
		t.Fatal("expected an error adding a duplicate name")
	}
	if err := dir.Add(ctx, "fifteen-chars!!", 4); err == nil {
		t.Fatal("expected an error adding a name longer than NameMax")
	}
}

func TestRemovedSlotIsReused(t *testing.T) {
	ctx := context.Background()
	_, dir := newDir(t)

	dir.Add(ctx, "one", 10)
	dir.Add(ctx, "two", 11)
	dir.Remove(ctx, "one")
	dir.Add(ctx, "three", 12)

	var got []string
	var cur directory.Cursor
	for {
		name, ok := dir.Readdir(ctx, &cur)
		if !ok {
			break
		}
		got = append(got, name)
	}
	// On-disk order: "three" took the slot "one" left at index 0, ahead
	// of "two"; an append would have put it last.
	want := []string{"three", "two"}
	if diff := pretty.Compare(got, want); diff != "" {
		t.Fatalf("Readdir mismatch (-got +want):\n%s", diff)
	}
}

func TestReaddirSkipsDotEntries(t *testing.T) {
	ctx := context.Background()
	_, dir := newDir(t)

	dir.Add(ctx, ".", 1)
	dir.Add(ctx, "..", 1)
	dir.Add(ctx, "child", 2)

	var cur directory.Cursor
	name, ok := dir.Readdir(ctx, &cur)
	if !ok || name != "child" {
		t.Fatalf("Readdir = (%q, %v), want (\"child\", true)", name, ok)
	}
	_, ok = dir.Readdir(ctx, &cur)
	if ok {
		t.Fatal("expected end of directory after the one real entry")
	}
}

// TestConcurrentAddEnforcesUniqueness regression-tests the directory
// uniqueness invariant under concurrent Add calls against independently
// constructed Directory views of the same sector (as path.Resolve
// constructs a fresh one per call): exactly one of N racing Adds of the
// same name may succeed.
func TestConcurrentAddEnforcesUniqueness(t *testing.T) {
	ctx := context.Background()
	store, dir := newDir(t)
	sector := dir.Inode().Sector()

	const n = 20
	var wg sync.WaitGroup
	errs := make([]error, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			o := store.Open(ctx, sector)
			defer store.Close(ctx, o)
			view := directory.New(store, o)
			errs[i] = view.Add(ctx, "race", uint32(100+i))
		}(i)
	}
	wg.Wait()

	successes := 0
	for _, err := range errs {
		if err == nil {
			successes++
		}
	}
	if successes != 1 {
		t.Fatalf("got %d successful concurrent Add(\"race\") calls, want exactly 1", successes)
	}

	var cur directory.Cursor
	count := 0
	for {
		name, ok := dir.Readdir(ctx, &cur)
		if !ok {
			break
		}
		if name == "race" {
			count++
		}
	}
	if count != 1 {
		t.Fatalf("directory holds %d entries named \"race\", want 1", count)
	}
}

func TestIsEmpty(t *testing.T) {
	ctx := context.Background()
	_, dir := newDir(t)

	dir.Add(ctx, ".", 1)
	dir.Add(ctx, "..", 1)
	if !dir.IsEmpty(ctx) {
		t.Fatal("directory with only . and .. should be empty")
	}

	dir.Add(ctx, "file", 9)
	if dir.IsEmpty(ctx) {
		t.Fatal("directory with a real entry should not be empty")
	}
}
