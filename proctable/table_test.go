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

package proctable_test

import (
	"testing"

	"golang.org/x/net/context"

	"github.com/mtkennerly/kfs/device"
	"github.com/mtkennerly/kfs/fs"
	"github.com/mtkennerly/kfs/proctable"
)

func newTable(t *testing.T) (*fs.Facade, *proctable.Table) {
	t.Helper()
	ctx := context.Background()
	dev := device.NewMemDevice(64)
	fa := fs.Format(ctx, dev, 0)
	root, err := fa.Open(ctx, nil, "/")
	if err != nil {
		t.Fatal(err)
	}
	return fa, proctable.New(fa, root)
}

func TestOpenAllocatesDescriptorsAboveReserved(t *testing.T) {
	ctx := context.Background()
	fa, tbl := newTable(t)
	defer fa.Shutdown(ctx)

	if err := tbl.Create(ctx, "a", 0, false); err != nil {
		t.Fatal(err)
	}
	fd, err := tbl.Open(ctx, "a")
	if err != nil {
		t.Fatal(err)
	}
	if fd < 2 {
		t.Fatalf("fd = %d, want >= 2 (0/1 reserved)", fd)
	}
}

func TestDescriptorReuseAfterClose(t *testing.T) {
	ctx := context.Background()
	fa, tbl := newTable(t)
	defer fa.Shutdown(ctx)

	tbl.Create(ctx, "a", 0, false)
	tbl.Create(ctx, "b", 0, false)

	fd1, _ := tbl.Open(ctx, "a")
	fd2, _ := tbl.Open(ctx, "b")
	if fd2 != fd1+1 {
		t.Fatalf("fd2 = %d, want %d", fd2, fd1+1)
	}

	tbl.Close(ctx, fd1)
	fd3, err := tbl.Open(ctx, "a")
	if err != nil {
		t.Fatal(err)
	}
	if fd3 != fd1 {
		t.Fatalf("fd3 = %d, want reused %d", fd3, fd1)
	}
}

func TestCloseUnknownDescriptorIsNoop(t *testing.T) {
	ctx := context.Background()
	fa, tbl := newTable(t)
	defer fa.Shutdown(ctx)

	tbl.Close(ctx, 99) // must not panic
}

func TestRemoveOwnCWDDetachesItImmediately(t *testing.T) {
	ctx := context.Background()
	fa, tbl := newTable(t)
	defer fa.Shutdown(ctx)

	if err := tbl.Create(ctx, "sub", 0, true); err != nil {
		t.Fatal(err)
	}
	if err := tbl.Chdir(ctx, "sub"); err != nil {
		t.Fatal(err)
	}

	if err := tbl.Remove(ctx, "/sub"); err != nil {
		t.Fatal(err)
	}

	// A fresh Chdir into the now-unlinked directory must fail.
	if err := tbl.Chdir(ctx, "/sub"); err == nil {
		t.Fatal("expected Chdir into a removed directory to fail")
	}
}

func TestExitClosesEveryHandle(t *testing.T) {
	ctx := context.Background()
	fa, tbl := newTable(t)
	defer fa.Shutdown(ctx)

	tbl.Create(ctx, "a", 0, false)
	fd, err := tbl.Open(ctx, "a")
	if err != nil {
		t.Fatal(err)
	}

	tbl.Exit(ctx)
	if h := tbl.Lookup(fd); h != nil {
		t.Fatal("Exit should have cleared every handle")
	}
}

func TestForkDuplicatesDescriptorsAndCWD(t *testing.T) {
	ctx := context.Background()
	fa, tbl := newTable(t)
	defer fa.Shutdown(ctx)

	tbl.Create(ctx, "a", 0, false)
	fd, err := tbl.Open(ctx, "a")
	if err != nil {
		t.Fatal(err)
	}

	child := tbl.Fork(ctx)

	childHandle := child.Lookup(fd)
	if childHandle == nil {
		t.Fatal("forked table should carry over the parent's open descriptor")
	}

	parentInumber, _ := tbl.Inumber(fd)
	childInumber, _ := child.Inumber(fd)
	if parentInumber != childInumber {
		t.Fatalf("child descriptor points at inumber %d, want %d", childInumber, parentInumber)
	}

	if child.CWD() == nil {
		t.Fatal("forked table should have a CWD reference")
	}
	if child.CWD().Sector() != tbl.CWD().Sector() {
		t.Fatal("forked table's CWD should be the same directory as the parent's")
	}

	tbl.Close(ctx, fd)
	child.Close(ctx, fd)
	tbl.Exit(ctx)
	child.Exit(ctx)
}
