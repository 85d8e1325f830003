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

// Package proctable implements the per-process open-file handle table
// (spec §4.5, component C7): a map from small integer descriptors to
// File-or-Directory handles, plus the File/Directory handle objects
// themselves (spec §3).
//
// Grounded on Pintos' userprog/files.c (kept in original_source): a
// per-thread hash table of {descriptor, file, is_dir} keyed by descriptor,
// with a next_free hint that is lowered on close.
package proctable

import (
	"golang.org/x/net/context"

	"github.com/mtkennerly/kfs/directory"
	"github.com/mtkennerly/kfs/inode"
)

// File bundles an open-inode reference with a byte cursor, the target of
// a descriptor opened against a regular file.
type File struct {
	store *inode.Store
	Inode *inode.Open
	pos   uint32
}

// Read copies up to len(buf) bytes starting at the handle's current
// position, advancing it by the number of bytes actually read.
func (f *File) Read(ctx context.Context, buf []byte) int {
	n := f.store.ReadAt(ctx, f.Inode, buf, len(buf), f.pos)
	f.pos += uint32(n)
	return n
}

// Write copies buf to the handle's current position, advancing it by the
// number of bytes actually written (spec §7: 0 while deny-write is set).
func (f *File) Write(ctx context.Context, buf []byte) int {
	n := f.store.WriteAt(ctx, f.Inode, buf, len(buf), f.pos)
	f.pos += uint32(n)
	return n
}

// Seek repositions the handle's cursor to an absolute byte offset.
func (f *File) Seek(pos uint32) {
	f.pos = pos
}

// Tell returns the handle's current byte offset.
func (f *File) Tell() uint32 {
	return f.pos
}

// Length returns the file's current size in bytes.
func (f *File) Length() uint32 {
	return f.Inode.Length()
}

// Directory bundles an open-inode reference with an iteration cursor (a
// directory.Cursor byte offset over the directory's entries), the target
// of a descriptor opened against a directory.
type Directory struct {
	dir    *directory.Directory
	Inode  *inode.Open
	cursor directory.Cursor
}

// Readdir returns the next entry name in on-disk order, skipping "." and
// "..", advancing the handle's iteration cursor.
func (d *Directory) Readdir(ctx context.Context) (name string, ok bool) {
	return d.dir.Readdir(ctx, &d.cursor)
}

// Handle is one entry in a process' descriptor table (spec §3).
type Handle struct {
	Descriptor int32
	IsDir      bool
	File       *File      // set when !IsDir
	Dir        *Directory // set when IsDir
}

// newHandle wraps a freshly opened inode returned by fs.Facade.Open as a
// File or Directory handle depending on its is_dir flag.
func newHandle(store *inode.Store, o *inode.Open) *Handle {
	if o.IsDir() {
		return &Handle{
			IsDir: true,
			Dir:   &Directory{dir: directory.New(store, o), Inode: o},
		}
	}
	return &Handle{
		IsDir: false,
		File:  &File{store: store, Inode: o},
	}
}
