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

// Package path implements the path grammar and resolver (spec §4.4,
// component C5): a small state machine consuming '/' runs and component
// characters, with no recursion and no regex, grounded on Pintos'
// filesys.c get_next_part/find_file.
package path

import (
	"golang.org/x/net/context"

	"github.com/mtkennerly/kfs/directory"
	"github.com/mtkennerly/kfs/inode"
)

// Status is the tri-state outcome of Resolve (spec §4.4).
type Status int

const (
	// Invalid means an intermediate component was absent or not a
	// directory.
	Invalid Status = iota
	// Found means the leaf component exists in the parent directory.
	Found
	// NotFoundLast means every component but the last resolved to a
	// directory, and the last component is absent.
	NotFoundLast
)

// NameMax is the longest a single path component may be.
const NameMax = directory.NameMax

// NextComponent extracts one path component from *rest into part, advancing
// *rest past it and any leading slashes. The space character terminates
// the path, matching the user-space convention in spec §4.4. Returns:
//
//	1  - a component was extracted
//	0  - end of string (or all remaining characters were slashes/space)
//	-1 - the component exceeded NameMax characters
func NextComponent(rest *string) (part string, status int) {
	src := *rest

	i := 0
	for i < len(src) && src[i] == '/' {
		i++
	}
	src = src[i:]

	if len(src) == 0 || src[0] == ' ' {
		*rest = src
		return "", 0
	}

	j := 0
	for j < len(src) && src[j] != '/' && src[j] != ' ' {
		j++
	}
	if j > NameMax {
		return "", -1
	}

	*rest = src[j:]
	return src[:j], 1
}

// Result is the outcome of a path resolution. Parent and Next (when set)
// are owned by the caller, which must Close them through the same Store.
type Result struct {
	Status   Status
	Parent   *inode.Open
	LeafName string
	Next     *inode.Open // only set when Status == Found
}

// Resolve walks path from root (if it begins with '/') or from cwd
// otherwise, returning the parent directory inode and leaf name, plus a
// tri-state status distinguishing "found", "absent but creatable", and
// "invalid intermediate component" (spec §4.4). cwd may be nil; if so and
// the path is relative, Resolve returns Invalid with no open references
// held.
func Resolve(ctx context.Context, store *inode.Store, rootSector uint32, cwd *inode.Open, p string) Result {
	var cur *inode.Open
	if len(p) > 0 && p[0] == '/' {
		cur = store.Open(ctx, rootSector)
	} else {
		if cwd == nil {
			return Result{Status: Invalid}
		}
		cur = store.Open(ctx, cwd.Sector())
	}

	rest := p
	matchedAny := false

	for {
		part, status := NextComponent(&rest)
		if status == 0 {
			break
		}
		if status < 0 {
			store.Close(ctx, cur)
			return Result{Status: Invalid}
		}
		matchedAny = true
		isLast := len(rest) == 0 || rest[0] == ' '

		dir := directory.New(store, cur)
		sector, found := dir.Lookup(ctx, part)

		if !found {
			if isLast {
				return Result{Status: NotFoundLast, Parent: cur, LeafName: part}
			}
			store.Close(ctx, cur)
			return Result{Status: Invalid}
		}

		if isLast {
			next := store.Open(ctx, sector)
			return Result{Status: Found, Parent: cur, LeafName: part, Next: next}
		}

		next := store.Open(ctx, sector)
		if !next.IsDir() {
			store.Close(ctx, next)
			store.Close(ctx, cur)
			return Result{Status: Invalid}
		}
		store.Close(ctx, cur)
		cur = next
	}

	if !matchedAny {
		// Path was "/" (or equivalent): the root itself is the target, and
		// root is its own parent (spec §6: "Root's '..' is root").
		return Result{Status: Found, Parent: store.Open(ctx, rootSector), LeafName: ".", Next: cur}
	}

	store.Close(ctx, cur)
	return Result{Status: Invalid}
}
