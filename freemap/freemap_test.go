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

package freemap_test

import (
	"testing"

	"github.com/mtkennerly/kfs/freemap"
)

func TestReservedSectorsAreNeverHandedOut(t *testing.T) {
	m := freemap.New(4, 0, 1)
	secs, err := m.Alloc(2)
	if err != nil {
		t.Fatal(err)
	}
	for _, s := range secs {
		if s == 0 || s == 1 {
			t.Fatalf("Alloc handed out reserved sector %d", s)
		}
	}
}

func TestAllocFailsAtomicallyWhenShort(t *testing.T) {
	m := freemap.New(2)
	if _, err := m.Alloc(3); err == nil {
		t.Fatal("expected an error allocating more sectors than exist")
	}
	// All-or-nothing: a failed Alloc must not have consumed any sectors.
	secs, err := m.Alloc(2)
	if err != nil {
		t.Fatalf("Alloc(2) after a failed Alloc(3) should still succeed: %v", err)
	}
	if len(secs) != 2 {
		t.Fatalf("len(secs) = %d, want 2", len(secs))
	}
}

func TestReleaseMakesSectorsAvailableAgain(t *testing.T) {
	m := freemap.New(2)
	secs, _ := m.Alloc(2)
	m.ReleaseOne(secs[0])

	got, err := m.Alloc(1)
	if err != nil {
		t.Fatal(err)
	}
	if got[0] != secs[0] {
		t.Fatalf("Alloc after Release returned %d, want the released sector %d", got[0], secs[0])
	}
}
