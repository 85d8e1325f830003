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

package inode

import (
	"testing"

	"github.com/kylelemons/godebug/pretty"
)

func TestDiskEncodeDecodeRoundTrip(t *testing.T) {
	d := &Disk{
		End:            3,
		Length:         1500,
		Indirect:       99,
		DoublyIndirect: 100,
		IsDir:          true,
		Magic:          Magic,
	}
	d.Direct[0] = 7
	d.Direct[121] = 42

	got := DecodeDisk(d.Encode())
	if diff := pretty.Compare(got, d); diff != "" {
		t.Fatalf("round trip mismatch (-got +want):\n%s", diff)
	}
}

func TestBytesToSectorsRoundsUp(t *testing.T) {
	cases := map[uint32]uint32{
		0:   0,
		1:   1,
		512: 1,
		513: 2,
		600: 2,
	}
	for size, want := range cases {
		if got := bytesToSectors(size); got != want {
			t.Errorf("bytesToSectors(%d) = %d, want %d", size, got, want)
		}
	}
}

func TestMaxFileSectorsMatchesIndexCapacity(t *testing.T) {
	want := uint32(DirectCount) + RecordsPerBlock + RecordsPerBlock*RecordsPerBlock
	if MaxFileSectors != want {
		t.Fatalf("MaxFileSectors = %d, want %d", MaxFileSectors, want)
	}
}
