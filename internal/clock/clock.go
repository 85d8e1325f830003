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

// Package clock re-exports timeutil.Clock for the ambient, non-on-disk
// timestamps used by the CLI (the queried_at line of stat). The on-disk
// inode layout is fixed by spec and carries no timestamp fields, so no
// package below the CLI depends on this.
package clock

import "github.com/jacobsa/timeutil"

// Clock is a source of the current time, mockable in tests.
type Clock = timeutil.Clock

// New returns the real wall clock.
func New() Clock {
	return timeutil.RealClock()
}
