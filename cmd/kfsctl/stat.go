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

package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/net/context"

	"github.com/mtkennerly/kfs/fs"
	"github.com/mtkennerly/kfs/internal/clock"
)

var statCmd = &cobra.Command{
	Use:   "stat PATH",
	Short: "Print an inode's inumber, kind, and length",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := context.Background()
		return withFacade(ctx, cfg, func(ctx context.Context, fa *fs.Facade) error {
			o, err := fa.Open(ctx, nil, args[0])
			if err != nil {
				return err
			}
			defer fa.Store.Close(ctx, o)

			kind := "file"
			if o.IsDir() {
				kind = "directory"
			}
			queriedAt := clock.New().Now().Format(time.RFC3339)
			fmt.Printf("inumber: %d\nkind: %s\nlength: %d\nqueried_at: %s\n", fa.Inumber(o), kind, o.Length(), queriedAt)
			return nil
		})
	},
}
