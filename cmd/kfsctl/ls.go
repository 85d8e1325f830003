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

	"github.com/spf13/cobra"
	"golang.org/x/net/context"

	"github.com/mtkennerly/kfs/directory"
	"github.com/mtkennerly/kfs/fs"
	"github.com/mtkennerly/kfs/internal/kerr"
)

var lsCmd = &cobra.Command{
	Use:   "ls PATH",
	Short: "List the entries of a directory",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := context.Background()
		return withFacade(ctx, cfg, func(ctx context.Context, fa *fs.Facade) error {
			o, err := fa.Open(ctx, nil, args[0])
			if err != nil {
				return err
			}
			defer fa.Store.Close(ctx, o)
			if !o.IsDir() {
				return kerr.ErrInvalidPath
			}

			dir := directory.New(fa.Store, o)
			var cur directory.Cursor
			for {
				name, ok := dir.Readdir(ctx, &cur)
				if !ok {
					break
				}
				fmt.Println(name)
			}
			return nil
		})
	},
}
