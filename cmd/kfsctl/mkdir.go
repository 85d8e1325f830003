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
	"github.com/spf13/cobra"
	"golang.org/x/net/context"

	"github.com/mtkennerly/kfs/fs"
)

var mkdirCmd = &cobra.Command{
	Use:   "mkdir PATH",
	Short: "Create a directory",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := context.Background()
		return withFacade(ctx, cfg, func(ctx context.Context, fa *fs.Facade) error {
			return fa.Create(ctx, nil, args[0], 0, true)
		})
	},
}

var touchCmd = &cobra.Command{
	Use:   "touch PATH",
	Short: "Create an empty file",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := context.Background()
		return withFacade(ctx, cfg, func(ctx context.Context, fa *fs.Facade) error {
			return fa.Create(ctx, nil, args[0], 0, false)
		})
	},
}

var rmCmd = &cobra.Command{
	Use:   "rm PATH",
	Short: "Remove a file or empty directory",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := context.Background()
		return withFacade(ctx, cfg, func(ctx context.Context, fa *fs.Facade) error {
			return fa.Remove(ctx, nil, args[0])
		})
	},
}
