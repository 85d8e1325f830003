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
)

var formatCmd = &cobra.Command{
	Use:   "format",
	Short: "Create a fresh filesystem image at --device",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := context.Background()
		fa, err := formatDevice(ctx, cfg)
		if err != nil {
			return err
		}
		fa.Shutdown(ctx)
		fmt.Printf("formatted %s (%d sectors)\n", cfg.DevicePath, cfg.Sectors)
		return nil
	},
}
