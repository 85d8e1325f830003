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

// Command kfsctl is an administrative client for a kfs filesystem image:
// format a backing file, inspect or mutate it one shot at a time with ls,
// cat, mkdir, touch, rm, and stat, or drive it interactively with mount.
// It deliberately stops at the device boundary (no FUSE or VFS mount
// surface is provided; see SPEC_FULL.md's Non-goals) — mount is a
// foreground shell over the facade, not a kernel mount(2).
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/mtkennerly/kfs/config"
)

var cfg config.Config

// cfgViper holds the flag and KFS_ environment bindings that init sets up
// through config.BindFlags; PersistentPreRunE resolves cfg from it.
var cfgViper = viper.New()

var rootCmd = &cobra.Command{
	Use:   "kfsctl",
	Short: "Inspect and manipulate a kfs filesystem image",
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		var err error
		cfg, err = config.Load(cfgViper)
		if err == nil && cfg.Debug {
			os.Setenv("KFS_DEBUG", "1")
		}
		return err
	},
}

func init() {
	if err := config.BindFlags(rootCmd, cfgViper); err != nil {
		fmt.Fprintln(os.Stderr, "kfsctl: binding flags:", err)
		os.Exit(1)
	}

	rootCmd.AddCommand(
		formatCmd,
		mountCmd,
		lsCmd,
		catCmd,
		mkdirCmd,
		touchCmd,
		rmCmd,
		statCmd,
	)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "kfsctl:", err)
		os.Exit(1)
	}
}
