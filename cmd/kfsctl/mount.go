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
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"golang.org/x/net/context"

	"github.com/mtkennerly/kfs/directory"
	"github.com/mtkennerly/kfs/fs"
	"github.com/mtkennerly/kfs/internal/kerr"
	"github.com/mtkennerly/kfs/internal/klog"
	"github.com/mtkennerly/kfs/proctable"
)

// errQuit unwinds runShell's loop on `exit`/`quit` (EOF ends the loop
// directly); it is never reported to the caller as a failure.
var errQuit = errors.New("kfsctl: shell quit")

var mountCmd = &cobra.Command{
	Use:   "mount",
	Short: "Drive the facade from a foreground shell (no real mount(2); see SPEC_FULL.md's Non-goals)",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := context.Background()
		return withFacade(ctx, cfg, runShell)
	},
}

// runShell opens the root directory as the shell's starting CWD and reads
// commands from stdin until `exit`/`quit`/EOF, one proctable.Table per
// invocation, the way a single Pintos user process would drive the
// filesystem core directly rather than through a mounted VFS.
func runShell(ctx context.Context, fa *fs.Facade) error {
	root := fa.Store.Open(ctx, fs.RootDirSector)
	t := proctable.New(fa, root)
	defer t.Exit(ctx)

	fmt.Fprintln(os.Stdout, "kfs foreground shell; `help` lists commands, `exit` quits")
	scanner := bufio.NewScanner(os.Stdin)
	for {
		fmt.Fprint(os.Stdout, "kfs> ")
		if !scanner.Scan() {
			return nil
		}

		fields := strings.Fields(scanner.Text())
		if len(fields) == 0 {
			continue
		}

		opID := uuid.New().String()
		klog.Get().Printf("op=%s shell cmd=%q", opID, strings.Join(fields, " "))

		if err := dispatch(ctx, fa, t, fields); err != nil {
			if err == errQuit {
				return nil
			}
			fmt.Fprintf(os.Stderr, "kfsctl: op=%s: %v\n", opID, err)
		}
	}
}

func dispatch(ctx context.Context, fa *fs.Facade, t *proctable.Table, fields []string) error {
	cmd, args := fields[0], fields[1:]
	switch cmd {
	case "exit", "quit":
		return errQuit
	case "help":
		fmt.Fprintln(os.Stdout, "commands: ls PATH, cat PATH, mkdir PATH, touch PATH, rm PATH, cd PATH, pwd, stat PATH, exit")
		return nil
	case "pwd":
		fmt.Fprintf(os.Stdout, "inumber: %d\n", fa.Inumber(t.CWD()))
		return nil
	case "cd":
		if len(args) != 1 {
			return fmt.Errorf("usage: cd PATH")
		}
		return t.Chdir(ctx, args[0])
	case "mkdir":
		if len(args) != 1 {
			return fmt.Errorf("usage: mkdir PATH")
		}
		return t.Create(ctx, args[0], 0, true)
	case "touch":
		if len(args) != 1 {
			return fmt.Errorf("usage: touch PATH")
		}
		return t.Create(ctx, args[0], 0, false)
	case "rm":
		if len(args) != 1 {
			return fmt.Errorf("usage: rm PATH")
		}
		return t.Remove(ctx, args[0])
	case "ls":
		if len(args) != 1 {
			return fmt.Errorf("usage: ls PATH")
		}
		return shellLs(ctx, fa, t, args[0])
	case "cat":
		if len(args) != 1 {
			return fmt.Errorf("usage: cat PATH")
		}
		return shellCat(ctx, fa, t, args[0])
	case "stat":
		if len(args) != 1 {
			return fmt.Errorf("usage: stat PATH")
		}
		return shellStat(ctx, fa, t, args[0])
	default:
		return fmt.Errorf("unknown command %q (try `help`)", cmd)
	}
}

func shellLs(ctx context.Context, fa *fs.Facade, t *proctable.Table, p string) error {
	o, err := fa.Open(ctx, t.CWD(), p)
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
			return nil
		}
		fmt.Fprintln(os.Stdout, name)
	}
}

func shellCat(ctx context.Context, fa *fs.Facade, t *proctable.Table, p string) error {
	o, err := fa.Open(ctx, t.CWD(), p)
	if err != nil {
		return err
	}
	defer fa.Store.Close(ctx, o)
	if o.IsDir() {
		return kerr.ErrInvalidPath
	}

	const chunk = 4096
	buf := make([]byte, chunk)
	var offset uint32
	for offset < o.Length() {
		n := fa.Store.ReadAt(ctx, o, buf, chunk, offset)
		if n == 0 {
			break
		}
		if _, err := os.Stdout.Write(buf[:n]); err != nil && err != io.EOF {
			return err
		}
		offset += uint32(n)
	}
	return nil
}

func shellStat(ctx context.Context, fa *fs.Facade, t *proctable.Table, p string) error {
	o, err := fa.Open(ctx, t.CWD(), p)
	if err != nil {
		return err
	}
	defer fa.Store.Close(ctx, o)

	kind := "file"
	if o.IsDir() {
		kind = "directory"
	}
	fmt.Fprintf(os.Stdout, "inumber: %d\nkind: %s\nlength: %d\n", fa.Inumber(o), kind, o.Length())
	return nil
}
