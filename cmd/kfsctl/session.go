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
	"os"

	"github.com/google/uuid"
	"golang.org/x/net/context"

	"github.com/mtkennerly/kfs/config"
	"github.com/mtkennerly/kfs/device"
	"github.com/mtkennerly/kfs/fs"
	"github.com/mtkennerly/kfs/internal/klog"
)

// withFacade opens cfg.DevicePath (formatting it first if cfg.FormatOnMount
// and it doesn't exist yet), runs fn with an operation ID tagging every
// trace line fn's Facade calls emit, and shuts the Facade down afterward
// regardless of fn's outcome.
func withFacade(ctx context.Context, cfg config.Config, fn func(ctx context.Context, fa *fs.Facade) error) error {
	opID := uuid.New().String()
	klog.Get().Printf("op=%s device=%s", opID, cfg.DevicePath)

	fa, err := openFacade(ctx, cfg)
	if err != nil {
		return fmt.Errorf("op=%s: %w", opID, err)
	}
	defer fa.Shutdown(ctx)

	if err := fn(ctx, fa); err != nil {
		return fmt.Errorf("op=%s: %w", opID, err)
	}
	return nil
}

func openFacade(ctx context.Context, cfg config.Config) (*fs.Facade, error) {
	if _, err := os.Stat(cfg.DevicePath); err != nil {
		if !os.IsNotExist(err) {
			return nil, err
		}
		if !cfg.FormatOnMount {
			return nil, fmt.Errorf("%s does not exist (pass --format-on-mount or run `kfsctl format` first)", cfg.DevicePath)
		}
		return formatDevice(ctx, cfg)
	}

	dev, err := device.OpenFileDevice(cfg.DevicePath)
	if err != nil {
		return nil, fmt.Errorf("opening %s: %w", cfg.DevicePath, err)
	}
	return fs.Mount(dev, cfg.CacheCapacity), nil
}

func formatDevice(ctx context.Context, cfg config.Config) (*fs.Facade, error) {
	dev, err := device.CreateFileDevice(cfg.DevicePath, cfg.Sectors)
	if err != nil {
		return nil, fmt.Errorf("creating %s: %w", cfg.DevicePath, err)
	}
	return fs.Format(ctx, dev, cfg.CacheCapacity), nil
}
