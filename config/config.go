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

// Package config binds the settings kfsctl needs to locate and size a
// filesystem image, the way gcsfuse's cmd package binds its mount config:
// flags registered on a cobra.Command, overridable by environment variable,
// unmarshaled into a typed struct through viper. No config file is read.
package config

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/mtkennerly/kfs/device"
)

// Config holds every setting a kfsctl invocation needs, bound from flags
// and environment variables (prefixed KFS_, with '-' in a flag name
// written as '_').
type Config struct {
	// DevicePath is the backing file holding the filesystem image.
	DevicePath string `mapstructure:"device"`

	// Sectors is the device size in 512-byte sectors, used by `format`
	// to size a fresh image. Ignored by commands that mount an existing
	// one.
	Sectors uint32 `mapstructure:"sectors"`

	// CacheCapacity overrides cache.Capacity's compile-time default. Zero
	// means "use the package default".
	CacheCapacity int `mapstructure:"cache-capacity"`

	// FormatOnMount creates a fresh filesystem if DevicePath does not
	// exist yet, instead of failing. An existing file is mounted as it is;
	// its contents are not checked for a kfs layout.
	FormatOnMount bool `mapstructure:"format-on-mount"`

	// Debug enables klog's verbose trace output, mirroring the teacher's
	// -fuse.debug flag.
	Debug bool `mapstructure:"debug"`
}

// BindFlags registers this package's settings as persistent flags on cmd
// and binds them into v, following the flag/viper split gcsfuse's
// cmd.init/BindFlags uses. Call Load(v) after cmd parses its flags to
// obtain the resolved Config.
func BindFlags(cmd *cobra.Command, v *viper.Viper) error {
	flags := cmd.PersistentFlags()
	flags.String("device", "", "path to the filesystem image file")
	flags.Uint32("sectors", 8192, "device size in sectors, for `format`")
	flags.Int("cache-capacity", 0, "override the buffer cache slot count (0 = default)")
	flags.Bool("format-on-mount", false, "format the device if the file does not exist yet")
	flags.Bool("debug", false, "enable verbose trace logging")

	v.SetEnvPrefix("kfs")
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()
	return v.BindPFlags(flags)
}

// Load unmarshals v into a Config and validates it.
func Load(v *viper.Viper) (Config, error) {
	var c Config
	if err := v.Unmarshal(&c); err != nil {
		return Config{}, fmt.Errorf("parsing configuration: %w", err)
	}
	if err := c.Validate(); err != nil {
		return Config{}, err
	}
	return c, nil
}

// Validate rejects a Config that can't be used to open or create a device.
func (c Config) Validate() error {
	if c.DevicePath == "" {
		return fmt.Errorf("device path is required (--device or KFS_DEVICE)")
	}
	if c.Sectors == 0 {
		return fmt.Errorf("sectors must be positive")
	}
	if c.CacheCapacity < 0 {
		return fmt.Errorf("cache-capacity must not be negative")
	}
	return nil
}

// DeviceBytes returns the total backing-file size Sectors implies.
func (c Config) DeviceBytes() int64 {
	return int64(c.Sectors) * int64(device.SectorSize)
}
