// Copyright 2025 Google LLC
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

// Package cfg is the configuration surface for the tinyfs CLI, bound by
// viper to cobra flags in cmd/tinyfs: one Config struct, one BindFlags,
// one Validate.
package cfg

import (
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// Config is the fully resolved configuration for formatting or mounting a
// tinyfs disk image.
type Config struct {
	// DiskPath is the path to the backing disk image file.
	DiskPath string `mapstructure:"disk-path"`

	// BlockCount is the total number of BSIZE blocks in the disk image,
	// including the boot block, superblock, log, inode array and bitmap.
	BlockCount uint32 `mapstructure:"block-count"`

	// InodeCount is the number of disk inode slots to reserve.
	InodeCount uint32 `mapstructure:"inode-count"`

	Logging LoggingConfig `mapstructure:"logging"`
}

// LoggingConfig configures package internal/logger.
type LoggingConfig struct {
	Severity string `mapstructure:"severity"`
	Format   string `mapstructure:"format"`
	FilePath string `mapstructure:"file-path"`

	LogRotate LogRotateConfig `mapstructure:"log-rotate"`
}

// LogRotateConfig configures lumberjack-backed file rotation.
type LogRotateConfig struct {
	MaxFileSizeMB   int  `mapstructure:"max-file-size-mb"`
	BackupFileCount int  `mapstructure:"backup-file-count"`
	Compress        bool `mapstructure:"compress"`
}

// DefaultLogRotateConfig returns the default file rotation settings.
func DefaultLogRotateConfig() LogRotateConfig {
	return LogRotateConfig{
		MaxFileSizeMB:   512,
		BackupFileCount: 10,
		Compress:        false,
	}
}

// Default returns a Config with every field set to a usable default.
func Default() Config {
	return Config{
		DiskPath:   "tinyfs.img",
		BlockCount: 4096,
		InodeCount: 200,
		Logging: LoggingConfig{
			Severity:  "INFO",
			Format:    "text",
			LogRotate: DefaultLogRotateConfig(),
		},
	}
}

// BindFlags registers a flag for every Config field except the log-rotate
// settings and binds each into v (one flagSet.Xxx + viper.BindPFlag pair
// per field). The log-rotate settings have no flags; v gets their values
// from Default as viper defaults.
func BindFlags(flagSet *pflag.FlagSet, v *viper.Viper) error {
	d := Default()

	v.SetDefault("logging.log-rotate.max-file-size-mb", d.Logging.LogRotate.MaxFileSizeMB)
	v.SetDefault("logging.log-rotate.backup-file-count", d.Logging.LogRotate.BackupFileCount)
	v.SetDefault("logging.log-rotate.compress", d.Logging.LogRotate.Compress)

	flagSet.String("disk-path", d.DiskPath, "Path to the backing disk image file.")
	flagSet.Uint32("block-count", d.BlockCount, "Total number of blocks in a freshly formatted disk image.")
	flagSet.Uint32("inode-count", d.InodeCount, "Number of inode slots in a freshly formatted disk image.")
	flagSet.String("logging.severity", d.Logging.Severity, "Minimum severity to log: TRACE, DEBUG, INFO, WARNING, ERROR, or OFF.")
	flagSet.String("logging.format", d.Logging.Format, "Log output format: text or json.")
	flagSet.String("logging.file-path", d.Logging.FilePath, "If set, write logs to this file instead of stderr.")

	for _, name := range []string{
		"disk-path", "block-count", "inode-count",
		"logging.severity", "logging.format", "logging.file-path",
	} {
		if err := v.BindPFlag(name, flagSet.Lookup(name)); err != nil {
			return err
		}
	}
	return nil
}
