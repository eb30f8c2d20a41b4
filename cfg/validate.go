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

package cfg

import (
	"fmt"

	"github.com/GoogleCloudPlatform/tinyfs/params"
)

// minBlocksForLayout is the fewest blocks a disk image can have and still
// hold the fixed layout: boot block, superblock, log, at least one inode
// block, and at least one bitmap block, plus a couple of data blocks for
// the root directory.
const minBlocksForLayout = 1 + 1 + params.LOGSIZE + 1 + 1 + 4

// Validate rejects configurations that can never produce a usable
// filesystem, using small, composable checks.
func Validate(c *Config) error {
	if c.DiskPath == "" {
		return fmt.Errorf("disk-path must not be empty")
	}
	if c.BlockCount < minBlocksForLayout {
		return fmt.Errorf("block-count %d is too small; need at least %d blocks for the on-disk layout", c.BlockCount, minBlocksForLayout)
	}
	if c.InodeCount == 0 {
		return fmt.Errorf("inode-count must be at least 1")
	}
	if err := validateLogRotate(&c.Logging.LogRotate); err != nil {
		return err
	}
	if err := validateSeverity(c.Logging.Severity); err != nil {
		return err
	}
	if c.Logging.Format != "" && c.Logging.Format != "text" && c.Logging.Format != "json" {
		return fmt.Errorf("logging.format must be \"text\" or \"json\", got %q", c.Logging.Format)
	}
	return nil
}

func validateLogRotate(r *LogRotateConfig) error {
	if r.MaxFileSizeMB <= 0 {
		return fmt.Errorf("logging.log-rotate.max-file-size-mb must be at least 1")
	}
	if r.BackupFileCount < 0 {
		return fmt.Errorf("logging.log-rotate.backup-file-count must be 0 or positive")
	}
	return nil
}

func validateSeverity(s string) error {
	switch s {
	case "", "TRACE", "DEBUG", "INFO", "WARNING", "ERROR", "OFF":
		return nil
	default:
		return fmt.Errorf("logging.severity %q is not one of TRACE, DEBUG, INFO, WARNING, ERROR, OFF", s)
	}
}
