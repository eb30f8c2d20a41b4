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

package tinyfs

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/GoogleCloudPlatform/tinyfs/internal/logger"
	"github.com/GoogleCloudPlatform/tinyfs/mount"
)

var mkfsCmd = &cobra.Command{
	Use:   "mkfs",
	Short: "Format a new disk image",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		fs, err := mount.Format(MountConfig.DiskPath, MountConfig.BlockCount, MountConfig.InodeCount)
		if err != nil {
			return fmt.Errorf("mkfs: %w", err)
		}
		logger.Infof("mkfs: wrote %s", MountConfig.DiskPath)
		return fs.Close()
	},
}
