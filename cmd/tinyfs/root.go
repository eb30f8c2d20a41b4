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
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/GoogleCloudPlatform/tinyfs/cfg"
	"github.com/GoogleCloudPlatform/tinyfs/internal/logger"
)

var (
	v           = viper.New()
	bindErr     error
	MountConfig cfg.Config
)

var rootCmd = &cobra.Command{
	Use:   "tinyfs",
	Short: "Format and drive a tinyfs disk image",
	Long: `tinyfs is a small teaching filesystem: a flat file stands in for a
disk, formatted with an inode array, a free-block bitmap, and a
write-ahead log, and driven through the same open/read/write/link
syscall envelope a real kernel would expose.`,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if bindErr != nil {
			return bindErr
		}
		if err := v.Unmarshal(&MountConfig); err != nil {
			return fmt.Errorf("unmarshal config: %w", err)
		}
		if err := cfg.Validate(&MountConfig); err != nil {
			return err
		}
		return configureLogging(MountConfig.Logging)
	},
}

func configureLogging(lc cfg.LoggingConfig) error {
	rotate := logger.RotateConfig{
		MaxFileSizeMB: lc.LogRotate.MaxFileSizeMB,
		BackupFileCnt: lc.LogRotate.BackupFileCount,
		Compress:      lc.LogRotate.Compress,
	}
	return logger.InitLogFile(lc.FilePath, lc.Format, lc.Severity, rotate)
}

// Execute runs the tinyfs CLI, exiting the process on error.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	bindErr = cfg.BindFlags(rootCmd.PersistentFlags(), v)
	rootCmd.AddCommand(mkfsCmd, shellCmd)
}
