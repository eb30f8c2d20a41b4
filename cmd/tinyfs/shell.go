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
	"bufio"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/GoogleCloudPlatform/tinyfs/fsyscall"
	"github.com/GoogleCloudPlatform/tinyfs/internal/logger"
	"github.com/GoogleCloudPlatform/tinyfs/mount"
	"github.com/GoogleCloudPlatform/tinyfs/proc"
)

var shellCmd = &cobra.Command{
	Use:   "shell",
	Short: "Open an interactive session against a formatted disk image",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		fs, err := mount.Open(MountConfig.DiskPath)
		if err != nil {
			return fmt.Errorf("shell: %w", err)
		}
		defer fs.Close()

		p, err := fs.RootProcess()
		if err != nil {
			return fmt.Errorf("shell: %w", err)
		}
		return runShell(fs, p, cmd.InOrStdin(), cmd.OutOrStdout())
	},
}

func runShell(fs *mount.FileSystem, p *proc.Process, in io.Reader, out io.Writer) error {
	scanner := bufio.NewScanner(in)
	fmt.Fprint(out, "tinyfs> ")
	for scanner.Scan() {
		fields := strings.Fields(scanner.Text())
		if len(fields) > 0 {
			if err := dispatch(fs, p, out, fields); err != nil {
				fmt.Fprintf(out, "error: %v\n", err)
			}
		}
		fmt.Fprint(out, "tinyfs> ")
	}
	fmt.Fprintln(out)
	return scanner.Err()
}

func dispatch(fs *mount.FileSystem, p *proc.Process, out io.Writer, fields []string) error {
	s := fs.Syscall
	switch fields[0] {
	case "ls":
		name := "."
		if len(fields) > 1 {
			name = fields[1]
		}
		entries, err := fs.ListDir(p, name)
		if err != nil {
			return err
		}
		for _, e := range entries {
			fmt.Fprintln(out, e.Name)
		}

	case "mkdir":
		if len(fields) != 2 {
			return fmt.Errorf("usage: mkdir <path>")
		}
		return s.Mkdir(p, fields[1])

	case "mknod":
		if len(fields) != 4 {
			return fmt.Errorf("usage: mknod <path> <major> <minor>")
		}
		major, err := strconv.Atoi(fields[2])
		if err != nil {
			return err
		}
		minor, err := strconv.Atoi(fields[3])
		if err != nil {
			return err
		}
		return s.Mknod(p, fields[1], uint16(major), uint16(minor))

	case "cd":
		if len(fields) != 2 {
			return fmt.Errorf("usage: cd <path>")
		}
		return s.Chdir(p, fields[1])

	case "ln":
		if len(fields) != 3 {
			return fmt.Errorf("usage: ln <oldpath> <newpath>")
		}
		return s.Link(p, fields[1], fields[2])

	case "rm":
		if len(fields) != 2 {
			return fmt.Errorf("usage: rm <path>")
		}
		return s.Unlink(p, fields[1])

	case "cat":
		if len(fields) != 2 {
			return fmt.Errorf("usage: cat <path>")
		}
		fd, err := s.Open(p, fields[1], fsyscall.ORdOnly)
		if err != nil {
			return err
		}
		defer closeQuiet(s, p, fd)
		buf := make([]byte, 512)
		for {
			n, err := s.Read(p, fd, buf)
			if n > 0 {
				out.Write(buf[:n])
			}
			if n == 0 || err != nil {
				return err
			}
		}

	case "write":
		if len(fields) < 3 {
			return fmt.Errorf("usage: write <path> <text...>")
		}
		fd, err := s.Open(p, fields[1], fsyscall.OCreate|fsyscall.OWrOnly)
		if err != nil {
			return err
		}
		defer closeQuiet(s, p, fd)
		text := strings.Join(fields[2:], " ") + "\n"
		_, err = s.Write(p, fd, []byte(text))
		return err

	case "touch":
		if len(fields) != 3 {
			return fmt.Errorf("usage: touch <prefix> <count>")
		}
		count, err := strconv.Atoi(fields[2])
		if err != nil {
			return err
		}
		return touchConcurrently(fs, p, fields[1], count)

	case "stat":
		if len(fields) != 2 {
			return fmt.Errorf("usage: stat <path>")
		}
		fd, err := s.Open(p, fields[1], fsyscall.ORdOnly)
		if err != nil {
			return err
		}
		defer closeQuiet(s, p, fd)
		st, err := s.Fstat(p, fd)
		if err != nil {
			return err
		}
		fmt.Fprintf(out, "inum=%d type=%d nlink=%d size=%d\n", st.Inum, st.Type, st.Nlink, st.Size)

	default:
		return fmt.Errorf("unknown command %q", fields[0])
	}
	return nil
}

// touchConcurrently creates count empty files named prefix0..prefixN-1,
// each from its own simulated process, fanning the work out across
// goroutines and joining with errgroup. It demonstrates that the
// syscall envelope's only shared serialization point is the
// crash-recovery log: independent processes may run open(O_CREATE)/close
// concurrently and still leave the disk consistent.
func touchConcurrently(fs *mount.FileSystem, root *proc.Process, prefix string, count int) error {
	var g errgroup.Group
	for i := 0; i < count; i++ {
		i := i
		g.Go(func() error {
			worker, err := fs.RootProcess()
			if err != nil {
				return fmt.Errorf("touch: worker %d: %w", i, err)
			}
			name := fmt.Sprintf("%s%d", prefix, i)
			fd, err := fs.Syscall.Open(worker, name, fsyscall.OCreate|fsyscall.OWrOnly)
			if err != nil {
				return fmt.Errorf("touch: worker %d: %w", i, err)
			}
			return fs.Syscall.Close(worker, fd)
		})
	}
	return g.Wait()
}

func closeQuiet(s *fsyscall.Server, p *proc.Process, fd int) {
	if err := s.Close(p, fd); err != nil {
		logger.Warnf("shell: close fd %d: %v", fd, err)
	}
}
