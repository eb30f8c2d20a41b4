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

// Package path is the path resolver: it walks a slash separated path one
// element at a time, starting from either the root or a supplied working
// directory, looking each element up through package dirent and
// descending through package inode. An over-long path element is
// silently truncated to DIRSIZ bytes rather than rejected, preserving
// that behavior rather than "fixing" it.
package path

import (
	"fmt"
	"strings"

	"github.com/GoogleCloudPlatform/tinyfs/content"
	"github.com/GoogleCloudPlatform/tinyfs/dirent"
	"github.com/GoogleCloudPlatform/tinyfs/inode"
	"github.com/GoogleCloudPlatform/tinyfs/params"
)

// Resolver walks paths against one device's inode table and content
// mapper.
type Resolver struct {
	inodes  *inode.Table
	content *content.Mapper
	dev     uint32
}

// New constructs a path Resolver bound to one device's inode table and
// content mapper.
func New(inodes *inode.Table, content *content.Mapper, dev uint32) *Resolver {
	return &Resolver{inodes: inodes, content: content, dev: dev}
}

// skipelem extracts the next path element from p, truncating it to at
// most DIRSIZ bytes if longer, and returns the element and the remainder
// of the path with leading slashes consumed. It returns ok == false once
// p is exhausted. Any number of interior slashes collapse to one
// separator.
func skipelem(p string) (elem, rest string, ok bool) {
	for len(p) > 0 && p[0] == '/' {
		p = p[1:]
	}
	if len(p) == 0 {
		return "", "", false
	}
	i := strings.IndexByte(p, '/')
	if i < 0 {
		elem, rest = p, ""
	} else {
		elem, rest = p[:i], p[i+1:]
	}
	if len(elem) > params.DIRSIZ {
		elem = elem[:params.DIRSIZ]
	}
	for len(rest) > 0 && rest[0] == '/' {
		rest = rest[1:]
	}
	return elem, rest, true
}

// namex is the shared walk behind Namei and NameiParent. nameiparent
// stops one element early and returns the parent directory plus the
// final element's (possibly truncated) name instead of resolving it.
func (r *Resolver) namex(p string, cwd *inode.Inode, nameiparent bool) (*inode.Inode, string, error) {
	var ip *inode.Inode
	if len(p) > 0 && p[0] == '/' {
		ip = r.inodes.Get(r.dev, params.RootIno)
	} else {
		ip = cwd.Dup()
	}

	rest := p
	for {
		elem, next, ok := skipelem(rest)
		if !ok {
			break
		}
		rest = next

		if err := ip.Lock(); err != nil {
			return nil, "", err
		}
		if ip.Type != params.TypeDir {
			ip.Unlock()
			if err := r.inodes.Put(ip); err != nil {
				return nil, "", err
			}
			return nil, "", fmt.Errorf("path: %q is not a directory", elem)
		}

		if nameiparent && rest == "" {
			ip.Unlock()
			return ip, elem, nil
		}

		childInum, _, found := dirent.Lookup(r.content, ip, elem)
		if !found {
			ip.Unlock()
			if err := r.inodes.Put(ip); err != nil {
				return nil, "", err
			}
			return nil, "", fmt.Errorf("path: %q: no such file or directory", elem)
		}
		child := r.inodes.Get(r.dev, childInum)
		ip.Unlock()
		if err := r.inodes.Put(ip); err != nil {
			return nil, "", err
		}
		ip = child
	}

	if nameiparent {
		if err := r.inodes.Put(ip); err != nil {
			return nil, "", err
		}
		return nil, "", fmt.Errorf("path: %q has no parent", p)
	}
	return ip, "", nil
}

// Namei resolves p to its inode, starting from cwd when p is relative.
// The returned inode is referenced but unlocked.
func (r *Resolver) Namei(p string, cwd *inode.Inode) (*inode.Inode, error) {
	ip, _, err := r.namex(p, cwd, false)
	return ip, err
}

// NameiParent resolves all but the last element of p, returning the
// parent directory inode (referenced, unlocked) and the final element's
// name (truncated to DIRSIZ bytes, per skipelem).
func (r *Resolver) NameiParent(p string, cwd *inode.Inode) (*inode.Inode, string, error) {
	return r.namex(p, cwd, true)
}
