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
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestValidate_DefaultIsValid(t *testing.T) {
	c := Default()
	assert.NoError(t, Validate(&c))
}

func TestValidate_RejectsTooFewBlocks(t *testing.T) {
	c := Default()
	c.BlockCount = 2
	assert.Error(t, Validate(&c))
}

func TestValidate_RejectsBadSeverity(t *testing.T) {
	c := Default()
	c.Logging.Severity = "VERBOSE"
	assert.Error(t, Validate(&c))
}

func TestValidate_RejectsBadFormat(t *testing.T) {
	c := Default()
	c.Logging.Format = "xml"
	assert.Error(t, Validate(&c))
}

func TestValidate_RejectsEmptyDiskPath(t *testing.T) {
	c := Default()
	c.DiskPath = ""
	assert.Error(t, Validate(&c))
}

func TestValidate_RejectsZeroInodes(t *testing.T) {
	c := Default()
	c.InodeCount = 0
	assert.Error(t, Validate(&c))
}
