// Copyright 2026 Northern.tech AS
//
//    Licensed under the Apache License, Version 2.0 (the "License");
//    you may not use this file except in compliance with the License.
//    You may obtain a copy of the License at
//
//        http://www.apache.org/licenses/LICENSE-2.0
//
//    Unless required by applicable law or agreed to in writing, software
//    distributed under the License is distributed on an "AS IS" BASIS,
//    WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
//    See the License for the specific language governing permissions and
//    limitations under the License.

package flashconf

import (
	"os"
	"path"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testProfile = `{
  // the staging MTD partition on this board
  "Device": "3",
  "BaseOffset": 65536,
  "Size": 0,
  "BufferSize": 512,
  "EraseOnCommit": true,
  "Verify": true,
  "MaxCommitsPerSecond": 50, // don't hammer the bus
}`

var testBrokenProfile = `{
  "Device": "3",
  "BufferSize": 0,
}`

func writeTempProfile(t *testing.T, contents string) string {
	t.Helper()
	dir := t.TempDir()
	p := path.Join(dir, "profile.hujson")
	require.NoError(t, os.WriteFile(p, []byte(contents), 0644))
	return p
}

func TestLoad(t *testing.T) {
	p := writeTempProfile(t, testProfile)

	profile, err := Load(p)
	require.NoError(t, err)

	assert.Equal(t, "3", profile.Device)
	assert.EqualValues(t, 65536, profile.BaseOffset)
	assert.EqualValues(t, 0, profile.Size)
	assert.Equal(t, 512, profile.BufferSize)
	assert.True(t, profile.EraseOnCommit)
	assert.True(t, profile.Verify)
	assert.Equal(t, 50.0, profile.MaxCommitsPerSecond)
}

func TestLoadInvalidProfile(t *testing.T) {
	p := writeTempProfile(t, testBrokenProfile)

	_, err := Load(p)
	assert.Error(t, err)
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(path.Join(t.TempDir(), "does-not-exist.hujson"))
	assert.Error(t, err)
}

func TestValidate(t *testing.T) {
	cases := []struct {
		name    string
		profile StreamProfile
		wantErr bool
	}{
		{"valid", StreamProfile{Device: "0", BufferSize: 512}, false},
		{"missing device", StreamProfile{BufferSize: 512}, true},
		{"zero buffer", StreamProfile{Device: "0"}, true},
		{"negative offset", StreamProfile{Device: "0", BufferSize: 512, BaseOffset: -1}, true},
		{"negative rate", StreamProfile{Device: "0", BufferSize: 512, MaxCommitsPerSecond: -1}, true},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			err := tc.profile.Validate()
			if tc.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}
