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

package flash

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestMTDPath(t *testing.T) {
	cases := map[string]string{
		"3":          "/dev/mtd3",
		"0":          "/dev/mtd0",
		"/dev/mtd5":  "/dev/mtd5",
		"/dev/mtd5a": "/dev/mtd5a",
		"not-a-path": "not-a-path",
	}
	for in, want := range cases {
		assert.Equal(t, want, MTDPath(in), "input %q", in)
	}
}

func TestDeviceInfoTotalSize(t *testing.T) {
	info := DeviceInfo{
		Regions: []PageRegion{
			{PagesCount: 16, PageSize: 4096},
			{PagesCount: 4, PageSize: 16384},
		},
	}
	assert.EqualValues(t, 16*4096+4*16384, info.TotalSize())
}
