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

// Package flashconf loads a device-stream profile -- the parameters a
// flash.Streamer needs to drive one device -- from a JSON-with-comments
// file on disk.
package flashconf

import (
	"encoding/json"
	"os"

	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
	"github.com/tailscale/hujson"
)

// StreamProfile describes one flash.Streamer worth of configuration, as
// read from a profile file. Field names match the profile file's keys.
type StreamProfile struct {
	// Device is the MTD device path or bare index (see flash.MTDPath).
	Device string `json:"Device"`

	// BaseOffset is the absolute device offset the stream starts at.
	BaseOffset int64 `json:"BaseOffset"`

	// Size is the byte budget for the stream; 0 means "rest of device".
	Size int64 `json:"Size"`

	// BufferSize is the staging buffer's capacity in bytes.
	BufferSize int `json:"BufferSize"`

	// EraseOnCommit enables the auto-erase-ahead policy.
	EraseOnCommit bool `json:"EraseOnCommit"`

	// Verify enables a read-back verification hook on every commit.
	Verify bool `json:"Verify"`

	// MaxCommitsPerSecond limits how many Streamer.Write calls (one per
	// input chunk) the write command issues per second; a single call may
	// commit several staging buffers. 0 means unlimited.
	MaxCommitsPerSecond float64 `json:"MaxCommitsPerSecond"`
}

// Load reads and parses a profile file. The file may use JSON with `//`
// and `/* */` comments and trailing commas (JSONC, via hujson), which
// matters for a profile an operator is expected to hand-edit.
func Load(path string) (*StreamProfile, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrapf(err, "flashconf: read %q", path)
	}

	standardized, err := hujson.Standardize(raw)
	if err != nil {
		return nil, errors.Wrapf(err, "flashconf: %q is not valid JSONC", path)
	}

	var profile StreamProfile
	if err := json.Unmarshal(standardized, &profile); err != nil {
		return nil, errors.Wrapf(err, "flashconf: parse %q", path)
	}

	if err := profile.Validate(); err != nil {
		return nil, errors.Wrapf(err, "flashconf: %q", path)
	}

	log.WithField("path", path).WithField("device", profile.Device).
		Debug("flashconf: loaded stream profile")

	return &profile, nil
}

// Validate checks the profile for the errors that are cheap to catch
// before ever touching a device: flash.New will still reject anything
// that depends on the device's actual layout.
func (p *StreamProfile) Validate() error {
	if p.Device == "" {
		return errors.New("Device must be set")
	}
	if p.BufferSize <= 0 {
		return errors.New("BufferSize must be positive")
	}
	if p.BaseOffset < 0 || p.Size < 0 {
		return errors.New("BaseOffset and Size must not be negative")
	}
	if p.MaxCommitsPerSecond < 0 {
		return errors.New("MaxCommitsPerSecond must not be negative")
	}
	return nil
}
