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

// Package flash implements a buffered-write engine for streaming a byte
// sequence into a flash memory device, honouring the device's write-block
// alignment, page size, and erase-before-write constraints.
package flash

// PageRegion describes one contiguous run of identically-sized erase
// blocks ("pages") reported by a flash device's layout.
type PageRegion struct {
	PagesCount int
	PageSize   int64
}

// DeviceInfo is the page layout and write granularity of a flash device.
type DeviceInfo struct {
	Regions        []PageRegion
	WriteBlockSize int64
}

// TotalSize sums PagesCount*PageSize across every region.
func (di DeviceInfo) TotalSize() int64 {
	var total int64
	for _, r := range di.Regions {
		total += int64(r.PagesCount) * r.PageSize
	}
	return total
}

// Device is the flash device contract the Streamer drives. Implementations
// are expected to be used serially by a single Streamer for the lifetime of
// a stream; concurrent access from other writers is the caller's concern.
type Device interface {
	// Info returns the device's page layout and write-block size.
	Info() (DeviceInfo, error)

	// Erase erases the whole page at [offset, offset+size). offset and
	// size must match a page boundary exactly.
	Erase(offset, size int64) error

	// Write writes len(p) bytes at offset. offset and len(p) must both be
	// write-block aligned.
	Write(offset int64, p []byte) error

	// Read reads len(p) bytes from offset into p.
	Read(offset int64, p []byte) error

	// PageInfo returns the start offset and size of the page containing
	// offset.
	PageInfo(offset int64) (start int64, size int64, err error)

	// SetWriteProtect enables or disables destructive operations
	// (Erase, Write). It is always called in enabled/disabled pairs
	// around a single Erase or Write call.
	SetWriteProtect(enabled bool) error
}

// VerifyFunc is invoked once per successful commit, with the staging
// buffer refilled by a verification read of the just-written region. A
// non-nil return aborts the commit; the engine surfaces it unchanged.
type VerifyFunc func(buf []byte, length int, absoluteOffset int64) error
