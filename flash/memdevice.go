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

import "github.com/pkg/errors"

// MemDevice is an in-RAM Device, useful for tests and for driving a
// Streamer without touching real hardware (e.g. a CLI's --dry-run mode).
// Erased bytes read back as EraseByte (0xFF by default, matching the
// erased state of most NOR/NAND flash).
type MemDevice struct {
	Info_       DeviceInfo
	EraseByte   byte
	EraseCount  int
	data        []byte
	writeLocked bool
}

// NewMemDevice creates a MemDevice of the given page layout and
// write-block size, with its entire backing store in the erased state.
func NewMemDevice(info DeviceInfo) *MemDevice {
	d := &MemDevice{
		Info_:     info,
		EraseByte: 0xFF,
	}
	d.data = make([]byte, info.TotalSize())
	for i := range d.data {
		d.data[i] = d.EraseByte
	}
	return d
}

func (d *MemDevice) Info() (DeviceInfo, error) {
	return d.Info_, nil
}

func (d *MemDevice) Erase(offset, size int64) error {
	if d.writeLocked {
		return errors.New("memdevice: write protection enabled")
	}
	if offset < 0 || size < 0 || offset+size > int64(len(d.data)) {
		return errors.New("memdevice: erase out of range")
	}
	for i := offset; i < offset+size; i++ {
		d.data[i] = d.EraseByte
	}
	d.EraseCount++
	return nil
}

func (d *MemDevice) Write(offset int64, p []byte) error {
	if d.writeLocked {
		return errors.New("memdevice: write protection enabled")
	}
	if offset < 0 || offset+int64(len(p)) > int64(len(d.data)) {
		return errors.New("memdevice: write out of range")
	}
	copy(d.data[offset:], p)
	return nil
}

func (d *MemDevice) Read(offset int64, p []byte) error {
	if offset < 0 || offset+int64(len(p)) > int64(len(d.data)) {
		return errors.New("memdevice: read out of range")
	}
	copy(p, d.data[offset:offset+int64(len(p))])
	return nil
}

func (d *MemDevice) PageInfo(offset int64) (start int64, size int64, err error) {
	var base int64
	for _, region := range d.Info_.Regions {
		regionSize := int64(region.PagesCount) * region.PageSize
		if offset >= base && offset < base+regionSize {
			pageIdx := (offset - base) / region.PageSize
			return base + pageIdx*region.PageSize, region.PageSize, nil
		}
		base += regionSize
	}
	return 0, 0, errors.New("memdevice: offset outside device")
}

func (d *MemDevice) SetWriteProtect(enabled bool) error {
	d.writeLocked = enabled
	return nil
}

// Bytes returns the device's current backing store, for test assertions.
func (d *MemDevice) Bytes() []byte {
	return d.data
}
