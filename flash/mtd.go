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
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
	"unsafe"

	"github.com/pkg/errors"
	"github.com/ungerik/go-sysfs"
	"golang.org/x/sys/unix"
)

// MTD ioctl request numbers, from <mtd/mtd-abi.h>. They are not exposed by
// golang.org/x/sys/unix, so (as the teacher does for its own UBI/block
// ioctls in system/ioctl.go) we define the magic numbers directly.
const (
	memGetInfo        = 0x80204d01 // MEMGETINFO
	memErase          = 0x40084d02 // MEMERASE
	memUnlock         = 0x40084d06 // MEMUNLOCK
	memLock           = 0x40084d05 // MEMLOCK
	memGetRegionCount = 0x80044d07 // MEMGETREGIONCOUNT
	memGetRegionInfo  = 0xc0104d08 // MEMGETREGIONINFO
)

// ErrNotLockable names the case of an MTD driver with no locking scheme
// (common for raw NAND without a hardware lock register). SetWriteProtect
// does not return it: it reports success when the lock ioctls fail with
// EOPNOTSUPP or ENOTTY.
var ErrNotLockable = errors.New("flash: mtd device has no lock scheme")

type mtdInfo struct {
	Type      uint8
	Flags     uint32
	Size      uint32
	Erasesize uint32
	Writesize uint32
	Oobsize   uint32
	_         uint64 // padding; brings the struct to the 32 bytes MEMGETINFO encodes
}

type eraseInfoUser struct {
	Start  uint32
	Length uint32
}

type regionInfoUser struct {
	Offset      uint32
	Erasesize   uint32
	Numblocks   uint32
	Regionindex uint32
}

// MTDDevice drives a Linux MTD character device (/dev/mtdN) through its
// ioctl interface. Page-layout enumeration walks the region-info ioctls,
// using MEMGETINFO's single erase size when they report no regions, and
// the device's /sys/class/mtd/mtdN sysfs attributes when that erase size
// is 0 as well -- the same ioctl-with-sysfs-
// fallback shape the teacher uses for UBI block devices.
type MTDDevice struct {
	Path string
	f    *os.File
}

// OpenMTDDevice opens the MTD character device at path for reading and
// writing.
func OpenMTDDevice(path string) (*MTDDevice, error) {
	f, err := os.OpenFile(path, os.O_RDWR, 0)
	if err != nil {
		return nil, errors.Wrapf(err, "flash: open mtd device %q", path)
	}
	return &MTDDevice{Path: path, f: f}, nil
}

// Close closes the underlying device file.
func (m *MTDDevice) Close() error {
	return m.f.Close()
}

func (m *MTDDevice) Info() (DeviceInfo, error) {
	var info mtdInfo
	if err := ioctl(m.f.Fd(), memGetInfo, unsafe.Pointer(&info)); err != nil {
		return DeviceInfo{}, errors.Wrap(err, "flash: MEMGETINFO")
	}

	regions, err := m.regions(info)
	if err != nil {
		return DeviceInfo{}, err
	}

	return DeviceInfo{
		Regions:        regions,
		WriteBlockSize: int64(info.Writesize),
	}, nil
}

// regions returns the device's page layout, one PageRegion per uniform
// erase-size run. Most MTD devices report a single uniform erase size, in
// which case this degenerates to one region covering the whole device.
func (m *MTDDevice) regions(info mtdInfo) ([]PageRegion, error) {
	var count uint32
	if err := ioctl(m.f.Fd(), memGetRegionCount, unsafe.Pointer(&count)); err != nil || count == 0 {
		if info.Erasesize == 0 {
			return m.regionsFromSysfs()
		}
		pages := int64(info.Size) / int64(info.Erasesize)
		return []PageRegion{{PagesCount: int(pages), PageSize: int64(info.Erasesize)}}, nil
	}

	regions := make([]PageRegion, 0, count)
	for i := uint32(0); i < count; i++ {
		var ri regionInfoUser
		ri.Regionindex = i
		if err := ioctl(m.f.Fd(), memGetRegionInfo, unsafe.Pointer(&ri)); err != nil {
			return nil, errors.Wrap(err, "flash: MEMGETREGIONINFO")
		}
		regions = append(regions, PageRegion{
			PagesCount: int(ri.Numblocks),
			PageSize:   int64(ri.Erasesize),
		})
	}
	return regions, nil
}

// regionsFromSysfs is the fallback path used when MEMGETREGIONCOUNT fails or
// reports no regions and MEMGETINFO reports an erase size of 0, mirroring the teacher's
// system/ioctl.go UBI sysfs fallback for size/sector-size queries.
func (m *MTDDevice) regionsFromSysfs() ([]PageRegion, error) {
	dev := filepath.Base(m.Path)
	obj := sysfs.Class.Object("mtd").SubObject(dev)

	size := obj.Attribute("size")
	erasesize := obj.Attribute("erasesize")
	if !size.Exists() || !erasesize.Exists() {
		return nil, errors.New("flash: mtd device has no region-info and no sysfs fallback")
	}

	sz, err := size.ReadUint64()
	if err != nil {
		return nil, errors.Wrap(err, "flash: read mtd size from sysfs")
	}
	esz, err := erasesize.ReadUint64()
	if err != nil {
		return nil, errors.Wrap(err, "flash: read mtd erasesize from sysfs")
	}
	if esz == 0 {
		return nil, errors.New("flash: mtd erasesize is zero")
	}

	return []PageRegion{{PagesCount: int(sz / esz), PageSize: int64(esz)}}, nil
}

func (m *MTDDevice) Erase(offset, size int64) error {
	ei := eraseInfoUser{Start: uint32(offset), Length: uint32(size)}
	if err := ioctl(m.f.Fd(), memErase, unsafe.Pointer(&ei)); err != nil {
		return errors.Wrapf(err, "flash: MEMERASE at 0x%x", offset)
	}
	return nil
}

func (m *MTDDevice) Write(offset int64, p []byte) error {
	if _, err := m.f.Seek(offset, 0); err != nil {
		return errors.Wrap(err, "flash: seek for write")
	}
	if _, err := m.f.Write(p); err != nil {
		return errors.Wrapf(err, "flash: write at 0x%x", offset)
	}
	return nil
}

func (m *MTDDevice) Read(offset int64, p []byte) error {
	if _, err := m.f.Seek(offset, 0); err != nil {
		return errors.Wrap(err, "flash: seek for read")
	}
	if _, err := m.f.Read(p); err != nil {
		return errors.Wrapf(err, "flash: read at 0x%x", offset)
	}
	return nil
}

func (m *MTDDevice) PageInfo(offset int64) (int64, int64, error) {
	info, err := m.Info()
	if err != nil {
		return 0, 0, err
	}
	var base int64
	for _, region := range info.Regions {
		regionSize := int64(region.PagesCount) * region.PageSize
		if offset >= base && offset < base+regionSize {
			pageIdx := (offset - base) / region.PageSize
			return base + pageIdx*region.PageSize, region.PageSize, nil
		}
		base += regionSize
	}
	return 0, 0, errors.Errorf("flash: offset 0x%x outside mtd device", offset)
}

func (m *MTDDevice) SetWriteProtect(enabled bool) error {
	req := uintptr(memUnlock)
	if enabled {
		req = memLock
	}

	ei := eraseInfoUser{Start: 0, Length: 0}
	err := ioctl(m.f.Fd(), req, unsafe.Pointer(&ei))
	if err == syscall.EOPNOTSUPP || err == syscall.ENOTTY {
		// Many raw NAND/NOR parts have no lock scheme at all; treat
		// that as "already unprotected" rather than a hard failure.
		return nil
	}
	return err
}

// ioctl issues a raw ioctl(2) against fd, the way the teacher's
// system/ioctl.go issues its block-device and UBI ioctls: directly via
// unix.Syscall, since the MTD requests involved aren't exposed by
// golang.org/x/sys/unix's typed helpers.
func ioctl(fd uintptr, request uintptr, arg unsafe.Pointer) error {
	_, _, errno := unix.Syscall(unix.SYS_IOCTL, fd, request, uintptr(arg))
	if errno != 0 {
		return errno
	}
	return nil
}

// MTDPath turns a bare MTD index ("3") into its device path
// ("/dev/mtd3"); a value that already looks like a path is returned
// unchanged. This lets CLI users write --device 3 instead of spelling out
// /dev/mtd3.
func MTDPath(s string) string {
	if strings.HasPrefix(s, "/") {
		return s
	}
	if _, err := strconv.Atoi(s); err != nil {
		return s
	}
	return fmt.Sprintf("/dev/mtd%s", s)
}
