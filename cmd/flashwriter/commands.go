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

package main

import (
	"bytes"
	"context"
	"encoding/json"
	"hash/crc32"
	"io"
	"os"

	"github.com/natefinch/atomic"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
	"github.com/urfave/cli/v2"
	"golang.org/x/time/rate"

	"github.com/northern-tech/flashwriter/flash"
	"github.com/northern-tech/flashwriter/flashconf"
)

// readChunkSize is how much of the input file we read per Streamer.Write
// call; it is independent of (and usually larger than)
// the Streamer's own staging-buffer size, to show that callers are free
// to push arbitrary-sized chunks.
const readChunkSize = 64 * 1024

// progressReport is written atomically to --report, so a concurrent
// reader never observes a half-written file.
type progressReport struct {
	BytesWritten int64  `json:"BytesWritten"`
	Device       string `json:"Device"`
	Complete     bool   `json:"Complete"`
	Error        string `json:"Error,omitempty"`
}

func (r progressReport) writeTo(path string) error {
	if path == "" {
		return nil
	}
	data, err := json.MarshalIndent(r, "", "  ")
	if err != nil {
		return err
	}
	return atomic.WriteFile(path, bytes.NewReader(data))
}

var writeCommand = &cli.Command{
	Name:      "write",
	Usage:     "stream a file onto a flash device",
	ArgsUsage: "<input-file>",
	Flags: []cli.Flag{
		&cli.StringFlag{Name: "config", Required: true, Usage: "path to a device-stream profile"},
		&cli.BoolFlag{Name: "dry-run", Usage: "write to an in-memory device instead of real hardware"},
		&cli.StringFlag{Name: "report", Usage: "path to write a JSON progress report to"},
	},
	Action: func(c *cli.Context) error {
		if c.NArg() != 1 {
			return cli.Exit("expected exactly one input file argument", 1)
		}
		return runWrite(c, c.Args().First())
	},
}

func runWrite(c *cli.Context, inputPath string) error {
	profile, err := flashconf.Load(c.String("config"))
	if err != nil {
		return err
	}

	device, closeDevice, err := openDevice(profile, c.Bool("dry-run"))
	if err != nil {
		return err
	}
	defer closeDevice()

	opts := []flash.Option{}
	if profile.EraseOnCommit {
		opts = append(opts, flash.WithEraseOnCommit())
	}
	if profile.Verify {
		opts = append(opts, flash.WithVerify(logChecksum))
	}

	buf := make([]byte, profile.BufferSize)
	streamer, err := flash.New(device, buf, profile.BaseOffset, profile.Size, opts...)
	if err != nil {
		return errors.Wrap(err, "flashwriter: initialize stream")
	}

	var limiter *rate.Limiter
	if profile.MaxCommitsPerSecond > 0 {
		limiter = rate.NewLimiter(rate.Limit(profile.MaxCommitsPerSecond), 1)
	}

	input, err := os.Open(inputPath)
	if err != nil {
		return errors.Wrapf(err, "flashwriter: open %q", inputPath)
	}
	defer input.Close()

	report := progressReport{Device: profile.Device}

	chunk := make([]byte, readChunkSize)
	for {
		n, readErr := input.Read(chunk)
		if n > 0 {
			if limiter != nil {
				if werr := limiter.Wait(context.Background()); werr != nil {
					return werr
				}
			}
			if _, werr := streamer.Write(chunk[:n], false); werr != nil {
				report.Error = werr.Error()
				_ = report.writeTo(c.String("report"))
				return errors.Wrap(werr, "flashwriter: write")
			}
			report.BytesWritten = streamer.BytesWritten()
			_ = report.writeTo(c.String("report"))
		}
		if readErr == io.EOF {
			break
		}
		if readErr != nil {
			return errors.Wrapf(readErr, "flashwriter: read %q", inputPath)
		}
	}

	if err := streamer.Flush(); err != nil {
		report.Error = err.Error()
		_ = report.writeTo(c.String("report"))
		return errors.Wrap(err, "flashwriter: final flush")
	}

	report.BytesWritten = streamer.BytesWritten()
	report.Complete = true
	if err := report.writeTo(c.String("report")); err != nil {
		log.WithError(err).Warn("flashwriter: could not write progress report")
	}

	log.WithField("bytes", report.BytesWritten).Info("flashwriter: stream complete")
	return nil
}

// logChecksum is a minimal verification hook: it logs a CRC32 of each
// committed chunk so operators can cross-check against an independently
// computed checksum of the source file.
func logChecksum(buf []byte, length int, offset int64) error {
	sum := crc32.ChecksumIEEE(buf[:length])
	log.WithField("offset", offset).WithField("length", length).
		WithField("crc32", sum).Debug("flashwriter: verified commit")
	return nil
}

var infoCommand = &cli.Command{
	Name:  "info",
	Usage: "print a device's page layout and write-block size",
	Flags: []cli.Flag{
		&cli.StringFlag{Name: "device", Required: true, Usage: "MTD device path or index"},
	},
	Action: func(c *cli.Context) error {
		dev, err := flash.OpenMTDDevice(flash.MTDPath(c.String("device")))
		if err != nil {
			return err
		}
		defer dev.Close()

		info, err := dev.Info()
		if err != nil {
			return err
		}

		log.WithField("writeBlockSize", info.WriteBlockSize).
			WithField("totalSize", info.TotalSize()).
			WithField("regions", len(info.Regions)).Info("flashwriter: device info")
		for i, r := range info.Regions {
			log.WithField("region", i).WithField("pages", r.PagesCount).
				WithField("pageSize", r.PageSize).Info("flashwriter: region")
		}
		return nil
	},
}

var eraseCommand = &cli.Command{
	Name:  "erase",
	Usage: "erase the page containing an offset",
	Flags: []cli.Flag{
		&cli.StringFlag{Name: "device", Required: true, Usage: "MTD device path or index"},
		&cli.Int64Flag{Name: "offset", Required: true, Usage: "absolute device offset"},
	},
	Action: func(c *cli.Context) error {
		dev, err := flash.OpenMTDDevice(flash.MTDPath(c.String("device")))
		if err != nil {
			return err
		}
		defer dev.Close()

		start, size, err := dev.PageInfo(c.Int64("offset"))
		if err != nil {
			return err
		}
		if err := dev.SetWriteProtect(false); err != nil {
			return err
		}
		defer dev.SetWriteProtect(true)

		if err := dev.Erase(start, size); err != nil {
			return err
		}
		log.WithField("offset", start).WithField("size", size).Info("flashwriter: erased page")
		return nil
	},
}

// openDevice opens the real MTD device named by the profile, or an
// in-memory stand-in under --dry-run. The dry-run device uses a uniform
// 4096-byte page layout sized to comfortably cover the profile's stream;
// it exists to let operators rehearse a profile without touching
// hardware, not to model any particular real device.
func openDevice(profile *flashconf.StreamProfile, dryRun bool) (flash.Device, func() error, error) {
	if !dryRun {
		dev, err := flash.OpenMTDDevice(flash.MTDPath(profile.Device))
		if err != nil {
			return nil, nil, err
		}
		return dev, dev.Close, nil
	}

	const dryRunPageSize = 4096
	needed := profile.BaseOffset + profile.Size
	if profile.Size == 0 {
		needed = profile.BaseOffset + int64(profile.BufferSize)*16
	}
	pages := int(needed/dryRunPageSize) + 1

	dev := flash.NewMemDevice(flash.DeviceInfo{
		Regions:        []flash.PageRegion{{PagesCount: pages, PageSize: dryRunPageSize}},
		WriteBlockSize: 1,
	})
	return dev, func() error { return nil }, nil
}
