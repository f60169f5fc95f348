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
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
)

const noPageErased int64 = -1

// Streamer accumulates caller bytes into a RAM staging buffer and commits
// full buffers to a Device in aligned, page-bounded writes. It borrows its
// Device and staging buffer for the lifetime of the stream; it owns no
// resources of its own and requires no teardown.
//
// A Streamer is not safe for concurrent use; its caller is expected to
// serialize calls, and the underlying Device is assumed to be used
// serially by this Streamer for the duration of the stream.
type Streamer struct {
	device Device
	buf    []byte

	bufBytes   int
	baseOffset int64
	available  int64

	bytesWritten int64

	verify VerifyFunc

	eraseOnCommit       bool
	lastErasedPageStart int64
	committing          bool
}

// Option configures a Streamer at construction time.
type Option func(*Streamer)

// WithVerify installs a verification hook, invoked once per successful
// commit with the on-flash contents read back from the just-written
// region. A non-nil return aborts the commit.
func WithVerify(fn VerifyFunc) Option {
	return func(s *Streamer) { s.verify = fn }
}

// WithEraseOnCommit enables the erase policy: each commit erases the page
// containing the *next* commit's target offset (one page of lookahead), and
// EraseAdvance becomes usable. Without it, the engine assumes the target
// region is already erased.
func WithEraseOnCommit() Option {
	return func(s *Streamer) { s.eraseOnCommit = true }
}

// New initializes a Streamer writing into device starting at baseOffset,
// buffering commits in buf. size is the total byte budget for the stream,
// measured from baseOffset; a size of 0 means "use the rest of the
// device".
//
// New fails with ErrBadArgument if device or buf is nil, baseOffset is not
// a multiple of the device's write-block size, buf is larger than the
// smallest page reported by device, or baseOffset+size exceeds the
// device's total size.
func New(device Device, buf []byte, baseOffset, size int64, opts ...Option) (*Streamer, error) {
	if device == nil || len(buf) == 0 {
		return nil, ErrBadArgument
	}
	if baseOffset < 0 || size < 0 {
		return nil, ErrBadArgument
	}

	info, err := device.Info()
	if err != nil {
		return nil, errors.Wrap(err, "flash: query device info")
	}
	if info.WriteBlockSize <= 0 || baseOffset%info.WriteBlockSize != 0 {
		return nil, ErrBadArgument
	}
	for _, region := range info.Regions {
		if int64(len(buf)) > region.PageSize {
			return nil, ErrBadArgument
		}
	}

	total := info.TotalSize()
	if baseOffset > total {
		return nil, ErrBadArgument
	}

	var available int64
	if size == 0 {
		available = total - baseOffset
	} else {
		if baseOffset+size > total {
			return nil, ErrBadArgument
		}
		available = size
	}

	s := &Streamer{
		device:              device,
		buf:                 buf,
		baseOffset:          baseOffset,
		available:           available,
		lastErasedPageStart: noPageErased,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Write copies data into the staging buffer, committing it to flash every
// time the buffer fills to capacity. If flush is set, any bytes remaining
// in the staging buffer after data is consumed are committed too; an
// explicit flush of an already-empty buffer is a no-op.
//
// Write returns the number of bytes from data that were accepted into the
// Streamer (copied into the staging buffer or committed) before the first
// error, if any. A commit failure leaves bytes_written and the staging
// buffer's fill level exactly as they were before the commit was attempted.
func (s *Streamer) Write(data []byte, flush bool) (int, error) {
	if s == nil {
		return 0, ErrBadArgument
	}
	if s.committing {
		return 0, ErrReentrant
	}

	need := s.bytesWritten + int64(s.bufBytes) + int64(len(data))
	if need > s.available {
		return 0, ErrNoSpace
	}

	processed := 0
	for len(data)-processed >= len(s.buf)-s.bufBytes {
		free := len(s.buf) - s.bufBytes
		copy(s.buf[s.bufBytes:], data[processed:processed+free])
		s.bufBytes = len(s.buf)

		if err := s.commit(); err != nil {
			return processed + free, err
		}
		processed += free
	}

	if processed < len(data) {
		n := copy(s.buf[s.bufBytes:], data[processed:])
		s.bufBytes += n
		processed += n
	}

	if flush && s.bufBytes > 0 {
		if err := s.commit(); err != nil {
			return processed, err
		}
	}

	return processed, nil
}

// Flush commits whatever remains in the staging buffer. It is equivalent
// to Write(nil, true). Flushing a tail shorter than one write block is
// accepted without complaint; the engine does not reject it, matching the
// underlying driver's undefined behaviour for such writes. Callers must
// flush only at write-block-aligned totals.
func (s *Streamer) Flush() error {
	_, err := s.Write(nil, true)
	return err
}

// BytesWritten returns the number of bytes successfully committed to flash
// so far. It is a pure observer and never fails.
func (s *Streamer) BytesWritten() int64 {
	return s.bytesWritten
}

// EraseAdvance erases the page containing targetOffset, unless that page
// was already the most recently erased one for this stream (idempotent).
// It is only usable on a Streamer constructed with WithEraseOnCommit.
func (s *Streamer) EraseAdvance(targetOffset int64) error {
	if s == nil {
		return ErrBadArgument
	}
	if !s.eraseOnCommit {
		return ErrEraseDisabled
	}
	if s.committing {
		return ErrReentrant
	}
	return s.eraseAdvance(targetOffset)
}

// eraseAdvance is the un-guarded implementation shared by EraseAdvance and
// the pre-erase lookahead inside commit.
func (s *Streamer) eraseAdvance(targetOffset int64) error {
	start, size, err := s.device.PageInfo(targetOffset)
	if err != nil {
		return errors.Wrap(err, "flash: get page info")
	}
	if start == s.lastErasedPageStart {
		return nil
	}

	s.lastErasedPageStart = start
	log.WithField("offset", start).Info("flash: erasing page")

	err = s.withWriteProtectDisabled(func() error {
		return s.device.Erase(start, size)
	})
	if err != nil {
		log.WithField("offset", start).WithError(err).Error("flash: erase failed")
		return errors.Wrap(err, "flash: erase page")
	}
	return nil
}

// commit writes the current staging buffer to flash at its target offset,
// optionally pre-erasing the page that will host the *next* commit, and
// optionally verifying the write by reading it back and invoking the
// verification hook. On any failure it returns immediately, leaving
// bytesWritten and bufBytes unchanged.
func (s *Streamer) commit() error {
	s.committing = true
	defer func() { s.committing = false }()

	w := s.baseOffset + s.bytesWritten
	n := s.bufBytes

	if s.eraseOnCommit {
		// Erase the page containing w+n, where the *next* commit's data
		// begins. While w+n is still inside the page being written, that
		// is this same page (erased only if it is not the bookmarked
		// one); when w+n starts a new page, the page at w is not erased
		// here and is assumed already erased, either by a prior
		// lookahead or by the caller.
		if err := s.eraseAdvance(w + int64(n)); err != nil {
			return err
		}
	}

	err := s.withWriteProtectDisabled(func() error {
		return s.device.Write(w, s.buf[:n])
	})
	if err != nil {
		log.WithField("offset", w).WithError(err).Error("flash: write failed")
		return errors.Wrap(err, "flash: write")
	}

	if s.verify != nil {
		if err := s.device.Read(w, s.buf[:n]); err != nil {
			return errors.Wrap(err, "flash: verification read")
		}
		if err := s.verify(s.buf[:n], n, w); err != nil {
			// Hook errors are surfaced verbatim, per contract.
			return err
		}
	}

	log.WithField("offset", w).WithField("length", n).Info("flash: committed")

	s.bytesWritten += int64(n)
	s.bufBytes = 0
	return nil
}

// withWriteProtectDisabled disables write protection, runs fn, and
// re-enables write protection unconditionally, including when fn or the
// enable call itself fails.
func (s *Streamer) withWriteProtectDisabled(fn func() error) error {
	if err := s.device.SetWriteProtect(false); err != nil {
		return errors.Wrap(err, "flash: disable write protect")
	}

	err := fn()

	if perr := s.device.SetWriteProtect(true); perr != nil && err == nil {
		err = errors.Wrap(perr, "flash: re-enable write protect")
	}
	return err
}
