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

var (
	// ErrBadArgument is returned when a required reference is missing,
	// an offset alignment is violated, or the staging buffer does not
	// fit within the smallest reported page.
	ErrBadArgument = errors.New("flash: bad argument")

	// ErrNoSpace is returned when a write would exceed the byte budget
	// granted to the stream at init time.
	ErrNoSpace = errors.New("flash: stream would exceed available space")

	// ErrReentrant is returned if a verification hook calls back into
	// the Streamer while a commit is in flight.
	ErrReentrant = errors.New("flash: re-entrant call during commit")

	// ErrEraseDisabled is returned by EraseAdvance when the Streamer was
	// not constructed with WithEraseOnCommit.
	ErrEraseDisabled = errors.New("flash: erase policy not enabled for this stream")
)
