/*
 * Copyright 2025 SREDiag Authors
 *
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *     http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

//go:build !windows

package signal

import (
	"errors"
	"os"

	"golang.org/x/sys/unix"
)

// openShared opens path for shared use. POSIX has no share modes, so this is
// a plain open.
func openShared(path string, flag int) (*os.File, error) {
	return os.OpenFile(path, flag, 0o644)
}

// isSharingViolation reports transient open failures. EINTR and EAGAIN are
// the closest POSIX analogues of a sharing violation.
func isSharingViolation(err error) bool {
	return errors.Is(err, unix.EINTR) || errors.Is(err, unix.EAGAIN)
}
