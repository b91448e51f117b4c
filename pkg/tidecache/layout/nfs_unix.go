// Copyright 2025 Oppie Thunder Contributors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

//go:build unix

package layout

import "golang.org/x/sys/unix"

// Filesystem type magic numbers for statfs(2), covering the common
// network filesystems worth detecting.
const (
	nfsSuperMagic = 0x6969
	smbSuperMagic = 0x517B
	ncpSuperMagic = 0x564c
)

// IsNetworkFilesystem probes dir with statfs(2) and reports whether it
// lives on a known network filesystem type. Best-effort: a probe error
// is treated as "not a network filesystem" rather than propagated.
func IsNetworkFilesystem(dir string) bool {
	var st unix.Statfs_t
	if err := unix.Statfs(dir, &st); err != nil {
		return false
	}
	switch int64(st.Type) {
	case nfsSuperMagic, smbSuperMagic, ncpSuperMagic:
		return true
	default:
		return false
	}
}
