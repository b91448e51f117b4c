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

//go:build !unix

package layout

// IsNetworkFilesystem has no POSIX statfs to probe on this platform.
// A Windows build could instead query GetDriveType via the Win32
// API; no pack example wires a Windows-specific syscall wrapper for
// that call, so non-unix builds conservatively report "not network"
// and rely on explicit configuration (UseAtomicWrites=false,
// UseFileLocking=true) when the operator knows the directory is a
// network share.
func IsNetworkFilesystem(dir string) bool {
	return false
}
