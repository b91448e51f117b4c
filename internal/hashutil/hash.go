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

// Package hashutil computes the BLAKE3 digests used to derive cold-tier
// file names from cache keys. The algorithm is fixed to BLAKE3 rather
// than exposed as a config knob, since file-path derivation must stay
// consistent across a cache directory's lifetime.
package hashutil

import (
	"encoding/hex"

	"lukechampine.com/blake3"
)

// KeyHash16 returns the first 16 hex characters of the BLAKE3 digest of
// key, matching the "<dir>/data/<blake3(key)[:16]>.dat" cold-tier layout.
func KeyHash16(key string) string {
	sum := blake3.Sum256([]byte(key))
	return hex.EncodeToString(sum[:])[:16]
}

// KeyDigest returns the full 32-byte BLAKE3 digest, for use where a
// longer key is wanted to further reduce collision probability.
func KeyDigest(key string) [32]byte {
	return blake3.Sum256([]byte(key))
}
