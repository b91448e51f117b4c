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

package codec

import (
	"encoding/binary"
	"fmt"

	"github.com/pierrec/lz4/v4"
)

// LZ4Compressor is the default fast-decode-dominant codec, using the
// common length-prefixed LZ4 block convention: a 4-byte little-endian
// uncompressed length is prepended to the LZ4 block so the decoder can
// size its destination buffer without a separate frame header.
type LZ4Compressor struct{}

func (LZ4Compressor) Name() string { return "lz4" }

func (LZ4Compressor) Compress(src []byte) ([]byte, error) {
	bound := lz4.CompressBlockBound(len(src))
	dst := make([]byte, 4+bound)
	binary.LittleEndian.PutUint32(dst[:4], uint32(len(src)))

	var c lz4.Compressor
	n, err := c.CompressBlock(src, dst[4:])
	if err != nil {
		return nil, fmt.Errorf("lz4 compress: %w", err)
	}
	if n == 0 {
		// Incompressible input; lz4 reports this rather than erroring.
		return nil, fmt.Errorf("lz4 compress: incompressible input")
	}
	return dst[:4+n], nil
}

func (LZ4Compressor) Decompress(src []byte) ([]byte, error) {
	if len(src) < 4 {
		return nil, fmt.Errorf("lz4 decompress: truncated frame")
	}
	size := binary.LittleEndian.Uint32(src[:4])
	dst := make([]byte, size)
	n, err := lz4.UncompressBlock(src[4:], dst)
	if err != nil {
		return nil, fmt.Errorf("lz4 decompress: %w", err)
	}
	return dst[:n], nil
}
