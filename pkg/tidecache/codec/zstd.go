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
	"fmt"
	"sync"

	"github.com/klauspost/compress/zstd"
)

// ZstdCompressor is an optional stronger-ratio alternative to the default
// LZ4Compressor. Its encoder/decoder pair are long-lived and guarded by
// their own mutexes since neither is safe for concurrent use.
type ZstdCompressor struct {
	enc   *zstd.Encoder
	dec   *zstd.Decoder
	encMu sync.Mutex
	decMu sync.Mutex
}

// NewZstdCompressor builds a reusable encoder/decoder pair.
func NewZstdCompressor() (*ZstdCompressor, error) {
	enc, err := zstd.NewWriter(nil)
	if err != nil {
		return nil, fmt.Errorf("zstd encoder: %w", err)
	}
	dec, err := zstd.NewReader(nil)
	if err != nil {
		return nil, fmt.Errorf("zstd decoder: %w", err)
	}
	return &ZstdCompressor{enc: enc, dec: dec}, nil
}

func (z *ZstdCompressor) Name() string { return "zstd" }

func (z *ZstdCompressor) Compress(src []byte) ([]byte, error) {
	z.encMu.Lock()
	defer z.encMu.Unlock()
	return z.enc.EncodeAll(src, nil), nil
}

func (z *ZstdCompressor) Decompress(src []byte) ([]byte, error) {
	z.decMu.Lock()
	defer z.decMu.Unlock()
	out, err := z.dec.DecodeAll(src, nil)
	if err != nil {
		return nil, fmt.Errorf("zstd decompress: %w", err)
	}
	return out, nil
}
