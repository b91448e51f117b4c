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

// Package codec serializes entry envelopes to a compact on-disk form and
// compresses payloads when it is worthwhile.
package codec

import (
	"bytes"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"io"
	"sort"

	"github.com/oppie-vault/tidecache/pkg/tidecache/entry"
)

// Format selects the envelope framing. Binary is the default for disk;
// JSON is selectable via configuration.
type Format int

const (
	Binary Format = iota
	JSON
)

// Compressor compresses/decompresses a payload. Implementations must
// round-trip exactly: Decompress(Compress(p)) == p.
type Compressor interface {
	Name() string
	Compress(src []byte) ([]byte, error)
	Decompress(src []byte) ([]byte, error)
}

// Codec encodes/decodes entry envelopes and decides
// whether a payload is worth compressing: only when it meets the
// configured threshold AND the compressed form is smaller than 90% of
// the input.
type Codec struct {
	format     Format
	compressor Compressor // nil means compression disabled
	threshold  int
}

// Option configures a Codec.
type Option func(*Codec)

// WithFormat selects the envelope framing.
func WithFormat(f Format) Option {
	return func(c *Codec) { c.format = f }
}

// WithCompressor sets the compression algorithm. A nil compressor
// disables compression entirely (Config.Compression == None).
func WithCompressor(comp Compressor) Option {
	return func(c *Codec) { c.compressor = comp }
}

// WithThreshold sets the minimum payload size, in bytes, eligible for
// compression. Default 1 KiB.
func WithThreshold(n int) Option {
	return func(c *Codec) { c.threshold = n }
}

// New constructs a Codec with the given options.
func New(opts ...Option) *Codec {
	c := &Codec{
		format:    Binary,
		threshold: 1024,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// EncodeEnvelope serializes e to its on-disk representation. It returns
// the encoded bytes and whether the payload portion was compressed (the
// caller persists that bit alongside the file, matching the on-disk file
// info "compressed" field).
func (c *Codec) EncodeEnvelope(e *entry.Entry) (data []byte, compressed bool, err error) {
	payload := e.Payload
	compressed = false

	if c.compressor != nil && len(payload) >= c.threshold {
		comp, cerr := c.compressor.Compress(payload)
		if cerr == nil && len(comp) < len(payload)*9/10 {
			payload = comp
			compressed = true
		}
	}

	switch c.format {
	case JSON:
		data, err = c.encodeJSON(e, payload, compressed)
	default:
		data, err = c.encodeBinary(e, payload, compressed)
	}
	return data, compressed, err
}

// DecodeEnvelope reverses EncodeEnvelope. compressed must match what
// EncodeEnvelope returned (it is persisted out-of-band in FileInfo).
func (c *Codec) DecodeEnvelope(data []byte, compressed bool) (*entry.Entry, error) {
	var (
		e   *entry.Entry
		err error
	)
	switch c.format {
	case JSON:
		e, err = c.decodeJSON(data)
	default:
		e, err = c.decodeBinary(data)
	}
	if err != nil {
		return nil, err
	}
	if compressed {
		if c.compressor == nil {
			return nil, fmt.Errorf("%w: entry marked compressed but no compressor configured", ErrDeserialization)
		}
		raw, derr := c.compressor.Decompress(e.Payload)
		if derr != nil {
			return nil, fmt.Errorf("%w: %v", ErrDeserialization, derr)
		}
		e.Payload = raw
		e.Size = int64(len(raw))
	}
	return e, nil
}

// --- binary framing ---
//
// magic(4) version(1) flags(1) createdAt(8) accessedAt(8) accessCount(8)
// hasExpire(1) expireTime(8) keyLen(4) key payloadLen(4) payload
// tagCount(4) [tagLen(4) tag]...

var binaryMagic = [4]byte{'T', 'D', 'C', '1'}

const binaryVersion = 1

func (c *Codec) encodeBinary(e *entry.Entry, payload []byte, compressed bool) ([]byte, error) {
	buf := &bytes.Buffer{}
	buf.Write(binaryMagic[:])
	buf.WriteByte(binaryVersion)

	var flags byte
	if compressed {
		flags |= 0x1
	}
	buf.WriteByte(flags)

	_ = binary.Write(buf, binary.LittleEndian, e.CreatedAt)
	_ = binary.Write(buf, binary.LittleEndian, e.AccessedAt)
	_ = binary.Write(buf, binary.LittleEndian, e.AccessCount)

	if e.ExpireTime != nil {
		buf.WriteByte(1)
		_ = binary.Write(buf, binary.LittleEndian, *e.ExpireTime)
	} else {
		buf.WriteByte(0)
		_ = binary.Write(buf, binary.LittleEndian, int64(0))
	}

	writeBytes(buf, []byte(e.Key))
	writeBytes(buf, payload)

	tags := e.TagSlice()
	sort.Strings(tags)
	_ = binary.Write(buf, binary.LittleEndian, uint32(len(tags)))
	for _, t := range tags {
		writeBytes(buf, []byte(t))
	}

	return buf.Bytes(), nil
}

func (c *Codec) decodeBinary(data []byte) (*entry.Entry, error) {
	r := bytes.NewReader(data)

	var magic [4]byte
	if _, err := io.ReadFull(r, magic[:]); err != nil {
		return nil, fmt.Errorf("%w: short header: %v", ErrDeserialization, err)
	}
	if magic != binaryMagic {
		return nil, fmt.Errorf("%w: bad magic", ErrDeserialization)
	}
	version, err := r.ReadByte()
	if err != nil || version != binaryVersion {
		return nil, fmt.Errorf("%w: unsupported version", ErrDeserialization)
	}
	flags, err := r.ReadByte()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDeserialization, err)
	}
	_ = flags // compression bit is carried out-of-band via FileInfo; kept for forward-compat

	e := &entry.Entry{Tags: map[string]struct{}{}}
	if err := binary.Read(r, binary.LittleEndian, &e.CreatedAt); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDeserialization, err)
	}
	if err := binary.Read(r, binary.LittleEndian, &e.AccessedAt); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDeserialization, err)
	}
	if err := binary.Read(r, binary.LittleEndian, &e.AccessCount); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDeserialization, err)
	}

	hasExpire, err := r.ReadByte()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDeserialization, err)
	}
	var expire int64
	if err := binary.Read(r, binary.LittleEndian, &expire); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDeserialization, err)
	}
	if hasExpire == 1 {
		e.ExpireTime = &expire
	}

	key, err := readBytes(r)
	if err != nil {
		return nil, fmt.Errorf("%w: key: %v", ErrDeserialization, err)
	}
	e.Key = string(key)

	payload, err := readBytes(r)
	if err != nil {
		return nil, fmt.Errorf("%w: payload: %v", ErrDeserialization, err)
	}
	e.Payload = payload
	e.Size = int64(len(payload))

	var tagCount uint32
	if err := binary.Read(r, binary.LittleEndian, &tagCount); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDeserialization, err)
	}
	for i := uint32(0); i < tagCount; i++ {
		tag, err := readBytes(r)
		if err != nil {
			return nil, fmt.Errorf("%w: tag: %v", ErrDeserialization, err)
		}
		e.Tags[string(tag)] = struct{}{}
	}

	return e, nil
}

func writeBytes(buf *bytes.Buffer, b []byte) {
	_ = binary.Write(buf, binary.LittleEndian, uint32(len(b)))
	buf.Write(b)
}

func readBytes(r *bytes.Reader) ([]byte, error) {
	var n uint32
	if err := binary.Read(r, binary.LittleEndian, &n); err != nil {
		return nil, err
	}
	out := make([]byte, n)
	if n > 0 {
		if _, err := io.ReadFull(r, out); err != nil {
			return nil, err
		}
	}
	return out, nil
}

// --- JSON framing ---

type jsonEnvelope struct {
	Key         string   `json:"key"`
	Payload     []byte   `json:"payload"`
	CreatedAt   int64    `json:"created_at"`
	AccessedAt  int64    `json:"accessed_at"`
	AccessCount uint64   `json:"access_count"`
	Tags        []string `json:"tags"`
	ExpireTime  *int64   `json:"expire_time,omitempty"`
}

func (c *Codec) encodeJSON(e *entry.Entry, payload []byte, _ bool) ([]byte, error) {
	tags := e.TagSlice()
	sort.Strings(tags)
	je := jsonEnvelope{
		Key:         e.Key,
		Payload:     payload,
		CreatedAt:   e.CreatedAt,
		AccessedAt:  e.AccessedAt,
		AccessCount: e.AccessCount,
		Tags:        tags,
		ExpireTime:  e.ExpireTime,
	}
	data, err := json.Marshal(je)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrSerialization, err)
	}
	return data, nil
}

func (c *Codec) decodeJSON(data []byte) (*entry.Entry, error) {
	var je jsonEnvelope
	if err := json.Unmarshal(data, &je); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDeserialization, err)
	}
	e := &entry.Entry{
		Key:         je.Key,
		Payload:     je.Payload,
		CreatedAt:   je.CreatedAt,
		AccessedAt:  je.AccessedAt,
		AccessCount: je.AccessCount,
		Size:        int64(len(je.Payload)),
		Tags:        make(map[string]struct{}, len(je.Tags)),
		ExpireTime:  je.ExpireTime,
	}
	for _, t := range je.Tags {
		e.Tags[t] = struct{}{}
	}
	return e, nil
}
