// Package compress provides payload compressors for crate serializers.
//
//	s := crate.New(json.New(), crate.WithCompressor(compress.Zstd()))
package compress

import (
	"bytes"
	"fmt"
	"io"

	"github.com/golang/snappy"
	"github.com/klauspost/compress/zstd"
	"github.com/pierrec/lz4/v4"
	"github.com/zoobzio/crate"
)

// zstd encoders and decoders are safe for concurrent use, so one pair
// serves every compressor.
var (
	zstdEncoder *zstd.Encoder
	zstdDecoder *zstd.Decoder
)

func init() {
	var err error
	zstdEncoder, err = zstd.NewWriter(nil,
		zstd.WithEncoderLevel(zstd.SpeedDefault),
		zstd.WithZeroFrames(true),
	)
	if err != nil {
		panic("compress: zstd encoder initialization failed: " + err.Error())
	}
	zstdDecoder, err = zstd.NewReader(nil)
	if err != nil {
		panic("compress: zstd decoder initialization failed: " + err.Error())
	}
}

// New returns the compressor for algo.
func New(algo crate.CompressAlgo) (crate.Compressor, error) {
	switch algo {
	case crate.CompressZstd:
		return Zstd(), nil
	case crate.CompressLZ4:
		return LZ4(), nil
	case crate.CompressSnappy:
		return Snappy(), nil
	}
	return nil, &crate.ConfigError{Err: crate.ErrUnknownAlgorithm, Algorithm: string(algo)}
}

type zstdCompressor struct{}

// Zstd returns a zstd compressor at the default level.
func Zstd() crate.Compressor { return zstdCompressor{} }

func (zstdCompressor) Name() crate.CompressAlgo { return crate.CompressZstd }

func (zstdCompressor) Compress(src []byte) ([]byte, error) {
	return zstdEncoder.EncodeAll(src, nil), nil
}

func (zstdCompressor) Decompress(src []byte) ([]byte, error) {
	out, err := zstdDecoder.DecodeAll(src, nil)
	if err != nil {
		return nil, fmt.Errorf("zstd decompress: %w", err)
	}
	return out, nil
}

type lz4Compressor struct{}

// LZ4 returns an LZ4 compressor using the frame format, which records
// the content size and a checksum.
func LZ4() crate.Compressor { return lz4Compressor{} }

func (lz4Compressor) Name() crate.CompressAlgo { return crate.CompressLZ4 }

func (lz4Compressor) Compress(src []byte) ([]byte, error) {
	var buf bytes.Buffer
	w := lz4.NewWriter(&buf)
	if _, err := w.Write(src); err != nil {
		return nil, fmt.Errorf("lz4 compress: %w", err)
	}
	// Close flushes the last block; the output is incomplete without it.
	if err := w.Close(); err != nil {
		return nil, fmt.Errorf("lz4 compress: %w", err)
	}
	return buf.Bytes(), nil
}

func (lz4Compressor) Decompress(src []byte) ([]byte, error) {
	out, err := io.ReadAll(lz4.NewReader(bytes.NewReader(src)))
	if err != nil {
		return nil, fmt.Errorf("lz4 decompress: %w", err)
	}
	return out, nil
}

type snappyCompressor struct{}

// Snappy returns a snappy block compressor.
func Snappy() crate.Compressor { return snappyCompressor{} }

func (snappyCompressor) Name() crate.CompressAlgo { return crate.CompressSnappy }

func (snappyCompressor) Compress(src []byte) ([]byte, error) {
	return snappy.Encode(nil, src), nil
}

func (snappyCompressor) Decompress(src []byte) ([]byte, error) {
	out, err := snappy.Decode(nil, src)
	if err != nil {
		return nil, fmt.Errorf("snappy decompress: %w", err)
	}
	return out, nil
}
