package database

import (
	"encoding/binary"
	"errors"
	"math"
)

// ErrBlobLength is returned for vector blobs whose length is not a multiple of 4.
var ErrBlobLength = errors.New("embedding blob length is not a multiple of 4")

// EncodeVector packs v as little-endian float32 values, the column format
// of the SQL backends without a native vector type.
func EncodeVector(v []float32) []byte {
	buf := make([]byte, 4*len(v))
	for i, f := range v {
		binary.LittleEndian.PutUint32(buf[4*i:], math.Float32bits(f))
	}
	return buf
}

// DecodeVector unpacks a blob written by EncodeVector.
func DecodeVector(b []byte) ([]float32, error) {
	if len(b)%4 != 0 {
		return nil, ErrBlobLength
	}
	v := make([]float32, len(b)/4)
	for i := range v {
		v[i] = math.Float32frombits(binary.LittleEndian.Uint32(b[4*i:]))
	}
	return v, nil
}
