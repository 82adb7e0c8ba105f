package utils

import (
	"crypto/md5"
	"encoding/hex"
	"hash"
	"io"
)

// ContentHash reads r to EOF and returns the MD5 digest of its bytes as a
// hex string, along with the number of bytes read.
func ContentHash(r io.Reader) (string, int64, error) {
	h := md5.New()
	n, err := io.Copy(h, r)
	if err != nil {
		return "", n, err
	}
	return hex.EncodeToString(h.Sum(nil)), n, nil
}

// HashingReader wraps an io.Reader and computes an MD5 digest of everything
// read through it. Sum is only meaningful after the reader hits EOF.
type HashingReader struct {
	r io.Reader
	h hash.Hash
	n int64
}

func NewHashingReader(r io.Reader) *HashingReader {
	h := md5.New()
	return &HashingReader{
		r: io.TeeReader(r, h),
		h: h,
	}
}

func (hr *HashingReader) Read(p []byte) (int, error) {
	n, err := hr.r.Read(p)
	hr.n += int64(n)
	return n, err
}

// Sum returns the hex digest of all bytes read so far.
func (hr *HashingReader) Sum() string {
	return hex.EncodeToString(hr.h.Sum(nil))
}

// BytesRead returns the number of bytes consumed through the reader.
func (hr *HashingReader) BytesRead() int64 {
	return hr.n
}
