package tfa

import (
	"crypto/md5" //nolint:gosec // matches the digests recorded by existing manifests
	"encoding/hex"
	"io"
)

// digest returns the lowercase hex MD5 of b.
func digest(b []byte) string {
	sum := md5.Sum(b) //nolint:gosec // content comparison, not security
	return hex.EncodeToString(sum[:])
}

// digestReader returns the lowercase hex MD5 of everything read from r.
func digestReader(r io.Reader) (string, error) {
	h := md5.New() //nolint:gosec // content comparison, not security
	if _, err := io.Copy(h, r); err != nil {
		return "", err
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}
