// Package cas implements the CAS Snapshotter: stable-JSON canonicalization,
// a SHA-256 digest, and a multicodec/multihash CID, with an optional
// filesystem-backed Store.
package cas

import (
	"context"
	"crypto/sha256"
	"encoding/base64"
	"fmt"
	"os"
	"path/filepath"

	"github.com/r3e-network/culture-arena/infrastructure/stablejson"
)

const (
	multicodecRaw     = 0x01
	multicodecDagJSON = 0x55
	multihashSHA256   = 0x12
	sha256Length      = 32
)

// Digest computes the canonical SHA-256 digest of v: stable-stringify then
// hash the UTF-8 bytes.
func Digest(v interface{}) ([32]byte, error) {
	canonical, err := stablejson.Marshal(v)
	if err != nil {
		return [32]byte{}, fmt.Errorf("cas: canonicalize: %w", err)
	}
	return sha256.Sum256(canonical), nil
}

// CID computes the content identifier for v: base64url of
// (multicodec=0x01 0x55, multihash=0x12 len digest), single "b" prefix.
func CID(v interface{}) (string, error) {
	digest, err := Digest(v)
	if err != nil {
		return "", err
	}
	return cidFromDigest(digest), nil
}

func cidFromDigest(digest [32]byte) string {
	buf := make([]byte, 0, 4+sha256Length)
	buf = append(buf, multicodecRaw, multicodecDagJSON, multihashSHA256, sha256Length)
	buf = append(buf, digest[:]...)
	return "b" + base64.RawURLEncoding.EncodeToString(buf)
}

// Store persists canonicalized snapshots, keyed by their CID.
type Store interface {
	Put(ctx context.Context, v interface{}) (cid string, err error)
	Get(ctx context.Context, cid string) ([]byte, error)
}

// LocalStore writes snapshots to ./<baseDir>/<cid>.json.
type LocalStore struct {
	baseDir string
}

// NewLocalStore returns a LocalStore rooted at baseDir, creating it if
// necessary.
func NewLocalStore(baseDir string) (*LocalStore, error) {
	if err := os.MkdirAll(baseDir, 0o755); err != nil {
		return nil, fmt.Errorf("cas: create snapshot dir: %w", err)
	}
	return &LocalStore{baseDir: baseDir}, nil
}

// Put implements Store.
func (s *LocalStore) Put(_ context.Context, v interface{}) (string, error) {
	canonical, err := stablejson.Marshal(v)
	if err != nil {
		return "", fmt.Errorf("cas: canonicalize: %w", err)
	}
	digest := sha256.Sum256(canonical)
	cid := cidFromDigest(digest)

	path := filepath.Join(s.baseDir, cid+".json")
	if _, err := os.Stat(path); err == nil {
		return cid, nil
	}
	if err := os.WriteFile(path, canonical, 0o644); err != nil {
		return "", fmt.Errorf("cas: write snapshot: %w", err)
	}
	return cid, nil
}

// Get implements Store.
func (s *LocalStore) Get(_ context.Context, cid string) ([]byte, error) {
	path := filepath.Join(s.baseDir, cid+".json")
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("cas: read snapshot: %w", err)
	}
	return data, nil
}

var _ Store = (*LocalStore)(nil)
