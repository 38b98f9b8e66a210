package storage

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"
)

// FSStore is a local filesystem object store. Presigned URLs are
// HMAC-signed paths served back through the HTTP transport.
type FSStore struct {
	dir     string
	baseURL string
	secret  []byte
}

var _ ObjectStore = (*FSStore)(nil)

// NewFSStore creates a filesystem store rooted at dir.
func NewFSStore(dir, baseURL, secret string) (*FSStore, error) {
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return nil, fmt.Errorf("create storage dir: %w", err)
	}
	return &FSStore{dir: dir, baseURL: strings.TrimRight(baseURL, "/"), secret: []byte(secret)}, nil
}

// Get reads an object by key.
func (s *FSStore) Get(_ context.Context, key string) ([]byte, error) {
	path, err := s.path(key)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, ErrObjectNotFound
		}
		return nil, fmt.Errorf("read object %s: %w", key, err)
	}
	return data, nil
}

// Put writes an object. The content type is recorded in a sidecar file so
// the transport can serve it back correctly.
func (s *FSStore) Put(_ context.Context, key string, data []byte, contentType string) error {
	path, err := s.path(key)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil {
		return fmt.Errorf("create object dir: %w", err)
	}
	if err := os.WriteFile(path, data, 0o640); err != nil {
		return fmt.Errorf("write object %s: %w", key, err)
	}
	if contentType != "" {
		if err := os.WriteFile(path+".type", []byte(contentType), 0o640); err != nil {
			return fmt.Errorf("write object type %s: %w", key, err)
		}
	}
	return nil
}

// ContentType returns the recorded content type, or empty if unknown.
func (s *FSStore) ContentType(key string) string {
	path, err := s.path(key)
	if err != nil {
		return ""
	}
	data, err := os.ReadFile(path + ".type")
	if err != nil {
		return ""
	}
	return string(data)
}

// PresignedURL returns a URL valid until now+ttl, signed with the store secret.
func (s *FSStore) PresignedURL(key string, ttl time.Duration) (string, error) {
	if _, err := s.path(key); err != nil {
		return "", err
	}
	exp := time.Now().Add(ttl).Unix()
	sig := s.sign(key, exp)
	return fmt.Sprintf("%s/v1/blobs/%s?exp=%d&sig=%s", s.baseURL, url.PathEscape(key), exp, sig), nil
}

// Verify checks a presigned URL's expiry and signature.
func (s *FSStore) Verify(key string, exp int64, sig string) bool {
	if time.Now().Unix() > exp {
		return false
	}
	expected := s.sign(key, exp)
	return hmac.Equal([]byte(expected), []byte(sig))
}

func (s *FSStore) sign(key string, exp int64) string {
	mac := hmac.New(sha256.New, s.secret)
	mac.Write([]byte(key + "|" + strconv.FormatInt(exp, 10)))
	return hex.EncodeToString(mac.Sum(nil))
}

// path maps a key to a filesystem path, rejecting traversal.
func (s *FSStore) path(key string) (string, error) {
	if key == "" {
		return "", errors.New("storage key is required")
	}
	clean := filepath.Clean(key)
	if strings.HasPrefix(clean, "..") || filepath.IsAbs(clean) {
		return "", fmt.Errorf("invalid storage key %q", key)
	}
	return filepath.Join(s.dir, clean), nil
}
