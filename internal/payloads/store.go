// Package payloads persists payload bodies in content-addressed object
// storage so that executions and redrives reference an immutable body.
package payloads

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/nimbus-geo/nimbus-go/internal/domain"
	store "github.com/nimbus-geo/nimbus-go/internal/storage/objectstore"
)

const contentType = "application/json"

// Store writes payload bodies into object storage keyed by the body's
// sha256, so identical payloads share one object.
type Store struct {
	bucket string
	store  store.Store
}

// Ref locates a stored payload body.
type Ref struct {
	Bucket string
	Key    string
	SHA256 string
	Size   int64
}

func NewStore(objectStore store.Store, bucket string) (*Store, error) {
	if objectStore == nil {
		return nil, errors.New("object store is required")
	}
	bucket = strings.TrimSpace(bucket)
	if bucket == "" {
		return nil, errors.New("bucket is required")
	}
	return &Store{bucket: bucket, store: objectStore}, nil
}

// Put stores the payload body and returns its content-addressed reference.
func (s *Store) Put(ctx context.Context, payload *domain.ProcessPayload) (Ref, error) {
	if s == nil || s.store == nil {
		return Ref{}, errors.New("payload store not initialized")
	}
	if payload == nil {
		return Ref{}, errors.New("payload is required")
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return Ref{}, fmt.Errorf("encode payload: %w", err)
	}

	sha := sha256.Sum256(body)
	sum := hex.EncodeToString(sha[:])
	key := objectKey(sum)

	if err := s.store.Put(ctx, s.bucket, key, bytes.NewReader(body), int64(len(body)), contentType); err != nil {
		return Ref{}, fmt.Errorf("store payload body: %w", err)
	}
	return Ref{Bucket: s.bucket, Key: key, SHA256: sum, Size: int64(len(body))}, nil
}

// Get reads a payload body back by its content reference.
func (s *Store) Get(ctx context.Context, ref Ref) (*domain.ProcessPayload, error) {
	if s == nil || s.store == nil {
		return nil, errors.New("payload store not initialized")
	}
	key := ref.Key
	if key == "" {
		if ref.SHA256 == "" {
			return nil, errors.New("payload ref requires a key or sha256")
		}
		key = objectKey(ref.SHA256)
	}
	reader, _, err := s.store.Get(ctx, s.bucket, key)
	if err != nil {
		return nil, fmt.Errorf("read payload body: %w", err)
	}
	defer reader.Close()

	body, err := io.ReadAll(reader)
	if err != nil {
		return nil, fmt.Errorf("read payload body: %w", err)
	}
	if ref.SHA256 != "" {
		sha := sha256.Sum256(body)
		if sum := hex.EncodeToString(sha[:]); sum != ref.SHA256 {
			return nil, fmt.Errorf("payload body sha mismatch: have %s, want %s", sum, ref.SHA256)
		}
	}
	payload := &domain.ProcessPayload{}
	if err := json.Unmarshal(body, payload); err != nil {
		return nil, fmt.Errorf("decode payload body: %w", err)
	}
	return payload, nil
}

func objectKey(sum string) string {
	return fmt.Sprintf("payloads/%s/%s.json", sum[:2], sum)
}
