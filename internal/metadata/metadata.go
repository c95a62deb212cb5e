// Package metadata stores event descriptor documents in a content-addressed
// blob store backed by MongoDB. Documents are opaque JSON; the ledger only
// ever holds the returned URI and never inspects what it points at.
package metadata

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// Scheme prefixes every reference this store issues.
const Scheme = "meta://"

// ErrNotFound is returned when no document exists for a reference.
var ErrNotFound = errors.New("metadata not found")

// ErrBadReference is returned for references this store did not issue.
var ErrBadReference = errors.New("malformed metadata reference")

const opTimeout = 5 * time.Second

// Store is a content-addressed blob store: the key is the SHA-256 digest of
// the document, so equal content always maps to the same URI and stored
// blobs are immutable.
type Store struct {
	col *mongo.Collection
}

// NewStore constructs a Store over the given collection.
func NewStore(col *mongo.Collection) *Store {
	return &Store{col: col}
}

// URIFor computes the reference a document would be stored under.
func URIFor(doc []byte) string {
	sum := sha256.Sum256(doc)
	return Scheme + hex.EncodeToString(sum[:])
}

// ParseURI extracts the digest from a reference issued by this store.
func ParseURI(uri string) (string, error) {
	digest, ok := strings.CutPrefix(uri, Scheme)
	if !ok || digest == "" {
		return "", ErrBadReference
	}
	if len(digest) != sha256.Size*2 {
		return "", ErrBadReference
	}
	if _, err := hex.DecodeString(digest); err != nil {
		return "", ErrBadReference
	}
	return digest, nil
}

// Put stores doc and returns its reference. Re-storing identical content is
// an upsert onto the same key, so Put is idempotent.
func (s *Store) Put(ctx context.Context, doc []byte) (string, error) {
	uri := URIFor(doc)
	digest, _ := ParseURI(uri)

	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	_, err := s.col.UpdateOne(ctx,
		bson.M{"_id": digest},
		bson.M{"$setOnInsert": bson.M{"_id": digest, "body": doc, "created_at": time.Now().UTC()}},
		options.Update().SetUpsert(true),
	)
	if err != nil {
		return "", fmt.Errorf("store metadata: %w", err)
	}
	return uri, nil
}

// Resolve fetches the document behind a reference.
func (s *Store) Resolve(ctx context.Context, uri string) ([]byte, error) {
	digest, err := ParseURI(uri)
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	var out struct {
		Body []byte `bson:"body"`
	}
	if err := s.col.FindOne(ctx, bson.M{"_id": digest}).Decode(&out); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("resolve metadata: %w", err)
	}
	return out.Body, nil
}
