// Package secrets resolves the token signing key from configuration.
package secrets

import (
	"bytes"
	"context"
	"net/url"
	"strings"

	"github.com/samber/oops"

	"github.com/mikepodsy/my-finance-app/internal/config"
)

// MinKeyLength is the shortest signing key accepted from an object store. It
// matches the production rule for inline secrets.
const MinKeyLength = config.MinSigningKeyLength

// ObjectFetcher reads an object from a bucket.
type ObjectFetcher interface {
	FetchObject(ctx context.Context, bucket, key string) ([]byte, error)
}

// SigningKey returns the HMAC key for session tokens. An inline secret wins;
// otherwise the key is read from the s3:// location in SigningSecretSource.
func SigningKey(ctx context.Context, auth config.AuthConfig, fetcher ObjectFetcher) ([]byte, error) {
	if auth.SigningSecret != "" {
		return []byte(auth.SigningSecret), nil
	}
	if auth.SigningSecretSource == "" {
		return nil, oops.Code("SECRET_MISSING").Errorf("no signing secret configured")
	}

	bucket, key, err := ParseS3URI(auth.SigningSecretSource)
	if err != nil {
		return nil, err
	}
	if fetcher == nil {
		return nil, oops.Code("SECRET_SOURCE").Errorf("no object fetcher for %s", auth.SigningSecretSource)
	}

	data, err := fetcher.FetchObject(ctx, bucket, key)
	if err != nil {
		return nil, oops.Code("SECRET_FETCH").With("bucket", bucket).With("key", key).Wrap(err)
	}

	secret := bytes.TrimSpace(data)
	if len(secret) < MinKeyLength {
		return nil, oops.Code("SECRET_TOO_SHORT").
			With("bucket", bucket).
			With("key", key).
			Errorf("signing secret must be at least %d bytes, got %d", MinKeyLength, len(secret))
	}
	return secret, nil
}

// ParseS3URI splits s3://bucket/key into its parts.
func ParseS3URI(uri string) (bucket, key string, err error) {
	u, err := url.Parse(uri)
	if err != nil {
		return "", "", oops.Code("SECRET_SOURCE").With("uri", uri).Wrap(err)
	}
	bucket = u.Host
	key = strings.TrimPrefix(u.Path, "/")
	if u.Scheme != "s3" || bucket == "" || key == "" {
		return "", "", oops.Code("SECRET_SOURCE").With("uri", uri).Errorf("expected s3://bucket/key")
	}
	return bucket, key, nil
}
