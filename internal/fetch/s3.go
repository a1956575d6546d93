// Copyright (c) 2026 Keymaster Team
// Keymaster - SSH key management system
// This source code is licensed under the MIT license found in the LICENSE file.

package fetch

import (
	"context"
	"io"
	"net/http"
	"strings"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
	"github.com/toeirei/keysync/internal/model"
)

// DefaultS3Endpoint is used when no endpoint is configured.
const DefaultS3Endpoint = "s3.amazonaws.com"

type s3Bucket struct {
	client *minio.Client
	bucket string
	prefix string
}

// newS3Bucket builds a client that resolves credentials the way the AWS tools
// do: environment, shared credentials file, then the instance role.
func newS3Bucket(loc Location, opts Options) (*s3Bucket, error) {
	endpoint := opts.Endpoint
	if endpoint == "" {
		endpoint = DefaultS3Endpoint
	}
	creds := credentials.NewChainCredentials([]credentials.Provider{
		&credentials.EnvAWS{},
		&credentials.FileAWSCredentials{},
		&credentials.IAM{Client: &http.Client{Transport: http.DefaultTransport}},
	})
	client, err := minio.New(endpoint, &minio.Options{
		Creds:  creds,
		Secure: opts.UseSSL,
		Region: opts.Region,
	})
	if err != nil {
		return nil, err
	}
	return &s3Bucket{client: client, bucket: loc.Host, prefix: loc.Path}, nil
}

// List returns the objects directly under the prefix. Common prefixes are
// skipped.
func (b *s3Bucket) List(ctx context.Context) ([]model.RemoteObject, error) {
	var out []model.RemoteObject
	for obj := range b.client.ListObjects(ctx, b.bucket, minio.ListObjectsOptions{Prefix: b.prefix}) {
		if obj.Err != nil {
			return nil, obj.Err
		}
		name := strings.TrimPrefix(obj.Key, b.prefix)
		if name == "" || strings.Contains(name, "/") {
			continue
		}
		out = append(out, model.RemoteObject{Name: name, Size: obj.Size, ModTime: obj.LastModified})
	}
	return out, nil
}

func (b *s3Bucket) Open(ctx context.Context, name string) (io.ReadCloser, error) {
	obj, err := b.client.GetObject(ctx, b.bucket, b.prefix+name, minio.GetObjectOptions{})
	if err != nil {
		return nil, err
	}
	return obj, nil
}

func (b *s3Bucket) Close() error { return nil }
