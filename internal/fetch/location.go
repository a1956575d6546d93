// Copyright (c) 2026 Keymaster Team
// Keymaster - SSH key management system
// This source code is licensed under the MIT license found in the LICENSE file.

package fetch

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"
)

// ErrInvalidLocation is returned for source locations that cannot be parsed.
var ErrInvalidLocation = errors.New("invalid source location")

// Options carries backend settings taken from the configuration.
type Options struct {
	// S3
	Endpoint string
	Region   string
	UseSSL   bool

	// SFTP
	IdentityFile string
	KnownHosts   string
	Timeout      time.Duration
}

// Location is a parsed source location.
type Location struct {
	Scheme string
	User   string
	Host   string // host[:port] for sftp, bucket for s3
	Path   string // prefix for s3, directory otherwise
}

func (l Location) String() string {
	switch l.Scheme {
	case "file":
		return "file://" + l.Path
	case "sftp":
		return fmt.Sprintf("sftp://%s@%s%s", l.User, l.Host, l.Path)
	default:
		return fmt.Sprintf("%s://%s/%s", l.Scheme, l.Host, l.Path)
	}
}

// ParseLocation accepts s3://bucket/prefix, sftp://user@host[:port]/path and
// file:///path.
func ParseLocation(raw string) (Location, error) {
	u, err := url.Parse(raw)
	if err != nil {
		return Location{}, fmt.Errorf("%w: %w", ErrInvalidLocation, err)
	}
	switch u.Scheme {
	case "s3":
		if u.Host == "" {
			return Location{}, fmt.Errorf("%w: %q has no bucket", ErrInvalidLocation, raw)
		}
		prefix := strings.TrimPrefix(u.Path, "/")
		if prefix != "" && !strings.HasSuffix(prefix, "/") {
			prefix += "/"
		}
		return Location{Scheme: "s3", Host: u.Host, Path: prefix}, nil
	case "sftp":
		if u.Host == "" || u.User == nil || u.User.Username() == "" {
			return Location{}, fmt.Errorf("%w: %q needs user@host", ErrInvalidLocation, raw)
		}
		p := u.Path
		if p == "" {
			p = "."
		}
		return Location{Scheme: "sftp", User: u.User.Username(), Host: u.Host, Path: p}, nil
	case "file":
		if u.Host != "" || u.Path == "" {
			return Location{}, fmt.Errorf("%w: %q must be file:///absolute/path", ErrInvalidLocation, raw)
		}
		return Location{Scheme: "file", Path: u.Path}, nil
	case "":
		return Location{}, fmt.Errorf("%w: %q has no scheme", ErrInvalidLocation, raw)
	default:
		return Location{}, fmt.Errorf("%w: unsupported scheme %q", ErrInvalidLocation, u.Scheme)
	}
}

// Open connects to the bucket behind raw.
func Open(ctx context.Context, raw string, opts Options) (Bucket, error) {
	loc, err := ParseLocation(raw)
	if err != nil {
		return nil, err
	}
	var b Bucket
	switch loc.Scheme {
	case "s3":
		b, err = newS3Bucket(loc, opts)
	case "sftp":
		b, err = newSFTPBucket(ctx, loc, opts)
	default:
		b, err = newDirBucket(loc.Path)
	}
	if err != nil {
		return nil, fmt.Errorf("%w: connect to %s: %w", ErrFetch, loc, err)
	}
	return b, nil
}
