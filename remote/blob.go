package remote

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/credentials"
	"github.com/aws/aws-sdk-go/aws/session"
	"gocloud.dev/blob"
	"gocloud.dev/blob/azureblob"
	"gocloud.dev/blob/gcsblob"
	"gocloud.dev/blob/s3blob"
	"gocloud.dev/gcp"
)

// BlobSource is used to register the object-store backend with a
// SourceMux. Objects are read with range readers, so section-sized reads
// stay section-sized on the wire.
//
//nolint:gochecknoglobals
var BlobSource = SourceProviderFunc(newBlobSource, s3blob.Scheme, gcsblob.Scheme, azureblob.Scheme)

type blobSource struct {
	ctx    context.Context
	bucket *blob.Bucket
	key    string
	size   int64
	url    string
}

func newBlobSource(ctx context.Context, u *url.URL, opts Options) (Source, error) {
	opts = opts.withDefaults()

	opener, err := newOpener(ctx, u.Scheme, opts)
	if err != nil {
		return nil, fmt.Errorf("bucket opener: %w", err)
	}

	bucketURL := *u
	bucketURL.Path = ""

	bucket, err := opener.OpenBucketURL(ctx, &bucketURL)
	if err != nil {
		return nil, fmt.Errorf("open bucket: %w", err)
	}

	key := strings.TrimPrefix(u.Path, "/")

	attrs, err := bucket.Attributes(ctx, key)
	if err != nil {
		bucket.Close()

		return nil, fmt.Errorf("stat %s: %w", u, err)
	}

	return &blobSource{
		ctx:    ctx,
		bucket: bucket,
		key:    key,
		size:   attrs.Size,
		url:    u.String(),
	}, nil
}

// newOpener creates the correct kind of blob.BucketURLOpener for the given
// scheme, wiring in the credential-related options.
func newOpener(ctx context.Context, scheme string, opts Options) (blob.BucketURLOpener, error) {
	switch scheme {
	case s3blob.Scheme:
		return &s3blob.URLOpener{ConfigProvider: initS3Session(opts)}, nil
	case gcsblob.Scheme:
		transport := http.DefaultTransport
		if opts.HTTPClient != nil && opts.HTTPClient.Transport != nil {
			transport = opts.HTTPClient.Transport
		}

		if opts.Anonymous {
			return &gcsblob.URLOpener{Client: gcp.NewAnonymousHTTPClient(transport)}, nil
		}

		creds, err := gcp.DefaultCredentials(ctx)
		if err != nil {
			return nil, fmt.Errorf("retrieve GCP credentials: %w", err)
		}

		client, err := gcp.NewHTTPClient(transport, gcp.CredentialsTokenSource(creds))
		if err != nil {
			return nil, fmt.Errorf("create GCP HTTP client: %w", err)
		}

		return &gcsblob.URLOpener{Client: client}, nil
	case azureblob.Scheme:
		return blob.DefaultURLMux(), nil
	default:
		return nil, fmt.Errorf("unsupported scheme: %s", scheme)
	}
}

// initS3Session builds an AWS session honouring the anonymous flag, static
// credentials, and region/endpoint overrides.
func initS3Session(opts Options) *session.Session {
	config := aws.NewConfig()

	if opts.HTTPClient != nil {
		config = config.WithHTTPClient(opts.HTTPClient)
	}

	switch {
	case opts.Anonymous:
		config = config.WithCredentials(credentials.AnonymousCredentials)
	case opts.Key != "":
		config = config.WithCredentials(credentials.NewStaticCredentials(opts.Key, opts.Secret, ""))
	}

	if opts.Region != "" {
		config = config.WithRegion(opts.Region)
	}

	if opts.Endpoint != "" {
		config = config.WithEndpoint(opts.Endpoint).WithS3ForcePathStyle(true)
	}

	config = config.WithCredentialsChainVerboseErrors(true)

	return session.Must(session.NewSessionWithOptions(session.Options{
		Config:            *config,
		SharedConfigState: session.SharedConfigEnable,
	}))
}

func (s *blobSource) ReadAt(p []byte, off int64) (int, error) {
	if off >= s.size {
		return 0, io.EOF
	}

	want := int64(len(p))
	if off+want > s.size {
		want = s.size - off
	}

	r, err := s.bucket.NewRangeReader(s.ctx, s.key, off, want, nil)
	if err != nil {
		return 0, fmt.Errorf("range read %s: %w", s.url, err)
	}
	defer r.Close()

	n, err := io.ReadFull(r, p[:want])
	if err != nil {
		return n, fmt.Errorf("range read %s: %w", s.url, err)
	}

	if int64(n) < int64(len(p)) {
		return n, io.EOF
	}

	return n, nil
}

func (s *blobSource) Size() int64 { return s.size }
func (s *blobSource) URL() string { return s.url }

func (s *blobSource) Name() string {
	key := s.key
	if i := strings.LastIndex(key, "/"); i != -1 {
		key = key[i+1:]
	}

	return key
}

func (s *blobSource) Close() error { return s.bucket.Close() }
