// Package s3 publishes build artifacts to object storage: Amazon S3, Google
// Cloud Storage, Azure Blob Storage or a local directory.
package s3

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path"
	"path/filepath"

	"cloud.google.com/go/storage"
	"github.com/Azure/azure-sdk-for-go/sdk/azidentity"
	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob"
	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"google.golang.org/api/option"

	"github.com/bundlekit/bundlekit/internal/config"
	"github.com/bundlekit/bundlekit/internal/output"
)

const contentType = "text/javascript; charset=utf-8"

// ObjectStorage stores artifacts under slash-separated keys. The storage's
// configured prefix is prepended to every key.
type ObjectStorage interface {
	// Upload stores body under key. The object carries the SHA-256 of body
	// and, when set, the version it was built from as metadata.
	Upload(ctx context.Context, body io.ReadSeeker, key, version string) error
	Download(ctx context.Context, key string) (io.ReadCloser, error)
}

type AmazonS3 struct {
	client *s3.Client
	bucket string
	prefix string
}

type GCPCloudStorage struct {
	client *storage.Client
	bucket string
	prefix string
}

type AzureBlobStorage struct {
	client    *azblob.Client
	container string
	prefix    string
}

type FileSystemStorage struct {
	root string
}

func New(ctx context.Context, cfg *config.ObjectStorage) (ObjectStorage, error) {
	switch {
	case cfg.AmazonS3 != nil:
		return newAmazonS3(ctx, cfg.AmazonS3)
	case cfg.GCPCloudStorage != nil:
		return newGCPCloudStorage(ctx, cfg.GCPCloudStorage)
	case cfg.AzureBlobStorage != nil:
		return newAzureBlobStorage(ctx, cfg.AzureBlobStorage)
	case cfg.FileSystemStorage != nil:
		return &FileSystemStorage{root: cfg.FileSystemStorage.Path}, nil
	}
	return nil, errors.New("no object storage configured")
}

func newAmazonS3(ctx context.Context, cfg *config.AmazonS3) (*AmazonS3, error) {
	var opts []func(*awsconfig.LoadOptions) error
	if cfg.Region != "" {
		opts = append(opts, awsconfig.WithRegion(cfg.Region))
	}

	if cfg.Credentials != nil {
		value, err := cfg.Credentials.Resolve(ctx)
		if err != nil {
			return nil, err
		}
		creds, ok := value.(config.SecretAWS)
		if !ok {
			return nil, fmt.Errorf("unsupported secret type '%T' for S3 credentials", value)
		}
		opts = append(opts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(creds.AccessKeyID, creds.SecretAccessKey, creds.SessionToken)))
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS configuration: %w", err)
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.URL != "" {
			o.BaseEndpoint = aws.String(cfg.URL)
			o.UsePathStyle = true
		}
	})

	return &AmazonS3{client: client, bucket: cfg.Bucket, prefix: cfg.Prefix}, nil
}

func (a *AmazonS3) Upload(ctx context.Context, body io.ReadSeeker, key, version string) error {
	md, err := metadata(body, version)
	if err != nil {
		return err
	}

	_, err = manager.NewUploader(a.client).Upload(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(a.bucket),
		Key:         aws.String(path.Join(a.prefix, key)),
		Body:        body,
		ContentType: aws.String(contentType),
		Metadata:    md,
	})
	return err
}

func (a *AmazonS3) Download(ctx context.Context, key string) (io.ReadCloser, error) {
	out, err := a.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(a.bucket),
		Key:    aws.String(path.Join(a.prefix, key)),
	})
	if err != nil {
		return nil, err
	}
	return out.Body, nil
}

func newGCPCloudStorage(ctx context.Context, cfg *config.GCPCloudStorage) (*GCPCloudStorage, error) {
	var opts []option.ClientOption
	if cfg.Credentials != nil {
		value, err := cfg.Credentials.Resolve(ctx)
		if err != nil {
			return nil, err
		}
		creds, ok := value.(config.SecretGCP)
		if !ok {
			return nil, fmt.Errorf("unsupported secret type '%T' for GCS credentials", value)
		}
		if creds.Credentials != "" {
			opts = append(opts, option.WithCredentialsJSON([]byte(creds.Credentials)))
		} else {
			opts = append(opts, option.WithAPIKey(creds.APIKey))
		}
	}

	client, err := storage.NewClient(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create GCS client: %w", err)
	}

	return &GCPCloudStorage{client: client, bucket: cfg.Bucket, prefix: cfg.Prefix}, nil
}

func (g *GCPCloudStorage) Upload(ctx context.Context, body io.ReadSeeker, key, version string) error {
	md, err := metadata(body, version)
	if err != nil {
		return err
	}

	w := g.client.Bucket(g.bucket).Object(path.Join(g.prefix, key)).NewWriter(ctx)
	w.ContentType = contentType
	w.Metadata = md
	if _, err := io.Copy(w, body); err != nil {
		w.Close()
		return err
	}
	return w.Close()
}

func (g *GCPCloudStorage) Download(ctx context.Context, key string) (io.ReadCloser, error) {
	return g.client.Bucket(g.bucket).Object(path.Join(g.prefix, key)).NewReader(ctx)
}

func newAzureBlobStorage(ctx context.Context, cfg *config.AzureBlobStorage) (*AzureBlobStorage, error) {
	var client *azblob.Client
	if cfg.Credentials != nil {
		value, err := cfg.Credentials.Resolve(ctx)
		if err != nil {
			return nil, err
		}
		creds, ok := value.(config.SecretAzure)
		if !ok {
			return nil, fmt.Errorf("unsupported secret type '%T' for Azure credentials", value)
		}
		cred, err := azblob.NewSharedKeyCredential(creds.AccountName, creds.AccountKey)
		if err != nil {
			return nil, err
		}
		if client, err = azblob.NewClientWithSharedKeyCredential(cfg.AccountURL, cred, nil); err != nil {
			return nil, err
		}
	} else {
		cred, err := azidentity.NewDefaultAzureCredential(nil)
		if err != nil {
			return nil, err
		}
		if client, err = azblob.NewClient(cfg.AccountURL, cred, nil); err != nil {
			return nil, err
		}
	}

	return &AzureBlobStorage{client: client, container: cfg.Container, prefix: cfg.Prefix}, nil
}

func (a *AzureBlobStorage) Upload(ctx context.Context, body io.ReadSeeker, key, version string) error {
	md, err := metadata(body, version)
	if err != nil {
		return err
	}

	azmd := make(map[string]*string, len(md))
	for k, v := range md {
		azmd[k] = &v
	}

	_, err = a.client.UploadStream(ctx, a.container, path.Join(a.prefix, key), body, &azblob.UploadStreamOptions{
		Metadata: azmd,
	})
	return err
}

func (a *AzureBlobStorage) Download(ctx context.Context, key string) (io.ReadCloser, error) {
	resp, err := a.client.DownloadStream(ctx, a.container, path.Join(a.prefix, key), nil)
	if err != nil {
		return nil, err
	}
	return resp.Body, nil
}

// Upload copies body below the root directory. The metadata is kept next
// to it in a .metadata.json file.
func (f *FileSystemStorage) Upload(_ context.Context, body io.ReadSeeker, key, version string) error {
	md, err := metadata(body, version)
	if err != nil {
		return err
	}

	bs, err := io.ReadAll(body)
	if err != nil {
		return err
	}

	dest := filepath.Join(f.root, filepath.FromSlash(key))
	if err := output.Write(string(bs), dest); err != nil {
		return err
	}

	mdbs, err := json.Marshal(md)
	if err != nil {
		return err
	}
	return output.Write(string(mdbs), dest+".metadata.json")
}

func (f *FileSystemStorage) Download(_ context.Context, key string) (io.ReadCloser, error) {
	return os.Open(filepath.Join(f.root, filepath.FromSlash(key)))
}

// metadata hashes body and rewinds it for the upload.
func metadata(body io.ReadSeeker, version string) (map[string]string, error) {
	h := sha256.New()
	if _, err := io.Copy(h, body); err != nil {
		return nil, err
	}
	if _, err := body.Seek(0, io.SeekStart); err != nil {
		return nil, err
	}

	md := map[string]string{"sha256": hex.EncodeToString(h.Sum(nil))}
	if version != "" {
		md["version"] = version
	}
	return md, nil
}
