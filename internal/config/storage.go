package config

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/goccy/go-yaml"
	"github.com/swaggest/jsonschema-go"
)

// ObjectStorage selects where written artifacts are published. Exactly one
// backend must be configured.
type ObjectStorage struct {
	AmazonS3          *AmazonS3          `json:"aws,omitempty"`
	GCPCloudStorage   *GCPCloudStorage   `json:"gcp,omitempty"`
	AzureBlobStorage  *AzureBlobStorage  `json:"azure,omitempty"`
	FileSystemStorage *FileSystemStorage `json:"filesystem,omitempty"`

	_ struct{} `additionalProperties:"false"`
}

func (o *ObjectStorage) credentials() *SecretRef {
	switch {
	case o.AmazonS3 != nil:
		return o.AmazonS3.Credentials
	case o.GCPCloudStorage != nil:
		return o.GCPCloudStorage.Credentials
	case o.AzureBlobStorage != nil:
		return o.AzureBlobStorage.Credentials
	}
	return nil
}

func (o *ObjectStorage) validate() error {
	n := 0
	for _, set := range []bool{o.AmazonS3 != nil, o.GCPCloudStorage != nil, o.AzureBlobStorage != nil, o.FileSystemStorage != nil} {
		if set {
			n++
		}
	}
	if n != 1 {
		return errors.New("publish requires exactly one of aws, gcp, azure or filesystem")
	}

	if err := o.AmazonS3.validate(); err != nil {
		return err
	}
	if err := o.GCPCloudStorage.validate(); err != nil {
		return err
	}
	if err := o.AzureBlobStorage.validate(); err != nil {
		return err
	}
	return o.FileSystemStorage.validate()
}

// AmazonS3 defines the configuration for an Amazon S3-compatible object storage.
type AmazonS3 struct {
	Bucket      string     `json:"bucket"`
	Prefix      string     `json:"prefix,omitempty"`
	Region      string     `json:"region,omitempty"`
	Credentials *SecretRef `json:"credentials,omitempty"` // If nil, use default credentials chain: environment variables,
	// shared credentials file, ECS or EC2 instance role.
	URL string `json:"url,omitempty"` // for test purposes

	_ struct{} `additionalProperties:"false"`
}

// GCPCloudStorage defines the configuration for a Google Cloud Storage bucket.
type GCPCloudStorage struct {
	Project     string     `json:"project"`
	Bucket      string     `json:"bucket"`
	Prefix      string     `json:"prefix,omitempty"`
	Credentials *SecretRef `json:"credentials,omitempty"` // If nil, use application default credentials.

	_ struct{} `additionalProperties:"false"`
}

// AzureBlobStorage defines the configuration for an Azure Blob Storage container.
type AzureBlobStorage struct {
	AccountURL  string     `json:"account_url"`
	Container   string     `json:"container"`
	Prefix      string     `json:"prefix,omitempty"`
	Credentials *SecretRef `json:"credentials,omitempty"` // If nil, use the default Azure credential chain.

	_ struct{} `additionalProperties:"false"`
}

// FileSystemStorage copies artifacts below a local directory.
type FileSystemStorage struct {
	Path string `json:"path"`

	_ struct{} `additionalProperties:"false"`
}

func (a *AmazonS3) validate() error {
	if a == nil {
		return nil
	}

	if a.Bucket == "" {
		return errors.New("amazon s3 bucket is required")
	}

	if a.Region == "" && a.URL == "" {
		return errors.New("amazon s3 region is required")
	}

	return nil
}

func (g *GCPCloudStorage) validate() error {
	if g == nil {
		return nil
	}

	if g.Project == "" {
		return errors.New("gcp cloud storage project is required")
	}

	if g.Bucket == "" {
		return errors.New("gcp cloud storage bucket is required")
	}

	return nil
}

func (a *AzureBlobStorage) validate() error {
	if a == nil {
		return nil
	}

	if a.AccountURL == "" {
		return errors.New("azure blob storage account URL is required")
	}

	if a.Container == "" {
		return errors.New("azure blob storage container is required")
	}

	return nil
}

func (f *FileSystemStorage) validate() error {
	if f == nil {
		return nil
	}

	if f.Path == "" {
		return errors.New("filesystem storage path is required")
	}

	return nil
}

type SecretRef struct {
	Name  string `json:"-"`
	value *Secret
}

// Resolve retrieves the secret value from the secret store. If the secret is not found, an error is returned.
// If the secret is found, it returns the value as an interface{} which can be further typed as needed.
func (s *SecretRef) Resolve(ctx context.Context) (any, error) {
	if s.value == nil {
		return nil, fmt.Errorf("secret %q not found", s.Name)
	}

	return s.value.Typed(ctx)
}

func (*SecretRef) PrepareJSONSchema(schema *jsonschema.Schema) error {
	schema.Type = nil
	schema.AddType(jsonschema.String)
	return nil
}

func (s *SecretRef) MarshalYAML() (any, error) {
	if s.Name == "" {
		return nil, nil
	}
	return s.Name, nil
}

func (s *SecretRef) MarshalJSON() ([]byte, error) {
	v, err := s.MarshalYAML()
	if err != nil {
		return nil, err
	}

	return json.Marshal(v)
}

func (s *SecretRef) UnmarshalYAML(bs []byte) error {
	if err := yaml.Unmarshal(bs, &s.Name); err != nil {
		return fmt.Errorf("expected scalar node: %w", err)
	}
	return nil
}

func (s *SecretRef) UnmarshalJSON(bs []byte) error {
	if err := json.Unmarshal(bs, &s.Name); err != nil {
		return fmt.Errorf("failed to unmarshal SecretRef: %w", err)
	}

	return nil
}
