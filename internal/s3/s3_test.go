package s3

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"io"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/google/go-cmp/cmp"
	"github.com/johannesboyne/gofakes3"
	"github.com/johannesboyne/gofakes3/backend/s3mem"

	"github.com/bundlekit/bundlekit/internal/config"
)

func newMockS3(t *testing.T) (*s3mem.Backend, string) {
	t.Helper()

	// Set mock AWS credentials to avoid IMDS errors.
	t.Setenv("AWS_ACCESS_KEY_ID", "mock-access-key")
	t.Setenv("AWS_SECRET_ACCESS_KEY", "mock-secret-key")
	t.Setenv("AWS_REGION", "us-east-1")

	mock := s3mem.New()
	if err := mock.CreateBucket("test"); err != nil {
		t.Fatal(err)
	}
	ts := httptest.NewServer(gofakes3.New(mock).Server())
	t.Cleanup(ts.Close)
	return mock, ts.URL
}

func TestS3(t *testing.T) {
	mock, url := newMockS3(t)
	ctx := t.Context()

	storage, err := New(ctx, &config.ObjectStorage{
		AmazonS3: &config.AmazonS3{Bucket: "test", Prefix: "a/b", URL: url},
	})
	if err != nil {
		t.Fatalf("failed to create storage: %v", err)
	}

	if err := storage.Upload(ctx, bytes.NewReader([]byte("var a;")), "js/app.js", ""); err != nil {
		t.Fatalf("expected no error while uploading artifact: %v", err)
	}

	object, err := mock.GetObject("test", "a/b/js/app.js", nil)
	if err != nil {
		t.Fatalf("expected no error while getting object: %v", err)
	}
	contents, err := io.ReadAll(object.Contents)
	if err != nil {
		t.Fatal(err)
	}
	if string(contents) != "var a;" {
		t.Fatalf("unexpected object contents %q", contents)
	}

	reader, err := storage.Download(ctx, "js/app.js")
	if err != nil {
		t.Fatal(err)
	}
	defer reader.Close()
	bs, err := io.ReadAll(reader)
	if err != nil {
		t.Fatal(err)
	}
	if string(bs) != "var a;" {
		t.Fatalf("unexpected download %q", bs)
	}
}

func TestS3Metadata(t *testing.T) {
	cases := []struct {
		note    string
		version string
	}{
		{note: "with version", version: "1.2.3"},
		{note: "without version"},
	}

	for _, tc := range cases {
		t.Run(tc.note, func(t *testing.T) {
			_, url := newMockS3(t)
			ctx := t.Context()

			storage, err := New(ctx, &config.ObjectStorage{
				AmazonS3: &config.AmazonS3{Bucket: "test", URL: url},
			})
			if err != nil {
				t.Fatal(err)
			}
			s3Storage, ok := storage.(*AmazonS3)
			if !ok {
				t.Fatal("expected storage to be of type *AmazonS3")
			}

			content := []byte("compiled " + tc.note)
			if err := storage.Upload(ctx, bytes.NewReader(content), "app.js", tc.version); err != nil {
				t.Fatal(err)
			}

			output, err := s3Storage.client.HeadObject(ctx, &s3.HeadObjectInput{
				Bucket: aws.String("test"),
				Key:    aws.String("app.js"),
			})
			if err != nil {
				t.Fatalf("expected no error while getting object metadata: %v", err)
			}

			sum := sha256.Sum256(content)
			if output.Metadata["sha256"] != hex.EncodeToString(sum[:]) {
				t.Errorf("unexpected sha256 metadata %q", output.Metadata["sha256"])
			}
			v, exists := output.Metadata["version"]
			if tc.version == "" && exists {
				t.Errorf("expected no version metadata, got %q", v)
			} else if tc.version != "" && v != tc.version {
				t.Errorf("expected version metadata %q, got %q", tc.version, v)
			}
		})
	}
}

func TestS3StaticCredentials(t *testing.T) {
	_, url := newMockS3(t)

	root, err := config.Parse([]byte(`
publish:
  aws:
    bucket: test
    url: ` + url + `
    credentials: s3
secrets:
  s3:
    type: aws_auth
    access_key_id: mock-access-key
    secret_access_key: mock-secret-key
`))
	if err != nil {
		t.Fatal(err)
	}

	storage, err := New(t.Context(), root.Publish)
	if err != nil {
		t.Fatal(err)
	}
	if err := storage.Upload(t.Context(), bytes.NewReader([]byte("x")), "x.js", ""); err != nil {
		t.Fatal(err)
	}
}

func TestS3WrongSecretType(t *testing.T) {
	root, err := config.Parse([]byte(`
publish:
  aws:
    bucket: test
    region: us-east-1
    credentials: azure
secrets:
  azure:
    type: azure_auth
    account_name: a
    account_key: b
`))
	if err != nil {
		t.Fatal(err)
	}

	if _, err := New(t.Context(), root.Publish); err == nil {
		t.Fatal("expected error")
	}
}

func TestFileSystem(t *testing.T) {
	root := t.TempDir()
	storage, err := New(t.Context(), &config.ObjectStorage{
		FileSystemStorage: &config.FileSystemStorage{Path: root},
	})
	if err != nil {
		t.Fatal(err)
	}

	if err := storage.Upload(t.Context(), bytes.NewReader([]byte("var x;")), "pkg/x.min.js", "0.1.0"); err != nil {
		t.Fatal(err)
	}

	bs, err := os.ReadFile(filepath.Join(root, "pkg", "x.min.js"))
	if err != nil {
		t.Fatal(err)
	}
	if string(bs) != "var x;" {
		t.Fatalf("unexpected content %q", bs)
	}

	mdbs, err := os.ReadFile(filepath.Join(root, "pkg", "x.min.js.metadata.json"))
	if err != nil {
		t.Fatal(err)
	}
	var md map[string]string
	if err := json.Unmarshal(mdbs, &md); err != nil {
		t.Fatal(err)
	}
	sum := sha256.Sum256([]byte("var x;"))
	exp := map[string]string{"sha256": hex.EncodeToString(sum[:]), "version": "0.1.0"}
	if diff := cmp.Diff(exp, md); diff != "" {
		t.Fatalf("unexpected metadata (-want, +got):\n%s", diff)
	}

	r, err := storage.Download(t.Context(), "pkg/x.min.js")
	if err != nil {
		t.Fatal(err)
	}
	r.Close()
}

func TestNewRequiresBackend(t *testing.T) {
	if _, err := New(t.Context(), &config.ObjectStorage{}); err == nil {
		t.Fatal("expected error")
	}
}
