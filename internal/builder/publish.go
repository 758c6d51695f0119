package builder

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"golang.org/x/sync/errgroup"
)

const maxUploads = 4

// PublishError is an artifact upload failure.
type PublishError struct {
	Key string
	Err error
}

func (e *PublishError) Error() string {
	return fmt.Sprintf("failed to publish %s: %v", e.Key, e.Err)
}

func (e *PublishError) Unwrap() error {
	return e.Err
}

// publish uploads the artifacts of the build, keyed by their path relative
// to root.
func (bd *build) publish(ctx context.Context, root string) error {
	version := bd.config.Project.Version

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(maxUploads)

	for _, a := range bd.report.Artifacts {
		rel, err := filepath.Rel(root, a.Path)
		if err != nil {
			return err
		}
		key := filepath.ToSlash(rel)

		g.Go(func() error {
			f, err := os.Open(a.Path)
			if err != nil {
				return &PublishError{Key: key, Err: err}
			}
			defer f.Close()

			if err := bd.publisher.Upload(ctx, f, key, version); err != nil {
				return &PublishError{Key: key, Err: err}
			}
			bd.log.Infof("Published %s", key)
			return nil
		})
	}

	return g.Wait()
}
