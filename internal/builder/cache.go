package builder

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"hash"
	"io"
	"os"
	"time"

	lru "github.com/hashicorp/golang-lru"

	"github.com/bundlekit/bundlekit/internal/compiler"
	"github.com/bundlekit/bundlekit/internal/database"
	"github.com/bundlekit/bundlekit/internal/metrics"
)

const defaultDigests = 4096

// Cache stores successful compilations by input fingerprint.
// *database.Database implements it.
type Cache interface {
	LookupCompilation(ctx context.Context, key string) (*database.Compilation, error)
	StoreCompilation(ctx context.Context, key string, entry *database.Compilation) error
}

// Digests remembers the content digest of files by path, size and
// modification time.
type Digests struct {
	cache *lru.Cache
}

// NewDigests returns a digest cache holding up to size files.
func NewDigests(size int) *Digests {
	c, err := lru.New(size)
	if err != nil {
		panic(err) // only for a non-positive size
	}
	return &Digests{cache: c}
}

type contentUnit interface {
	Name() string
	Path() string
	ReadContent() ([]byte, error)
}

func (d *Digests) digest(u contentUnit) (string, error) {
	var key string
	if p := u.Path(); p != "" {
		if fi, err := os.Stat(p); err == nil {
			key = fmt.Sprintf("%s|%d|%d", p, fi.Size(), fi.ModTime().UnixNano())
			if v, ok := d.cache.Get(key); ok {
				return v.(string), nil
			}
		}
	}

	bs, err := u.ReadContent()
	if err != nil {
		return "", err
	}
	sum := sha256.Sum256(bs)
	digest := hex.EncodeToString(sum[:])

	if key != "" {
		d.cache.Add(key, digest)
	}
	return digest, nil
}

// fingerprint identifies a compilation by the compiler, its options and
// the names and contents of its units, in order.
func (bd *build) fingerprint(sources []compiler.SourceUnit) (string, error) {
	h := sha256.New()

	io.WriteString(h, bd.compiler.ID()+"\n")

	opts, err := json.Marshal(bd.opts)
	if err != nil {
		return "", err
	}
	h.Write(opts)
	h.Write([]byte{'\n'})

	for _, u := range bd.externs {
		if err := bd.hashUnit(h, "extern", u); err != nil {
			return "", err
		}
	}
	for _, u := range sources {
		if err := bd.hashUnit(h, "source", u); err != nil {
			return "", err
		}
	}

	return hex.EncodeToString(h.Sum(nil)), nil
}

func (bd *build) hashUnit(h hash.Hash, kind string, u contentUnit) error {
	digest, err := bd.digests.digest(u)
	if err != nil {
		return err
	}
	_, err = io.WriteString(h, kind+"\x00"+u.Name()+"\x00"+digest+"\n")
	return err
}

// compile invokes the compiler, going through the cache when there is
// one. A replayed result equals the stored successful one.
func (bd *build) compile(ctx context.Context, sources []compiler.SourceUnit) (*compiler.Result, bool, error) {
	var key string
	if bd.cache != nil {
		var err error
		if key, err = bd.fingerprint(sources); err != nil {
			return nil, false, err
		}

		entry, err := bd.cache.LookupCompilation(ctx, key)
		switch {
		case err == nil:
			metrics.CacheHits.Inc()
			bd.log.Debugf("Replaying cached compilation %s", key[:12])
			return &compiler.Result{Text: entry.Text, Warnings: entry.Warnings, Success: true}, true, nil
		case !errors.Is(err, database.ErrNotFound):
			bd.log.Warnf("Compilation cache lookup failed: %v", err)
		}
	}

	start := time.Now()
	result, err := bd.compiler.Compile(ctx, bd.externs, sources, bd.opts)
	metrics.CompilationDuration.WithLabelValues(bd.report.Mode.String()).Observe(time.Since(start).Seconds())
	metrics.UnitsCompiled.Add(float64(len(sources)))
	if err != nil {
		return nil, false, err
	}

	if bd.cache != nil && result.Success {
		entry := &database.Compilation{Text: result.Text, Warnings: result.Warnings}
		if err := bd.cache.StoreCompilation(ctx, key, entry); err != nil {
			bd.log.Warnf("Failed to store compilation in cache: %v", err)
		}
	}

	return result, false, nil
}
