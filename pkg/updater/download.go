package updater

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/cuemby/refit/pkg/types"
	"github.com/mholt/archiver/v3"
)

// Staged is an extracted release waiting to be applied
type Staged struct {
	// Root is the single top-level directory of the archive
	Root string
	dir  string
}

// Cleanup removes the staging directory
func (s *Staged) Cleanup() {
	if s != nil && s.dir != "" {
		os.RemoveAll(s.dir)
	}
}

// HTTPFetcher downloads a release tarball and extracts it into a staging
// directory
type HTTPFetcher struct {
	Client *http.Client
	// Token is sent as a bearer token when set
	Token string
	// TempDir is the parent of staging directories, os.TempDir by default
	TempDir string
	Timeout time.Duration
}

// Fetch downloads url and extracts it. The archive must contain exactly one
// top-level directory. All failures are NetworkFailure errors.
func (f *HTTPFetcher) Fetch(ctx context.Context, url string) (*Staged, error) {
	if url == "" {
		return nil, types.NewError(types.ErrNetworkFailure, nil, "release has no download URL")
	}

	dir, err := os.MkdirTemp(f.TempDir, "refit-stage-*")
	if err != nil {
		return nil, types.NewError(types.ErrNetworkFailure, err, "failed to create staging directory")
	}
	staged := &Staged{dir: dir}

	archive := filepath.Join(dir, "release.tar.gz")
	if err := f.download(ctx, url, archive); err != nil {
		staged.Cleanup()
		return nil, types.NewError(types.ErrNetworkFailure, err, "failed to download release")
	}

	tree := filepath.Join(dir, "tree")
	tgz := archiver.TarGz{
		Tar: &archiver.Tar{
			OverwriteExisting: true,
			MkdirAll:          true,
		},
	}
	if err := tgz.Unarchive(archive, tree); err != nil {
		staged.Cleanup()
		return nil, types.NewError(types.ErrNetworkFailure, err, "failed to extract release")
	}
	os.Remove(archive)

	root, err := singleTopLevel(tree)
	if err != nil {
		staged.Cleanup()
		return nil, types.NewError(types.ErrNetworkFailure, err, "unexpected release layout")
	}
	staged.Root = root
	return staged, nil
}

func (f *HTTPFetcher) download(ctx context.Context, url, dst string) error {
	client := f.Client
	if client == nil {
		client = http.DefaultClient
	}
	if f.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, f.Timeout)
		defer cancel()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return err
	}
	if f.Token != "" {
		req.Header.Set("Authorization", "Bearer "+f.Token)
	}

	resp, err := client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("unexpected status %s", resp.Status)
	}

	out, err := os.Create(dst)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, resp.Body); err != nil {
		out.Close()
		return err
	}
	return out.Close()
}

func singleTopLevel(dir string) (string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return "", err
	}
	if len(entries) != 1 || !entries[0].IsDir() {
		return "", fmt.Errorf("archive must contain exactly one top-level directory, found %d entries", len(entries))
	}
	return filepath.Join(dir, entries[0].Name()), nil
}
