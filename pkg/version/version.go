package version

import (
	"bufio"
	"compress/zlib"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/blang/semver"
	"github.com/cuemby/refit/pkg/fsutil"
)

// Unknown is reported when no version source is available
const Unknown = "unknown"

// MarkerFile is the plain-text version marker at the install root
const MarkerFile = "VERSION"

// Normalize trims whitespace and a leading "v" from a version tag
func Normalize(v string) string {
	v = strings.TrimSpace(v)
	if len(v) > 1 && (v[0] == 'v' || v[0] == 'V') && v[1] >= '0' && v[1] <= '9' {
		v = v[1:]
	}
	return v
}

// Newer reports whether latest is newer than current. Semantic versions are
// compared numerically; anything else falls back to string inequality.
func Newer(current, latest string) bool {
	current, latest = Normalize(current), Normalize(latest)
	if latest == "" || latest == current {
		return false
	}
	if current == "" || current == Unknown {
		return true
	}

	cv, cerr := semver.ParseTolerant(current)
	lv, lerr := semver.ParseTolerant(latest)
	if cerr == nil && lerr == nil {
		return lv.GT(cv)
	}
	return latest != current
}

// ReadMarker returns the normalized version recorded at root, or "" when
// the marker is missing or empty
func ReadMarker(root string) string {
	data, err := os.ReadFile(filepath.Join(root, MarkerFile))
	if err != nil {
		return ""
	}
	return Normalize(string(data))
}

// WriteMarker atomically records v at root
func WriteMarker(root, v string) error {
	if err := fsutil.WriteFileAtomic(filepath.Join(root, MarkerFile), []byte(Normalize(v)+"\n"), 0644); err != nil {
		return fmt.Errorf("failed to write version marker: %w", err)
	}
	return nil
}

// Current resolves the installed version: a tag pointing at the checked-out
// commit, then the version marker, then Unknown
func Current(root string) string {
	if tag := DescribeTag(root); tag != "" {
		return Normalize(path.Base(tag))
	}
	if v := ReadMarker(root); v != "" {
		return v
	}
	return Unknown
}

// HeadCommit returns the commit checked out in root's git metadata, or ""
func HeadCommit(root string) string {
	gitDir := filepath.Join(root, ".git")
	head, err := os.ReadFile(filepath.Join(gitDir, "HEAD"))
	if err != nil {
		return ""
	}
	ref := strings.TrimSpace(string(head))
	if !strings.HasPrefix(ref, "ref: ") {
		return ref
	}
	ref = strings.TrimPrefix(ref, "ref: ")

	if data, err := os.ReadFile(filepath.Join(gitDir, filepath.FromSlash(ref))); err == nil {
		return strings.TrimSpace(string(data))
	}
	refs := packedRefs(gitDir)
	return refs[ref]
}

// DescribeTag returns the name of a tag pointing at HEAD, or "". Tags are
// read from refs/tags, nested names included, and from packed-refs. A loose
// annotated tag is peeled through its object when that object is stored
// loose; tags whose object only lives in a pack file are not matched.
func DescribeTag(root string) string {
	commit := HeadCommit(root)
	if commit == "" {
		return ""
	}
	gitDir := filepath.Join(root, ".git")

	tagsDir := filepath.Join(gitDir, "refs", "tags")
	var found string
	_ = filepath.WalkDir(tagsDir, func(path string, d fs.DirEntry, err error) error {
		if err != nil || d.IsDir() {
			return nil
		}
		data, err := os.ReadFile(path)
		if err != nil {
			return nil
		}
		sha := strings.TrimSpace(string(data))
		if sha != commit && peelTag(gitDir, sha) != commit {
			return nil
		}
		rel, err := filepath.Rel(tagsDir, path)
		if err != nil {
			return nil
		}
		found = filepath.ToSlash(rel)
		return fs.SkipAll
	})
	if found != "" {
		return found
	}

	for ref, sha := range packedRefs(gitDir) {
		if sha == commit && strings.HasPrefix(ref, "refs/tags/") {
			return strings.TrimPrefix(ref, "refs/tags/")
		}
	}
	return ""
}

// peelTag returns the object an annotated tag points at, or "" when sha is
// not a loose tag object
func peelTag(gitDir, sha string) string {
	if len(sha) < 3 {
		return ""
	}
	f, err := os.Open(filepath.Join(gitDir, "objects", sha[:2], sha[2:]))
	if err != nil {
		return ""
	}
	defer f.Close()

	zr, err := zlib.NewReader(f)
	if err != nil {
		return ""
	}
	defer zr.Close()

	// "tag <size>\x00object <sha>\n..."
	r := bufio.NewReader(io.LimitReader(zr, 4096))
	header, err := r.ReadString(0)
	if err != nil || !strings.HasPrefix(header, "tag ") {
		return ""
	}
	line, err := r.ReadString('\n')
	if err != nil {
		return ""
	}
	target, ok := strings.CutPrefix(strings.TrimSpace(line), "object ")
	if !ok {
		return ""
	}
	return target
}

// packedRefs parses .git/packed-refs into ref -> commit. Peeled lines ("^")
// replace the commit of the preceding annotated tag.
func packedRefs(gitDir string) map[string]string {
	refs := make(map[string]string)
	f, err := os.Open(filepath.Join(gitDir, "packed-refs"))
	if err != nil {
		return refs
	}
	defer f.Close()

	var last string
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		if strings.HasPrefix(line, "^") {
			if last != "" {
				refs[last] = strings.TrimPrefix(line, "^")
			}
			continue
		}
		fields := strings.Fields(line)
		if len(fields) != 2 {
			continue
		}
		refs[fields[1]] = fields[0]
		last = fields[1]
	}
	return refs
}
