// Package archive writes export archives and unpacks and inspects import
// uploads.
package archive

import (
	"archive/zip"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// ErrUnsafePath is returned for archive entries that would land outside the
// extraction directory.
var ErrUnsafePath = errors.New("archive entry escapes destination")

// DataFileNames are the data file names recognised at the root of an import
// archive, in order of preference.
var DataFileNames = []string{"products.json", "export.json", "data.json"}

// ErrTooLarge is returned when extracted content exceeds the size limit.
var ErrTooLarge = errors.New("archive content exceeds size limit")

// ImagesDir is the media directory inside an archive.
const ImagesDir = "images"

// Entry is one file to add to an archive. Contents come from Path, or from
// Data when Path is empty.
type Entry struct {
	Name string
	Path string
	Data []byte
}

// Create writes entries to a new zip file at dest and returns its size. The
// archive is written beside dest and renamed into place, so a failed write
// leaves no partial file.
func Create(dest string, entries []Entry) (int64, error) {
	tmp := dest + ".partial"
	f, err := os.Create(tmp)
	if err != nil {
		return 0, fmt.Errorf("creating archive: %w", err)
	}

	if err := writeEntries(f, entries); err != nil {
		f.Close()
		os.Remove(tmp)
		return 0, err
	}
	if err := f.Close(); err != nil {
		os.Remove(tmp)
		return 0, fmt.Errorf("closing archive: %w", err)
	}
	if err := os.Rename(tmp, dest); err != nil {
		os.Remove(tmp)
		return 0, fmt.Errorf("finalizing archive: %w", err)
	}

	info, err := os.Stat(dest)
	if err != nil {
		return 0, fmt.Errorf("stat archive: %w", err)
	}
	return info.Size(), nil
}

func writeEntries(w io.Writer, entries []Entry) error {
	zw := zip.NewWriter(w)
	dirs := make(map[string]bool)
	for _, e := range entries {
		if !filepath.IsLocal(filepath.FromSlash(e.Name)) {
			return fmt.Errorf("%w: %q", ErrUnsafePath, e.Name)
		}
		if dir := pathDir(e.Name); dir != "" && !dirs[dir] {
			if _, err := zw.Create(dir + "/"); err != nil {
				return fmt.Errorf("adding %s/: %w", dir, err)
			}
			dirs[dir] = true
		}
		dst, err := zw.CreateHeader(&zip.FileHeader{Name: e.Name, Method: zip.Deflate})
		if err != nil {
			return fmt.Errorf("adding %s: %w", e.Name, err)
		}
		if e.Path == "" {
			if _, err := dst.Write(e.Data); err != nil {
				return fmt.Errorf("writing %s: %w", e.Name, err)
			}
			continue
		}
		if err := copyFile(dst, e.Path); err != nil {
			return fmt.Errorf("writing %s: %w", e.Name, err)
		}
	}
	if err := zw.Close(); err != nil {
		return fmt.Errorf("closing zip: %w", err)
	}
	return nil
}

func copyFile(dst io.Writer, path string) error {
	src, err := os.Open(path)
	if err != nil {
		return err
	}
	defer src.Close()
	_, err = io.Copy(dst, src)
	return err
}

func pathDir(name string) string {
	i := strings.LastIndex(name, "/")
	if i <= 0 {
		return ""
	}
	return name[:i]
}

// DirEntries returns one entry per regular file directly inside dir, named
// prefix/<file>, sorted by name. A missing dir yields no entries.
func DirEntries(dir, prefix string) ([]Entry, error) {
	items, err := os.ReadDir(dir)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("reading %s: %w", dir, err)
	}
	var out []Entry
	for _, item := range items {
		if !item.Type().IsRegular() {
			continue
		}
		out = append(out, Entry{Name: prefix + "/" + item.Name(), Path: filepath.Join(dir, item.Name())})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

// Extracted describes an unpacked import archive.
type Extracted struct {
	Root     string
	DataPath string
	MediaDir string
}

// Extract unpacks the zip at src into dest, which is created. Entries that
// are absolute, climb out of dest, or are symlinks are refused, as is
// content beyond maxBytes in total when maxBytes is positive. On any error
// dest is removed.
func Extract(src, dest string, maxBytes int64) (*Extracted, error) {
	zr, err := zip.OpenReader(src)
	if errors.Is(err, zip.ErrInsecurePath) {
		zr.Close()
		return nil, fmt.Errorf("%w: %v", ErrUnsafePath, err)
	}
	if err != nil {
		return nil, fmt.Errorf("opening archive: %w", err)
	}
	defer zr.Close()

	if err := os.MkdirAll(dest, 0o755); err != nil {
		return nil, fmt.Errorf("creating extraction directory: %w", err)
	}
	if err := extractAll(zr, dest, maxBytes); err != nil {
		os.RemoveAll(dest)
		return nil, err
	}

	out := &Extracted{Root: dest}
	out.DataPath, err = LocateDataFile(dest)
	if err != nil {
		os.RemoveAll(dest)
		return nil, err
	}
	if info, err := os.Stat(filepath.Join(dest, ImagesDir)); err == nil && info.IsDir() {
		out.MediaDir = filepath.Join(dest, ImagesDir)
	}
	return out, nil
}

func extractAll(zr *zip.ReadCloser, dest string, maxBytes int64) error {
	var written int64
	for _, f := range zr.File {
		name := filepath.FromSlash(f.Name)
		if !filepath.IsLocal(name) {
			return fmt.Errorf("%w: %q", ErrUnsafePath, f.Name)
		}
		if f.Mode()&os.ModeSymlink != 0 {
			return fmt.Errorf("%w: symlink %q", ErrUnsafePath, f.Name)
		}
		target := filepath.Join(dest, name)

		if f.FileInfo().IsDir() {
			if err := os.MkdirAll(target, 0o755); err != nil {
				return fmt.Errorf("creating %s: %w", f.Name, err)
			}
			continue
		}
		if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
			return fmt.Errorf("creating directory for %s: %w", f.Name, err)
		}

		n, err := extractFile(f, target, remaining(maxBytes, written))
		if err != nil {
			return err
		}
		written += n
	}
	return nil
}

func remaining(max, used int64) int64 {
	if max <= 0 {
		return -1
	}
	return max - used
}

func extractFile(f *zip.File, target string, limit int64) (int64, error) {
	rc, err := f.Open()
	if err != nil {
		return 0, fmt.Errorf("opening %s: %w", f.Name, err)
	}
	defer rc.Close()

	out, err := os.OpenFile(target, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
	if err != nil {
		return 0, fmt.Errorf("creating %s: %w", f.Name, err)
	}
	defer out.Close()

	var r io.Reader = rc
	if limit >= 0 {
		r = io.LimitReader(rc, limit+1)
	}
	n, err := io.Copy(out, r)
	if err != nil {
		return n, fmt.Errorf("extracting %s: %w", f.Name, err)
	}
	if limit >= 0 && n > limit {
		return n, fmt.Errorf("%w at %s", ErrTooLarge, f.Name)
	}
	return n, nil
}

// LocateDataFile finds the data file at the root of dir: the first of
// DataFileNames present, else the first *.json by name.
func LocateDataFile(dir string) (string, error) {
	for _, name := range DataFileNames {
		p := filepath.Join(dir, name)
		if info, err := os.Stat(p); err == nil && info.Mode().IsRegular() {
			return p, nil
		}
	}
	matches, err := filepath.Glob(filepath.Join(dir, "*.json"))
	if err != nil {
		return "", err
	}
	sort.Strings(matches)
	for _, m := range matches {
		if info, err := os.Stat(m); err == nil && info.Mode().IsRegular() {
			return m, nil
		}
	}
	return "", ErrNoDataFile
}

// ErrNoDataFile is returned when an archive holds no JSON data file.
var ErrNoDataFile = errors.New("no JSON file found in the archive")
