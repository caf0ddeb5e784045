// Package mediastore exposes a set of image directories as a queryable media
// store with a recursive change feed.
package mediastore

import (
	"errors"
	"fmt"
	"io"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/h2non/filetype"
	"github.com/tiroq/screencap/internal/diaglog"
)

var (
	// ErrNotFound is returned by Query when the item no longer exists.
	ErrNotFound = errors.New("media item not found")
	// ErrNotImage is returned by Query when the item is not (yet) an image.
	ErrNotImage = errors.New("media item is not an image")
)

// headerSize is the number of bytes filetype needs to match any image kind.
const headerSize = 262

// ChangeRef identifies one changed item as reported by the change feed.
// ID is opaque: it names a specific version of the file, so repeated
// notifications for the same write share an ID.
type ChangeRef struct {
	ID   string
	Path string
}

// Item is the metadata the store returns for a changed entry.
type Item struct {
	Path        string    `json:"path"`
	DisplayName string    `json:"display_name"`
	DateAdded   time.Time `json:"date_added"`
	MIME        string    `json:"mime"`
}

// Store is a media store rooted at one or more directories.
type Store struct {
	roots  []string
	logger *diaglog.Logger
}

// NewStore creates a store over the given root directories
func NewStore(roots ...string) *Store {
	cleaned := make([]string, 0, len(roots))
	for _, r := range roots {
		if r == "" {
			continue
		}
		if abs, err := filepath.Abs(r); err == nil {
			r = abs
		}
		cleaned = append(cleaned, filepath.Clean(r))
	}
	return &Store{roots: cleaned}
}

// Roots returns the store's root directories
func (s *Store) Roots() []string {
	out := make([]string, len(s.roots))
	copy(out, s.roots)
	return out
}

// SetLogger injects a diaglog.Logger. Passing nil disables structured logging.
func (s *Store) SetLogger(l *diaglog.Logger) {
	s.logger = l
}

// Query reads the metadata of the item behind ref. The file must exist and
// start with a recognised image signature.
func (s *Store) Query(ref ChangeRef) (*Item, error) {
	info, err := os.Stat(ref.Path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("query %s: %w", ref.Path, ErrNotFound)
		}
		return nil, fmt.Errorf("query %s: %w", ref.Path, err)
	}
	if info.IsDir() {
		return nil, fmt.Errorf("query %s: directory: %w", ref.Path, ErrNotImage)
	}

	head, err := readHeader(ref.Path)
	if err != nil {
		return nil, fmt.Errorf("query %s: %w", ref.Path, err)
	}
	if !filetype.IsImage(head) {
		return nil, fmt.Errorf("query %s: %w", ref.Path, ErrNotImage)
	}
	kind, err := filetype.Match(head)
	if err != nil {
		return nil, fmt.Errorf("query %s: %w", ref.Path, err)
	}

	return &Item{
		Path:        ref.Path,
		DisplayName: filepath.Base(ref.Path),
		DateAdded:   dateAdded(ref.Path, info),
		MIME:        kind.MIME.Value,
	}, nil
}

// dateAdded is the file's creation time. Later writes must not make an old
// file look new, so the modification time is only used where the
// filesystem keeps no creation time.
func dateAdded(path string, info os.FileInfo) time.Time {
	if bt, ok := birthTime(path); ok {
		return bt
	}
	return info.ModTime()
}

func readHeader(path string) ([]byte, error) {
	f, err := os.Open(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	defer func() { _ = f.Close() }()

	head := make([]byte, headerSize)
	n, err := io.ReadFull(f, head)
	if err != nil && !errors.Is(err, io.EOF) && !errors.Is(err, io.ErrUnexpectedEOF) {
		return nil, err
	}
	return head[:n], nil
}

// refFor builds the change reference for path. The version component is
// the modification time, or 0 when the file is already gone.
func refFor(path string) ChangeRef {
	var version int64
	if info, err := os.Stat(path); err == nil {
		version = info.ModTime().UnixNano()
	}
	u := url.URL{
		Scheme:   "file",
		Path:     filepath.ToSlash(path),
		RawQuery: "v=" + strconv.FormatInt(version, 10),
	}
	return ChangeRef{ID: u.String(), Path: path}
}

func (s *Store) log(entry diaglog.LogEntry) {
	if s.logger == nil {
		return
	}
	if entry.Component == "" {
		entry.Component = diaglog.ComponentMediaStore
	}
	s.logger.Log(entry)
}

func isDir(path string) bool {
	info, err := os.Stat(path)
	return err == nil && info.IsDir()
}
