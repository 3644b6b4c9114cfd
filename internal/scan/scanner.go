package scan

import (
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"

	"imagecompressor/internal/compress"
)

// extension -> declared type when content sniffing is inconclusive
var supportedExtensions = map[string]string{
	".jpg":  "image/jpeg",
	".jpeg": "image/jpeg",
	".png":  "image/png",
	".gif":  "image/gif",
	".webp": "image/webp",
	".bmp":  "image/bmp",
	".tiff": "image/tiff",
	".tif":  "image/tiff",
	".qoi":  "image/qoi",
}

// IsSupportedImage checks the file extension
func IsSupportedImage(path string) bool {
	_, ok := supportedExtensions[strings.ToLower(filepath.Ext(path))]
	return ok
}

// DetectType sniffs the content and falls back to the extension
func DetectType(path string, data []byte) string {
	if t := http.DetectContentType(data); strings.HasPrefix(t, "image/") {
		return t
	}
	return supportedExtensions[strings.ToLower(filepath.Ext(path))]
}

// File is an image read from disk
type File struct {
	Path   string
	Source compress.Source
}

// Skipped is a file that could not be read
type Skipped struct {
	Path string
	Err  error
}

// Result holds files in argument and walk order
type Result struct {
	Files   []File
	Skipped []Skipped
}

// Scanner collects images from files and folders
type Scanner struct {
	workers    int
	maxSize    int64
	exclude    []string
	progressFn func(scanned, total int, current string)
}

// Option configures a Scanner
type Option func(*Scanner)

// WithWorkers sets the number of parallel readers
func WithWorkers(n int) Option {
	return func(s *Scanner) {
		if n > 0 {
			s.workers = n
		}
	}
}

// WithMaxSize skips files larger than n bytes
func WithMaxSize(n int64) Option {
	return func(s *Scanner) {
		s.maxSize = n
	}
}

// WithExclude skips a directory tree, such as the output folder
func WithExclude(dir string) Option {
	return func(s *Scanner) {
		if abs, err := filepath.Abs(dir); err == nil {
			s.exclude = append(s.exclude, abs)
		}
	}
}

// WithProgress sets a progress callback
func WithProgress(fn func(scanned, total int, current string)) Option {
	return func(s *Scanner) {
		s.progressFn = fn
	}
}

// NewScanner creates a new Scanner
func NewScanner(opts ...Option) *Scanner {
	s := &Scanner{
		workers: 8,
		maxSize: 50 << 20,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Collect resolves paths to image files and reads them in parallel.
// A missing path is an error; unreadable files are reported in Skipped.
func (s *Scanner) Collect(paths ...string) (*Result, error) {
	var files []string
	seen := make(map[string]bool)
	add := func(p string) {
		if !seen[p] {
			seen[p] = true
			files = append(files, p)
		}
	}

	for _, root := range paths {
		info, err := os.Stat(root)
		if err != nil {
			return nil, fmt.Errorf("failed to stat %s: %w", root, err)
		}
		if !info.IsDir() {
			if !IsSupportedImage(root) {
				return nil, fmt.Errorf("unsupported image: %s", root)
			}
			add(root)
			continue
		}

		err = filepath.WalkDir(root, func(path string, d os.DirEntry, err error) error {
			if err != nil {
				return nil // Skip errors
			}
			if d.IsDir() {
				if s.excluded(path) {
					return filepath.SkipDir
				}
				return nil
			}
			if IsSupportedImage(path) {
				add(path)
			}
			return nil
		})
		if err != nil {
			return nil, fmt.Errorf("failed to walk folder: %w", err)
		}
	}

	return s.read(files), nil
}

func (s *Scanner) excluded(dir string) bool {
	abs, err := filepath.Abs(dir)
	if err != nil {
		return false
	}
	for _, ex := range s.exclude {
		if abs == ex {
			return true
		}
	}
	return false
}

type readResult struct {
	file File
	err  error
}

func (s *Scanner) read(paths []string) *Result {
	results := make([]readResult, len(paths))
	var (
		wg      sync.WaitGroup
		scanned int64
		total   = len(paths)
	)

	work := make(chan int, len(paths))
	for i := range paths {
		work <- i
	}
	close(work)

	for i := 0; i < s.workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for idx := range work {
				path := paths[idx]
				results[idx] = s.readOne(path)

				n := atomic.AddInt64(&scanned, 1)
				if s.progressFn != nil {
					s.progressFn(int(n), total, path)
				}
			}
		}()
	}
	wg.Wait()

	res := &Result{}
	for i, r := range results {
		if r.err != nil {
			res.Skipped = append(res.Skipped, Skipped{Path: paths[i], Err: r.err})
			continue
		}
		res.Files = append(res.Files, r.file)
	}
	return res
}

func (s *Scanner) readOne(path string) readResult {
	info, err := os.Stat(path)
	if err != nil {
		return readResult{err: err}
	}
	if s.maxSize > 0 && info.Size() > s.maxSize {
		return readResult{err: fmt.Errorf("file is %d bytes, limit is %d", info.Size(), s.maxSize)}
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return readResult{err: err}
	}
	return readResult{file: File{
		Path: path,
		Source: compress.Source{
			Name: filepath.Base(path),
			Type: DetectType(path, data),
			Data: data,
		},
	}}
}
