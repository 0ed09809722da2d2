package session

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/dvloznov/bookkeeper/internal/domain"
)

const (
	filePrefix   = "categorization_results_"
	fileSuffix   = ".jsonl"
	headerPrefix = "# "
)

type fileHeader struct {
	Metadata domain.SessionMeta `json:"_metadata"`
}

// FileStore keeps one JSONL file per session in a directory. Line one is a
// "# "-prefixed metadata header; every other line is one result.
type FileStore struct {
	dir string
	mu  sync.Mutex
}

// NewFileStore returns a store rooted at dir, creating it if needed.
func NewFileStore(dir string) (*FileStore, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("NewFileStore: %w", err)
	}
	return &FileStore{dir: dir}, nil
}

// Path returns the log file of a session.
func (s *FileStore) Path(sessionID string) string {
	return filepath.Join(s.dir, filePrefix+sessionID+fileSuffix)
}

// Create writes the header of a new session.
func (s *FileStore) Create(ctx context.Context, meta domain.SessionMeta) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	f, err := os.OpenFile(s.Path(meta.SessionID), os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o644)
	if errors.Is(err, os.ErrExist) {
		return fmt.Errorf("FileStore.Create: %s: %w", meta.SessionID, ErrExists)
	}
	if err != nil {
		return fmt.Errorf("FileStore.Create: %w", err)
	}
	defer f.Close()

	line, err := json.Marshal(fileHeader{Metadata: meta})
	if err != nil {
		return fmt.Errorf("FileStore.Create: encoding header: %w", err)
	}
	if _, err := f.Write(append(append([]byte(headerPrefix), line...), '\n')); err != nil {
		return fmt.Errorf("FileStore.Create: writing header: %w", err)
	}
	return f.Sync()
}

// Append writes results as one contiguous block and syncs it. A torn record
// left behind by an earlier crash is cut off first.
func (s *FileStore) Append(ctx context.Context, sessionID string, results ...domain.CategorizationResult) error {
	if len(results) == 0 {
		return nil
	}
	var buf bytes.Buffer
	for _, r := range results {
		line, err := json.Marshal(r)
		if err != nil {
			return fmt.Errorf("FileStore.Append: encoding %s: %w", r.TransactionID, err)
		}
		buf.Write(line)
		buf.WriteByte('\n')
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	f, err := os.OpenFile(s.Path(sessionID), os.O_RDWR, 0)
	if errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("FileStore.Append: %s: %w", sessionID, ErrNotFound)
	}
	if err != nil {
		return fmt.Errorf("FileStore.Append: %w", err)
	}
	defer f.Close()

	if err := trimTornTail(f); err != nil {
		return fmt.Errorf("FileStore.Append: %w", err)
	}
	if _, err := f.Seek(0, io.SeekEnd); err != nil {
		return fmt.Errorf("FileStore.Append: %w", err)
	}
	if _, err := f.Write(buf.Bytes()); err != nil {
		return fmt.Errorf("FileStore.Append: writing: %w", err)
	}
	return f.Sync()
}

// trimTornTail truncates f after its last newline when the file does not end
// with one.
func trimTornTail(f *os.File) error {
	info, err := f.Stat()
	if err != nil {
		return err
	}
	size := info.Size()
	if size == 0 {
		return nil
	}
	last := make([]byte, 1)
	if _, err := f.ReadAt(last, size-1); err != nil {
		return err
	}
	if last[0] == '\n' {
		return nil
	}
	data := make([]byte, size)
	if _, err := f.ReadAt(data, 0); err != nil {
		return err
	}
	return f.Truncate(int64(bytes.LastIndexByte(data, '\n') + 1))
}

// ReadAll returns the header and every complete result of a session.
func (s *FileStore) ReadAll(ctx context.Context, sessionID string) (domain.SessionMeta, []domain.CategorizationResult, error) {
	f, err := os.Open(s.Path(sessionID))
	if errors.Is(err, os.ErrNotExist) {
		return domain.SessionMeta{}, nil, fmt.Errorf("FileStore.ReadAll: %s: %w", sessionID, ErrNotFound)
	}
	if err != nil {
		return domain.SessionMeta{}, nil, fmt.Errorf("FileStore.ReadAll: %w", err)
	}
	defer f.Close()

	meta, results, err := decodeLog(f)
	if err != nil {
		return domain.SessionMeta{}, nil, fmt.Errorf("FileStore.ReadAll: %s: %w", sessionID, err)
	}
	return meta, results, nil
}

func decodeLog(r io.Reader) (domain.SessionMeta, []domain.CategorizationResult, error) {
	br := bufio.NewReader(r)
	var (
		meta    domain.SessionMeta
		results []domain.CategorizationResult
	)
	for lineNo := 1; ; lineNo++ {
		line, err := br.ReadBytes('\n')
		if err != nil && !errors.Is(err, io.EOF) {
			return meta, nil, err
		}
		complete := len(line) > 0 && line[len(line)-1] == '\n'
		text := bytes.TrimSpace(line)

		switch {
		case len(text) == 0:
		case lineNo == 1:
			h, herr := decodeHeader(text)
			if herr != nil {
				return meta, nil, herr
			}
			meta = h
		case text[0] == '#':
		default:
			var res domain.CategorizationResult
			if jerr := json.Unmarshal(text, &res); jerr != nil {
				if !complete {
					// torn final record from an interrupted append
					break
				}
				return meta, nil, fmt.Errorf("line %d: %w", lineNo, jerr)
			}
			results = append(results, res)
		}
		if errors.Is(err, io.EOF) {
			break
		}
	}
	if meta.SessionID == "" {
		return meta, nil, fmt.Errorf("missing metadata header")
	}
	return meta, results, nil
}

func decodeHeader(text []byte) (domain.SessionMeta, error) {
	raw, ok := bytes.CutPrefix(text, []byte("#"))
	if !ok {
		return domain.SessionMeta{}, fmt.Errorf("first line is not a metadata header")
	}
	var h fileHeader
	if err := json.Unmarshal(bytes.TrimSpace(raw), &h); err != nil {
		return domain.SessionMeta{}, fmt.Errorf("decoding metadata header: %w", err)
	}
	return h.Metadata, nil
}

// List returns the header of every session in the directory.
func (s *FileStore) List(ctx context.Context) ([]domain.SessionMeta, error) {
	paths, err := filepath.Glob(filepath.Join(s.dir, filePrefix+"*"+fileSuffix))
	if err != nil {
		return nil, fmt.Errorf("FileStore.List: %w", err)
	}
	var metas []domain.SessionMeta
	for _, p := range paths {
		meta, err := readHeader(p)
		if err != nil {
			// the id in the file name is still enough to order the session
			id := strings.TrimSuffix(strings.TrimPrefix(filepath.Base(p), filePrefix), fileSuffix)
			metas = append(metas, domain.SessionMeta{SessionID: id})
			continue
		}
		metas = append(metas, meta)
	}
	SortNewestFirst(metas)
	return metas, nil
}

func readHeader(path string) (domain.SessionMeta, error) {
	f, err := os.Open(path)
	if err != nil {
		return domain.SessionMeta{}, err
	}
	defer f.Close()
	line, err := bufio.NewReader(f).ReadBytes('\n')
	if err != nil && !errors.Is(err, io.EOF) {
		return domain.SessionMeta{}, err
	}
	return decodeHeader(bytes.TrimSpace(line))
}

// DiscoverLatest returns the most recent session in the directory.
func (s *FileStore) DiscoverLatest(ctx context.Context) (string, error) {
	metas, err := s.List(ctx)
	if err != nil {
		return "", err
	}
	return Latest(metas)
}

// Close is a no-op; files are opened per call.
func (s *FileStore) Close() error { return nil }

var _ Store = (*FileStore)(nil)
