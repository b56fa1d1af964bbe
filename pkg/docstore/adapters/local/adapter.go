package local

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/hashicorp/go-hclog"
	"github.com/spf13/afero"

	"github.com/rbxmod/banlist/pkg/docstore"
)

var (
	_ docstore.Store         = (*Adapter)(nil)
	_ docstore.HistoryReader = (*Adapter)(nil)
)

// Config configures the filesystem adapter.
type Config struct {
	// Path is the document file path.
	Path string

	// Fs is the filesystem to use. Defaults to the OS filesystem.
	Fs afero.Fs

	// History, when set, appends one line per write to Path + ".history".
	History bool
}

// Adapter stores the document as a single file. The revision is the hex
// SHA-256 of the file content, so any out-of-band edit also invalidates
// outstanding revisions.
type Adapter struct {
	fs      afero.Fs
	path    string
	history bool
	logger  hclog.Logger

	// mu makes compare-and-write atomic within this process.
	mu sync.Mutex
}

// NewAdapter creates a filesystem adapter.
func NewAdapter(cfg *Config, logger hclog.Logger) (*Adapter, error) {
	if strings.TrimSpace(cfg.Path) == "" {
		return nil, fmt.Errorf("local store path is required")
	}
	if logger == nil {
		logger = hclog.NewNullLogger()
	}
	fsys := cfg.Fs
	if fsys == nil {
		fsys = afero.NewOsFs()
	}

	return &Adapter{
		fs:      fsys,
		path:    filepath.Clean(cfg.Path),
		history: cfg.History,
		logger:  logger.Named("local-store"),
	}, nil
}

// Name returns the adapter name.
func (a *Adapter) Name() string {
	return "local"
}

// Get reads the document file.
func (a *Adapter) Get(ctx context.Context) (*docstore.Object, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return a.read()
}

// Put writes the document if revision matches the current file digest.
func (a *Adapter) Put(ctx context.Context, content []byte, revision, message string) (string, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return "", err
	}

	current, err := a.read()
	switch {
	case errors.Is(err, docstore.ErrNotFound):
		if revision != "" {
			return "", fmt.Errorf("%s was removed since revision %s: %w", a.path, revision, docstore.ErrConflict)
		}
	case err != nil:
		return "", err
	default:
		if current.Revision != revision {
			return "", fmt.Errorf("%s is at revision %s, not %s: %w", a.path, current.Revision, revision, docstore.ErrConflict)
		}
	}

	if err := a.fs.MkdirAll(filepath.Dir(a.path), 0o755); err != nil {
		return "", fmt.Errorf("failed to create directory for %s: %w", a.path, err)
	}

	tmp := a.path + ".tmp"
	if err := afero.WriteFile(a.fs, tmp, content, 0o644); err != nil {
		return "", fmt.Errorf("failed to write %s: %w", tmp, err)
	}
	if err := a.fs.Rename(tmp, a.path); err != nil {
		return "", fmt.Errorf("failed to replace %s: %w", a.path, err)
	}

	newRevision := digest(content)
	if a.history {
		if err := a.appendHistory(newRevision, message); err != nil {
			a.logger.Warn("failed to append history", "path", a.path, "error", err)
		}
	}

	a.logger.Debug("wrote document", "path", a.path, "revision", newRevision, "message", message)
	return newRevision, nil
}

func (a *Adapter) read() (*docstore.Object, error) {
	content, err := afero.ReadFile(a.fs, a.path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, docstore.ErrNotFound
		}
		return nil, fmt.Errorf("failed to read %s: %w", a.path, err)
	}
	return &docstore.Object{Content: content, Revision: digest(content)}, nil
}

func (a *Adapter) appendHistory(revision, message string) error {
	f, err := a.fs.OpenFile(a.path+".history", os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return err
	}
	defer f.Close()

	line := fmt.Sprintf("%s %s %s\n",
		time.Now().UTC().Format(time.RFC3339), revision, strings.ReplaceAll(message, "\n", " "))
	_, err = f.WriteString(line)
	return err
}

// History implements docstore.HistoryReader. It reads the history file,
// which is empty unless Config.History was set when writing.
func (a *Adapter) History(_ context.Context, limit int) ([]docstore.Change, error) {
	data, err := afero.ReadFile(a.fs, a.path+".history")
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to read history for %s: %w", a.path, err)
	}

	lines := strings.Split(strings.TrimSpace(string(data)), "\n")
	var changes []docstore.Change
	for i := len(lines) - 1; i >= 0 && (limit <= 0 || len(changes) < limit); i-- {
		fields := strings.SplitN(lines[i], " ", 3)
		if len(fields) < 2 {
			continue
		}
		change := docstore.Change{Revision: fields[1]}
		if t, err := time.Parse(time.RFC3339, fields[0]); err == nil {
			change.Time = t
		}
		if len(fields) == 3 {
			change.Message = fields[2]
		}
		changes = append(changes, change)
	}
	return changes, nil
}

func digest(content []byte) string {
	sum := sha256.Sum256(content)
	return hex.EncodeToString(sum[:])
}
