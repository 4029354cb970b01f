package directory

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"sync"

	"github.com/BurntSushi/toml"
	"github.com/fsnotify/fsnotify"
)

// fileFormat is the on-disk TOML shape:
//
//	[[members]]
//	card = "123456"
//	name = "Alice"
//	position = "President"
type fileFormat struct {
	Members []fileMember `toml:"members"`
}

type fileMember struct {
	Card     string `toml:"card"`
	Name     string `toml:"name"`
	Position string `toml:"position"`
}

// FileDirectory resolves cards from a TOML file and hot-reloads it when
// the file changes, so the kiosk mapping can be edited without a
// restart. The member ID is the card identifier: the file has no other
// stable key and cards in file mode are not reassignable at runtime.
type FileDirectory struct {
	log  *slog.Logger
	path string

	mu      sync.RWMutex
	byCard  map[string]Member
	watcher *fsnotify.Watcher
}

// NewFileDirectory loads the mapping at path.
func NewFileDirectory(log *slog.Logger, path string) (*FileDirectory, error) {
	d := &FileDirectory{log: log, path: path}
	if err := d.reload(); err != nil {
		return nil, err
	}
	return d, nil
}

// Resolve looks up a card in the current mapping.
func (d *FileDirectory) Resolve(_ context.Context, cardID string) (Member, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	m, ok := d.byCard[cardID]
	if !ok {
		return Member{}, unknownCard(cardID)
	}
	return m, nil
}

// Len returns the number of mapped cards.
func (d *FileDirectory) Len() int {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return len(d.byCard)
}

// Watch reloads the mapping whenever the file is rewritten, until ctx
// is cancelled. A reload that fails to parse keeps the previous mapping.
func (d *FileDirectory) Watch(ctx context.Context) error {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	d.watcher = w

	// Watch the parent directory: editors typically replace the file,
	// which would drop a watch on the file itself.
	if err := w.Add(filepath.Dir(d.path)); err != nil {
		_ = w.Close()
		return err
	}

	go func() {
		defer func() { _ = w.Close() }()
		for {
			select {
			case <-ctx.Done():
				return
			case ev, ok := <-w.Events:
				if !ok {
					return
				}
				if filepath.Clean(ev.Name) != filepath.Clean(d.path) {
					continue
				}
				if !ev.Op.Has(fsnotify.Write) && !ev.Op.Has(fsnotify.Create) {
					continue
				}
				if err := d.reload(); err != nil {
					d.log.Error("directory.reload.fail", "path", d.path, "err", err)
					continue
				}
				d.log.Info("directory.reload", "path", d.path, "members", d.Len())
			case err, ok := <-w.Errors:
				if !ok {
					return
				}
				d.log.Error("directory.watch.fail", "err", err)
			}
		}
	}()

	return nil
}

func (d *FileDirectory) reload() error {
	var raw fileFormat
	if _, err := toml.DecodeFile(d.path, &raw); err != nil {
		return err
	}

	byCard := make(map[string]Member, len(raw.Members))
	for _, m := range raw.Members {
		if m.Card == "" || m.Name == "" {
			return fmt.Errorf("member entry needs both card and name (card=%q name=%q)", m.Card, m.Name)
		}
		if _, dup := byCard[m.Card]; dup {
			return fmt.Errorf("duplicate card %q", m.Card)
		}
		byCard[m.Card] = Member{
			ID:       m.Card,
			Name:     m.Name,
			Position: m.Position,
			CardID:   m.Card,
		}
	}

	d.mu.Lock()
	d.byCard = byCard
	d.mu.Unlock()
	return nil
}
