package localstore

import (
	"errors"
	"fmt"
	"io/fs"
	"os"

	"github.com/adrg/xdg"
)

const (
	storeFileName  = "groqtales/story_drafts_store_v1.json"
	legacyFileName = "groqtales/story_draft_legacy.json"
)

// FileBackend хранит блоб одним JSON-файлом в state-директории пользователя
// (XDG_STATE_HOME). Легаси-снапшот лежит рядом отдельным файлом.
type FileBackend struct {
	path       string
	legacyPath string
}

// Compile-time check
var _ Backend = (*FileBackend)(nil)

// NewFileBackend разрешает пути через xdg и создает недостающие директории.
func NewFileBackend() (*FileBackend, error) {
	path, err := xdg.StateFile(storeFileName)
	if err != nil {
		return nil, fmt.Errorf("ошибка разрешения пути хранилища черновиков: %w", err)
	}
	legacyPath, err := xdg.StateFile(legacyFileName)
	if err != nil {
		return nil, fmt.Errorf("ошибка разрешения пути легаси-черновика: %w", err)
	}
	return &FileBackend{path: path, legacyPath: legacyPath}, nil
}

func (b *FileBackend) Load() ([]byte, error) {
	data, err := os.ReadFile(b.path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("ошибка чтения хранилища черновиков: %w", err)
	}
	return data, nil
}

func (b *FileBackend) Store(data []byte) error {
	// Запись через временный файл, чтобы незавершенная запись не битила блоб.
	tmp := b.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o600); err != nil {
		return fmt.Errorf("ошибка записи хранилища черновиков: %w", err)
	}
	if err := os.Rename(tmp, b.path); err != nil {
		return fmt.Errorf("ошибка замены файла хранилища черновиков: %w", err)
	}
	return nil
}

func (b *FileBackend) LoadLegacy() ([]byte, error) {
	data, err := os.ReadFile(b.legacyPath)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("ошибка чтения легаси-черновика: %w", err)
	}
	return data, nil
}

func (b *FileBackend) DeleteLegacy() error {
	if err := os.Remove(b.legacyPath); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("ошибка удаления легаси-черновика: %w", err)
	}
	return nil
}
