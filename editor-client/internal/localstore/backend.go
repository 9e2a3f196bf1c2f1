package localstore

import "sync"

// Backend - носитель сериализованного состояния хранилища. Load возвращает
// (nil, nil), если блоба еще нет. LoadLegacy/DeleteLegacy обслуживают
// одноразовую миграцию плоского снапшота старого формата.
type Backend interface {
	Load() ([]byte, error)
	Store(data []byte) error
	LoadLegacy() ([]byte, error)
	DeleteLegacy() error
}

// MemoryBackend держит блобы в памяти. Используется в тестах и как
// носитель по умолчанию, когда долговечность не нужна.
type MemoryBackend struct {
	mu     sync.Mutex
	blob   []byte
	legacy []byte
}

// Compile-time check
var _ Backend = (*MemoryBackend)(nil)

// NewMemoryBackend создает пустой backend в памяти.
func NewMemoryBackend() *MemoryBackend {
	return &MemoryBackend{}
}

// SeedBlob подкладывает сериализованное состояние (для тестов).
func (b *MemoryBackend) SeedBlob(data []byte) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.blob = append([]byte(nil), data...)
}

// SeedLegacy подкладывает легаси-блоб (для тестов миграции).
func (b *MemoryBackend) SeedLegacy(data []byte) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.legacy = append([]byte(nil), data...)
}

func (b *MemoryBackend) Load() ([]byte, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.blob == nil {
		return nil, nil
	}
	return append([]byte(nil), b.blob...), nil
}

func (b *MemoryBackend) Store(data []byte) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.blob = append([]byte(nil), data...)
	return nil
}

func (b *MemoryBackend) LoadLegacy() ([]byte, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.legacy == nil {
		return nil, nil
	}
	return append([]byte(nil), b.legacy...), nil
}

func (b *MemoryBackend) DeleteLegacy() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.legacy = nil
	return nil
}
