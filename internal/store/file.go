package store

import (
	"encoding/json"
	"fmt"
	"os"
	"sync"

	"github.com/kaanhena/knchat-server/internal/models"
)

// FileStore 把全部账号作为一个 JSON 数组整体落盘，每次变更重写整个文件。
// 内存中的副本是权威状态，文件只在启动时读一次。
type FileStore struct {
	mu       sync.RWMutex
	path     string
	accounts []models.Account
}

// NewFileStore 打开（或初始化）指定路径的账号文件。文件不存在视为空存储。
func NewFileStore(path string) (*FileStore, error) {
	fs := &FileStore{path: path}
	raw, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return fs, nil
		}
		return nil, fmt.Errorf("read %s: %w", path, err)
	}
	if len(raw) == 0 {
		return fs, nil
	}
	if err := json.Unmarshal(raw, &fs.accounts); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	return fs, nil
}

func (fs *FileStore) FindByEmail(email string) (*models.Account, error) {
	fs.mu.RLock()
	defer fs.mu.RUnlock()
	for i := range fs.accounts {
		if fs.accounts[i].Email == email {
			acc := fs.accounts[i]
			return &acc, nil
		}
	}
	return nil, ErrNotFound
}

func (fs *FileStore) FindByUsername(username string) (*models.Account, error) {
	fs.mu.RLock()
	defer fs.mu.RUnlock()
	for i := range fs.accounts {
		if fs.accounts[i].Username == username {
			acc := fs.accounts[i]
			return &acc, nil
		}
	}
	return nil, ErrNotFound
}

// Upsert 按 ID 原地更新，不存在则追加，然后整体重写文件。
func (fs *FileStore) Upsert(acc *models.Account) error {
	fs.mu.Lock()
	defer fs.mu.Unlock()
	replaced := false
	for i := range fs.accounts {
		if fs.accounts[i].ID == acc.ID {
			fs.accounts[i] = *acc
			replaced = true
			break
		}
	}
	if !replaced {
		fs.accounts = append(fs.accounts, *acc)
	}
	return fs.persist()
}

func (fs *FileStore) List() ([]models.Account, error) {
	fs.mu.RLock()
	defer fs.mu.RUnlock()
	out := make([]models.Account, len(fs.accounts))
	copy(out, fs.accounts)
	return out, nil
}

func (fs *FileStore) persist() error {
	raw, err := json.MarshalIndent(fs.accounts, "", "  ")
	if err != nil {
		return err
	}
	if err := os.WriteFile(fs.path, raw, 0o600); err != nil {
		return fmt.Errorf("write %s: %w", fs.path, err)
	}
	return nil
}
