package store

import (
	"errors"

	"github.com/kaanhena/knchat-server/internal/models"
)

// ErrNotFound 表示查询的账号不存在。
var ErrNotFound = errors.New("account not found")

// Store 是账号存储的窄接口，所有写入都经过 Upsert 一个入口。
// 查询入参要求已归一化（email 小写去空格）。
type Store interface {
	FindByEmail(email string) (*models.Account, error)
	FindByUsername(username string) (*models.Account, error)
	Upsert(acc *models.Account) error
	List() ([]models.Account, error)
}
