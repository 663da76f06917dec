package store

import (
	"errors"
	"time"

	"github.com/kaanhena/knchat-server/internal/models"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// GormStore 是 Postgres 后端，部署多实例前的过渡存储也用它。
type GormStore struct {
	db *gorm.DB
}

// NewGormStore 建立到 Postgres 的连接并迁移表结构，带简单重试等待容器就绪。
func NewGormStore(dsn string) (*GormStore, error) {
	var gdb *gorm.DB
	var err error
	for i := 0; i < 10; i++ {
		gdb, err = gorm.Open(postgres.Open(dsn), &gorm.Config{Logger: logger.Default.LogMode(logger.Silent)})
		if err == nil {
			sqlDB, err2 := gdb.DB()
			if err2 == nil {
				sqlDB.SetMaxIdleConns(5)
				sqlDB.SetMaxOpenConns(20)
				sqlDB.SetConnMaxLifetime(time.Hour)
				if err3 := gdb.AutoMigrate(&models.Account{}); err3 != nil {
					return nil, err3
				}
				return &GormStore{db: gdb}, nil
			}
			err = err2
		}
		time.Sleep(time.Duration(500+i*200) * time.Millisecond)
	}
	return nil, err
}

func (s *GormStore) FindByEmail(email string) (*models.Account, error) {
	var acc models.Account
	if err := s.db.Where("email = ?", email).First(&acc).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &acc, nil
}

func (s *GormStore) FindByUsername(username string) (*models.Account, error) {
	var acc models.Account
	if err := s.db.Where("username = ?", username).First(&acc).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &acc, nil
}

func (s *GormStore) Upsert(acc *models.Account) error {
	return s.db.Save(acc).Error
}

func (s *GormStore) List() ([]models.Account, error) {
	var accs []models.Account
	if err := s.db.Order("created_at").Find(&accs).Error; err != nil {
		return nil, err
	}
	return accs, nil
}
