package postgres

import (
	"context"
	"fmt"
	"time"

	"gorm.io/driver/mysql"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	"gorm.io/gorm/logger"

	"msgrelay/backend/internal/domain"
	"msgrelay/backend/internal/storage"
)

// PoolOptions 连接池参数
type PoolOptions struct {
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
}

// DefaultPoolOptions 默认连接池参数
func DefaultPoolOptions() PoolOptions {
	return PoolOptions{
		MaxOpenConns:    25,
		MaxIdleConns:    5,
		ConnMaxLifetime: 5 * time.Minute,
	}
}

// Store GORM 存储实现（PostgreSQL / MySQL）
type Store struct {
	db *gorm.DB
}

// NewStore 创建 PostgreSQL 存储实例
func NewStore(dsn string, pool PoolOptions) (*Store, error) {
	return NewStoreWithDialector(postgres.Open(dsn), pool)
}

// NewMySQLStore 创建 MySQL 存储实例
func NewMySQLStore(dsn string, pool PoolOptions) (*Store, error) {
	return NewStoreWithDialector(mysql.Open(dsn), pool)
}

// NewStoreWithDialector 使用指定的GORM dialector创建存储实例
func NewStoreWithDialector(dialector gorm.Dialector, pool PoolOptions) (*Store, error) {
	// 配置 GORM
	config := &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent), // 静默模式
		NowFunc: func() time.Time {
			return time.Now().UTC()
		},
	}

	// 连接数据库
	db, err := gorm.Open(dialector, config)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	// 配置连接池
	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get underlying sql.DB: %w", err)
	}

	sqlDB.SetMaxOpenConns(pool.MaxOpenConns)
	sqlDB.SetMaxIdleConns(pool.MaxIdleConns)
	sqlDB.SetConnMaxLifetime(pool.ConnMaxLifetime)

	store := newStore(db)

	// 自动迁移数据库表
	if err := store.migrate(); err != nil {
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}

	return store, nil
}

func newStore(db *gorm.DB) *Store {
	return &Store{db: db}
}

// mysqlEmailCollation 邮箱列改为按字节比较，与 schema/mysql.sql 保持一致
const mysqlEmailCollation = "ALTER TABLE messages MODIFY email VARCHAR(254) CHARACTER SET utf8mb4 COLLATE utf8mb4_bin NOT NULL"

// migrate 自动迁移数据库表结构
func (s *Store) migrate() error {
	if err := s.db.AutoMigrate(&domain.Message{}); err != nil {
		return err
	}
	return s.alignEmailCollation()
}

// alignEmailCollation MySQL 默认排序规则不区分大小写，需单独固定邮箱列
func (s *Store) alignEmailCollation() error {
	if s.db.Dialector.Name() != "mysql" {
		return nil
	}
	if err := s.db.Exec(mysqlEmailCollation).Error; err != nil {
		return fmt.Errorf("set email collation: %w", err)
	}
	return nil
}

// SaveMessage 按主键插入或覆盖消息
func (s *Store) SaveMessage(ctx context.Context, message *domain.Message) error {
	if err := storage.CheckMessage(message); err != nil {
		return err
	}

	err := s.db.WithContext(ctx).
		Clauses(clause.OnConflict{UpdateAll: true}).
		Create(message).Error
	if err != nil {
		return fmt.Errorf("save message: %w", err)
	}
	return nil
}

// ListMessagesByEmail 查询指定邮箱的全部消息
func (s *Store) ListMessagesByEmail(ctx context.Context, email string) ([]domain.Message, error) {
	messages := make([]domain.Message, 0)
	err := s.db.WithContext(ctx).
		Where("email = ?", email).
		Order("created_at").
		Find(&messages).Error
	if err != nil {
		return nil, fmt.Errorf("list messages: %w", err)
	}
	return messages, nil
}

// Close 关闭数据库连接
func (s *Store) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// Health 检查数据库健康状态
func (s *Store) Health() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return sqlDB.PingContext(ctx)
}
