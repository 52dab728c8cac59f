package sql

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/go-sql-driver/mysql" // MySQL driver
	_ "github.com/lib/pq"              // PostgreSQL driver

	"msgrelay/backend/internal/domain"
	"msgrelay/backend/internal/storage"
)

const messageColumns = "message_id, client_id, message, email, subject, direction, created_at"

// Store SQL 数据库存储实现（支持 MySQL 5.7+ 和 PostgreSQL）
type Store struct {
	db         *sql.DB
	driverName string // "mysql" or "postgres"
}

// NewStore 创建SQL数据库存储并执行建表
func NewStore(
	driverName string,
	dsn string,
	maxOpenConns int,
	maxIdleConns int,
	connMaxLifetime time.Duration,
) (*Store, error) {
	if err := checkDriver(driverName); err != nil {
		return nil, err
	}

	// 打开数据库连接
	db, err := sql.Open(driverName, dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// 设置连接池参数
	db.SetMaxOpenConns(maxOpenConns)
	db.SetMaxIdleConns(maxIdleConns)
	db.SetConnMaxLifetime(connMaxLifetime)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	// 测试连接
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	store := NewStoreWithDB(db, driverName)
	if err := store.Migrate(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}

	return store, nil
}

// NewStoreWithDB 使用已有连接创建存储，不执行建表
func NewStoreWithDB(db *sql.DB, driverName string) *Store {
	return &Store{db: db, driverName: driverName}
}

// Migrate 执行内置建表语句（幂等）
func (s *Store) Migrate(ctx context.Context) error {
	stmts, err := Schema(s.driverName)
	if err != nil {
		return err
	}
	for _, stmt := range stmts {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("exec schema statement: %w", err)
		}
	}
	return nil
}

// SaveMessage 按 message_id 插入或覆盖消息
func (s *Store) SaveMessage(ctx context.Context, message *domain.Message) error {
	if err := storage.CheckMessage(message); err != nil {
		return err
	}

	_, err := s.db.ExecContext(ctx, s.upsertQuery(),
		message.MessageID,
		message.ClientID,
		message.Message,
		message.Email,
		message.Subject,
		string(message.Direction),
		message.Timestamp.UTC(),
	)
	if err != nil {
		return fmt.Errorf("save message: %w", err)
	}
	return nil
}

// ListMessagesByEmail 查询指定邮箱的全部消息
func (s *Store) ListMessagesByEmail(ctx context.Context, email string) ([]domain.Message, error) {
	query := fmt.Sprintf("SELECT %s FROM messages WHERE email = %s ORDER BY created_at",
		messageColumns, s.placeholder(1))

	rows, err := s.db.QueryContext(ctx, query, email)
	if err != nil {
		return nil, fmt.Errorf("list messages: %w", err)
	}
	defer rows.Close()

	messages := make([]domain.Message, 0)
	for rows.Next() {
		var (
			msg       domain.Message
			direction string
		)
		if err := rows.Scan(
			&msg.MessageID,
			&msg.ClientID,
			&msg.Message,
			&msg.Email,
			&msg.Subject,
			&direction,
			&msg.Timestamp,
		); err != nil {
			return nil, fmt.Errorf("scan message: %w", err)
		}
		msg.Direction = domain.Direction(direction)
		messages = append(messages, msg)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate messages: %w", err)
	}

	return messages, nil
}

// Close 关闭数据库连接
func (s *Store) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

// Health 检查数据库健康状态
func (s *Store) Health() error {
	if s.db == nil {
		return fmt.Errorf("database connection is nil")
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return s.db.PingContext(ctx)
}

// upsertQuery 根据数据库类型生成 upsert 语句
func (s *Store) upsertQuery() string {
	if s.driverName == "postgres" {
		return "INSERT INTO messages (" + messageColumns + ") VALUES ($1, $2, $3, $4, $5, $6, $7) " +
			"ON CONFLICT (message_id) DO UPDATE SET client_id = EXCLUDED.client_id, message = EXCLUDED.message, " +
			"email = EXCLUDED.email, subject = EXCLUDED.subject, direction = EXCLUDED.direction, created_at = EXCLUDED.created_at"
	}
	return "INSERT INTO messages (" + messageColumns + ") VALUES (?, ?, ?, ?, ?, ?, ?) " +
		"ON DUPLICATE KEY UPDATE client_id = VALUES(client_id), message = VALUES(message), " +
		"email = VALUES(email), subject = VALUES(subject), direction = VALUES(direction), created_at = VALUES(created_at)"
}

// placeholder 根据数据库类型返回占位符
func (s *Store) placeholder(n int) string {
	if s.driverName == "postgres" {
		return fmt.Sprintf("$%d", n)
	}
	return "?"
}
