package postgres

import (
	"context"
	"errors"
	"regexp"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	sqlmock "gopkg.in/DATA-DOG/go-sqlmock.v1"
	"gorm.io/driver/mysql"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"msgrelay/backend/internal/domain"
	"msgrelay/backend/internal/storage"
)

func newMockStore(t *testing.T) (*Store, sqlmock.Sqlmock) {
	t.Helper()

	sqlDB, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { sqlDB.Close() })

	db, err := gorm.Open(postgres.New(postgres.Config{Conn: sqlDB}), &gorm.Config{
		Logger:                 logger.Default.LogMode(logger.Silent),
		SkipDefaultTransaction: true,
	})
	require.NoError(t, err)

	return newStore(db), mock
}

func testMessage() *domain.Message {
	return &domain.Message{
		MessageID: "6f1c2a5e-0000-4000-8000-000000000001",
		ClientID:  "42",
		Message:   "hello",
		Email:     "c@x.com",
		Direction: domain.DirectionOutbound,
		Timestamp: time.Date(2026, 10, 17, 8, 30, 0, 0, time.UTC),
	}
}

func TestStore_SaveMessage(t *testing.T) {
	t.Run("写入使用主键冲突覆盖", func(t *testing.T) {
		store, mock := newMockStore(t)
		msg := testMessage()

		mock.ExpectExec(`INSERT INTO "messages" .* ON CONFLICT \("message_id"\) DO UPDATE SET`).
			WillReturnResult(sqlmock.NewResult(0, 1))

		require.NoError(t, store.SaveMessage(context.Background(), msg))
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("缺少主键不访问数据库", func(t *testing.T) {
		store, mock := newMockStore(t)
		msg := testMessage()
		msg.MessageID = ""

		err := store.SaveMessage(context.Background(), msg)
		assert.ErrorIs(t, err, storage.ErrInvalidMessage)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("驱动错误被包装", func(t *testing.T) {
		store, mock := newMockStore(t)
		boom := errors.New("connection reset")

		mock.ExpectExec(`INSERT INTO "messages"`).WillReturnError(boom)

		err := store.SaveMessage(context.Background(), testMessage())
		assert.ErrorIs(t, err, boom)
		assert.Contains(t, err.Error(), "save message")
	})
}

func TestStore_ListMessagesByEmail(t *testing.T) {
	t.Run("按邮箱过滤", func(t *testing.T) {
		store, mock := newMockStore(t)
		msg := testMessage()

		rows := sqlmock.NewRows([]string{"message_id", "client_id", "message", "email", "subject", "direction", "created_at"}).
			AddRow(msg.MessageID, msg.ClientID, msg.Message, msg.Email, "", "outbound", msg.Timestamp)
		mock.ExpectQuery(`SELECT \* FROM "messages" WHERE email = \$1 ORDER BY created_at`).
			WithArgs("c@x.com").
			WillReturnRows(rows)

		messages, err := store.ListMessagesByEmail(context.Background(), "c@x.com")
		require.NoError(t, err)
		require.Len(t, messages, 1)
		assert.Equal(t, *msg, messages[0])
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("无结果返回空切片", func(t *testing.T) {
		store, mock := newMockStore(t)

		mock.ExpectQuery(`SELECT \* FROM "messages"`).
			WithArgs("none@x.com").
			WillReturnRows(sqlmock.NewRows([]string{"message_id"}))

		messages, err := store.ListMessagesByEmail(context.Background(), "none@x.com")
		require.NoError(t, err)
		assert.NotNil(t, messages)
		assert.Empty(t, messages)
	})

	t.Run("查询失败", func(t *testing.T) {
		store, mock := newMockStore(t)

		mock.ExpectQuery(`SELECT \* FROM "messages"`).WillReturnError(errors.New("timeout"))

		_, err := store.ListMessagesByEmail(context.Background(), "c@x.com")
		assert.Error(t, err)
		assert.Contains(t, err.Error(), "list messages")
	})
}

func TestStore_AlignEmailCollation(t *testing.T) {
	t.Run("MySQL邮箱列改为区分大小写", func(t *testing.T) {
		sqlDB, mock, err := sqlmock.New()
		require.NoError(t, err)
		defer sqlDB.Close()

		db, err := gorm.Open(mysql.New(mysql.Config{Conn: sqlDB, SkipInitializeWithVersion: true}), &gorm.Config{
			Logger: logger.Default.LogMode(logger.Silent),
		})
		require.NoError(t, err)

		mock.ExpectExec(regexp.QuoteMeta(mysqlEmailCollation)).
			WillReturnResult(sqlmock.NewResult(0, 0))

		require.NoError(t, newStore(db).alignEmailCollation())
		assert.NoError(t, mock.ExpectationsWereMet())
		assert.Contains(t, mysqlEmailCollation, "COLLATE utf8mb4_bin")
	})

	t.Run("PostgreSQL不执行", func(t *testing.T) {
		store, mock := newMockStore(t)

		require.NoError(t, store.alignEmailCollation())
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}
