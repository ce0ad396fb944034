package content_test

import (
	"context"
	"errors"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/ifuryst/contentsync/internal/content"
)

func newMockStore(t *testing.T) (*content.Store, sqlmock.Sqlmock) {
	t.Helper()

	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	gdb, err := gorm.Open(postgres.New(postgres.Config{Conn: db}), &gorm.Config{
		SkipDefaultTransaction: true,
		Logger:                 logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)

	return content.NewStore(gdb), mock
}

func TestStore_Get(t *testing.T) {
	store, mock := newMockStore(t)

	mock.ExpectQuery(`SELECT \* FROM "contentsync_posts"`).
		WillReturnRows(sqlmock.NewRows([]string{"id", "blog_id", "title", "slug"}).
			AddRow(10, 1, "Hello World", "hello-world"))

	post, err := store.Get(context.Background(), 1, 10)
	require.NoError(t, err)
	assert.Equal(t, uint(10), post.ID)
	assert.Equal(t, "hello-world", post.Slug)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestStore_GetNotFound(t *testing.T) {
	store, mock := newMockStore(t)

	mock.ExpectQuery(`SELECT \* FROM "contentsync_posts"`).
		WillReturnRows(sqlmock.NewRows([]string{"id"}))

	_, err := store.Get(context.Background(), 1, 10)
	assert.ErrorIs(t, err, content.ErrNotFound)

	mock.ExpectQuery(`SELECT \* FROM "contentsync_posts"`).
		WillReturnError(errors.New("connection reset"))

	_, err = store.FindLinked(context.Background(), 2, 1, 10)
	require.Error(t, err)
	assert.NotErrorIs(t, err, content.ErrNotFound)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestStore_List(t *testing.T) {
	store, mock := newMockStore(t)

	posts, err := store.List(context.Background(), 1, nil)
	require.NoError(t, err)
	assert.Empty(t, posts)

	mock.ExpectQuery(`SELECT \* FROM "contentsync_posts" WHERE .*id IN \(\$2,\$3\)`).
		WillReturnRows(sqlmock.NewRows([]string{"id", "blog_id"}).AddRow(10, 1))

	posts, err = store.List(context.Background(), 1, []int64{10, 11})
	require.NoError(t, err)
	require.Len(t, posts, 1)
	assert.Equal(t, uint(10), posts[0].ID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestStore_Delete(t *testing.T) {
	store, mock := newMockStore(t)

	mock.ExpectExec(`DELETE FROM "contentsync_posts"`).
		WillReturnResult(sqlmock.NewResult(0, 1))

	require.NoError(t, store.Delete(context.Background(), 10))
	assert.NoError(t, mock.ExpectationsWereMet())
}
