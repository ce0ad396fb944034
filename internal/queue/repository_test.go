package queue_test

import (
	"context"
	"database/sql"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/ifuryst/contentsync/internal/destination"
	"github.com/ifuryst/contentsync/internal/models"
	"github.com/ifuryst/contentsync/internal/queue"
)

func newMockRepository(t *testing.T) (*queue.Repository, sqlmock.Sqlmock) {
	t.Helper()

	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	gdb, err := gorm.Open(postgres.New(postgres.Config{Conn: db}), &gorm.Config{
		SkipDefaultTransaction: true,
		Logger:                 logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)

	return queue.NewRepository(gdb), mock
}

func TestRepository_Enqueue(t *testing.T) {
	repo, mock := newMockRepository(t)

	mock.ExpectQuery(`INSERT INTO "contentsync_queue"`).
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(7))

	blog := destination.NewBlogDestination(2, destination.Settings{})
	blog.AddPost(10, 0, destination.Settings{})

	item, err := repo.Enqueue(context.Background(),
		models.PostsPayload{BlogID: 1, PostIDs: []int64{10}},
		destination.BlogSnapshot(blog), "manual", "10")
	require.NoError(t, err)
	assert.Equal(t, uint(7), item.ID)
	assert.Equal(t, destination.StatusInit, item.Status)
	assert.JSONEq(t, `{"blog_id":1,"post_ids":[10]}`, item.Posts)
	assert.Contains(t, item.Destination, `"kind":"blog"`)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRepository_Get(t *testing.T) {
	repo, mock := newMockRepository(t)

	mock.ExpectQuery(`SELECT \* FROM "contentsync_queue"`).
		WillReturnRows(sqlmock.NewRows([]string{"id", "status"}))

	_, err := repo.Get(context.Background(), 99)
	assert.ErrorIs(t, err, queue.ErrNotFound)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRepository_Claim(t *testing.T) {
	testCases := []struct {
		name      string
		setupMock func(sqlmock.Sqlmock)
		wantErr   error
	}{
		{
			name: "claims free item",
			setupMock: func(mock sqlmock.Sqlmock) {
				mock.ExpectExec(`UPDATE "contentsync_queue" SET`).
					WillReturnResult(sqlmock.NewResult(0, 1))
			},
		},
		{
			name: "lease held by another worker",
			setupMock: func(mock sqlmock.Sqlmock) {
				mock.ExpectExec(`UPDATE "contentsync_queue" SET`).
					WillReturnResult(sqlmock.NewResult(0, 0))
				mock.ExpectQuery(`SELECT count\(\*\) FROM "contentsync_queue"`).
					WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(1))
			},
			wantErr: queue.ErrLeaseHeld,
		},
		{
			name: "missing item",
			setupMock: func(mock sqlmock.Sqlmock) {
				mock.ExpectExec(`UPDATE "contentsync_queue" SET`).
					WillReturnResult(sqlmock.NewResult(0, 0))
				mock.ExpectQuery(`SELECT count\(\*\) FROM "contentsync_queue"`).
					WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(0))
			},
			wantErr: queue.ErrNotFound,
		},
		{
			name: "database error",
			setupMock: func(mock sqlmock.Sqlmock) {
				mock.ExpectExec(`UPDATE "contentsync_queue" SET`).
					WillReturnError(sql.ErrConnDone)
			},
			wantErr: sql.ErrConnDone,
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			repo, mock := newMockRepository(t)
			tc.setupMock(mock)

			err := repo.Claim(context.Background(), 3, "worker-a", 0)
			if tc.wantErr == nil {
				assert.NoError(t, err)
			} else {
				assert.True(t, errors.Is(err, tc.wantErr), "got %v", err)
			}
			assert.NoError(t, mock.ExpectationsWereMet())
		})
	}
}

func TestRepository_MarkSucceededRequiresStarted(t *testing.T) {
	repo, mock := newMockRepository(t)

	mock.ExpectExec(`UPDATE "contentsync_queue" SET`).
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery(`SELECT count\(\*\) FROM "contentsync_queue"`).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(1))

	err := repo.MarkSucceeded(context.Background(), 4)
	assert.ErrorIs(t, err, destination.ErrInvalidTransition)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRepository_MarkFailed(t *testing.T) {
	repo, mock := newMockRepository(t)

	mock.ExpectExec(`UPDATE "contentsync_queue" SET`).
		WillReturnResult(sqlmock.NewResult(0, 1))

	err := repo.MarkFailed(context.Background(), 4, models.ItemError{Kind: models.ErrorKindBusiness, Message: "no such blog"})
	assert.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRepository_ListStuck(t *testing.T) {
	repo, mock := newMockRepository(t)

	mock.ExpectQuery(`SELECT \* FROM "contentsync_queue" WHERE status <> \$1 AND \(locked_until IS NULL OR locked_until < \$2\) ORDER BY id ASC`).
		WillReturnRows(sqlmock.NewRows([]string{"id", "status"}).
			AddRow(3, "init").
			AddRow(5, "failed"))

	ids, err := repo.ListStuck(context.Background(), 10)
	require.NoError(t, err)
	assert.Equal(t, []uint{3, 5}, ids)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRepository_ListRejectsUnknownStatus(t *testing.T) {
	repo, _ := newMockRepository(t)

	_, err := repo.List(context.Background(), queue.Filter{Status: "archived"})
	assert.Error(t, err)
}

func TestRepository_Counts(t *testing.T) {
	repo, mock := newMockRepository(t)

	mock.ExpectQuery(`SELECT status, count\(\*\) AS total FROM "contentsync_queue" GROUP BY "?status"?`).
		WillReturnRows(sqlmock.NewRows([]string{"status", "total"}).
			AddRow("init", 12).
			AddRow("success", 3).
			AddRow("failed", 1))

	counts, err := repo.Counts(context.Background())
	require.NoError(t, err)
	assert.Equal(t, queue.Counts{Scheduled: 12, Completed: 3, Failed: 1}, counts)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRepository_PurgeSucceeded(t *testing.T) {
	repo, mock := newMockRepository(t)

	mock.ExpectExec(`DELETE FROM "contentsync_queue" WHERE status = \$1 AND time < \$2`).
		WillReturnResult(sqlmock.NewResult(0, 4))

	n, err := repo.PurgeSucceeded(context.Background(), time.Now().Add(-time.Hour))
	require.NoError(t, err)
	assert.Equal(t, int64(4), n)
	assert.NoError(t, mock.ExpectationsWereMet())
}
