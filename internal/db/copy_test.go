package db

import (
	"context"
	"fmt"
	"testing"

	"github.com/jackc/pgx/v5"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCopyRows_EmptyRows(t *testing.T) {
	n, err := CopyRows(context.TODO(), nil, "rejections", []string{"run_id", "reason"}, nil)
	assert.NoError(t, err)
	assert.Equal(t, int64(0), n)
}

func TestCopyRows_Success(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	mock.ExpectCopyFrom(pgx.Identifier{"rejections"}, []string{"run_id", "reason"}).WillReturnResult(2)

	rows := [][]any{{"run-1", "STEM_TOO_SHORT"}, {"run-1", "STEM_TRUNCATED"}}
	n, err := CopyRows(context.Background(), mock, "rejections", []string{"run_id", "reason"}, rows)
	assert.NoError(t, err)
	assert.Equal(t, int64(2), n)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCopyRows_Error(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	mock.ExpectCopyFrom(pgx.Identifier{"rejections"}, []string{"run_id"}).WillReturnError(fmt.Errorf("permission denied"))

	_, err = CopyRows(context.Background(), mock, "rejections", []string{"run_id"}, [][]any{{"run-1"}})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "copy into rejections")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPool_SatisfiedByMock(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	var _ Pool = mock
}
