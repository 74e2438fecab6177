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

func TestCopyFrom_EmptyRows(t *testing.T) {
	n, err := CopyFrom(context.Background(), nil, "properties", []string{"serial_number", "town"}, nil)
	assert.NoError(t, err)
	assert.Equal(t, int64(0), n)
}

func TestCopyFrom_Success(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	mock.ExpectCopyFrom(pgx.Identifier{"properties"}, []string{"serial_number", "town"}).WillReturnResult(3)

	rows := [][]any{{int64(1), "Hartford"}, {int64(2), "Bristol"}, {int64(3), "Avon"}}
	n, err := CopyFrom(context.Background(), mock, "properties", []string{"serial_number", "town"}, rows)
	assert.NoError(t, err)
	assert.Equal(t, int64(3), n)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCopyFrom_Error(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	mock.ExpectCopyFrom(pgx.Identifier{"properties"}, []string{"serial_number"}).WillReturnError(fmt.Errorf("copy failed"))

	rows := [][]any{{int64(1)}}
	_, err = CopyFrom(context.Background(), mock, "properties", []string{"serial_number"}, rows)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "COPY INTO properties")
	assert.NoError(t, mock.ExpectationsWereMet())
}
