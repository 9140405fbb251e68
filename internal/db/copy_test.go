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
	n, err := CopyFrom(context.TODO(), nil, "location_pings", []string{"id", "user_id"}, nil)
	assert.NoError(t, err)
	assert.Equal(t, int64(0), n)
}

func TestCopyFrom_Success(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	mock.ExpectCopyFrom(pgx.Identifier{"location_pings"}, []string{"id", "user_id"}).WillReturnResult(3)

	rows := [][]any{{"p1", "u1"}, {"p2", "u1"}, {"p3", "u2"}}
	n, err := CopyFrom(context.Background(), mock, "location_pings", []string{"id", "user_id"}, rows)
	assert.NoError(t, err)
	assert.Equal(t, int64(3), n)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCopyFrom_SchemaQualified(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	mock.ExpectCopyFrom(pgx.Identifier{"guardian", "audit_events"}, []string{"id"}).WillReturnResult(1)

	n, err := CopyFrom(context.Background(), mock, "guardian.audit_events", []string{"id"}, [][]any{{"a1"}})
	assert.NoError(t, err)
	assert.Equal(t, int64(1), n)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCopyFrom_Error(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	mock.ExpectCopyFrom(pgx.Identifier{"location_pings"}, []string{"id"}).WillReturnError(fmt.Errorf("copy failed"))

	_, err = CopyFrom(context.Background(), mock, "location_pings", []string{"id"}, [][]any{{"p1"}})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "COPY INTO location_pings")
	assert.NoError(t, mock.ExpectationsWereMet())
}
