package repository

import (
	"context"
	"database/sql"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	vaultDomain "github.com/cardvault/locker/internal/vault/domain"
)

func TestPostgreSQLHashRepository_FindByDataHash(t *testing.T) {
	t.Run("found", func(t *testing.T) {
		db, mock := newMockDB(t)
		repo := NewPostgreSQLHashRepository(db)

		mock.ExpectQuery(regexp.QuoteMeta(`SELECT hash_id, data_hash, created_at`)).
			WithArgs([]byte("digest")).
			WillReturnRows(sqlmock.NewRows([]string{"hash_id", "data_hash", "created_at"}).
				AddRow("hash-1", []byte("digest"), time.Now().UTC()))

		hash, err := repo.FindByDataHash(context.Background(), []byte("digest"))
		require.NoError(t, err)
		assert.Equal(t, "hash-1", hash.HashID)
	})

	t.Run("not found", func(t *testing.T) {
		db, mock := newMockDB(t)
		repo := NewPostgreSQLHashRepository(db)

		mock.ExpectQuery(regexp.QuoteMeta(`SELECT`)).
			WithArgs([]byte("missing")).
			WillReturnError(sql.ErrNoRows)

		_, err := repo.FindByDataHash(context.Background(), []byte("missing"))
		assert.ErrorIs(t, err, vaultDomain.ErrHashNotFound)
	})
}

func TestPostgreSQLHashRepository_InsertHash(t *testing.T) {
	t.Run("unique violation returns existing row", func(t *testing.T) {
		db, mock := newMockDB(t)
		repo := NewPostgreSQLHashRepository(db)

		mock.ExpectQuery(regexp.QuoteMeta(`INSERT INTO hash_table`)).
			WillReturnRows(sqlmock.NewRows([]string{"hash_id", "data_hash", "created_at"}).
				AddRow("existing-hash", []byte("digest"), time.Now().UTC()))

		hash, err := repo.InsertHash(context.Background(), []byte("digest"))
		require.NoError(t, err)
		assert.Equal(t, "existing-hash", hash.HashID)
	})
}
