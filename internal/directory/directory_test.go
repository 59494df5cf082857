package directory

import (
	"context"
	"fmt"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/weiawesome/wes-io-chat/internal/domain"
	"github.com/weiawesome/wes-io-chat/pkg/database"
)

func TestGormDirectoryLookup(t *testing.T) {
	db, err := database.New(&database.Config{
		Driver:   "sqlite",
		FilePath: fmt.Sprintf("file:%s?mode=memory&cache=shared", uuid.NewString()),
		LogLevel: "silent",
	})
	require.NoError(t, err)
	t.Cleanup(func() { database.Close(db) })
	require.NoError(t, database.AutoMigrate(db, &domain.UserModel{}))
	require.NoError(t, db.Create(&domain.UserModel{ID: "u1", FirstName: "Ada", LastName: "Lovelace"}).Error)

	dir := NewGormDirectory(db)

	got, err := dir.Lookup(context.Background(), []string{"u1", "unknown"})
	require.NoError(t, err)
	assert.Equal(t, map[string]domain.Sender{
		"u1": {ID: "u1", FirstName: "Ada", LastName: "Lovelace"},
	}, got)

	empty, err := dir.Lookup(context.Background(), nil)
	require.NoError(t, err)
	assert.Empty(t, empty)
}
