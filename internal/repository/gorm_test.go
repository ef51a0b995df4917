package repository

import (
	"context"
	"testing"

	"devnewz/internal/db"

	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	tcpostgres "github.com/testcontainers/testcontainers-go/modules/postgres"
	"gorm.io/gorm"
)

func TestGormStore(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping postgres integration test in short mode")
	}
	testcontainers.SkipIfProviderIsNotHealthy(t)

	ctx := context.Background()
	ctr, err := tcpostgres.Run(ctx, "postgres:16-alpine",
		tcpostgres.WithDatabase("devnewz"),
		tcpostgres.WithUsername("devnewz"),
		tcpostgres.WithPassword("devnewz"),
		tcpostgres.BasicWaitStrategies(),
	)
	testcontainers.CleanupContainer(t, ctr)
	require.NoError(t, err)

	dsn, err := ctr.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err)

	conn, err := db.Open(ctx, dsn)
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close(conn) })

	runStoreContract(t, func(t *testing.T) Store {
		require.NoError(t, resetSchema(conn))
		return NewGormStore(conn)
	})
}

func resetSchema(conn *gorm.DB) error {
	if err := conn.Exec("DROP SCHEMA public CASCADE").Error; err != nil {
		return err
	}
	if err := conn.Exec("CREATE SCHEMA public").Error; err != nil {
		return err
	}
	return db.Migrate(conn)
}
