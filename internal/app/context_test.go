package app_test

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"edihub/internal/app"
	"edihub/internal/config"
	"edihub/internal/contentstore"
	"edihub/internal/domain"
)

const registryYAML = `sender:
  number: "5790001330583"
  role: DataHubAdministrator
bundling:
  max_message_count: 50
grid_area_owners:
  - grid_area: "805"
    owner: "5790000000010"
    valid_from: "2023-01-01T00:00:00Z"
    sequence_number: 1
delegations:
  - delegated_by: {number: "5790000000010", role: GridOperator}
    delegated_to: {number: "5790000000020", role: GridOperator}
    process_type: ReceiveEnergyResults
    grid_area: "805"
    starts_at: "2024-06-01T00:00:00Z"
    stops_at: "2024-07-01T00:00:00Z"
    sequence_number: 1
`

func TestOpenSeedsRegistry(t *testing.T) {
	ws := t.TempDir()
	require.NoError(t, os.WriteFile(config.Path(ws), []byte(registryYAML), 0o644))

	rt, err := app.Open(context.Background(), viper.New(), ws)
	require.NoError(t, err)
	t.Cleanup(func() { rt.Close() })

	assert.Equal(t, 50, rt.Config.Bundling.MaxMessageCount)
	assert.IsType(t, &contentstore.SQLStore{}, rt.Engine.Content)

	owner, err := rt.Engine.Repo.GridAreaOwner(context.Background(), "805", time.Date(2024, 6, 3, 0, 0, 0, 0, time.UTC))
	require.NoError(t, err)
	assert.Equal(t, domain.ActorNumber("5790000000010"), owner.Owner)

	ds, err := rt.Engine.Repo.GetActiveDelegations(context.Background(),
		domain.NewActor("5790000000010", domain.RoleGridOperator), domain.ProcessReceiveEnergyResults, "805")
	require.NoError(t, err)
	require.Len(t, ds, 1)
	assert.Equal(t, domain.NewActor("5790000000020", domain.RoleGridOperator), ds[0].DelegatedTo)
}

func TestOpenWithoutConfigFileUsesDefaults(t *testing.T) {
	rt, err := app.Open(context.Background(), viper.New(), t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { rt.Close() })
	assert.Equal(t, config.DefaultMaxMessageCount, rt.Config.Bundling.MaxMessageCount)
	assert.NotNil(t, rt.Registry)
}

func TestContentStoreDynamoDB(t *testing.T) {
	cfg := config.Default()
	cfg.Content.Backend = config.BackendDynamoDB
	cfg.Content.DynamoDB.Endpoint = "http://127.0.0.1:8000"
	store, err := app.ContentStore(context.Background(), cfg, nil)
	require.NoError(t, err)
	assert.IsType(t, &contentstore.DynamoStore{}, store)
}

func TestContentStoreUnknownBackend(t *testing.T) {
	cfg := config.Default()
	cfg.Content.Backend = "s3"
	_, err := app.ContentStore(context.Background(), cfg, nil)
	require.Error(t, err)
}
