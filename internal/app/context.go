package app

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/viper"

	"edihub/internal/config"
	"edihub/internal/contentstore"
	"edihub/internal/db"
	"edihub/internal/engine"
	"edihub/internal/logging"
	"edihub/internal/metrics"
	"edihub/internal/migrate"
)

// Runtime is everything a command needs to serve a workspace.
type Runtime struct {
	Config   *config.Config
	DB       *sql.DB
	Engine   engine.Engine
	Registry *prometheus.Registry
	Log      logging.Logger
}

// Open resolves the workspace config, opens and migrates the mailbox
// database, picks the content store and seeds the delegation and grid area
// registry from config.
func Open(ctx context.Context, v *viper.Viper, workspace string) (*Runtime, error) {
	if _, err := db.EnsureWorkspace(workspace); err != nil {
		return nil, err
	}
	cfg, err := config.Load(v, workspace)
	if err != nil {
		return nil, err
	}
	conn, err := db.Open(db.Config{Workspace: workspace, BusyTimeoutMS: cfg.Database.BusyTimeoutMS})
	if err != nil {
		return nil, err
	}
	rt, err := build(ctx, cfg, conn)
	if err != nil {
		conn.Close()
		return nil, err
	}
	return rt, nil
}

func build(ctx context.Context, cfg *config.Config, conn *sql.DB) (*Runtime, error) {
	if err := migrate.MigrateContext(ctx, conn); err != nil {
		return nil, fmt.Errorf("migrate: %w", err)
	}
	log := logging.New("engine")
	store, err := ContentStore(ctx, cfg, conn)
	if err != nil {
		return nil, err
	}
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	rec, err := metrics.New(reg)
	if err != nil {
		return nil, err
	}

	eng := engine.New(conn, cfg, store)
	eng.Log = log
	eng.Metrics = rec
	if err := SeedRegistry(ctx, eng, cfg); err != nil {
		return nil, err
	}
	log.Infof("workspace %s ready, content backend %s", cfg.Workspace, cfg.Content.Backend)
	return &Runtime{Config: cfg, DB: conn, Engine: eng, Registry: reg, Log: log}, nil
}

func (r *Runtime) Close() error {
	if r == nil || r.DB == nil {
		return nil
	}
	return r.DB.Close()
}

// ContentStore returns the store named by config. The sql backend keeps
// content in the mailbox database and writes it in the enqueue transaction.
func ContentStore(ctx context.Context, cfg *config.Config, conn *sql.DB) (contentstore.Store, error) {
	switch cfg.Content.Backend {
	case config.BackendSQL, "":
		return contentstore.NewSQLStore(conn, nil), nil
	case config.BackendDynamoDB:
		d := cfg.Content.DynamoDB
		awsCfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(d.Region))
		if err != nil {
			return nil, fmt.Errorf("load aws config: %w", err)
		}
		client := dynamodb.NewFromConfig(awsCfg, func(o *dynamodb.Options) {
			if d.Endpoint != "" {
				o.BaseEndpoint = aws.String(d.Endpoint)
			}
		})
		return contentstore.NewDynamoStore(client, d.Table, nil), nil
	default:
		return nil, fmt.Errorf("unknown content backend %q", cfg.Content.Backend)
	}
}

// SeedRegistry loads configured delegations and grid area owners. Config
// without registry entries leaves the tables untouched.
func SeedRegistry(ctx context.Context, eng engine.Engine, cfg *config.Config) error {
	if len(cfg.Delegations) == 0 && len(cfg.GridAreaOwners) == 0 {
		return nil
	}
	delegations, err := cfg.DelegationRows()
	if err != nil {
		return err
	}
	owners, err := cfg.GridAreaOwnerRows()
	if err != nil {
		return err
	}
	if err := eng.ReplaceRegistry(ctx, delegations, owners); err != nil {
		return fmt.Errorf("seed registry: %w", err)
	}
	return nil
}
