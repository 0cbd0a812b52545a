package config_test

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/viper"

	"edihub/internal/config"
	"edihub/internal/domain"
)

func TestDefaultIsValid(t *testing.T) {
	cfg := config.Default()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("default config invalid: %v", err)
	}
	if cfg.Bundling.MaxMessageCount != 2000 {
		t.Fatalf("max message count %d", cfg.Bundling.MaxMessageCount)
	}
	if cfg.Bundling.RetryInitialInterval != 20*time.Millisecond {
		t.Fatalf("retry interval %s", cfg.Bundling.RetryInitialInterval)
	}
	if cfg.Content.Backend != config.BackendSQL {
		t.Fatalf("backend %q", cfg.Content.Backend)
	}
	sender, err := cfg.SenderActor()
	if err != nil {
		t.Fatalf("sender: %v", err)
	}
	if sender.Role != domain.RoleDataHubAdministrator {
		t.Fatalf("sender role %q", sender.Role)
	}
}

func TestMaxForIsCaseInsensitive(t *testing.T) {
	cfg := config.Default()
	cfg.Bundling.MaxMessageCountByType = map[string]int{"rejectrequestaggregatedmeasuredata": 10}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("validate: %v", err)
	}
	if got := cfg.MaxFor(domain.DocumentRejectRequestAggregatedMeasureData); got != 10 {
		t.Fatalf("rejection max %d, want 10", got)
	}
	if got := cfg.MaxFor(domain.DocumentNotifyAggregatedMeasureData); got != 2000 {
		t.Fatalf("aggregation max %d, want 2000", got)
	}
}

func TestValidateRejects(t *testing.T) {
	cases := map[string]func(*config.Config){
		"zero max":        func(c *config.Config) { c.Bundling.MaxMessageCount = 0 },
		"unknown type":    func(c *config.Config) { c.Bundling.MaxMessageCountByType = map[string]int{"Invoice": 3} },
		"backend":         func(c *config.Config) { c.Content.Backend = "s3" },
		"dynamo no table": func(c *config.Config) { c.Content.Backend = config.BackendDynamoDB; c.Content.DynamoDB.Table = "" },
		"sender role":     func(c *config.Config) { c.Sender.Role = "Nobody" },
		"delegation window": func(c *config.Config) {
			c.Delegations = []config.DelegationConfig{{
				DelegatedBy: config.ActorConfig{Number: "1", Role: "GridOperator"},
				DelegatedTo: config.ActorConfig{Number: "2", Role: "GridOperator"},
				ProcessType: string(domain.ProcessReceiveEnergyResults),
				GridArea:    "805",
				StartsAt:    "2024-06-05T00:00:00Z",
				StopsAt:     "2024-06-01T00:00:00Z",
			}}
		},
	}
	for name, mutate := range cases {
		t.Run(name, func(t *testing.T) {
			cfg := config.Default()
			mutate(cfg)
			if err := cfg.Validate(); err == nil {
				t.Fatalf("expected validation error")
			}
		})
	}
}

func TestLoadReadsFileAndEnv(t *testing.T) {
	dir := t.TempDir()
	data := []byte(`bundling:
  max_message_count: 3
delegations:
  - delegated_by: {number: "5790000000010", role: GridOperator}
    delegated_to: {number: "5790000000020", role: GridOperator}
    process_type: ReceiveEnergyResults
    grid_area: "805"
    starts_at: "2024-06-01T00:00:00Z"
    stops_at: "2024-07-01T00:00:00Z"
    sequence_number: 1
grid_area_owners:
  - grid_area: "805"
    owner: "5790000000010"
    valid_from: "2020-01-01T00:00:00Z"
    sequence_number: 1
`)
	if err := os.WriteFile(filepath.Join(dir, "edihub.yml"), data, 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	t.Setenv("EDIHUB_SERVER_ADDR", ":9999")

	cfg, err := config.Load(viper.New(), dir)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Bundling.MaxMessageCount != 3 {
		t.Fatalf("max message count %d, want 3", cfg.Bundling.MaxMessageCount)
	}
	if cfg.Bundling.MaxRetries != 5 {
		t.Fatalf("max retries %d, want default 5", cfg.Bundling.MaxRetries)
	}
	if cfg.Server.Addr != ":9999" {
		t.Fatalf("addr %q, want env override", cfg.Server.Addr)
	}
	if cfg.Workspace != dir {
		t.Fatalf("workspace %q", cfg.Workspace)
	}

	rows, err := cfg.DelegationRows()
	if err != nil {
		t.Fatalf("delegation rows: %v", err)
	}
	if len(rows) != 1 || rows[0].GridArea != "805" {
		t.Fatalf("delegation rows %+v", rows)
	}
	owners, err := cfg.GridAreaOwnerRows()
	if err != nil {
		t.Fatalf("owner rows: %v", err)
	}
	if len(owners) != 1 || owners[0].Owner != domain.ActorNumber("5790000000010") {
		t.Fatalf("owner rows %+v", owners)
	}
}

func TestLoadWithoutFileUsesDefaults(t *testing.T) {
	cfg, err := config.Load(viper.New(), t.TempDir())
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Bundling.MaxMessageCount != 2000 {
		t.Fatalf("max message count %d", cfg.Bundling.MaxMessageCount)
	}
	if cfg.Server.BasePath != "/v0" {
		t.Fatalf("base path %q", cfg.Server.BasePath)
	}
}

func TestFromYAMLOverlaysDefaults(t *testing.T) {
	cfg, err := config.FromYAML([]byte("content:\n  backend: dynamodb\n"))
	if err != nil {
		t.Fatalf("from yaml: %v", err)
	}
	if cfg.Content.DynamoDB.Table != "edihub-content" {
		t.Fatalf("table %q", cfg.Content.DynamoDB.Table)
	}
}
