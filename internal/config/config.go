package config

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"edihub/internal/domain"
)

// Config models edihub.yml.
type Config struct {
	Workspace string         `yaml:"workspace" mapstructure:"workspace"`
	Database  DatabaseConfig `yaml:"database" mapstructure:"database"`
	Bundling  BundlingConfig `yaml:"bundling" mapstructure:"bundling"`
	Content   ContentConfig  `yaml:"content" mapstructure:"content"`
	Server    ServerConfig   `yaml:"server" mapstructure:"server"`
	Sender    SenderConfig   `yaml:"sender" mapstructure:"sender"`
	// Seed data loaded into the registry tables on startup. Maintenance of
	// these tables otherwise happens outside this service.
	Delegations    []DelegationConfig    `yaml:"delegations,omitempty" mapstructure:"delegations"`
	GridAreaOwners []GridAreaOwnerConfig `yaml:"grid_area_owners,omitempty" mapstructure:"grid_area_owners"`
}

type DatabaseConfig struct {
	BusyTimeoutMS int `yaml:"busy_timeout_ms" mapstructure:"busy_timeout_ms"`
}

type BundlingConfig struct {
	MaxMessageCount       int            `yaml:"max_message_count" mapstructure:"max_message_count"`
	MaxMessageCountByType map[string]int `yaml:"max_message_count_by_type,omitempty" mapstructure:"max_message_count_by_type"`
	MaxRetries            int            `yaml:"max_retries" mapstructure:"max_retries"`
	RetryInitialInterval  time.Duration  `yaml:"retry_initial_interval" mapstructure:"retry_initial_interval"`
}

type ContentConfig struct {
	Backend  string         `yaml:"backend" mapstructure:"backend"`
	DynamoDB DynamoDBConfig `yaml:"dynamodb" mapstructure:"dynamodb"`
}

type DynamoDBConfig struct {
	Table    string `yaml:"table" mapstructure:"table"`
	Region   string `yaml:"region" mapstructure:"region"`
	Endpoint string `yaml:"endpoint,omitempty" mapstructure:"endpoint"`
}

type ServerConfig struct {
	Addr      string `yaml:"addr" mapstructure:"addr"`
	BasePath  string `yaml:"base_path" mapstructure:"base_path"`
	JWTSecret string `yaml:"jwt_secret,omitempty" mapstructure:"jwt_secret"`
}

type SenderConfig struct {
	Number string `yaml:"number" mapstructure:"number"`
	Role   string `yaml:"role" mapstructure:"role"`
}

type DelegationConfig struct {
	DelegatedBy    ActorConfig `yaml:"delegated_by" mapstructure:"delegated_by"`
	DelegatedTo    ActorConfig `yaml:"delegated_to" mapstructure:"delegated_to"`
	ProcessType    string      `yaml:"process_type" mapstructure:"process_type"`
	GridArea       string      `yaml:"grid_area" mapstructure:"grid_area"`
	StartsAt       string      `yaml:"starts_at" mapstructure:"starts_at"`
	StopsAt        string      `yaml:"stops_at" mapstructure:"stops_at"`
	SequenceNumber int64       `yaml:"sequence_number" mapstructure:"sequence_number"`
}

type ActorConfig struct {
	Number string `yaml:"number" mapstructure:"number"`
	Role   string `yaml:"role" mapstructure:"role"`
}

type GridAreaOwnerConfig struct {
	GridArea       string `yaml:"grid_area" mapstructure:"grid_area"`
	Owner          string `yaml:"owner" mapstructure:"owner"`
	ValidFrom      string `yaml:"valid_from" mapstructure:"valid_from"`
	SequenceNumber int64  `yaml:"sequence_number" mapstructure:"sequence_number"`
}

const (
	BackendSQL      = "sql"
	BackendDynamoDB = "dynamodb"

	DefaultMaxMessageCount = 2000
	EnvPrefix              = "EDIHUB"
)

// Validate ensures the config meets required structure.
func (c *Config) Validate() error {
	if c.Bundling.MaxMessageCount <= 0 {
		return fmt.Errorf("config.bundling.max_message_count must be positive")
	}
	for name, n := range c.Bundling.MaxMessageCountByType {
		if !domain.DocumentType(canonicalDocumentType(name)).Valid() {
			return fmt.Errorf("config.bundling.max_message_count_by_type: unknown document type %s", name)
		}
		if n <= 0 {
			return fmt.Errorf("config.bundling.max_message_count_by_type.%s must be positive", name)
		}
	}
	if c.Bundling.MaxRetries < 0 {
		return fmt.Errorf("config.bundling.max_retries must not be negative")
	}
	switch c.Content.Backend {
	case BackendSQL:
	case BackendDynamoDB:
		if c.Content.DynamoDB.Table == "" {
			return fmt.Errorf("config.content.dynamodb.table is required for the dynamodb backend")
		}
	default:
		return fmt.Errorf("config.content.backend must be %q or %q", BackendSQL, BackendDynamoDB)
	}
	if _, err := c.SenderActor(); err != nil {
		return fmt.Errorf("config.sender: %w", err)
	}
	if _, err := c.DelegationRows(); err != nil {
		return err
	}
	if _, err := c.GridAreaOwnerRows(); err != nil {
		return err
	}
	return nil
}

// MaxFor returns the bundle capacity for a document type. Keys of
// max_message_count_by_type match case-insensitively because viper lowercases
// map keys.
func (c *Config) MaxFor(d domain.DocumentType) int {
	for name, n := range c.Bundling.MaxMessageCountByType {
		if strings.EqualFold(name, string(d)) && n > 0 {
			return n
		}
	}
	if c.Bundling.MaxMessageCount > 0 {
		return c.Bundling.MaxMessageCount
	}
	return DefaultMaxMessageCount
}

func canonicalDocumentType(name string) string {
	for _, d := range domain.DocumentTypes() {
		if strings.EqualFold(name, string(d)) {
			return string(d)
		}
	}
	return name
}

// SenderActor is the actor stated as sender on outgoing documents.
func (c *Config) SenderActor() (domain.Actor, error) {
	role, err := domain.ParseActorRole(c.Sender.Role)
	if err != nil {
		return domain.Actor{}, err
	}
	a := domain.NewActor(c.Sender.Number, role)
	return a, a.Validate()
}

func (a ActorConfig) actor() (domain.Actor, error) {
	role, err := domain.ParseActorRole(a.Role)
	if err != nil {
		return domain.Actor{}, err
	}
	actor := domain.NewActor(a.Number, role)
	return actor, actor.Validate()
}

func (c *Config) DelegationRows() ([]domain.Delegation, error) {
	var res []domain.Delegation
	for i, d := range c.Delegations {
		by, err := d.DelegatedBy.actor()
		if err != nil {
			return nil, fmt.Errorf("config.delegations[%d].delegated_by: %w", i, err)
		}
		to, err := d.DelegatedTo.actor()
		if err != nil {
			return nil, fmt.Errorf("config.delegations[%d].delegated_to: %w", i, err)
		}
		process := domain.ProcessType(d.ProcessType)
		if !process.Valid() {
			return nil, fmt.Errorf("config.delegations[%d]: unknown process type %q", i, d.ProcessType)
		}
		starts, err := time.Parse(time.RFC3339, d.StartsAt)
		if err != nil {
			return nil, fmt.Errorf("config.delegations[%d].starts_at: %w", i, err)
		}
		stops, err := time.Parse(time.RFC3339, d.StopsAt)
		if err != nil {
			return nil, fmt.Errorf("config.delegations[%d].stops_at: %w", i, err)
		}
		if !stops.After(starts) {
			return nil, fmt.Errorf("config.delegations[%d]: stops_at must be after starts_at", i)
		}
		res = append(res, domain.Delegation{
			DelegatedBy:    by,
			DelegatedTo:    to,
			ProcessType:    process,
			GridArea:       d.GridArea,
			StartsAt:       starts.UTC(),
			StopsAt:        stops.UTC(),
			SequenceNumber: d.SequenceNumber,
		})
	}
	return res, nil
}

func (c *Config) GridAreaOwnerRows() ([]domain.GridAreaOwner, error) {
	var res []domain.GridAreaOwner
	for i, o := range c.GridAreaOwners {
		if o.GridArea == "" || o.Owner == "" {
			return nil, fmt.Errorf("config.grid_area_owners[%d]: grid_area and owner are required", i)
		}
		from, err := time.Parse(time.RFC3339, o.ValidFrom)
		if err != nil {
			return nil, fmt.Errorf("config.grid_area_owners[%d].valid_from: %w", i, err)
		}
		res = append(res, domain.GridAreaOwner{
			GridArea:       o.GridArea,
			Owner:          domain.ActorNumber(o.Owner),
			ValidFrom:      from.UTC(),
			SequenceNumber: o.SequenceNumber,
		})
	}
	return res, nil
}

// Path returns the config file path for a workspace.
func Path(workspace string) string {
	if workspace == "" {
		workspace = "."
	}
	return filepath.Join(workspace, "edihub.yml")
}

// GenerateDefault returns default config YAML.
func GenerateDefault() string {
	return defaultTemplate
}

// Default returns the default Config.
func Default() *Config {
	var cfg Config
	_ = yaml.NewDecoder(bytes.NewBufferString(defaultTemplate)).Decode(&cfg)
	return &cfg
}

// FromYAML parses and validates config from raw YAML bytes.
func FromYAML(data []byte) (*Config, error) {
	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("invalid config yaml: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Load reads edihub.yml from the workspace when present, then applies
// EDIHUB_* environment overrides and any flags bound on v. A missing file
// leaves the defaults in place.
func Load(v *viper.Viper, workspace string) (*Config, error) {
	if v == nil {
		v = viper.New()
	}
	setDefaults(v, Default())
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()
	v.SetConfigFile(Path(workspace))
	v.SetConfigType("yaml")
	if err := v.ReadInConfig(); err != nil {
		if !errors.Is(err, os.ErrNotExist) && !isConfigNotFound(err) {
			return nil, fmt.Errorf("read config %s: %w", Path(workspace), err)
		}
	}
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	if cfg.Workspace == "" {
		cfg.Workspace = workspace
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func isConfigNotFound(err error) bool {
	var nf viper.ConfigFileNotFoundError
	return errors.As(err, &nf)
}

// setDefaults registers every scalar key so AutomaticEnv can override it
// during Unmarshal.
func setDefaults(v *viper.Viper, d *Config) {
	v.SetDefault("workspace", d.Workspace)
	v.SetDefault("database.busy_timeout_ms", d.Database.BusyTimeoutMS)
	v.SetDefault("bundling.max_message_count", d.Bundling.MaxMessageCount)
	v.SetDefault("bundling.max_retries", d.Bundling.MaxRetries)
	v.SetDefault("bundling.retry_initial_interval", d.Bundling.RetryInitialInterval)
	v.SetDefault("content.backend", d.Content.Backend)
	v.SetDefault("content.dynamodb.table", d.Content.DynamoDB.Table)
	v.SetDefault("content.dynamodb.region", d.Content.DynamoDB.Region)
	v.SetDefault("content.dynamodb.endpoint", d.Content.DynamoDB.Endpoint)
	v.SetDefault("server.addr", d.Server.Addr)
	v.SetDefault("server.base_path", d.Server.BasePath)
	v.SetDefault("server.jwt_secret", d.Server.JWTSecret)
	v.SetDefault("sender.number", d.Sender.Number)
	v.SetDefault("sender.role", d.Sender.Role)
}

const defaultTemplate = `database:
  busy_timeout_ms: 5000

bundling:
  max_message_count: 2000
  max_retries: 5
  retry_initial_interval: 20ms

content:
  backend: sql
  dynamodb:
    table: edihub-content
    region: eu-north-1

server:
  addr: ":8080"
  base_path: /v0

sender:
  number: "5790001330583"
  role: DataHubAdministrator
`
