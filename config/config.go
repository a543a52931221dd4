// Package config loads the pipeline configuration from YAML with environment overrides.
package config

import (
	"encoding/json"
	"fmt"
	"io"
	"io/ioutil"
	"os"
	"path"
	"reflect"
	"strings"
	"time"

	"github.com/ghodss/yaml"
	"github.com/mitchellh/mapstructure"
	"github.com/pkg/errors"
	"github.com/relloyd/taxipipe/aws/s3"
	"github.com/relloyd/taxipipe/constants"
	"github.com/relloyd/taxipipe/feed"
	"github.com/relloyd/taxipipe/helper"
	"github.com/relloyd/taxipipe/rdbms"
	yamlv2 "gopkg.in/yaml.v2"
)

// FileNotFoundError denotes failing to find configuration file.
type FileNotFoundError struct {
	name string
}

func (f FileNotFoundError) Error() string {
	return fmt.Sprintf("config file %q not found", f.name)
}

type Config struct {
	Source       SourceConfig       `mapstructure:"source" json:"source"`
	Store        StoreConfig        `mapstructure:"store" json:"store"`
	Warehouse    WarehouseConfig    `mapstructure:"warehouse" json:"warehouse"`
	Load         LoadConfig         `mapstructure:"load" json:"load"`
	RunLog       RunLogConfig       `mapstructure:"runlog" json:"runlog"`
	Transform    TransformConfig    `mapstructure:"transform" json:"transform"`
	Orchestrator OrchestratorConfig `mapstructure:"orchestrator" json:"orchestrator"`
	Server       ServerConfig       `mapstructure:"server" json:"server"`
	Schedule     ScheduleConfig     `mapstructure:"schedule" json:"schedule"`
	Log          LogConfig          `mapstructure:"log" json:"log"`
}

type SourceConfig struct {
	BaseURL      string   `mapstructure:"base_url" json:"base_url"`
	HTTPTimeout  Duration `mapstructure:"http_timeout" json:"http_timeout"`
	Feeds        []string `mapstructure:"feeds" json:"feeds"`
	SkipExisting bool     `mapstructure:"skip_existing" json:"skip_existing"`
}

type StoreConfig struct {
	Bucket    string `mapstructure:"bucket" json:"bucket" errorTxt:"store.bucket" mandatory:"yes"`
	Prefix    string `mapstructure:"prefix" json:"prefix"`
	Region    string `mapstructure:"region" json:"region" errorTxt:"store.region" mandatory:"yes"`
	Endpoint  string `mapstructure:"endpoint" json:"endpoint"`
	KeyLayout string `mapstructure:"key_layout" json:"key_layout"`
}

// S3Bucket returns the landing bucket location.
// Bucket may also be given as s3://<bucket>/<prefix>, in which case Prefix is appended to the path.
func (s StoreConfig) S3Bucket() (s3.AwsS3Bucket, error) {
	b, err := s3.ParseDSN(s.Bucket, s.Region)
	if err != nil {
		return b, errors.Wrap(err, "invalid store.bucket")
	}
	b.Prefix = strings.Trim(path.Join(b.Prefix, s.Prefix), "/")
	b.Endpoint = s.Endpoint
	return b, nil
}

type WarehouseConfig struct {
	Type               string   `mapstructure:"type" json:"type"`
	DSN                string   `mapstructure:"dsn" json:"dsn" errorTxt:"warehouse.dsn" mandatory:"yes"`
	Database           string   `mapstructure:"database" json:"database"`
	Schema             string   `mapstructure:"schema" json:"schema"`
	Stage              string   `mapstructure:"stage" json:"stage"`
	StorageIntegration string   `mapstructure:"storage_integration" json:"storage_integration"`
	AwsKeyID           string   `mapstructure:"aws_key_id" json:"aws_key_id"`
	AwsSecretKey       string   `mapstructure:"aws_secret_key" json:"aws_secret_key"`
	StatementTimeout   Duration `mapstructure:"statement_timeout" json:"statement_timeout"`
}

type LoadConfig struct {
	OnNoFiles           string            `mapstructure:"on_no_files" json:"on_no_files"`
	ManifestTable       string            `mapstructure:"manifest_table" json:"manifest_table"`
	Tables              map[string]string `mapstructure:"tables" json:"tables"`
	LoadTimestampColumn string            `mapstructure:"load_timestamp_column" json:"load_timestamp_column"`
}

type RunLogConfig struct {
	Table               string   `mapstructure:"table" json:"table"`
	Targets             []string `mapstructure:"targets" json:"targets"`
	BusinessDateColumn  string   `mapstructure:"business_date_column" json:"business_date_column"`
	LoadTimestampColumn string   `mapstructure:"load_timestamp_column" json:"load_timestamp_column"`
	NewRowsWindow       Duration `mapstructure:"new_rows_window" json:"new_rows_window"`
}

type TransformConfig struct {
	Type       string    `mapstructure:"type" json:"type"`
	Dbt        DbtConfig `mapstructure:"dbt" json:"dbt"`
	Statements []string  `mapstructure:"statements" json:"statements"`
}

type DbtConfig struct {
	Executable  string   `mapstructure:"executable" json:"executable"`
	Command     string   `mapstructure:"command" json:"command"`
	ProjectDir  string   `mapstructure:"project_dir" json:"project_dir"`
	ProfilesDir string   `mapstructure:"profiles_dir" json:"profiles_dir"`
	Target      string   `mapstructure:"target" json:"target"`
	ExtraArgs   []string `mapstructure:"extra_args" json:"extra_args"`
}

type OrchestratorConfig struct {
	StepTimeout  Duration `mapstructure:"step_timeout" json:"step_timeout"`
	FetchTimeout Duration `mapstructure:"fetch_timeout" json:"fetch_timeout"`
	Retries      int      `mapstructure:"retries" json:"retries"`
	RetryDelay   Duration `mapstructure:"retry_delay" json:"retry_delay"`
	Concurrency  int      `mapstructure:"concurrency" json:"concurrency"`
}

type ServerConfig struct {
	Addr string `mapstructure:"addr" json:"addr"`
	Port int    `mapstructure:"port" json:"port"`
}

type ScheduleConfig struct {
	Spec string `mapstructure:"spec" json:"spec"`
}

type LogConfig struct {
	Level     string `mapstructure:"level" json:"level"`
	StackDump bool   `mapstructure:"stack_dump" json:"stack_dump"`
}

// Default returns the configuration used for any value not supplied.
func Default() Config {
	return Config{
		Source: SourceConfig{
			BaseURL:     constants.DefaultSourceBaseURL,
			HTTPTimeout: Duration(time.Duration(constants.DefaultFetchTimeoutSeconds) * time.Second),
			Feeds:       []string{constants.FeedGreen, constants.FeedYellow},
		},
		Store: StoreConfig{KeyLayout: constants.KeyLayoutPartitioned},
		Warehouse: WarehouseConfig{
			Type:             constants.ConnectionTypeSnowflake,
			Database:         constants.DefaultWarehouseDatabase,
			Schema:           constants.DefaultWarehouseSchema,
			Stage:            constants.DefaultWarehouseStage,
			StatementTimeout: Duration(time.Duration(constants.DefaultStatementTimeoutSecs) * time.Second),
		},
		Load: LoadConfig{
			OnNoFiles:           constants.OnNoFilesError,
			ManifestTable:       constants.DefaultManifestTable,
			LoadTimestampColumn: constants.DefaultLoadTimestampColumn,
		},
		RunLog: RunLogConfig{
			Table:               constants.DefaultRunLogTable,
			Targets:             []string{constants.DefaultRunLogTargetTable},
			BusinessDateColumn:  constants.DefaultBusinessDateColumn,
			LoadTimestampColumn: constants.DefaultLoadTimestampColumn,
			NewRowsWindow:       Duration(time.Duration(constants.DefaultNewRowsWindowHours) * time.Hour),
		},
		Transform: TransformConfig{Type: constants.TransformTypeDbt, Dbt: DbtConfig{Executable: "dbt", Command: "build"}},
		Orchestrator: OrchestratorConfig{
			FetchTimeout: Duration(time.Duration(constants.DefaultFetchTimeoutSeconds) * time.Second),
			RetryDelay:   Duration(time.Minute),
		},
		Server:   ServerConfig{Addr: "127.0.0.1", Port: 8080},
		Schedule: ScheduleConfig{Spec: constants.DefaultSchedule},
		Log:      LogConfig{Level: "info"},
	}
}

// Load reads the YAML file at path, applies environment overrides from env and decodes the
// result on top of Default(). A missing file is only an error when mustExist is true.
func Load(path string, mustExist bool, env map[string]string) (Config, error) {
	raw := make(map[string]interface{})
	b, err := ioutil.ReadFile(path)
	switch {
	case err == nil:
		if err := yamlv2.Unmarshal(b, &raw); err != nil {
			return Config{}, errors.Wrapf(err, "error parsing config file %v", path)
		}
		raw = normalize(raw).(map[string]interface{})
	case os.IsNotExist(err) && !mustExist:
	case os.IsNotExist(err):
		return Config{}, FileNotFoundError{path}
	default:
		return Config{}, err
	}
	cfg := Default()
	if err := applyEnv(raw, env, reflect.TypeOf(cfg)); err != nil {
		return Config{}, err
	}
	if err := decode(raw, &cfg); err != nil {
		return Config{}, err
	}
	return cfg, cfg.Validate()
}

// FromEnv builds the configuration from defaults and environment overrides only.
func FromEnv(env map[string]string) (Config, error) {
	raw := make(map[string]interface{})
	cfg := Default()
	if err := applyEnv(raw, env, reflect.TypeOf(cfg)); err != nil {
		return Config{}, err
	}
	if err := decode(raw, &cfg); err != nil {
		return Config{}, err
	}
	return cfg, cfg.Validate()
}

func decode(raw map[string]interface{}, out *Config) error {
	d, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		DecodeHook:       stringToDurationHook,
		WeaklyTypedInput: true,
		ErrorUnused:      true,
		Result:           out,
	})
	if err != nil {
		return err
	}
	if err := d.Decode(raw); err != nil {
		return errors.Wrap(err, "invalid configuration")
	}
	return nil
}

// Validate checks option values; mandatory connection fields are checked by the commands that use them.
func (c Config) Validate() error {
	for _, f := range c.Source.Feeds {
		if _, err := feed.ParseName(f); err != nil {
			return err
		}
	}
	if c.Store.Bucket != "" && c.Store.Region != "" {
		if _, err := c.Store.S3Bucket(); err != nil {
			return err
		}
	}
	switch c.Store.KeyLayout {
	case constants.KeyLayoutPartitioned, constants.KeyLayoutFlat:
	default:
		return fmt.Errorf("unsupported store.key_layout %q", c.Store.KeyLayout)
	}
	switch c.Load.OnNoFiles {
	case constants.OnNoFilesError, constants.OnNoFilesSkip:
	default:
		return fmt.Errorf("unsupported load.on_no_files %q", c.Load.OnNoFiles)
	}
	switch c.Transform.Type {
	case constants.TransformTypeDbt, constants.TransformTypeSql, constants.TransformTypeNone:
	default:
		return fmt.Errorf("unsupported transform.type %q", c.Transform.Type)
	}
	switch c.Warehouse.Type {
	case constants.ConnectionTypeSnowflake, constants.ConnectionTypeMockSnowflake:
	default:
		return fmt.Errorf("unsupported warehouse.type %q", c.Warehouse.Type)
	}
	for kind, v := range map[string]string{"warehouse.database": c.Warehouse.Database, "warehouse.schema": c.Warehouse.Schema, "warehouse.stage": c.Warehouse.Stage} {
		if err := rdbms.ValidateIdentifier(kind, v); err != nil {
			return err
		}
	}
	if c.Orchestrator.Retries < 0 {
		return fmt.Errorf("orchestrator.retries must not be negative")
	}
	return nil
}

// ValidateSections checks the mandatory fields of the supplied sections.
func ValidateSections(sections ...interface{}) error {
	for _, s := range sections {
		if err := helper.ValidateStructIsPopulated(s); err != nil {
			return err
		}
	}
	return nil
}

// Feeds returns the configured feeds.
func (c Config) Feeds() []feed.Name {
	retval := make([]feed.Name, 0, len(c.Source.Feeds))
	for _, f := range c.Source.Feeds {
		n, _ := feed.ParseName(f) // checked by Validate.
		retval = append(retval, n)
	}
	return retval
}

// Redacted returns a copy of c that is safe to print.
func (c Config) Redacted() Config {
	if c.Warehouse.DSN != "" {
		c.Warehouse.DSN = rdbms.RedactSnowflakeDSN(c.Warehouse.DSN)
	}
	if c.Warehouse.AwsSecretKey != "" {
		c.Warehouse.AwsSecretKey = "xxxxx"
	}
	return c
}

// Print writes the redacted configuration to w as yaml or json.
func (c Config) Print(w io.Writer, format string) error {
	var b []byte
	var err error
	switch strings.ToLower(format) {
	case "yaml", "":
		b, err = yaml.Marshal(c.Redacted())
	case "json":
		b, err = json.MarshalIndent(c.Redacted(), "", "  ")
		b = append(b, '\n')
	default:
		return fmt.Errorf("unsupported output format %q", format)
	}
	if err != nil {
		return err
	}
	_, err = w.Write(b)
	return err
}
