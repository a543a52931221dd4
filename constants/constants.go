package constants

// Pipeline

const (
	ServiceName                 = "taxipipe"
	TimeFormatYearSeconds       = "20060102T150405" // used for human readable log output
	TimeFormatLogicalDate       = "2006-01-02"
	TimeFormatPeriod            = "2006-01"
	EnvVarPrefix                = "TP" // prefixed for environment variables in twelveFactorMode
	DefaultSourceBaseURL        = "https://d37ci6vzurychx.cloudfront.net/trip-data"
	DefaultFileNameTemplate     = "%v_tripdata_%04d-%02d.parquet" // feed, year, month
	DefaultFetchTimeoutSeconds  = 600
	DefaultStatementTimeoutSecs = 300
	DefaultNewRowsWindowHours   = 24
	DefaultRunLogTable          = "metadata.processing_log"
	DefaultManifestTable        = "metadata.load_manifest"
	DefaultRunLogTargetTable    = "stg_taxi"
	DefaultBusinessDateColumn   = "pickup_date"
	DefaultLoadTimestampColumn  = "load_timestamp"
	DefaultWarehouseDatabase    = "dbt_db_nyctaxi"
	DefaultWarehouseSchema      = "L1_LANDING"
	DefaultWarehouseStage       = "snow_stage_nyctaxi"
	DefaultSchedule             = "@monthly"
	DefaultLandingTableTemplate = "%v_taxi" // feed
	KeyLayoutPartitioned        = "partitioned"
	KeyLayoutFlat               = "flat"
	OnNoFilesError              = "error"
	OnNoFilesSkip               = "skip"
	TransformTypeDbt            = "dbt"
	TransformTypeSql            = "sql"
	TransformTypeNone           = "none"
	ConnectionTypeSnowflake     = "snowflake"
	ConnectionTypeMockSnowflake = "mockSnowflake"
	ActionFuncsCommandRun       = "run"
	ActionFuncsCommandFetch     = "fetch"
	ActionFuncsCommandLoad      = "load"
	ActionFuncsCommandLogRun    = "log-run"
	ActionFuncsCommandSchedule  = "schedule"
)

// Feeds

const (
	FeedGreen  = "green"
	FeedYellow = "yellow"
)

// Step names used by the pipeline graph.

const (
	StepFetchPrefix = "fetch_"
	StepLoadPrefix  = "load_"
	StepTransform   = "transform"
	StepLogRun      = "log_run"
)
