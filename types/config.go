package types

type ConfigManager interface {
	Load() error
	GetConfig() *DataConfig
	GetValue(path string, defaultValue interface{}) interface{}
	GetAs(path string, target interface{}) error
}

type DataConfig struct {
	Name       string            `yaml:"name" json:"name" validate:"required"`
	Version    string            `yaml:"version" json:"version" validate:"required"`
	Logger     *LoggerConfig     `yaml:"logger" json:"logger"`
	Cache      *CacheConfig      `yaml:"cache" json:"cache"`
	Database   *DatabaseConfig   `yaml:"database" json:"database"`
	Cron       *CronConfig       `yaml:"cron" json:"cron"`
	Metrics    *MetricsConfig    `yaml:"metrics" json:"metrics"`
	Entities   []*EntityConfig   `yaml:"entities" json:"entities" validate:"dive"`
	Controller *ControllerConfig `yaml:"controller" json:"controller"`
}

type LoggerConfig struct {
	Type   string      `yaml:"type" json:"type"`
	Level  string      `yaml:"level" json:"level"`
	Config interface{} `yaml:"config" json:"config"`
}

type CacheConfig struct {
	Enabled bool        `yaml:"enabled" json:"enabled"`
	Type    string      `yaml:"type" json:"type" validate:"required_if=Enabled true"`
	Config  interface{} `yaml:"config" json:"config"`
}

type DatabaseConfig struct {
	Enabled bool        `yaml:"enabled" json:"enabled"`
	Type    string      `yaml:"type" json:"type" validate:"required_if=Enabled true"`
	Path    string      `yaml:"path" json:"path"`
	Config  interface{} `yaml:"config" json:"config"`
}

type CronConfig struct {
	Enabled  bool   `yaml:"enabled" json:"enabled"`
	Timezone string `yaml:"timezone" json:"timezone" validate:"required_if=Enabled true"`
}

type MetricsConfig struct {
	Enabled bool              `yaml:"enabled" json:"enabled"`
	Type    string            `yaml:"type" json:"type" validate:"required_if=Enabled true"`
	Config  interface{}       `yaml:"config" json:"config"`
	Labels  map[string]string `yaml:"labels" json:"labels"`
}

type ControllerConfig struct {
	CacheReads      bool   `yaml:"cache_reads" json:"cache_reads"`
	ReadTTL         string `yaml:"read_ttl" json:"read_ttl"`
	StatsReportCron string `yaml:"stats_report_cron" json:"stats_report_cron"`
}

type EntityConfig struct {
	Name   string               `yaml:"name" json:"name" validate:"required"`
	Fields []*EntityFieldConfig `yaml:"fields" json:"fields" validate:"dive"`
}

type EntityFieldConfig struct {
	Name     string `yaml:"name" json:"name" validate:"required"`
	Type     string `yaml:"type" json:"type" validate:"omitempty,oneof=string number bool object array"`
	Required bool   `yaml:"required" json:"required"`
	Rules    string `yaml:"rules" json:"rules"`
}
