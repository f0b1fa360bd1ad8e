package config

type YamlRedisConfig struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
}

type YamlBrokerConfig struct {
	Enabled bool            `yaml:"enabled"`
	Pattern string          `yaml:"pattern"`
	Redis   YamlRedisConfig `yaml:"redis"`
}

// YamlConfig defines the structure for unmarshaling the embedded config.yaml file.
type YamlConfig struct {
	RunMode        string           `yaml:"run_mode"`
	Port           string           `yaml:"port"`
	AuthKey        string           `yaml:"auth_key"`
	LogLevel       string           `yaml:"log_level"`
	AllowedOrigins []string         `yaml:"allowed_origins"`
	Broker         YamlBrokerConfig `yaml:"broker"`
}

// NewConfigFromYaml converts the raw unmarshaled data into a base AppConfig.
// This is stage 1 of configuration loading: the struct exists, but environment
// overrides have not been applied yet.
func NewConfigFromYaml(yamlCfg *YamlConfig) (*AppConfig, error) {
	appCfg := &AppConfig{
		RunMode:        yamlCfg.RunMode,
		Port:           yamlCfg.Port,
		AuthKey:        yamlCfg.AuthKey,
		LogLevel:       yamlCfg.LogLevel,
		AllowedOrigins: yamlCfg.AllowedOrigins,
		Broker:         yamlCfg.Broker,
	}

	return appCfg, nil
}
