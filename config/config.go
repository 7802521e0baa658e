package config

import (
	"os"
	"sync"
	"time"

	"gopkg.in/yaml.v3"
)

type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Database  DatabaseConfig  `yaml:"database"`
	Embedding EmbeddingConfig `yaml:"embedding"`
	Data      DataConfig      `yaml:"data"`
	Skills    SkillsConfig    `yaml:"skills"`
}

type ServerConfig struct {
	Port string `yaml:"port"`
	Mode string `yaml:"mode"` // debug, release
}

type DatabaseConfig struct {
	Type string `yaml:"type"` // sqlite, mysql
	DSN  string `yaml:"dsn"`
}

type EmbeddingConfig struct {
	APIURL string `yaml:"api_url"`
	APIKey string `yaml:"api_key"`
	Model  string `yaml:"model"`
}

type DataConfig struct {
	Dir string `yaml:"dir"`
}

type SkillsConfig struct {
	BuiltinDir     string        `yaml:"builtin_dir"`
	PersonalDir    string        `yaml:"personal_dir"` // 为空时使用 ~/.langconfig/skills
	ProjectDirs    []string      `yaml:"project_dirs"`
	AutoReload     bool          `yaml:"auto_reload"`
	ReloadInterval time.Duration `yaml:"reload_interval"`
}

var (
	cfg  *Config
	once sync.Once
)

func GetConfig() *Config {
	once.Do(func() {
		cfg = loadConfig()
	})
	return cfg
}

func loadConfig() *Config {
	config := &Config{
		Server: ServerConfig{
			Port: "8080",
			Mode: "debug",
		},
		Database: DatabaseConfig{
			Type: "sqlite",
			DSN:  "./data/app.db",
		},
		Embedding: EmbeddingConfig{
			APIURL: "https://api.openai.com/v1",
			Model:  "text-embedding-3-small",
		},
		Data: DataConfig{
			Dir: "./data",
		},
		Skills: SkillsConfig{
			BuiltinDir:     "./skills/builtin",
			AutoReload:     true,
			ReloadInterval: 5 * time.Second,
		},
	}

	configPath := os.Getenv("CONFIG_PATH")
	if configPath == "" {
		configPath = "config.yaml"
	}

	data, err := os.ReadFile(configPath)
	if err == nil {
		yaml.Unmarshal(data, config)
	}

	// 环境变量优先级高于配置文件
	if apiKey := os.Getenv("OPENAI_API_KEY"); apiKey != "" {
		config.Embedding.APIKey = apiKey
	}
	if baseURL := os.Getenv("OPENAI_BASE_URL"); baseURL != "" {
		config.Embedding.APIURL = baseURL
	}
	if model := os.Getenv("OPENAI_EMBEDDING_MODEL"); model != "" {
		config.Embedding.Model = model
	}

	// 数据库环境变量
	if dbType := os.Getenv("DB_TYPE"); dbType != "" {
		config.Database.Type = dbType
	}
	if dbDSN := os.Getenv("DB_DSN"); dbDSN != "" {
		config.Database.DSN = dbDSN
	}

	if dataDir := os.Getenv("DATA_DIR"); dataDir != "" {
		config.Data.Dir = dataDir
	}
	if skillsDir := os.Getenv("SKILLS_DIR"); skillsDir != "" {
		config.Skills.BuiltinDir = skillsDir
	}
	if port := os.Getenv("PORT"); port != "" {
		config.Server.Port = port
	}

	return config
}
