package settings

import (
	"log"
	"time"

	_ "github.com/joho/godotenv/autoload" // load .env before envconfig
	"github.com/kelseyhightower/envconfig"
)

// consts
const (
	Name = "Kaiwa"
)

// Config ...
type Config struct {
	Name    string `ignored:"true"`
	Version string `ignored:"true"`

	Develop      bool     `envconfig:"DEVELOP"`
	HTTPListen   string   `envconfig:"HTTP_LISTEN" default:":5001"`
	RedisURI     string   `envconfig:"redis_uri"`                 // 空则不保存服务端历史
	AllowOrigins []string `envconfig:"allow_origins" default:"*"` // CORS: 允许的 Origin 调用来源
	RateLimit    string   `envconfig:"rate_limit" default:"30-M"` // ulule/limiter 格式
	DocRoot      string   `envconfig:"doc_root"`                  // 覆盖内嵌的前端文件

	Provider      string `envconfig:"provider" default:"gemini"` // gemini | openai
	APIKey        string `envconfig:"API_KEY"`
	Model         string `envconfig:"model"`
	OpenAIAPIKey  string `envconfig:"openAi_Api_Key"`
	OpenAIBaseURL string `envconfig:"openAi_Base_URL"`

	HistoryLimit int           `envconfig:"history_limit" default:"10"`
	ChatTimeout  time.Duration `envconfig:"chat_timeout" default:"25s"`
	PromptMode   string        `envconfig:"prompt_mode" default:"system"` // system | priming
	PresetFile   string        `envconfig:"preset_file"`
}

var (
	// Current 当前配置
	Current = new(Config)
)

func init() {
	if err := envconfig.Process(Name, Current); err != nil {
		log.Printf("envconfig process fail: %s", err)
	}

	Current.Name = Name
	Current.Version = version
}

// Usage 打印配置帮助
func Usage() error {
	log.Printf("ver: %s", Current.Version)
	return envconfig.Usage(Current.Name, Current)
}

// InDevelop ...
func InDevelop() bool {
	return Current.Develop
}

// AllowAllOrigins ...
func AllowAllOrigins() bool {
	return 0 == len(Current.AllowOrigins) ||
		1 == len(Current.AllowOrigins) && Current.AllowOrigins[0] == "*"
}

// ModelName returns the configured model or the provider's default
func ModelName() string {
	if len(Current.Model) > 0 {
		return Current.Model
	}
	if Current.Provider == "openai" {
		return "gpt-4o-mini"
	}
	return "gemini-1.5-flash"
}
