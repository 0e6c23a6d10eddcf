package viper

import (
	"path/filepath"
	"strings"

	spfviper "github.com/spf13/viper"
)

// Config 封装 spf13/viper 实例：配置文件打底，默认值补缺，环境变量覆盖。
type Config struct {
	v *spfviper.Viper
}

func New() *Config {
	return &Config{v: spfviper.New()}
}

// LoadFile 按扩展名（.yaml/.yml/.json）加载配置文件，其它扩展名交给 viper 推断。
func (c *Config) LoadFile(path string) error {
	c.v.SetConfigFile(path)
	switch filepath.Ext(path) {
	case ".yaml", ".yml":
		c.v.SetConfigType("yaml")
	case ".json":
		c.v.SetConfigType("json")
	}
	return c.v.ReadInConfig()
}

// BindEnvPrefix 让已出现在配置文件或默认值中的 key 可被环境变量覆盖。
// 变量名为 prefix 加上大写的 key，"." 与 "-" 替换为 "_"，
// 例如 prefix 为 LIVESESSION_ 时 logging.httpapi.level 对应 LIVESESSION_LOGGING_HTTPAPI_LEVEL。
func (c *Config) BindEnvPrefix(prefix string) {
	c.v.SetEnvPrefix(strings.TrimSuffix(prefix, "_"))
	c.v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	c.v.AutomaticEnv()
}

// Unmarshal 将完整配置解码到 dst，环境变量覆盖只在此路径上对嵌套 key 生效。
func (c *Config) Unmarshal(dst any) error {
	return c.v.Unmarshal(dst)
}

func (c *Config) SetDefault(key string, value any) {
	c.v.SetDefault(key, value)
}

// IsSet 判断 key 是否来自配置文件、默认值或已绑定的环境变量。
func (c *Config) IsSet(key string) bool {
	return c.v.IsSet(key)
}
