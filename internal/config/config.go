package config

import (
	"strings"

	"github.com/spf13/viper"
)

const (
	DefaultListenAddr = ":3000"
	DefaultSiteName   = "kgate"
)

type MySQLConfig struct {
	Dsn             string   `mapstructure:"dsn"`
	Replicas        []string `mapstructure:"replicas"`
	TablePrefix     string   `mapstructure:"tablePrefix"`
	MaxIdleConns    int      `mapstructure:"maxIdleConns"`
	MaxOpenConns    int      `mapstructure:"maxOpenConns"`
	ConnMaxIdleTime int      `mapstructure:"connMaxIdleTime"`
	ConnMaxLifetime int      `mapstructure:"connMaxLifetime"`
}

type OAuthPasswordConfig struct {
	TokenURL     string   `mapstructure:"tokenURL"`
	ClientID     string   `mapstructure:"clientID"`
	ClientSecret string   `mapstructure:"clientSecret"`
	Scope        []string `mapstructure:"scope"`
}

type SMTPConfig struct {
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	Username string `mapstructure:"username"`
	Password string `mapstructure:"password"`
	From     string `mapstructure:"from"`
	TLS      bool   `mapstructure:"tls"`
	CertFile string `mapstructure:"certFile"`
	KeyFile  string `mapstructure:"keyFile"`
	CAFile   string `mapstructure:"caFile"`
}

type MailConfig struct {
	Backend string     `mapstructure:"backend"`
	SMTP    SMTPConfig `mapstructure:"smtp"`
}

type RedisConfig struct {
	URL         string `mapstructure:"url"`
	PoolSize    int    `mapstructure:"poolSize"`
	ClusterMode bool   `mapstructure:"clusterMode"`
}

type Config struct {
	Debug         bool        `mapstructure:"debug"`
	SiteName      string      `mapstructure:"siteName"`
	MasterKey     string      `mapstructure:"masterKey"`
	ListenAddr    string      `mapstructure:"listenAddr"`
	AllowOrigins  []string    `mapstructure:"allowOrigins"`
	CookieSecure  bool        `mapstructure:"cookieSecure"`
	Redis         RedisConfig `mapstructure:"redis"`
	Mail          MailConfig  `mapstructure:"mail"`
	MySQL         MySQLConfig `mapstructure:"mysql"`
	AuthProviders struct {
		OAuthPassword *OAuthPasswordConfig `mapstructure:"oauthPassword"`
	} `mapstructure:"authProviders"`

	v *viper.Viper
}

// Reader exposes the raw settings of the loaded file, see Reader.
func (c *Config) Reader() Reader {
	return NewViperReader(c.v)
}

func (c *Config) Sanitize() error {
	if c.ListenAddr == "" {
		c.ListenAddr = DefaultListenAddr
	}
	if c.SiteName == "" {
		c.SiteName = DefaultSiteName
	}
	return nil
}

func LoadConfig(filename string) (*Config, error) {
	v := viper.New()
	v.SetConfigFile(filename)
	v.SetConfigType("yaml")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		return nil, err
	}

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, err
	}
	config.v = v

	if err := config.Sanitize(); err != nil {
		return nil, err
	}
	return &config, nil
}
