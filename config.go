package relay

import (
	"fmt"
	"os"
	"strings"
	"sync"
	"time"

	"logur.dev/logur"

	"gitlab.com/silenteer-oss/relay/log"

	"github.com/spf13/viper"
)

var hostname string

var serverConfigOnce sync.Once
var serverConfig *ServerConfig

var logConfigOnce sync.Once
var logConfig *log.Config

var loggerOnce sync.Once
var logger logur.Logger

const (
	ServerHost           = "Server.Host"
	ServerPort           = "Server.Port"
	ServerDefaultPort    = "Server.DefaultPort"
	ServerWorkers        = "Server.Workers"
	ServerDrainTimeout   = "Server.DrainTimeout"
	ServerReadTimeout    = "Server.ReadTimeout"
	CorsAllowedOrigins   = "Cors.AllowedOrigins"
	TracingEnabled       = "Tracing.Enabled"
	LoggingFormat        = "Logging.Format"
	LoggingLevel         = "Logging.Level"
	LoggingNoColor       = "Logging.NoColor"
	defaultWorkers       = 1000
	defaultDrainTimeout  = 15
	defaultReadTimeout   = 60
	defaultListeningPort = "9292"
)

func init() {
	var err error
	hostname, err = os.Hostname()
	if hostname == "" || err != nil {
		hostname = "localhost"
	}

	viper.AddConfigPath(".")
	viper.SetConfigName("config")

	viper.AutomaticEnv() // read in environment variables that match
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	if err := viper.ReadInConfig(); err == nil {
		fmt.Println("Using config file:", viper.ConfigFileUsed())
	}

	// logging
	viper.SetDefault(LoggingFormat, "logfmt")
	viper.SetDefault(LoggingLevel, "info")
	viper.SetDefault(LoggingNoColor, false)

	// server
	viper.SetDefault(ServerHost, "")
	viper.SetDefault(ServerPort, "")
	viper.SetDefault(ServerDefaultPort, defaultListeningPort)
	viper.SetDefault(ServerWorkers, defaultWorkers)
	viper.SetDefault(ServerDrainTimeout, defaultDrainTimeout)
	viper.SetDefault(ServerReadTimeout, defaultReadTimeout)
	viper.SetDefault(CorsAllowedOrigins, []string{})
	viper.SetDefault(TracingEnabled, false)
}

type ServerConfig struct {
	Host           string
	Port           string
	DefaultPort    string
	Workers        int
	DrainTimeout   int // seconds
	ReadTimeout    int // seconds
	AllowedOrigins []string
	Tracing        bool
}

func (c ServerConfig) GetDrainTimeoutDuration() time.Duration {
	return time.Duration(c.DrainTimeout) * time.Second
}

func (c ServerConfig) GetReadTimeoutDuration() time.Duration {
	return time.Duration(c.ReadTimeout) * time.Second
}

// Addr is the host:port the server binds.
func (c ServerConfig) Addr() string {
	host, port := BindAddr(c.Host, c.Port, c.DefaultPort)
	return host + ":" + port
}

func GetServerConfig() *ServerConfig {
	serverConfigOnce.Do(func() { // <-- atomic, does not allow repeating
		serverConfig = &ServerConfig{
			Host:           viper.GetString(ServerHost),
			Port:           viper.GetString(ServerPort),
			DefaultPort:    viper.GetString(ServerDefaultPort),
			Workers:        viper.GetInt(ServerWorkers),
			DrainTimeout:   viper.GetInt(ServerDrainTimeout),
			ReadTimeout:    viper.GetInt(ServerReadTimeout),
			AllowedOrigins: viper.GetStringSlice(CorsAllowedOrigins),
			Tracing:        viper.GetBool(TracingEnabled),
		}
	})
	return serverConfig
}

func GetLogConfig() *log.Config {
	logConfigOnce.Do(func() { // <-- atomic, does not allow repeating
		logConfig = &log.Config{
			Format:  viper.GetString(LoggingFormat),
			Level:   viper.GetString(LoggingLevel),
			NoColor: viper.GetBool(LoggingNoColor),
		}
	})
	return logConfig
}

func GetLogger() logur.Logger {
	loggerOnce.Do(func() { // <-- atomic, does not allow repeating
		logger = log.WithFields(log.NewLogger(*GetLogConfig()), map[string]interface{}{"hostname": hostname})
	})
	return logger
}

// Hostname is the local host name, "localhost" if it can not be resolved.
func Hostname() string {
	return hostname
}
