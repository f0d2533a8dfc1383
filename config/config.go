// Package config loads relay settings from a consul KV entry on top of the
// local viper configuration.
package config

import (
	"fmt"
	"runtime/debug"
	"strings"
	"time"

	consulapi "github.com/hashicorp/consul/api"
	"github.com/pkg/errors"
	"github.com/spf13/viper"
	_ "github.com/spf13/viper/remote"
	"logur.dev/logur"
)

const (
	ConsulEnabled       = "Consul.Enabled"
	ConsulAddr          = "Consul.Addr"
	ConsulWatchInterval = "Consul.WatchInterval"
)

const noFilesFound = "Remote Configurations Error: No Files Found"

func init() {
	viper.SetDefault(ConsulEnabled, false)
	viper.SetDefault(ConsulAddr, "localhost:8500")
	viper.SetDefault(ConsulWatchInterval, 60)
}

// Enabled reports whether remote configuration is switched on.
func Enabled() bool {
	return viper.GetBool(ConsulEnabled)
}

// KeyPath is the consul KV path holding the settings of subject.
func KeyPath(subject string) string {
	return "/" + strings.Trim(subject, "/")
}

// InitRemoteConfig reads the JSON document stored under subject in consul
// into viper, creating an empty one when it does not exist yet, and keeps
// watching it for changes.
func InitRemoteConfig(subject string, logger logur.Logger) error {
	consulHost := viper.GetString(ConsulAddr)

	err := viper.AddRemoteProvider("consul", consulHost, KeyPath(subject))
	if err != nil {
		return errors.WithMessagef(err, "err config consul")
	}

	viper.SetConfigType("json")
	err = viper.ReadRemoteConfig()
	if err != nil && err.Error() == noFilesFound {
		err = putEmpty(consulHost, subject)
		if err != nil {
			return err
		}
	}
	if err != nil {
		return errors.WithMessagef(err, "err read config %s", consulHost)
	}

	interval := time.Duration(viper.GetInt(ConsulWatchInterval)) * time.Second
	go watch(interval, logger)
	return nil
}

func putEmpty(consulHost, subject string) error {
	config := consulapi.DefaultConfig()
	config.Address = consulHost
	consul, err := consulapi.NewClient(config)
	if err != nil {
		return errors.WithMessage(err, "err connect to consul")
	}

	_, err = consul.KV().Put(&consulapi.KVPair{
		Key:   strings.Trim(subject, "/"),
		Value: []byte("{}"),
	}, nil)
	if err != nil {
		return errors.WithMessage(err, "err put to consul")
	}
	return nil
}

func watch(interval time.Duration, logger logur.Logger) {
	defer func() {
		if err := recover(); err != nil {
			logger.Error(fmt.Sprintf("remote config watcher panicked: %v\n%s", err, debug.Stack()))
		}
	}()
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for range ticker.C {
		if err := viper.WatchRemoteConfig(); err != nil {
			logger.Warn("unable to read remote config", map[string]interface{}{"err": err.Error()})
		}
	}
}
