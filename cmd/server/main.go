package main

import (
	"fmt"
	"os"

	"gitlab.com/silenteer-oss/relay"
	"gitlab.com/silenteer-oss/relay/config"
	"gitlab.com/silenteer-oss/relay/nats"
	"gitlab.com/silenteer-oss/relay/tracing"
)

const serviceName = "relay"

func main() {
	logger := relay.GetLogger()

	if config.Enabled() {
		if err := config.InitRemoteConfig(serviceName, logger); err != nil {
			logger.Error(fmt.Sprintf("remote config error: %+v\n ", err))
			os.Exit(1)
		}
	}

	store := newImageStore()
	handlers := &relay.DefaultHandlers{}
	options := []relay.Option{
		relay.Logger(logger),
		relay.Routes(handlers.Register),
		relay.Routes(func(m *relay.Mapper) {
			if err := RegisterImages(m, store); err != nil {
				logger.Error(fmt.Sprintf("image routes error: %+v\n ", err))
				os.Exit(1)
			}
		}),
	}

	if relay.GetServerConfig().Tracing {
		tracer, closer, err := tracing.InitTracing(serviceName, logger)
		if err != nil {
			logger.Error(fmt.Sprintf("tracing error: %+v\n ", err))
			os.Exit(1)
		}
		defer closer.Close()
		options = append(options, relay.Use(tracing.Middleware(tracer)))
	}

	server, err := relay.NewServer(options...)
	if err != nil {
		logger.Error(fmt.Sprintf("Http server creation error: %+v\n ", err))
		os.Exit(1)
	}
	handlers.Pool = server.Pool()

	if nats.Enabled() {
		bridge, err := nats.NewServer(server.Handler(), nats.Pool(server.Pool()), nats.Logger(logger))
		if err != nil {
			logger.Error(fmt.Sprintf("Nats server creation error: %+v\n ", err))
			os.Exit(1)
		}
		if err := bridge.Start(); err != nil {
			logger.Error(fmt.Sprintf("Nats server start error: %+v\n ", err))
			os.Exit(1)
		}
		defer bridge.Stop()
	}

	server.Start()
}
