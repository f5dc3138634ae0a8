package main

import (
	"github.com/dmitrymomot/pushkit/pkg/email"
	"github.com/dmitrymomot/pushkit/pkg/httpserver"
	"github.com/dmitrymomot/pushkit/pkg/mongo"
	"github.com/dmitrymomot/pushkit/pkg/pg"
	"github.com/dmitrymomot/pushkit/pkg/queue"
	"github.com/dmitrymomot/pushkit/pkg/realtime"
	"github.com/dmitrymomot/pushkit/pkg/redis"
	"github.com/dmitrymomot/pushkit/svc/push"
)

type appConfig struct {
	Env     string `env:"APP_ENV" envDefault:"development"`
	Service string `env:"APP_NAME" envDefault:"pushd"`

	// WSConnectPerMinute caps websocket connection attempts per client address.
	WSConnectPerMinute int `env:"REALTIME_CONNECT_PER_MINUTE" envDefault:"30"`

	HTTP     httpserver.Config
	Postgres pg.Config
	Redis    redis.Config
	Mongo    mongo.Config
	Email    email.Config
	Queue    queue.Config
	Push     push.Config
	Realtime realtime.Config
}
