package config

import "time"

type Notify struct {
	StreamTimeout time.Duration `env:"NOTIFY_STREAM_TIMEOUT" envDefault:"60s"`
	ChannelPrefix string        `env:"NOTIFY_CHANNEL_PREFIX" envDefault:"task:"`
}
