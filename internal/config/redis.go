package config

type Redis struct {
	Address  string `env:"REDIS_ADDRESS,notEmpty"`
	Password string `env:"REDIS_PASSWORD"`
	DB       int    `env:"REDIS_DB" envDefault:"0"`
}
