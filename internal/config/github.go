package config

import "time"

type GitHub struct {
	APIURL        string `env:"GITHUB_API_URL" envDefault:"https://api.github.com"`
	AppID         int64  `env:"GITHUB_APP_ID,notEmpty"`
	PrivateKey    string `env:"GITHUB_PRIVATE_KEY,notEmpty"`
	WebhookSecret string `env:"GITHUB_WEBHOOK_SECRET,notEmpty"`
	UserAgent     string `env:"GITHUB_USER_AGENT" envDefault:"git-sleuth"`

	ResolutionWorkflow string `env:"GITHUB_RESOLUTION_WORKFLOW" envDefault:"merge-conflict.yaml"`
	ApplyWorkflow      string `env:"GITHUB_APPLY_WORKFLOW" envDefault:"apply-resolution.yaml"`

	ProbeAttempts int           `env:"GITHUB_PROBE_ATTEMPTS" envDefault:"5"`
	ProbeInterval time.Duration `env:"GITHUB_PROBE_INTERVAL" envDefault:"3s"`

	RequestTimeout time.Duration `env:"GITHUB_REQUEST_TIMEOUT" envDefault:"10s"`
	TokenTTL       time.Duration `env:"GITHUB_TOKEN_TTL" envDefault:"1h"`
	RefreshMargin  time.Duration `env:"GITHUB_TOKEN_REFRESH_MARGIN" envDefault:"5m"`
}
