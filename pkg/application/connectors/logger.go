package connectors

import "github.com/int-code/git-sleuth/pkg/contextx"

var logger = contextx.LoggerFromContextOrDefault //nolint:gochecknoglobals
