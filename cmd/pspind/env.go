package main

import (
	"strings"

	"github.com/pushchain/spin-relay/spinClient/constant"
)

var envKeyReplacer = strings.NewReplacer("-", "_")

// envName maps a flag name to its environment variable, e.g. log-level -> PSPIN_LOG_LEVEL.
func envName(flag string) string {
	return constant.EnvPrefix + "_" + strings.ToUpper(envKeyReplacer.Replace(flag))
}
