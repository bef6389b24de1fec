package app

import (
	"os"
	"strings"
	"time"

	"github.com/querymind/core/internal/config"
	jwtpkg "github.com/querymind/core/internal/pkg/jwt"
	"github.com/querymind/core/internal/pkg/nativelog"
)

func applyRuntimeSettings(cfg *config.AppConfig) {
	if cfg.Log.Dir != "" {
		_ = os.Setenv(nativelog.EnvLogDir, cfg.Log.Dir)
	}
	if secret := strings.TrimSpace(cfg.Auth.Secret); secret != "" {
		jwtpkg.SetSecret(secret)
	}
}

func humanizeDuration(d time.Duration) string {
	if d < time.Minute {
		return d.Truncate(time.Second).String()
	}
	if d < time.Hour {
		return d.Truncate(time.Minute).String()
	}
	if d < 24*time.Hour {
		return d.Truncate(time.Hour).String()
	}
	return d.Truncate(24 * time.Hour).String()
}
