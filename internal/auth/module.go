package auth

import (
	"go.uber.org/fx"

	"github.com/webitel/im-messaging-service/config"
)

var Module = fx.Module("auth",
	fx.Provide(
		func(cfg *config.Config) *Verifier {
			return NewVerifier(cfg.Auth.Secret, cfg.Auth.Leeway)
		},
	),
)
