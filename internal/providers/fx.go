package providers

import (
	"github.com/coverview/creditd/internal/providers/openrouter"
	"github.com/coverview/creditd/internal/providers/pollinations"
	"go.uber.org/fx"
)

var Module = fx.Module("providers",
	fx.Provide(
		openrouter.NewClient,
		pollinations.NewClient,
	),
)
