package reactors

import (
	redis "github.com/redis/go-redis/v9"
	"github.com/soundhaven/soundhaven/internal/events"
	"github.com/soundhaven/soundhaven/internal/providers/email"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

var Module = fx.Module("reactors",
	fx.Invoke(Register),
)

type Params struct {
	fx.In

	Log        *zap.Logger
	Dispatcher *events.Dispatcher
	Email      email.Provider
	Redis      *redis.Client `optional:"true"`
	Users      UserDirectory `optional:"true"`
}

// Register subscribes every reactor. Order matters only for log readability;
// the dispatcher isolates failures between them.
func Register(p Params) {
	NewAuditReactor(p.Log).Register(p.Dispatcher)
	NewEmailReactor(p.Log, p.Email, p.Users).Register(p.Dispatcher)
	NewCacheReactor(p.Log, p.Redis).Register(p.Dispatcher)
}
