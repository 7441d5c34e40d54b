package middleware

import (
	"log/slog"
	"net/http"

	"github.com/Busskov/study-clock/pkg/config"
)

type UserConnectionCounter func(userID int64) int
type UserConnectionCycler func(userID int64)

// NewConnectionLimiter bounds the number of live sessions per user. It
// runs after the auth middleware, so the user is already resolved.
func NewConnectionLimiter(
	logger *slog.Logger,
	counter UserConnectionCounter,
	cycler UserConnectionCycler,
	cfg config.ConnectionLimitConfig,
) Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if cfg.MaxPerUser <= 0 {
				next.ServeHTTP(w, r)
				return
			}

			reqMeta, ok := ReqMetadataFrom(r.Context())
			if !ok || reqMeta.User == nil {
				logger.Error("Connection limiter ran without a resolved user. Check middleware order.")
				http.Error(w, "Internal Server Error", http.StatusInternalServerError)
				return
			}

			count := counter(reqMeta.User.ID)
			if count < cfg.MaxPerUser {
				next.ServeHTTP(w, r)
				return
			}

			logger.Warn("User connection limit reached",
				slog.Int64("userID", reqMeta.User.ID),
				slog.Int("count", count),
			)
			switch cfg.Mode {
			case "cycle":
				cycler(reqMeta.User.ID)
				next.ServeHTTP(w, r)
			default:
				http.Error(w, "Too Many Active Connections", http.StatusTooManyRequests)
			}
		})
	}
}
