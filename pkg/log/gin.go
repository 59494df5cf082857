package log

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

const headerRequestID = "X-Request-ID"

// quietPaths are logged at debug so probes do not flood the output.
var quietPaths = map[string]struct{}{
	"/health": {},
}

// GinMiddleware gives each request a child logger carrying its request id
// and writes one line when the handler returns. For WebSocket routes that is
// the moment the connection is handed to the hub.
func GinMiddleware(logger zerolog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()

		reqID := c.GetHeader(headerRequestID)
		if reqID == "" {
			reqID = uuid.NewString()
		}
		c.Header(headerRequestID, reqID)

		reqLogger := logger.With().
			Str(FieldRequestID, reqID).
			Str(FieldMethod, c.Request.Method).
			Str(FieldPath, c.Request.URL.Path).
			Str(FieldClientIP, c.ClientIP()).
			Logger()
		c.Request = c.Request.WithContext(WithLogger(c.Request.Context(), reqLogger))

		c.Next()

		status := c.Writer.Status()
		evt := reqLogger.WithLevel(levelFor(c.Request.URL.Path, status)).
			Int(FieldStatus, status).
			Dur(FieldLatency, time.Since(start))
		if userID := c.GetString(FieldUserID); userID != "" {
			evt = evt.Str(FieldUserID, userID)
		}
		if len(c.Errors) > 0 {
			evt = evt.Str("errors", c.Errors.String())
		}

		if status == http.StatusSwitchingProtocols {
			evt.Msg("connection upgraded")
			return
		}
		evt.Msg("request completed")
	}
}

func levelFor(path string, status int) zerolog.Level {
	switch {
	case status >= http.StatusInternalServerError:
		return zerolog.ErrorLevel
	case status >= http.StatusBadRequest:
		return zerolog.WarnLevel
	}
	if _, ok := quietPaths[path]; ok {
		return zerolog.DebugLevel
	}
	return zerolog.InfoLevel
}
