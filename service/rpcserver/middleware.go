package rpcserver

import (
	"net/http"
	"time"

	"github.com/urfave/negroni"

	"github.com/kava-labs/kava-rpc-gateway/logging"
)

// createRequestLoggingMiddleware logs every http request once it has been
// answered and recovers from panics in h, answering them with a 500
func createRequestLoggingMiddleware(h http.Handler, serviceLogger *logging.ServiceLogger) http.Handler {
	recovery := negroni.NewRecovery()
	recovery.PrintStack = false
	recovery.Logger = recoveryLogger{serviceLogger}

	n := negroni.New(recovery)
	n.UseFunc(func(w http.ResponseWriter, r *http.Request, next http.HandlerFunc) {
		requestAt := time.Now()

		lrw := negroni.NewResponseWriter(w)
		next(lrw, r)

		serviceLogger.Debug().
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", lrw.Status()).
			Dur("latency", time.Since(requestAt)).
			Msg("served request")
	})
	n.UseHandler(h)

	return n
}

// recoveryLogger adapts the service logger to negroni.ALogger
type recoveryLogger struct {
	*logging.ServiceLogger
}

func (l recoveryLogger) Println(v ...interface{}) {
	l.Logger.Error().Msgf("%v", v)
}

func (l recoveryLogger) Printf(format string, v ...interface{}) {
	l.Logger.Error().Msgf(format, v...)
}
