package keepalive

import (
	"fmt"
	"net/http"

	"go.uber.org/zap"
)

// Start serves a liveness endpoint in the background so uptime
// monitors can ping the bot. An empty addr disables it.
func Start(addr string, log *zap.Logger) {
	if addr == "" {
		return
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/", func(w http.ResponseWriter, _ *http.Request) {
		fmt.Fprint(w, "alive")
	})

	go func() {
		log.Info("Keepalive server listening.", zap.String("addr", addr))
		if err := http.ListenAndServe(addr, mux); err != nil {
			log.Error("Keepalive server stopped.", zap.Error(err))
		}
	}()
}
