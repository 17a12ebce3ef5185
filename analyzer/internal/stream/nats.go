// Package stream связывает анализатор с NATS: публикация событий ритма
// и прием сэмплов пульса от внешних продюсеров.
package stream

import (
	"log"
	"time"

	"github.com/nats-io/nats.go"
)

// Connect подключается к NATS с бесконечным переподключением
func Connect(url string) (*nats.Conn, error) {
	return nats.Connect(
		url,
		nats.Name("rhythm-analyzer"),
		nats.Timeout(3*time.Second),
		nats.ReconnectWait(500*time.Millisecond),
		nats.MaxReconnects(-1),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if err != nil {
				log.Printf("[WARN] NATS disconnected: %v", err)
			}
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			log.Printf("[INFO] NATS reconnected to %s", nc.ConnectedUrl())
		}),
	)
}
