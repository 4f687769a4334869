package authclient

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Метрики клиента. outcome: ok | unreachable | rejected | fault | config | malformed.
var (
	exchangesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "bff_token_exchanges_total",
		Help: "Обмены google id_token на пару токенов бэкенда.",
	}, []string{"outcome"})

	refreshesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "bff_token_refreshes_total",
		Help: "Обновления access-токена по refresh-токену.",
	}, []string{"outcome"})
)
