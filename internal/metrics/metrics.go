// Package metrics содержит счётчики Prometheus сервиса пополнений.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// DepositsCreated считает принятые заявки на пополнение.
	DepositsCreated = promauto.NewCounter(prometheus.CounterOpts{
		Name: "topup_deposits_created_total",
		Help: "Number of deposit requests accepted.",
	})

	// DepositDecisions считает решения администратора по заявкам с разбивкой по решению.
	DepositDecisions = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "topup_deposit_decisions_total",
		Help: "Number of deposit decisions applied, by decision.",
	}, []string{"decision"})

	// PurchasesCreated считает созданные покупки.
	PurchasesCreated = promauto.NewCounter(prometheus.CounterOpts{
		Name: "topup_purchases_created_total",
		Help: "Number of purchases created.",
	})
)
