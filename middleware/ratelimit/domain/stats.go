package domain

import (
	"context"
	"time"
)

// StatsEvent representa um evento de decisão do rate limit.
//
// Route é o prefixo da rota configurada (ou UnmatchedRoute) e Method passa por
// MethodLabel: nenhum dos dois vem cru da requisição, senão um cliente
// bloqueado criaria uma entrada nova por path inventado.
type StatsEvent struct {
	Key     Key
	Allowed bool
	Count   int64

	Method string
	Route  string

	At time.Time
}

// UnmatchedRoute agrupa as requisições que não casam com nenhuma rota.
const UnmatchedRoute = "unmatched"

// MethodLabel reduz métodos fora do conjunto padrão a "OTHER".
func MethodLabel(method string) string {
	switch method {
	case "GET", "HEAD", "POST", "PUT", "PATCH", "DELETE", "OPTIONS":
		return method
	}
	return "OTHER"
}

// StatsStore é a estratégia de persistência para estatísticas do rate limit.
//
// O middleware trata erro como best-effort (não derruba a request).
type StatsStore interface {
	Record(ctx context.Context, ev StatsEvent) error
}
