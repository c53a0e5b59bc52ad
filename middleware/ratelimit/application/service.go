package application

import (
	"time"

	"api-gateway/middleware/ratelimit/domain"
)

// Service concentra a regra de admissão por janela fixa.
//
// Ele não sabe nada sobre HTTP (headers/status), apenas retorna uma decisão.
type Service struct {
	Counters domain.CounterStore
	Policy   domain.Policy

	// now permite fixar o relógio nos testes.
	now func() time.Time
}

// Decide incrementa o contador da chave e compara o valor pós-incremento com
// Policy.MaxRequests. A requisição que ultrapassa o limite é rejeitada e
// continua contando.
func (s Service) Decide(key domain.Key) domain.Decision {
	if s.Counters == nil || s.Policy.MaxRequests <= 0 {
		return domain.Decision{Allowed: true}
	}

	count := s.Counters.Incr(key)
	max := int64(s.Policy.MaxRequests)

	remaining := max - count
	if remaining < 0 {
		remaining = 0
	}
	if count <= max {
		return domain.Decision{Allowed: true, Count: count, Remaining: remaining}
	}
	return domain.Decision{
		Allowed:    false,
		Count:      count,
		Remaining:  0,
		RetryAfter: s.retryAfter(),
	}
}

// retryAfter é o tempo até o próximo reset, arredondado para cima em segundos
// (mínimo 1s). Sem relógio no store, usa a janela inteira.
func (s Service) retryAfter() time.Duration {
	wait := s.Policy.Window
	if clk, ok := s.Counters.(domain.WindowClock); ok {
		now := time.Now
		if s.now != nil {
			now = s.now
		}
		wait = clk.NextReset().Sub(now())
	}
	if wait < time.Second {
		return time.Second
	}
	return (wait + time.Second - 1) / time.Second * time.Second
}
