package domain

// Camada de domínio do rate limit.
//
// Regras e contratos (interfaces/tipos) sem dependência de net/http.

import "time"

type Key string

// Policy é a configuração fixa da janela: no máximo MaxRequests por Window.
type Policy struct {
	MaxRequests int
	Window      time.Duration
}

// CounterStore mantém um contador por chave.
//
// Incr incrementa e devolve o valor já incrementado (cria a chave em 0 se não
// existir). A implementação deve ser segura para uso concorrente: nenhum
// incremento pode ser perdido.
type CounterStore interface {
	Incr(Key) int64
}

// WindowClock é implementado por stores que sabem quando a janela atual termina.
// Usado apenas para calcular o Retry-After.
type WindowClock interface {
	NextReset() time.Time
}

type Decision struct {
	Allowed bool
	// Count é o valor do contador depois do incremento desta requisição.
	Count int64
	// Remaining é quantas requisições ainda cabem na janela atual (nunca negativo).
	Remaining int64
	// RetryAfter é o valor a ser retornado em Retry-After quando bloquear.
	// Se 0, não há recomendação.
	RetryAfter time.Duration
}
