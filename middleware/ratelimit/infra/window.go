package infra

import (
	"sync"
	"time"

	"api-gateway/middleware/ratelimit/domain"
)

// WindowStore é o contador por chave da janela fixa.
//
// É o único dono do mapa de contadores. As entradas são criadas na primeira
// vez que uma chave aparece e nunca são removidas; o janitor apenas zera todas
// as contagens a cada janela (reset alinhado para todos os clientes).
type WindowStore struct {
	mu        sync.Mutex
	counts    map[string]int64
	window    time.Duration
	lastReset time.Time

	now func() time.Time
}

type WindowOption func(*WindowStore)

// WithClock troca o relógio usado para calcular NextReset (útil em testes).
func WithClock(now func() time.Time) WindowOption {
	return func(s *WindowStore) { s.now = now }
}

func NewWindowStore(window time.Duration, opts ...WindowOption) *WindowStore {
	s := &WindowStore{
		counts: make(map[string]int64),
		window: window,
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	s.lastReset = s.now()
	return s
}

func (s *WindowStore) Window() time.Duration { return s.window }

// Incr implementa domain.CounterStore.
func (s *WindowStore) Incr(key domain.Key) int64 {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.counts[string(key)]++
	return s.counts[string(key)]
}

// Count devolve o valor atual sem incrementar.
func (s *WindowStore) Count(key domain.Key) int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.counts[string(key)]
}

// Len é o número de chaves já vistas.
func (s *WindowStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.counts)
}

// NextReset implementa domain.WindowClock.
func (s *WindowStore) NextReset() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastReset.Add(s.window)
}

// Reset zera todas as chaves existentes sem removê-las.
//
// Um incremento que chega logo depois do reset começa a nova janela em 1; o
// lock garante que nenhum incremento é perdido nem que um valor negativo
// apareça.
func (s *WindowStore) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()

	for k := range s.counts {
		s.counts[k] = 0
	}
	s.lastReset = s.now()
}

// StartJanitor inicia a goroutine que zera os contadores a cada janela.
// Pare cancelando o contexto.
func (s *WindowStore) StartJanitor(ctx DoneContext) {
	if s.window <= 0 {
		return
	}

	t := time.NewTicker(s.window)
	go func() {
		defer t.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-t.C:
				s.Reset()
			}
		}
	}()
}

// DoneContext é o mínimo necessário para aceitar context.Context sem importar context aqui.
type DoneContext interface {
	Done() <-chan struct{}
}
