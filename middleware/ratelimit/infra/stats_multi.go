package infra

import (
	"context"
	"errors"

	"api-gateway/middleware/ratelimit/domain"
)

// MultiStats repassa cada evento para todos os stores. Os erros são
// agregados; um store com falha não impede os demais de gravar.
type MultiStats []domain.StatsStore

// JoinStats ignora entradas nil e devolve nil quando não sobra nenhum store.
func JoinStats(stores ...domain.StatsStore) domain.StatsStore {
	out := make(MultiStats, 0, len(stores))
	for _, s := range stores {
		if s != nil {
			out = append(out, s)
		}
	}
	switch len(out) {
	case 0:
		return nil
	case 1:
		return out[0]
	}
	return out
}

func (m MultiStats) Record(ctx context.Context, ev domain.StatsEvent) error {
	var errs []error
	for _, s := range m {
		if err := s.Record(ctx, ev); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
