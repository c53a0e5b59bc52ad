// Package infra contém implementações concretas (infraestrutura) para os contratos
// definidos no pacote domain.
//
// Exemplos:
//   - WindowStore: contador por chave com reset periódico (janela fixa)
//   - MemoryStatsStore / RedisStatsStore: estatísticas das decisões
//   - ChanPool: semáforo simples para limite de concorrência
package infra
