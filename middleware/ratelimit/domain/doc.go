// Package domain define contratos e tipos de domínio para rate limit e concorrência.
//
// Este pacote não depende de net/http nem de implementações concretas.
// O modelo de contagem é uma janela fixa por chave de cliente: o contador é
// incrementado antes da decisão e zerado para todas as chaves a cada janela.
package domain
