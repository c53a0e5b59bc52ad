// Package ratelimit fornece adapters HTTP (net/http) para rate limit e limite de concorrência.
//
// Visão geral (camadas):
//
//   - domain: contratos e tipos do domínio (sem dependência de net/http)
//   - application: casos de uso (decisão por janela fixa, acquire/timeout) sem net/http
//   - infra: implementações concretas (contadores por chave, semáforo, estatísticas)
//   - ratelimit (este pacote): middlewares HTTP + extração de chave + tradução para envelope/headers
//
// Fluxo no gateway:
//
//  1. Extrai a chave do cliente (IP/header/XFF)
//  2. Incrementa o contador da chave e obtém a decisão
//  3. Se bloqueado, responde 429 (rate limit) ou 503 (concorrência)
//  4. Se permitido, segue para o timeout guard e o dispatcher
//
// O contador é zerado para todos os clientes ao mesmo tempo a cada janela.
// Um cliente pode, portanto, enviar até 2x o limite num intervalo curto que
// atravesse a fronteira da janela.
package ratelimit
