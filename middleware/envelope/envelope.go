// Package envelope define o formato único das respostas geradas pelo próprio
// gateway (tudo que não é resposta repassada do upstream).
package envelope

import (
	"encoding/json"
	"net/http"
)

const StatusError = "Error"

// Mensagens fixas do contrato de resposta.
const (
	MsgNotFound           = "Route not found."
	MsgTooManyRequests    = "Rate limit exceeded."
	MsgGatewayTimeout     = "Gateway timeout."
	MsgBadGateway         = "Bad gateway."
	MsgServiceUnavailable = "Service unavailable."
	MsgInternal           = "Internal server error."
)

// Envelope é o corpo JSON {code, status, message, data}.
// Data é sempre null nas respostas de erro.
type Envelope struct {
	Code    int    `json:"code"`
	Status  string `json:"status"`
	Message string `json:"message"`
	Data    any    `json:"data"`
}

func New(code int, message string) Envelope {
	return Envelope{Code: code, Status: StatusError, Message: message}
}

func NotFound() Envelope           { return New(http.StatusNotFound, MsgNotFound) }
func TooManyRequests() Envelope    { return New(http.StatusTooManyRequests, MsgTooManyRequests) }
func GatewayTimeout() Envelope     { return New(http.StatusGatewayTimeout, MsgGatewayTimeout) }
func BadGateway() Envelope         { return New(http.StatusBadGateway, MsgBadGateway) }
func ServiceUnavailable() Envelope { return New(http.StatusServiceUnavailable, MsgServiceUnavailable) }
func Internal() Envelope           { return New(http.StatusInternalServerError, MsgInternal) }

// Write escreve o envelope com o status HTTP igual a Code.
func Write(w http.ResponseWriter, env Envelope) {
	h := w.Header()
	h.Set("Content-Type", "application/json; charset=utf-8")
	h.Set("X-Content-Type-Options", "nosniff")
	h.Del("Content-Length")
	w.WriteHeader(env.Code)
	_ = json.NewEncoder(w).Encode(env)
}
