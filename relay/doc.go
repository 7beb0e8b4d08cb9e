// Package relay é o lado HTTP do servidor de piadas.
//
// Expõe:
// - GET /ws: upgrade WebSocket; envia uma piada por intervalo e recebe as traduções.
// - GET /stats: stream SSE com o snapshot das sessões.
// - GET /: UI estática que consome /stats.
//
// A admissão de conexões (rate limit por IP e limite de conexões simultâneas)
// é um middleware sobre application.Admission.
package relay
