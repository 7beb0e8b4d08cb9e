// Package infra contém implementações concretas (infraestrutura) para os contratos
// definidos no pacote domain.
//
// Exemplos:
//   - IntervalGate: espaçamento mínimo entre liberações usando golang.org/x/time/rate
//   - KeyedLimiters: token bucket por chave (IP) para admissão de conexões
//   - NewSlotPool: semáforo simples para limite de conexões simultâneas
//   - MemoryStatsStore / RedisStatsStore: contadores do servidor
//   - JSONCodec / MsgpackCodec: formatos de frame no WebSocket
//   - WSTransport: conexão duplex do cliente (github.com/gobwas/ws)
//   - GeminiTranslator: chamada externa de tradução via HTTP
package infra
