// Package application contém os casos de uso do relay de piadas.
//
// No cliente: Queue (fila com gate de admissão), Tracker (tarefas de tradução
// com concorrência limitada) e Driver (loop que liga transporte, fila e tracker).
// No servidor: Sessions (contadores por conexão) e Admission (rate limit por
// IP e limite de conexões simultâneas para os upgrades WebSocket).
//
// Ele depende apenas do pacote domain e não conhece net/http nem WebSocket.
package application
