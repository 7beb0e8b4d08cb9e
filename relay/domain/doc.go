// Package domain define contratos e tipos de domínio do relay de piadas:
// itens de trabalho, resultados de tradução, portas (Translator, Transport,
// Gate) e os contratos de admissão e estatísticas usados pelo servidor.
//
// Este pacote não depende de net/http, WebSocket nem de implementações concretas.
// A intenção é permitir testes de unidade puros e desacoplar regras de negócio
// de detalhes de infraestrutura.
package domain
