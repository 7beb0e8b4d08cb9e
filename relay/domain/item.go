package domain

// Item é uma piada aguardando tradução.
//
// Imutável depois de enfileirado: a fila é dona do item até o dequeue,
// depois o tracker é dono enquanto a tradução estiver em andamento.
type Item struct {
	ID      int64  `json:"id" msgpack:"id"`
	Payload string `json:"joke" msgpack:"joke"`
}

// TranslationResult é criado quando uma tradução termina com texto não vazio.
// É emitido uma única vez e não fica retido.
type TranslationResult struct {
	ID                int64   `json:"id" msgpack:"id"`
	Payload           string  `json:"joke" msgpack:"joke"`
	TranslatedPayload string  `json:"translated_joke" msgpack:"translated_joke"`
	DurationMs        float64 `json:"translationDurationMs" msgpack:"translationDurationMs"`
}
