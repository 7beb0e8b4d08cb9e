package infra

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/vmihailenco/msgpack/v5"

	"joke-relay/relay/domain"
)

// Codec define o formato dos frames trocados no WebSocket.
//
// JSON viaja em frames de texto; msgpack em frames binários, então o lado
// que recebe escolhe o codec pelo opcode (ver CodecForFrame).
type Codec interface {
	Name() string
	Binary() bool
	Marshal(v any) ([]byte, error)
	Unmarshal(data []byte, v any) error
}

const (
	CodecNameJSON    = "json"
	CodecNameMsgpack = "msgpack"
)

type JSONCodec struct{}

func (JSONCodec) Name() string                       { return CodecNameJSON }
func (JSONCodec) Binary() bool                       { return false }
func (JSONCodec) Marshal(v any) ([]byte, error)      { return json.Marshal(v) }
func (JSONCodec) Unmarshal(data []byte, v any) error { return json.Unmarshal(data, v) }

type MsgpackCodec struct{}

func (MsgpackCodec) Name() string                       { return CodecNameMsgpack }
func (MsgpackCodec) Binary() bool                       { return true }
func (MsgpackCodec) Marshal(v any) ([]byte, error)      { return msgpack.Marshal(v) }
func (MsgpackCodec) Unmarshal(data []byte, v any) error { return msgpack.Unmarshal(data, v) }

// CodecByName retorna o codec pelo nome. Padrão: JSON.
func CodecByName(name string) Codec {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case CodecNameMsgpack:
		return MsgpackCodec{}
	default:
		return JSONCodec{}
	}
}

// CodecForFrame escolhe o codec a partir do tipo do frame recebido.
func CodecForFrame(binary bool) Codec {
	if binary {
		return MsgpackCodec{}
	}
	return JSONCodec{}
}

// wireResult usa ponteiros para distinguir campo ausente de valor zero.
type wireResult struct {
	ID         *int64   `json:"id" msgpack:"id"`
	Joke       string   `json:"joke" msgpack:"joke"`
	Translated *string  `json:"translated_joke" msgpack:"translated_joke"`
	DurationMs *float64 `json:"translationDurationMs" msgpack:"translationDurationMs"`
}

// DecodeResult lê uma tradução enviada pelo cliente. id e translated_joke são
// obrigatórios; hasDuration indica se translationDurationMs veio no frame.
func DecodeResult(c Codec, data []byte) (res domain.TranslationResult, hasDuration bool, err error) {
	var w wireResult
	if err := c.Unmarshal(data, &w); err != nil {
		return res, false, fmt.Errorf("%w: %v", domain.ErrMalformedFrame, err)
	}
	if w.ID == nil || w.Translated == nil {
		return res, false, fmt.Errorf("%w: missing id or translated_joke", domain.ErrMalformedFrame)
	}

	res = domain.TranslationResult{ID: *w.ID, Payload: w.Joke, TranslatedPayload: *w.Translated}
	if w.DurationMs != nil {
		res.DurationMs = *w.DurationMs
		hasDuration = true
	}
	return res, hasDuration, nil
}
