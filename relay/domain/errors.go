package domain

import "errors"

var (
	// ErrTransportClosed indica envio em uma conexão que não está aberta.
	ErrTransportClosed = errors.New("transport is not open")

	// ErrTranslatorStatus indica resposta HTTP não-2xx do serviço de tradução.
	ErrTranslatorStatus = errors.New("translator returned non-2xx status")

	// ErrMalformedFrame indica um frame que não decodifica para o tipo esperado.
	ErrMalformedFrame = errors.New("malformed frame")
)
