package relay

import "joke-relay/relay/domain"

// DefaultJokes é o catálogo enviado em round-robin para cada conexão.
var DefaultJokes = []domain.Item{
	{ID: 1, Payload: "Why did the scarecrow win an award? Because he was outstanding in his field!"},
	{ID: 2, Payload: "Why don't scientists trust atoms? Because they make up everything!"},
	{ID: 3, Payload: "What do you call a fake noodle? An Impasta!"},
	{ID: 4, Payload: "Why did the bicycle fall over? Because it was two tired!"},
	{ID: 5, Payload: "What do you call cheese that isn't yours? Nacho cheese!"},
	{ID: 6, Payload: "Why couldn't the leopard play hide and seek? Because he was always spotted!"},
	{ID: 7, Payload: "What do you get when you cross a snowman and a vampire? Frostbite!"},
	{ID: 8, Payload: "Why did the golfer bring two pairs of pants? In case he got a hole in one!"},
	{ID: 9, Payload: "Why are ghosts such bad liars? Because you can see right through them!"},
	{ID: 10, Payload: "What do you call a lazy kangaroo? Pouch potato!"},
}
