// Package config lê variáveis de ambiente com valores padrão e monta o logger
// compartilhado pelos binários do relay.
package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

// Valores inválidos caem no padrão, como nos demais helpers.

func GetenvDefault(k, def string) string {
	if v := strings.TrimSpace(os.Getenv(k)); v != "" {
		return v
	}
	return def
}

func GetenvIntDefault(k string, def int) int {
	if i, ok := GetenvInt(k); ok {
		return i
	}
	return def
}

// GetenvInt retorna ok=false quando a variável está ausente, vazia ou inválida.
func GetenvInt(k string) (int, bool) {
	v, ok := os.LookupEnv(k)
	if !ok || v == "" {
		return 0, false
	}
	i, err := strconv.Atoi(strings.TrimSpace(v))
	if err != nil {
		return 0, false
	}
	return i, true
}

func GetenvIsSet(k string) bool {
	v, ok := os.LookupEnv(k)
	return ok && v != ""
}

func GetenvFloatDefault(k string, def float64) float64 {
	v := os.Getenv(k)
	if v == "" {
		return def
	}
	f, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
	if err != nil {
		return def
	}
	return f
}

func GetenvBoolDefault(k string, def bool) bool {
	v := os.Getenv(k)
	if v == "" {
		return def
	}
	b, err := strconv.ParseBool(strings.TrimSpace(v))
	if err != nil {
		return def
	}
	return b
}

// GetenvDurationDefault aceita "1s", "250ms" etc. Um inteiro puro é lido como
// milissegundos (SEND_JOKE_INTERVAL=200).
func GetenvDurationDefault(k string, def time.Duration) time.Duration {
	v := strings.TrimSpace(os.Getenv(k))
	if v == "" {
		return def
	}
	if ms, err := strconv.Atoi(v); err == nil {
		return time.Duration(ms) * time.Millisecond
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return def
	}
	return d
}
