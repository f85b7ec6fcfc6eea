package app

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	log "github.com/sirupsen/logrus"
)

// EnvLookup читает переменную окружения (os.LookupEnv или подмена в тестах).
type EnvLookup func(key string) (string, bool)

// EnvReader переносит переменные окружения в конфигурацию. Некорректное значение
// оставляет значение по умолчанию и добавляет предупреждение.
type EnvReader struct {
	lookup   EnvLookup
	warnings []string
}

// NewEnvReader создаёт EnvReader; nil означает os.LookupEnv.
func NewEnvReader(lookup EnvLookup) *EnvReader {
	if lookup == nil {
		lookup = os.LookupEnv
	}
	return &EnvReader{lookup: lookup}
}

// Warnings возвращает накопленные предупреждения.
func (r *EnvReader) Warnings() []string {
	return r.warnings
}

func (r *EnvReader) value(key string) (string, bool) {
	v, ok := r.lookup(key)
	if !ok {
		return "", false
	}
	v = strings.TrimSpace(v)
	return v, v != ""
}

func (r *EnvReader) warn(key, raw string, err error) {
	r.warnings = append(r.warnings, fmt.Sprintf("invalid %s=%q: %v, using default", key, raw, err))
}

// String задаёт строку, если переменная не пустая.
func (r *EnvReader) String(key string, dst *string) {
	if v, ok := r.value(key); ok {
		*dst = v
	}
}

// Bool понимает true/false, 1/0, yes/no, on/off.
func (r *EnvReader) Bool(key string, dst *bool) {
	raw, ok := r.value(key)
	if !ok {
		return
	}
	v, err := ParseBool(raw)
	if err != nil {
		r.warn(key, raw, err)
		return
	}
	*dst = v
}

func (r *EnvReader) Int(key string, dst *int, valid func(int) bool, rule string) {
	raw, ok := r.value(key)
	if !ok {
		return
	}
	v, err := ParseInt(raw, valid, rule)
	if err != nil {
		r.warn(key, raw, err)
		return
	}
	*dst = v
}

func (r *EnvReader) Duration(key string, dst *time.Duration, valid func(time.Duration) bool, rule string) {
	raw, ok := r.value(key)
	if !ok {
		return
	}
	v, err := ParseDuration(raw, valid, rule)
	if err != nil {
		r.warn(key, raw, err)
		return
	}
	*dst = v
}

func (r *EnvReader) Float(key string, dst *float64, valid func(float64) bool, rule string) {
	raw, ok := r.value(key)
	if !ok {
		return
	}
	v, err := strconv.ParseFloat(raw, 64)
	if err == nil && valid != nil && !valid(v) {
		err = fmt.Errorf("%s", rule)
	}
	if err != nil {
		r.warn(key, raw, err)
		return
	}
	*dst = v
}

// ParseBool разбирает логическое значение.
func ParseBool(raw string) (bool, error) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "1", "true", "yes", "on":
		return true, nil
	case "0", "false", "no", "off":
		return false, nil
	default:
		return false, fmt.Errorf("expected one of true/false/1/0/yes/no/on/off")
	}
}

// ParseInt разбирает целое и проверяет его функцией valid.
func ParseInt(raw string, valid func(int) bool, rule string) (int, error) {
	v, err := strconv.Atoi(strings.TrimSpace(raw))
	if err != nil {
		return 0, err
	}
	if valid != nil && !valid(v) {
		return 0, fmt.Errorf("%s", rule)
	}
	return v, nil
}

// ParseDuration разбирает длительность и проверяет её функцией valid.
func ParseDuration(raw string, valid func(time.Duration) bool, rule string) (time.Duration, error) {
	v, err := time.ParseDuration(strings.TrimSpace(raw))
	if err != nil {
		return 0, err
	}
	if valid != nil && !valid(v) {
		return 0, fmt.Errorf("%s", rule)
	}
	return v, nil
}

// Переменные логирования, общие для всех бинарников.
const (
	EnvLogFormat = "SHOP_LOG_FORMAT"
	EnvLogLevel  = "SHOP_LOG_LEVEL"
)

// SetupLogger настраивает глобальный логгер: text с полным временем или json, уровень из SHOP_LOG_LEVEL.
func SetupLogger(lookup EnvLookup) {
	if lookup == nil {
		lookup = os.LookupEnv
	}
	if format, _ := lookup(EnvLogFormat); strings.EqualFold(strings.TrimSpace(format), "json") {
		log.SetFormatter(&log.JSONFormatter{})
	} else {
		log.SetFormatter(&log.TextFormatter{FullTimestamp: true})
	}
	log.SetLevel(log.InfoLevel)
	if raw, ok := lookup(EnvLogLevel); ok {
		if level, err := log.ParseLevel(strings.TrimSpace(raw)); err == nil {
			log.SetLevel(level)
		} else {
			log.WithError(err).Warn("invalid log level, using info")
		}
	}
}
