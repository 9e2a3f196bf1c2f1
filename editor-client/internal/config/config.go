package config

import (
	"fmt"
	"time"

	"github.com/kelseyhightower/envconfig"
)

// Config содержит конфигурацию клиента редактора.
type Config struct {
	// Адрес сервера черновиков. Пустой адрес включает офлайн-режим.
	ServerURL string `envconfig:"DRAFT_SERVER_URL" default:""`
	// Готовый токен пользователя; клиент не занимается логином.
	AuthToken string `envconfig:"DRAFT_AUTH_TOKEN" default:""`

	OwnerWallet string `envconfig:"OWNER_WALLET" default:""`
	StoryType   string `envconfig:"STORY_TYPE" default:"text"`
	StoryFormat string `envconfig:"STORY_FORMAT" default:"free"`
	DraftKey    string `envconfig:"DRAFT_KEY" default:""`

	MaxVersions      int           `envconfig:"MAX_VERSIONS" default:"5"`
	AutosaveInterval time.Duration `envconfig:"AUTOSAVE_INTERVAL" default:"8s"`

	LogLevel string `envconfig:"LOG_LEVEL" default:"info"`
}

// LoadConfig загружает конфигурацию из переменных окружения.
func LoadConfig() (*Config, error) {
	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("ошибка загрузки конфигурации клиента редактора: %w", err)
	}
	return &cfg, nil
}
