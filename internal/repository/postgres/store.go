package postgres

import "github.com/icceey/pixivbot-sub000/internal/repository"

var _ repository.Repository = (*Store)(nil)
