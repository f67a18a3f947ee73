package handler

import (
	"parley/internal/app/chat"
	"parley/internal/app/storage"
	"parley/internal/app/store"
	"parley/internal/configs"
)

type AppDeps struct {
	Hub            *chat.Hub
	Config         *configs.AppConfig
	Store          *store.Store
	StorageService storage.StorageService
}
