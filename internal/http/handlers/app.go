package handlers

import (
	"encoding/json"
	"net/http"

	"brandforge/internal/infra"
	"brandforge/internal/orchestrator"
)

// App bundles the orchestrator behind the HTTP surface.
type App struct {
	Orchestrator *orchestrator.Orchestrator
	Logger       infra.Logger
}

func NewApp(orc *orchestrator.Orchestrator, logger infra.Logger) *App {
	return &App{Orchestrator: orc, Logger: logger}
}

func (a *App) json(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func (a *App) error(w http.ResponseWriter, code int, errCode, message string) {
	a.json(w, code, map[string]string{"error": errCode, "message": message})
}
