package main

import (
	"log"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/joho/godotenv"

	"github.com/fenggwsx/StudyChat/internal/client"
	"github.com/fenggwsx/StudyChat/internal/config"
)

func main() {
	_ = godotenv.Load()

	cfg := config.LoadClientConfig()

	model := client.NewApp(cfg)

	if _, err := tea.NewProgram(model, tea.WithAltScreen()).Run(); err != nil {
		log.Fatalf("client exited: %v", err)
	}
}
