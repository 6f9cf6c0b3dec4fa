// Command ema-realtime is an interactive console for a realtime speech
// session. It connects through the configured endpoints, sends session
// commands and shows transcripts as they arrive.
package main

import (
	"flag"
	"fmt"
	"os"

	tea "github.com/charmbracelet/bubbletea"
	realtime "github.com/koscakluka/ema-realtime/core"
	"github.com/koscakluka/ema-realtime/core/messages"
	"github.com/koscakluka/ema-realtime/internal/config"
)

func main() {
	configPath := flag.String("config", "", "Path to the YAML config file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	manager := realtime.NewManager(cfg.ManagerOptions()...)
	program := tea.NewProgram(newModel(manager, messages.Preferences(cfg.Preferences)), tea.WithAltScreen())
	bridge(manager, program.Send)

	_, err = program.Run()
	manager.Close()
	if err != nil {
		fmt.Fprintf(os.Stderr, "console failed: %v\n", err)
		os.Exit(1)
	}
}
