package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
	"github.com/peterh/liner"
	"github.com/spf13/cobra"

	"github.com/dyzsasd/tomo/internal/processor"
	"github.com/dyzsasd/tomo/pkg/channel"
	"github.com/dyzsasd/tomo/pkg/observability"
)

var shellCmd = &cobra.Command{
	Use:   "shell",
	Short: "Talk to the assistant from the terminal",
	Long: `Starts an interactive conversation against a fresh session. Type
/restart to start over, /session to print the session id, /quit to
leave.`,
	RunE: runShell,
}

func runShell(cmd *cobra.Command, args []string) error {
	observability.InitMetrics()

	rt, err := buildRuntime(channel.NewConsole())
	if err != nil {
		return err
	}
	defer rt.close()

	line := liner.NewLiner()
	defer line.Close()
	line.SetCtrlCAborts(true)

	historyPath := filepath.Join(os.TempDir(), ".tomo_history")
	if f, err := os.Open(historyPath); err == nil {
		line.ReadHistory(f)
		f.Close()
	}
	defer func() {
		if f, err := os.Create(historyPath); err == nil {
			line.WriteHistory(f)
			f.Close()
		}
	}()

	ctx := context.Background()
	sessionID := uuid.NewString()
	fmt.Printf("%s ready. Type /quit to leave.\n", rt.def.Name)

	for {
		input, err := line.Prompt("you> ")
		if err != nil {
			// Ctrl-C or EOF ends the conversation.
			fmt.Println()
			return nil
		}
		input = strings.TrimSpace(input)
		if input == "" {
			continue
		}
		line.AppendHistory(input)

		switch input {
		case "/quit", "/exit":
			return nil
		case "/session":
			fmt.Println(sessionID)
			continue
		case "/restart":
			if _, err := rt.manager.Restart(ctx, sessionID); err != nil {
				log.Printf("[SHELL] restart failed: %v", err)
			}
			continue
		}

		err = rt.processor.HandleMessage(ctx, processor.Message{
			SessionID: sessionID,
			Text:      input,
		})
		if err != nil {
			log.Printf("[SHELL] turn failed: %v", err)
		}
	}
}
