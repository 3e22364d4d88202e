package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/dyzsasd/tomo/internal/action"
	"github.com/dyzsasd/tomo/pkg/assistant"
)

var validateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Check an assistant definition without running it",
	RunE:  runValidate,
}

func runValidate(cmd *cobra.Command, args []string) error {
	def, err := assistant.Load(assistantFile)
	if err != nil {
		return err
	}

	registry := action.NewRegistry()
	if err := registerActions(registry); err != nil {
		return err
	}
	if err := def.ValidateActions(registry.Exists); err != nil {
		return err
	}

	fmt.Printf("%s: ok (%d intents, %d slots, %d policies)\n",
		def.Name, len(def.Intents), len(def.Slots), len(def.Policies))
	return nil
}
