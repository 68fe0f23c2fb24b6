package main

import (
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/mycobotics/chamberlink/internal/configstore"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Inspect the chamber configuration document",
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Print the persisted configuration document and its version",
	RunE:  runConfigShow,
}

var configValidateCmd = &cobra.Command{
	Use:   "validate <file>",
	Short: "Validate a candidate configuration document",
	Args:  cobra.ExactArgs(1),
	RunE:  runConfigValidate,
}

var configDocument string

func init() {
	configCmd.PersistentFlags().StringVarP(&configDocument, "document", "D", "", "Path to the configuration document")
	configCmd.AddCommand(configShowCmd)
	configCmd.AddCommand(configValidateCmd)
}

func documentStore(cmd *cobra.Command) (*configstore.Store, error) {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return nil, err
	}
	if configDocument != "" {
		cfg.DocumentPath = configDocument
	}
	logger, err := configureLogger(cmd, "error")
	if err != nil {
		return nil, err
	}
	return configstore.New(cfg.DocumentPath, cfg.Sync.MaxDocumentSize, logger), nil
}

func runConfigShow(cmd *cobra.Command, args []string) error {
	store, err := documentStore(cmd)
	if err != nil {
		return err
	}

	raw, version, err := store.ReadRaw()
	if err != nil {
		return err
	}
	if len(raw) == 0 {
		color.Yellow("no configuration document at %s", store.Path())
		return nil
	}

	bold := color.New(color.Bold)
	bold.Println(store.Path())
	fmt.Printf("  sha256:   %s\n", version.ContentHash)
	fmt.Printf("  size:     %d bytes\n", version.SizeBytes)
	fmt.Printf("  modified: %s\n", version.LastModified.Format(time.RFC3339))
	fmt.Println()
	fmt.Println(string(raw))
	return nil
}

func runConfigValidate(cmd *cobra.Command, args []string) error {
	raw, err := os.ReadFile(args[0])
	if err != nil {
		return err
	}

	var doc map[string]interface{}
	if err := json.Unmarshal(raw, &doc); err != nil {
		color.Red("INVALID: not a JSON object: %v", err)
		return fmt.Errorf("validation failed")
	}
	if err := configstore.ValidateDocument(doc); err != nil {
		color.Red("INVALID: %v", err)
		return fmt.Errorf("validation failed")
	}

	canonical, err := configstore.CanonicalJSON(doc)
	if err != nil {
		return err
	}
	color.Green("OK")
	fmt.Printf("canonical size: %d bytes\n", len(canonical))
	return nil
}
