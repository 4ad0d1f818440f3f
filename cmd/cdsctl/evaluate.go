package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/clinical-decision-support-server/internal/cache"
	"github.com/clinical-decision-support-server/internal/catalog"
	"github.com/clinical-decision-support-server/internal/config"
	"github.com/clinical-decision-support-server/internal/domain"
	"github.com/clinical-decision-support-server/internal/repository"
	"github.com/clinical-decision-support-server/internal/service"
)

func evaluateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "evaluate",
		Short: "Run the pipeline once on a clinical context file (JSON or YAML)",
		RunE: func(cmd *cobra.Command, args []string) error {
			file, _ := cmd.Flags().GetString("file")
			catalogFile, _ := cmd.Flags().GetString("catalog")
			tenant, _ := cmd.Flags().GetString("tenant")
			maxRecs, _ := cmd.Flags().GetInt("max")
			threshold, _ := cmd.Flags().GetFloat64("alert-threshold")

			clinical, err := readClinicalContext(file)
			if err != nil {
				return err
			}
			cat, err := loadCatalog(catalogFile)
			if err != nil {
				return err
			}

			logger, err := config.NewLogger(domain.LoggingConfig{Level: "warn", Format: "text", Output: "stderr"})
			if err != nil {
				return err
			}

			engine := service.NewEngine(logger, service.EngineConfig{
				EngineVersion:  "1.0.0",
				ModelVersion:   "rules-v1",
				AlertThreshold: threshold,
			}, cat, service.Collaborators{
				Sessions: cache.NewMemorySessionStore(1, 0),
				Alerts:   repository.NewMemoryAlertRepository(),
			})

			var opts *domain.CDSOptions
			if maxRecs > 0 {
				opts = &domain.CDSOptions{MaxRecommendations: maxRecs}
			}

			result, err := engine.GenerateRecommendations(cmd.Context(), tenant, "cdsctl", clinical, opts)
			if err != nil {
				return err
			}
			return writeJSON(cmd.OutOrStdout(), result)
		},
	}
	cmd.Flags().StringP("file", "f", "", "Clinical context file (.json, .yaml or .yml)")
	cmd.Flags().String("catalog", "", "Catalog YAML file (default: embedded catalog)")
	cmd.Flags().String("tenant", "cli", "Tenant recorded on generated alerts")
	cmd.Flags().Int("max", 0, "Maximum recommendations (0 means the default)")
	cmd.Flags().Float64("alert-threshold", service.DefaultAlertThreshold, "Risk score above which a safety alert fires")
	_ = cmd.MarkFlagRequired("file")
	return cmd
}

// readClinicalContext decodes a context file. YAML is converted through JSON so both
// formats use the same camelCase keys.
func readClinicalContext(path string) (*domain.ClinicalContext, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read context file: %w", err)
	}

	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		var doc any
		if err := yaml.Unmarshal(data, &doc); err != nil {
			return nil, fmt.Errorf("failed to parse YAML context: %w", err)
		}
		if data, err = json.Marshal(doc); err != nil {
			return nil, fmt.Errorf("failed to convert YAML context: %w", err)
		}
	}

	var clinical domain.ClinicalContext
	if err := json.Unmarshal(data, &clinical); err != nil {
		return nil, fmt.Errorf("failed to parse context: %w", err)
	}
	return &clinical, nil
}

func loadCatalog(path string) (*catalog.Catalog, error) {
	if path == "" {
		return catalog.Default()
	}
	return catalog.Load(path)
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
