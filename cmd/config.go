package cmd

import (
	"fmt"
	"strconv"
	"strings"

	cfgpkg "github.com/KaramelBytes/statloom-cli/internal/config"
	"github.com/KaramelBytes/statloom-cli/internal/narrate"
	"github.com/spf13/cobra"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "View or set StatLoom configuration",
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show effective configuration",
	RunE: func(cmd *cobra.Command, args []string) error {
		if cfg == nil {
			fmt.Println("No config loaded")
			return nil
		}
		fmt.Printf("projects_dir: %s\n", cfg.ProjectsDir)
		fmt.Printf("output_dir: %s\n", cfg.OutputDir)
		fmt.Printf("default_formats: %s\n", strings.Join(cfg.DefaultFormats, ","))
		fmt.Printf("alpha: %g\n", cfg.Alpha)
		fmt.Printf("decimals: %d\n", cfg.Decimals)
		fmt.Printf("figure_width_in: %g\n", cfg.FigureWidthIn)
		fmt.Printf("figure_height_in: %g\n", cfg.FigureHeightIn)
		fmt.Printf("figure_dpi: %d\n", cfg.FigureDPI)
		fmt.Printf("page_size: %s\n", cfg.PageSize)
		fmt.Printf("render_workers: %d\n", cfg.RenderWorkers)
		fmt.Printf("narrate_provider: %s\n", cfg.NarrateProvider)
		fmt.Printf("narrate_model: %s\n", cfg.NarrateModel)
		fmt.Printf("api_key: %s\n", mask(cfg.APIKey))
		fmt.Printf("max_prompt_tokens: %d\n", cfg.MaxPromptTokens)
		fmt.Printf("max_tokens: %d\n", cfg.MaxTokens)
		fmt.Printf("temperature: %.3f\n", cfg.Temperature)
		if cfg.OllamaHost != "" {
			fmt.Printf("ollama_host: %s\n", cfg.OllamaHost)
		}
		fmt.Printf("http_timeout_sec: %d\n", cfg.HTTPTimeoutSec)
		fmt.Printf("retry_max_attempts: %d\n", cfg.RetryMaxAttempts)
		return nil
	},
}

var configSetCmd = &cobra.Command{
	Use:   "set <key> <value>",
	Short: "Set a config value and save to disk",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		key, val := args[0], args[1]
		c, err := requireConfig()
		if err != nil {
			return err
		}
		atoi := func() (int, error) {
			i, err := strconv.Atoi(val)
			if err != nil {
				return 0, fmt.Errorf("invalid int for %s: %w", key, err)
			}
			return i, nil
		}
		atof := func() (float64, error) {
			f, err := strconv.ParseFloat(val, 64)
			if err != nil {
				return 0, fmt.Errorf("invalid float for %s: %w", key, err)
			}
			return f, nil
		}
		switch key {
		case "projects_dir":
			c.ProjectsDir = val
		case "output_dir":
			c.OutputDir = val
		case "default_formats":
			c.DefaultFormats = nil
			for _, f := range strings.Split(val, ",") {
				if f = strings.ToLower(strings.TrimSpace(f)); f != "" {
					c.DefaultFormats = append(c.DefaultFormats, f)
				}
			}
		case "alpha":
			c.Alpha, err = atof()
		case "decimals":
			c.Decimals, err = atoi()
		case "figure_width_in":
			c.FigureWidthIn, err = atof()
		case "figure_height_in":
			c.FigureHeightIn, err = atof()
		case "figure_dpi":
			c.FigureDPI, err = atoi()
		case "page_size":
			switch strings.ToUpper(val) {
			case "A4", "LETTER":
				c.PageSize = strings.ToUpper(val)
			default:
				return fmt.Errorf("invalid page_size: %s (use A4 or Letter)", val)
			}
		case "render_workers":
			c.RenderWorkers, err = atoi()
		case "narrate_provider":
			switch strings.ToLower(val) {
			case narrate.ProviderOpenRouter:
				c.NarrateProvider = narrate.ProviderOpenRouter
			case narrate.ProviderOllama, "local":
				c.NarrateProvider = narrate.ProviderOllama
			default:
				return fmt.Errorf("invalid narrate_provider: %s (use openrouter or ollama)", val)
			}
		case "narrate_model":
			c.NarrateModel = val
		case "api_key":
			c.APIKey = val
		case "ollama_host":
			c.OllamaHost = val
		case "max_prompt_tokens":
			c.MaxPromptTokens, err = atoi()
		case "max_tokens":
			c.MaxTokens, err = atoi()
		case "temperature":
			c.Temperature, err = atof()
		case "http_timeout_sec":
			c.HTTPTimeoutSec, err = atoi()
		case "retry_max_attempts":
			c.RetryMaxAttempts, err = atoi()
		case "retry_base_delay_ms":
			c.RetryBaseDelayMs, err = atoi()
		case "retry_max_delay_ms":
			c.RetryMaxDelayMs, err = atoi()
		default:
			return fmt.Errorf("unknown key: %s", key)
		}
		if err != nil {
			return err
		}
		if err := c.Validate(); err != nil {
			return err
		}
		if err := cfgpkg.Save(c, cfgFile); err != nil {
			return err
		}
		successf("Saved config")
		return nil
	},
}

func init() {
	rootCmd.AddCommand(configCmd)
	configCmd.AddCommand(configShowCmd)
	configCmd.AddCommand(configSetCmd)
}

func mask(s string) string {
	if s == "" {
		return ""
	}
	if len(s) <= 6 {
		return "******"
	}
	return s[:3] + "****" + s[len(s)-3:]
}
