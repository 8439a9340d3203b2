package commands

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/vendaclaw/vendaclaw/pkg/vendaclaw/assistant"
	"github.com/vendaclaw/vendaclaw/pkg/vendaclaw/webui"
	"gopkg.in/yaml.v3"
)

// newConfigCmd creates the `vendaclaw config` command group.
func newConfigCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Manage configuration and secrets",
		Long: `Creates and inspects config.yaml and manages secrets. The API key is
kept in the OS keyring when available, with the VENDACLAW_API_KEY
environment variable as fallback.

Exemplos:
  vendaclaw config init
  vendaclaw config show
  vendaclaw config set-key
  vendaclaw config set-password`,
	}

	cmd.AddCommand(
		newConfigInitCmd(),
		newConfigShowCmd(),
		newConfigSetKeyCmd(),
		newConfigSetPasswordCmd(),
	)

	return cmd
}

func newConfigInitCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "init",
		Short: "Write a default config.yaml",
		RunE: func(_ *cobra.Command, _ []string) error {
			if _, err := os.Stat("config.yaml"); err == nil {
				return fmt.Errorf("config.yaml already exists; edit it or run 'vendaclaw setup'")
			}

			cfg := assistant.DefaultConfig()
			if err := assistant.SaveConfigToFile(cfg, "config.yaml"); err != nil {
				return fmt.Errorf("writing config.yaml: %w", err)
			}
			fmt.Println("config.yaml criado com os valores padrão.")
			fmt.Println("Edite o system_prompt com as informações da sua loja antes de usar.")
			return nil
		},
	}
}

func newConfigShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show",
		Short: "Print the resolved configuration",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := resolveConfig(cmd)
			if err != nil {
				return err
			}

			// Never print the actual key.
			if cfg.Generator.APIKey != "" && !assistant.IsEnvReference(cfg.Generator.APIKey) {
				cfg.Generator.APIKey = "(configurada)"
			}
			if cfg.WebUI.PasswordHash != "" {
				cfg.WebUI.PasswordHash = "(configurada)"
			}

			data, err := yaml.Marshal(cfg)
			if err != nil {
				return fmt.Errorf("marshaling config: %w", err)
			}
			fmt.Print(string(data))
			return nil
		},
	}
}

func newConfigSetKeyCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "set-key",
		Short: "Store the generator API key in the OS keyring",
		RunE: func(_ *cobra.Command, _ []string) error {
			key, err := assistant.ReadPassword("Chave de API: ")
			if err != nil {
				return fmt.Errorf("reading key: %w", err)
			}
			if key == "" {
				return fmt.Errorf("empty key")
			}

			if !assistant.KeyringAvailable() {
				fmt.Println("Keyring do sistema indisponível.")
				fmt.Println("Use a variável de ambiente: export VENDACLAW_API_KEY=<sua chave>")
				return nil
			}

			if err := assistant.StoreKeyring("api_key", key); err != nil {
				return fmt.Errorf("storing key: %w", err)
			}
			fmt.Println("Chave armazenada no keyring do sistema.")
			return nil
		},
	}
}

func newConfigSetPasswordCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "set-password",
		Short: "Set the web dashboard password",
		RunE: func(cmd *cobra.Command, _ []string) error {
			configPath, _ := cmd.Root().PersistentFlags().GetString("config")
			if configPath == "" {
				configPath = assistant.FindConfigFile()
			}
			if configPath == "" {
				return fmt.Errorf("no config.yaml found; run 'vendaclaw setup' first")
			}

			cfg, err := assistant.LoadConfigFromFile(configPath)
			if err != nil {
				return fmt.Errorf("loading config: %w", err)
			}

			pass, err := assistant.ReadPassword("Nova senha do painel: ")
			if err != nil {
				return fmt.Errorf("reading password: %w", err)
			}
			if len(pass) < 4 {
				return fmt.Errorf("password must have at least 4 characters")
			}
			confirm, err := assistant.ReadPassword("Confirme a senha: ")
			if err != nil {
				return fmt.Errorf("reading confirmation: %w", err)
			}
			if pass != confirm {
				return fmt.Errorf("passwords do not match")
			}

			hash, err := webui.HashPassword(pass)
			if err != nil {
				return fmt.Errorf("hashing password: %w", err)
			}
			cfg.WebUI.PasswordHash = hash

			if err := assistant.SaveConfigToFile(cfg, configPath); err != nil {
				return fmt.Errorf("saving config: %w", err)
			}
			fmt.Println("Senha do painel atualizada.")
			return nil
		},
	}
}
