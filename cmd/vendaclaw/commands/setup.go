package commands

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/charmbracelet/huh"
	"github.com/spf13/cobra"
	"github.com/vendaclaw/vendaclaw/pkg/vendaclaw/assistant"
	"github.com/vendaclaw/vendaclaw/pkg/vendaclaw/webui"
)

// newSetupCmd creates the `vendaclaw setup` command for interactive
// configuration.
func newSetupCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "setup",
		Short: "Interactive setup wizard",
		Long: `Guides you through creating the initial config.yaml: store profile,
reply behavior, API key and dashboard password. The API key goes to the
OS keyring when available, never into the file in plaintext.

Exemplos:
  vendaclaw setup`,
		RunE: func(*cobra.Command, []string) error {
			return runInteractiveSetup()
		},
	}
}

// runInteractiveSetup walks through the wizard and writes config.yaml.
func runInteractiveSetup() error {
	cfg := assistant.DefaultConfig()

	var (
		storeName      string
		storeAbout     string
		debounceStr    = strconv.Itoa(cfg.AutoReply.DebounceSeconds)
		replyBehavior  = "send"
		unsavedOnly    = cfg.AutoReply.UnsavedOnly
		safeMode       = cfg.AutoReply.SafeMode
		apiKey         string
		dashboardPass  string
		enableDashPass = true
	)

	form := huh.NewForm(
		huh.NewGroup(
			huh.NewInput().
				Title("Nome da loja").
				Description("Usado na apresentação do assistente.").
				Placeholder("Doces da Maria").
				Value(&storeName).
				Validate(func(s string) error {
					if strings.TrimSpace(s) == "" {
						return fmt.Errorf("o nome da loja é obrigatório")
					}
					return nil
				}),
			huh.NewText().
				Title("Sobre a loja").
				Description("Produtos, preços, horários, formas de pagamento. O assistente responde com base nisso.").
				Value(&storeAbout),
		),
		huh.NewGroup(
			huh.NewInput().
				Title("Janela de espera (segundos)").
				Description("Quanto tempo aguardar depois da última mensagem antes de responder.").
				Value(&debounceStr).
				Validate(func(s string) error {
					n, err := strconv.Atoi(strings.TrimSpace(s))
					if err != nil || n < 1 || n > 120 {
						return fmt.Errorf("informe um número entre 1 e 120")
					}
					return nil
				}),
			huh.NewSelect[string]().
				Title("Modo de resposta").
				Options(
					huh.NewOption("Enviar automaticamente", "send"),
					huh.NewOption("Criar rascunhos para aprovação", "draft"),
				).
				Value(&replyBehavior),
			huh.NewConfirm().
				Title("Responder apenas contatos não salvos?").
				Description("Clientes novos recebem resposta automática; contatos da agenda não.").
				Affirmative("Sim").
				Negative("Não").
				Value(&unsavedOnly),
			huh.NewConfirm().
				Title("Modo seguro (digitação humanizada)?").
				Description("Atrasos aleatórios e indicador de digitação antes de cada envio.").
				Affirmative("Sim").
				Negative("Não").
				Value(&safeMode),
		),
		huh.NewGroup(
			huh.NewInput().
				Title("Chave de API (OpenAI ou compatível)").
				EchoMode(huh.EchoModePassword).
				Value(&apiKey),
			huh.NewConfirm().
				Title("Proteger o painel web com senha?").
				Affirmative("Sim").
				Negative("Não").
				Value(&enableDashPass),
		),
	)

	if err := form.Run(); err != nil {
		return fmt.Errorf("wizard aborted: %w", err)
	}

	if enableDashPass {
		passForm := huh.NewForm(huh.NewGroup(
			huh.NewInput().
				Title("Senha do painel").
				EchoMode(huh.EchoModePassword).
				Value(&dashboardPass).
				Validate(func(s string) error {
					if len(s) < 4 {
						return fmt.Errorf("use pelo menos 4 caracteres")
					}
					return nil
				}),
		))
		if err := passForm.Run(); err != nil {
			return fmt.Errorf("wizard aborted: %w", err)
		}
	}

	// Apply answers.
	cfg.AutoReply.SystemPrompt = buildSystemPrompt(storeName, storeAbout)
	cfg.AutoReply.DebounceSeconds, _ = strconv.Atoi(strings.TrimSpace(debounceStr))
	cfg.AutoReply.DraftMode = replyBehavior == "draft"
	cfg.AutoReply.UnsavedOnly = unsavedOnly
	cfg.AutoReply.SafeMode = safeMode

	if dashboardPass != "" {
		hash, err := webui.HashPassword(dashboardPass)
		if err != nil {
			return fmt.Errorf("hashing dashboard password: %w", err)
		}
		cfg.WebUI.PasswordHash = hash
	}

	// Store the API key out of the config file when possible.
	if apiKey != "" {
		if assistant.KeyringAvailable() {
			if err := assistant.StoreKeyring("api_key", apiKey); err != nil {
				fmt.Printf("Aviso: keyring indisponível (%v), usando variável de ambiente.\n", err)
				fmt.Println("Adicione ao seu ambiente: export VENDACLAW_API_KEY=<sua chave>")
			} else {
				fmt.Println("Chave de API armazenada no keyring do sistema.")
			}
		} else {
			fmt.Println("Keyring indisponível. Adicione ao seu ambiente:")
			fmt.Println("  export VENDACLAW_API_KEY=<sua chave>")
		}
		cfg.Generator.APIKey = "${VENDACLAW_API_KEY}"
	}

	if err := assistant.SaveConfigToFile(cfg, "config.yaml"); err != nil {
		return fmt.Errorf("writing config.yaml: %w", err)
	}

	fmt.Println()
	fmt.Println("Configuração salva em config.yaml.")
	fmt.Println("Execute 'vendaclaw serve' e escaneie o QR code no painel para conectar.")
	return nil
}

// buildSystemPrompt assembles the assistant instruction from the store
// profile collected during setup.
func buildSystemPrompt(name, about string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Você é o atendente virtual da loja %s no WhatsApp. ", name)
	b.WriteString("Responda clientes de forma curta, simpática e objetiva, em português. ")
	b.WriteString("Se não souber a resposta, diga que vai verificar com a equipe.")
	if strings.TrimSpace(about) != "" {
		b.WriteString("\n\nSobre a loja:\n")
		b.WriteString(strings.TrimSpace(about))
	}
	return b.String()
}
