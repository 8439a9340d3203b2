package commands

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"github.com/vendaclaw/vendaclaw/pkg/vendaclaw/store"
)

// newDraftsCmd creates the `vendaclaw drafts` command group.
func newDraftsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "drafts",
		Short: "Manage pending reply drafts",
		Long: `Lists and manages replies waiting for approval. Listing, editing and
discarding work directly on the database. Approving needs the live
WhatsApp session, so it goes through the running daemon's API.

Exemplos:
  vendaclaw drafts list
  vendaclaw drafts show <id>
  vendaclaw drafts edit <id> "novo texto"
  vendaclaw drafts discard <id>
  vendaclaw drafts approve <id> --token <session token>`,
	}

	cmd.AddCommand(
		newDraftsListCmd(),
		newDraftsShowCmd(),
		newDraftsEditCmd(),
		newDraftsDiscardCmd(),
		newDraftsApproveCmd(),
	)

	return cmd
}

// openStore loads the config and opens the main database read-write.
func openStore(cmd *cobra.Command) (*store.Store, error) {
	cfg, err := resolveConfig(cmd)
	if err != nil {
		return nil, err
	}
	return store.Open(cfg.DatabasePath, newLogger(cmd, cfg))
}

func newDraftsListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List pending drafts",
		RunE: func(cmd *cobra.Command, _ []string) error {
			st, err := openStore(cmd)
			if err != nil {
				return err
			}
			defer st.Close()

			drafts, err := st.ListDrafts()
			if err != nil {
				return fmt.Errorf("listing drafts: %w", err)
			}
			if len(drafts) == 0 {
				fmt.Println("Nenhum rascunho pendente.")
				return nil
			}

			for _, d := range drafts {
				marker := " "
				if d.Handover {
					marker = "!"
				}
				fmt.Printf("%s %-12s  %-20s  %s\n",
					marker, shortID(d.ID), d.ContactName, timeAgo(d.CreatedAt))
				fmt.Printf("    cliente: %s\n", truncate(d.Query, 70))
				fmt.Printf("    resposta: %s\n\n", truncate(d.Reply, 70))
			}
			fmt.Printf("%d rascunho(s). Use 'vendaclaw drafts show <id>' para o texto completo.\n", len(drafts))
			return nil
		},
	}
}

func newDraftsShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show <id>",
		Short: "Show a draft in full",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			st, err := openStore(cmd)
			if err != nil {
				return err
			}
			defer st.Close()

			id, err := resolveDraftID(st, args[0])
			if err != nil {
				return err
			}
			d, err := st.GetDraft(id)
			if err != nil {
				return err
			}

			fmt.Printf("ID:        %s\n", d.ID)
			fmt.Printf("Contato:   %s (%s)\n", d.ContactName, d.ContactNumber)
			fmt.Printf("Criado:    %s (%s)\n", d.CreatedAt.Format("02/01/2006 15:04"), timeAgo(d.CreatedAt))
			fmt.Printf("Mensagens: %d\n", d.MessageCount)
			if d.Sentiment != "" {
				fmt.Printf("Sentimento: %s\n", d.Sentiment)
			}
			if d.Handover {
				fmt.Println("Atenção:   cliente pediu atendimento humano")
			}
			fmt.Printf("\nCliente:\n%s\n", d.Query)
			fmt.Printf("\nResposta proposta:\n%s\n", d.Reply)
			return nil
		},
	}
}

func newDraftsEditCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "edit <id> <text>",
		Short: "Replace a draft's reply text",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			if strings.TrimSpace(args[1]) == "" {
				return fmt.Errorf("reply text must not be empty")
			}

			st, err := openStore(cmd)
			if err != nil {
				return err
			}
			defer st.Close()

			id, err := resolveDraftID(st, args[0])
			if err != nil {
				return err
			}
			existed, err := st.UpdateDraftReply(id, args[1])
			if err != nil {
				return fmt.Errorf("updating draft: %w", err)
			}
			if !existed {
				return fmt.Errorf("draft %q not found", args[0])
			}
			fmt.Println("Rascunho atualizado.")
			return nil
		},
	}
}

func newDraftsDiscardCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "discard <id>",
		Short: "Discard a draft without sending",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			st, err := openStore(cmd)
			if err != nil {
				return err
			}
			defer st.Close()

			id, err := resolveDraftID(st, args[0])
			if err != nil {
				return err
			}
			existed, err := st.DeleteDraft(id)
			if err != nil {
				return fmt.Errorf("deleting draft: %w", err)
			}
			if !existed {
				return fmt.Errorf("draft %q not found", args[0])
			}
			fmt.Println("Rascunho descartado.")
			return nil
		},
	}
}

func newDraftsApproveCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "approve <id>",
		Short: "Approve and send a draft through the running daemon",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := resolveConfig(cmd)
			if err != nil {
				return err
			}

			address, _ := cmd.Flags().GetString("address")
			if address == "" {
				address = cfg.WebUI.Address
			}
			if strings.HasPrefix(address, ":") {
				address = "localhost" + address
			}
			token, _ := cmd.Flags().GetString("token")
			override, _ := cmd.Flags().GetString("reply")

			body, _ := json.Marshal(map[string]string{"reply": override})
			url := fmt.Sprintf("http://%s/api/drafts/%s/approve", address, args[0])
			req, err := http.NewRequestWithContext(cmd.Context(), http.MethodPost, url, bytes.NewReader(body))
			if err != nil {
				return err
			}
			req.Header.Set("Content-Type", "application/json")
			if token != "" {
				req.Header.Set("Authorization", "Bearer "+token)
			}

			client := &http.Client{Timeout: 2 * time.Minute}
			resp, err := client.Do(req)
			if err != nil {
				return fmt.Errorf("calling daemon at %s (is 'vendaclaw serve' running?): %w", address, err)
			}
			defer resp.Body.Close()

			var result map[string]string
			_ = json.NewDecoder(resp.Body).Decode(&result)

			switch resp.StatusCode {
			case http.StatusOK:
				fmt.Println("Rascunho aprovado e enviado.")
				return nil
			case http.StatusNotFound:
				return fmt.Errorf("draft %q not found (already handled or expired)", args[0])
			case http.StatusUnauthorized:
				return fmt.Errorf("unauthorized: pass the dashboard session token with --token")
			default:
				return fmt.Errorf("daemon returned %d: %s", resp.StatusCode, result["error"])
			}
		},
	}

	cmd.Flags().String("address", "", "daemon dashboard address (default from config)")
	cmd.Flags().String("token", "", "dashboard session token")
	cmd.Flags().String("reply", "", "replace the reply text before sending")
	return cmd
}

// resolveDraftID expands a short id prefix to the full draft id.
func resolveDraftID(st *store.Store, prefix string) (string, error) {
	drafts, err := st.ListDrafts()
	if err != nil {
		return "", fmt.Errorf("listing drafts: %w", err)
	}

	var matches []string
	for _, d := range drafts {
		if d.ID == prefix {
			return d.ID, nil
		}
		if strings.HasPrefix(d.ID, prefix) {
			matches = append(matches, d.ID)
		}
	}
	switch len(matches) {
	case 1:
		return matches[0], nil
	case 0:
		return "", fmt.Errorf("draft %q not found", prefix)
	default:
		return "", fmt.Errorf("draft id %q is ambiguous (%d matches), use more characters", prefix, len(matches))
	}
}

// shortID returns the first 8 characters of a draft id for compact listings.
func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

// truncate shortens text to max runes, appending an ellipsis.
func truncate(s string, max int) string {
	s = strings.ReplaceAll(s, "\n", " ")
	r := []rune(s)
	if len(r) <= max {
		return s
	}
	return string(r[:max]) + "..."
}

// timeAgo renders a rough relative timestamp.
func timeAgo(t time.Time) string {
	d := time.Since(t)
	switch {
	case d < time.Minute:
		return "agora mesmo"
	case d < time.Hour:
		return fmt.Sprintf("há %d min", int(d.Minutes()))
	case d < 24*time.Hour:
		return fmt.Sprintf("há %d h", int(d.Hours()))
	default:
		return fmt.Sprintf("há %d dias", int(d.Hours()/24))
	}
}
