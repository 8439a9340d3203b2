package commands

import (
	"context"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/chzyer/readline"
	"github.com/spf13/cobra"
	"github.com/vendaclaw/vendaclaw/pkg/vendaclaw/assistant"
)

// localChatID identifies the terminal conversation in memory and stats.
const localChatID = "local:terminal"

// newChatCmd creates the `vendaclaw chat` command for testing replies
// without WhatsApp.
func newChatCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "chat [message]",
		Short: "Talk to the assistant from the terminal",
		Long: `Runs the full reply pipeline against a local transport so you can
tune the system prompt before going live. Pass a message for a single
reply or no arguments for an interactive session.

Exemplos:
  vendaclaw chat "vocês têm entrega hoje?"
  vendaclaw chat`,
		Args: cobra.MaximumNArgs(1),
		RunE: runChat,
	}
	return cmd
}

func runChat(cmd *cobra.Command, args []string) error {
	cfg, err := resolveConfig(cmd)
	if err != nil {
		return err
	}

	logger := newLogger(cmd, cfg)
	assistant.ResolveAPIKey(cfg, logger)
	if cfg.Generator.APIKey == "" {
		return fmt.Errorf("no API key configured; run 'vendaclaw config set-key' or set VENDACLAW_API_KEY")
	}

	// Terminal sessions want immediate answers, not humanized pacing.
	cfg.AutoReply.DebounceSeconds = 1
	cfg.AutoReply.SafeMode = false
	cfg.AutoReply.DraftMode = false
	cfg.AutoReply.UnsavedOnly = false

	replies := make(chan string, 4)
	transport := assistant.NewLocalTransport(func(msg assistant.LocalMessage) {
		replies <- msg.Text
	})

	a, err := assistant.New(cfg, transport, nil, logger)
	if err != nil {
		return fmt.Errorf("initializing assistant: %w", err)
	}

	ctx, cancel := context.WithCancel(cmd.Context())
	defer cancel()

	done := make(chan error, 1)
	go func() { done <- a.Run(ctx) }()

	if len(args) > 0 {
		err = singleShot(transport, replies, args[0])
	} else {
		err = chatLoop(transport, replies)
	}

	cancel()
	<-done
	return err
}

// singleShot sends one message and prints the reply.
func singleShot(transport *assistant.LocalTransport, replies <-chan string, text string) error {
	transport.Inject(localChatID, text)

	select {
	case reply := <-replies:
		fmt.Println(reply)
		return nil
	case <-time.After(2 * time.Minute):
		return fmt.Errorf("timed out waiting for a reply")
	}
}

// chatLoop runs the interactive REPL.
func chatLoop(transport *assistant.LocalTransport, replies <-chan string) error {
	rl, err := readline.New("você> ")
	if err != nil {
		return fmt.Errorf("initializing readline: %w", err)
	}
	defer rl.Close()

	fmt.Println("Sessão interativa. Digite /sair para encerrar.")
	fmt.Println()

	for {
		line, err := rl.Readline()
		if err == readline.ErrInterrupt {
			continue
		}
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return err
		}

		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		if line == "/sair" || line == "/quit" {
			return nil
		}

		transport.Inject(localChatID, line)

		select {
		case reply := <-replies:
			fmt.Printf("vendaclaw> %s\n", reply)
			drainBubbles(replies)
		case <-time.After(2 * time.Minute):
			fmt.Println("(sem resposta, tente novamente)")
		}
	}
}

// drainBubbles prints the remaining bubbles of a split reply.
func drainBubbles(replies <-chan string) {
	for {
		select {
		case extra := <-replies:
			fmt.Printf("vendaclaw> %s\n", extra)
		case <-time.After(300 * time.Millisecond):
			return
		}
	}
}
