package cmd

import (
	"bufio"
	"fmt"
	"os"
	"strings"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"polychat/internal/ai"
	"polychat/internal/ui"
)

var (
	chatOpts     chatOptions
	chatNoStream bool
)

var chatCmd = &cobra.Command{
	Use:   "chat",
	Short: "Start an interactive chat session",
	Long: `Start a conversational session with the configured provider. Replies
stream to the terminal as they are generated and context carries over
between messages.

Type /reset to clear the conversation, 'exit' or a blank line to quit.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		sess, err := newSession(cmd, &chatOpts)
		if err != nil {
			return err
		}

		cyan := color.New(color.FgCyan, color.Bold)
		dim := color.New(color.FgHiBlack)
		green := color.New(color.FgGreen)

		fmt.Fprintln(os.Stderr)
		cyan.Fprintf(os.Stderr, "  polychat / %s (%s)\n", sess.providerName, sess.model)
		dim.Fprintf(os.Stderr, "  /reset clears history, 'exit' or a blank line quits.\n\n")

		scanner := bufio.NewScanner(os.Stdin)
		var messages []ai.Message

		for {
			green.Fprint(os.Stderr, "you → ")
			if !scanner.Scan() {
				break
			}
			input := strings.TrimSpace(scanner.Text())
			if input == "" || input == "exit" || input == "quit" {
				break
			}
			if input == "/reset" {
				messages = nil
				dim.Fprintf(os.Stderr, "  [history reset]\n\n")
				continue
			}

			messages = append(messages, ai.Message{Role: ai.RoleUser, Content: input})

			var reply string
			if chatNoStream {
				sp := ui.NewSpinner("Thinking...")
				sp.Start()
				reply, err = ai.Complete(cmd.Context(), sess.provider, sess.request(messages))
				sp.Stop()
				if err == nil {
					cyan.Fprint(os.Stderr, "bot → ")
					fmt.Fprintf(os.Stderr, "%s\n\n", reply)
				}
			} else {
				stream := sess.provider.Stream(cmd.Context(), sess.request(messages))
				cyan.Fprint(os.Stderr, "bot → ")
				reply, err = ui.RenderStream(os.Stderr, stream, "")
			}

			if err != nil {
				fmt.Fprintf(os.Stderr, "  Error: %v\n\n", err)
				// Keep whatever streamed before the failure; it is already
				// on screen and belongs in the record.
				if reply == "" {
					messages = messages[:len(messages)-1]
					continue
				}
			}
			messages = append(messages, ai.Message{Role: ai.RoleAssistant, Content: reply})
		}

		sess.finishTranscript(cmd.Context(), messages)
		return nil
	},
}

func init() {
	addChatFlags(chatCmd, &chatOpts)
	chatCmd.Flags().BoolVar(&chatNoStream, "no-stream", false, "Wait for the full reply instead of streaming it")
}
