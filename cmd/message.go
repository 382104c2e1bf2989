package cmd

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"polychat/internal/ai"
	"polychat/internal/ui"
)

var messageOpts chatOptions

var messageCmd = &cobra.Command{
	Use:   "message <prompt>...",
	Short: "Send a single prompt and print the response",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		sess, err := newSession(cmd, &messageOpts)
		if err != nil {
			return err
		}

		prompt := strings.Join(args, " ")
		messages := []ai.Message{{Role: ai.RoleUser, Content: prompt}}

		sp := ui.NewSpinner("Thinking...")
		sp.Start()
		// One-shot callers consume the same delta sequence and join it.
		reply, err := ai.Complete(cmd.Context(), sess.provider, sess.request(messages))
		if err != nil {
			sp.Fail("request failed")
			return err
		}
		sp.Stop()

		fmt.Println(reply)
		messages = append(messages, ai.Message{Role: ai.RoleAssistant, Content: reply})
		sess.finishTranscript(cmd.Context(), messages)
		return nil
	},
}

func init() {
	addChatFlags(messageCmd, &messageOpts)
}
