package cmd

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"polychat/internal/ai"
	"polychat/internal/config"
	"polychat/internal/history"
)

// chatOptions are the flags shared by the chat and message commands.
type chatOptions struct {
	provider    string
	model       string
	system      string
	temperature float64
	maxTokens   int
	savePath    string
	historyDir  string
	autoSave    bool
	saveFormat  string
	webhookURL  string
	secretEnv   string
}

func addChatFlags(c *cobra.Command, o *chatOptions) {
	f := c.Flags()
	f.StringVarP(&o.provider, "provider", "p", "", "Provider to use (falls back to the config default)")
	f.StringVarP(&o.model, "model", "m", "", "Model identifier (falls back to the provider's default model)")
	f.StringVar(&o.system, "system", "", "System prompt / persona")
	f.Float64Var(&o.temperature, "temperature", 0, "Sampling temperature override")
	f.IntVar(&o.maxTokens, "max-tokens", 0, "Maximum output tokens")
	f.StringVar(&o.savePath, "save", "", "Path to save the chat transcript")
	f.StringVar(&o.historyDir, "history-dir", "", "Directory used when --auto-save is enabled")
	f.BoolVar(&o.autoSave, "auto-save", false, "Write the session to a timestamped file under --history-dir")
	f.StringVar(&o.saveFormat, "save-format", "json", "Transcript format: json or markdown")
	f.StringVar(&o.webhookURL, "webhook-url", "", "POST the transcript to this URL when the session ends")
	f.StringVar(&o.secretEnv, "secret-env", "", "Environment variable holding the passphrase for encrypted keys")
}

// session is one resolved chat setup: a provider instance plus everything
// needed to issue requests and persist the transcript afterwards.
type session struct {
	providerName string
	provider     ai.Provider
	model        string
	opts         *chatOptions
	format       history.Format
	tempSet      bool
}

func newSession(cmd *cobra.Command, o *chatOptions) (*session, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("configuration error: %w", err)
	}
	name, err := cfg.ResolveName(o.provider)
	if err != nil {
		return nil, err
	}
	providerCfg, err := cfg.Require(name)
	if err != nil {
		return nil, err
	}
	provider, err := ai.New(name, providerCfg, o.secretEnv)
	if err != nil {
		return nil, err
	}
	model := o.model
	if model == "" {
		model = providerCfg.DefaultModel
	}
	if model == "" {
		return nil, fmt.Errorf("no model selected: pass --model or set default_model for provider %q", name)
	}
	format, err := history.ParseFormat(o.saveFormat)
	if err != nil {
		return nil, err
	}
	return &session{
		providerName: name,
		provider:     provider,
		model:        model,
		opts:         o,
		format:       format,
		tempSet:      cmd.Flags().Changed("temperature"),
	}, nil
}

func (s *session) request(messages []ai.Message) ai.Request {
	req := ai.Request{
		Model:     s.model,
		System:    s.opts.system,
		Messages:  messages,
		MaxTokens: s.opts.maxTokens,
	}
	if s.tempSet {
		t := s.opts.temperature
		req.Temperature = &t
	}
	return req
}

// finishTranscript saves and/or pushes the conversation once the session
// ends. Persistence failures warn rather than fail the command: the chat
// already happened.
func (s *session) finishTranscript(ctx context.Context, messages []ai.Message) {
	if len(messages) == 0 {
		return
	}

	path := s.opts.savePath
	if path == "" && s.opts.autoSave {
		dir := s.opts.historyDir
		if dir == "" {
			dir = history.DefaultDir()
		}
		path = history.TimestampedPath(dir, s.providerName, s.format)
	}
	if path != "" {
		if err := history.Save(path, s.format, s.opts.system, messages); err != nil {
			fmt.Fprintf(os.Stderr, "[warn] %v\n", err)
		} else {
			fmt.Fprintf(os.Stderr, "[saved chat transcript to %s]\n", path)
		}
	}

	if s.opts.webhookURL != "" {
		if err := history.PushWebhook(ctx, s.opts.webhookURL, s.format, s.opts.system, messages); err != nil {
			fmt.Fprintf(os.Stderr, "[warn] failed to push transcript: %v\n", err)
		} else {
			fmt.Fprintln(os.Stderr, "[pushed chat transcript to webhook]")
		}
	}
}
