package perception

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"strings"

	"github.com/ollama/ollama/api"
)

const ollamaDefault = "qwen2.5vl:7b"

type ollamaModel struct {
	client      *api.Client
	model       string
	temperature float32
}

func newOllama(cfg Config) (*ollamaModel, error) {
	var c *api.Client
	if cfg.OllamaHost != "" {
		u, err := url.Parse(cfg.OllamaHost)
		if err != nil {
			return nil, fmt.Errorf("ollama: bad host %q: %w", cfg.OllamaHost, err)
		}
		c = api.NewClient(u, nil)
	} else {
		var err error
		c, err = api.ClientFromEnvironment()
		if err != nil {
			return nil, fmt.Errorf("ollama client: %w", err)
		}
	}
	m := &ollamaModel{client: c, model: ollamaDefault, temperature: cfg.Temperature}
	if strings.TrimSpace(cfg.Model) != "" {
		m.model = cfg.Model
	}
	return m, nil
}

func (o *ollamaModel) Describe(ctx context.Context, image []byte, prompt string) (string, error) {
	stream := false
	req := &api.GenerateRequest{
		Model:   o.model,
		Prompt:  prompt + "\n\nReturn ONLY strict JSON. No extra text.",
		Images:  []api.ImageData{image},
		Format:  json.RawMessage(`"json"`),
		Stream:  &stream,
		Options: map[string]any{"temperature": o.temperature},
	}
	var out strings.Builder
	if err := o.client.Generate(ctx, req, func(gr api.GenerateResponse) error {
		out.WriteString(gr.Response)
		return nil
	}); err != nil {
		return "", fmt.Errorf("ollama generate: %w", err)
	}
	if strings.TrimSpace(out.String()) == "" {
		return "", ErrEmptyResponse
	}
	return out.String(), nil
}
