package agent

import (
	"context"
	"errors"
	"fmt"

	"google.golang.org/genai"
)

// maxToolRounds bounds the function-calling loop for one user message.
const maxToolRounds = 4

// Gemini is the production LLM backed by the Gemini API.
type Gemini struct {
	client *genai.Client
	model  string
}

func NewGemini(ctx context.Context, apiKey, model string) (*Gemini, error) {
	if apiKey == "" {
		return nil, errors.New("gemini api key is required")
	}
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("create gemini client: %w", err)
	}
	return &Gemini{client: client, model: model}, nil
}

// GenerateResponse runs one assistant turn. Tool calls requested by the model
// are dispatched through the gateway and fed back as function responses until
// the model produces text or the round budget runs out.
func (g *Gemini) GenerateResponse(ctx context.Context, prompt string, tools *Gateway) (string, error) {
	config := &genai.GenerateContentConfig{
		SystemInstruction: genai.NewContentFromText(ReceptionistInstructions, genai.RoleUser),
		Tools:             toGenaiTools(ToolSpecs()),
	}

	contents := []*genai.Content{
		genai.NewContentFromText(prompt, genai.RoleUser),
	}

	for round := 0; round < maxToolRounds; round++ {
		resp, err := g.client.Models.GenerateContent(ctx, g.model, contents, config)
		if err != nil {
			return "", fmt.Errorf("gemini generate: %w", err)
		}

		calls := resp.FunctionCalls()
		if len(calls) == 0 {
			return resp.Text(), nil
		}

		if len(resp.Candidates) > 0 && resp.Candidates[0].Content != nil {
			contents = append(contents, resp.Candidates[0].Content)
		}
		for _, call := range calls {
			result := tools.Dispatch(ctx, call.Name, call.Args)
			contents = append(contents, genai.NewContentFromParts(
				[]*genai.Part{genai.NewPartFromFunctionResponse(call.Name, result)},
				genai.RoleUser,
			))
		}
	}

	return "", fmt.Errorf("gemini did not settle after %d tool rounds", maxToolRounds)
}

func toGenaiTools(specs []ToolSpec) []*genai.Tool {
	decls := make([]*genai.FunctionDeclaration, 0, len(specs))
	for _, spec := range specs {
		props := make(map[string]*genai.Schema, len(spec.Params))
		for name, p := range spec.Params {
			props[name] = &genai.Schema{
				Type:        toGenaiType(p.Type),
				Description: p.Description,
			}
		}
		decls = append(decls, &genai.FunctionDeclaration{
			Name:        spec.Name,
			Description: spec.Description,
			Parameters: &genai.Schema{
				Type:       genai.TypeObject,
				Properties: props,
				Required:   spec.Required,
			},
		})
	}
	return []*genai.Tool{{FunctionDeclarations: decls}}
}

func toGenaiType(t string) genai.Type {
	if t == "integer" {
		return genai.TypeInteger
	}
	return genai.TypeString
}
