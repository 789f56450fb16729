package services

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime"

	"fundmate/statements"
)

// BedrockService handles communication with AWS Bedrock for Claude models
type BedrockService struct {
	client *bedrockruntime.Client
	model  string
}

// ClaudeRequest represents the request format for Claude models via Bedrock
type ClaudeRequest struct {
	AnthropicVersion string          `json:"anthropic_version"`
	MaxTokens        int             `json:"max_tokens"`
	System           string          `json:"system,omitempty"`
	Messages         []ClaudeMessage `json:"messages"`
}

// ClaudeMessage represents a message in the Claude conversation
type ClaudeMessage struct {
	Role    string          `json:"role"`
	Content []ClaudeContent `json:"content"`
}

// ClaudeContent is one content block: text or a base64 image.
type ClaudeContent struct {
	Type   string             `json:"type"`
	Text   string             `json:"text,omitempty"`
	Source *ClaudeImageSource `json:"source,omitempty"`
}

// ClaudeImageSource carries an inline base64 image.
type ClaudeImageSource struct {
	Type      string `json:"type"`
	MediaType string `json:"media_type"`
	Data      string `json:"data"`
}

// ClaudeResponse represents the response from Claude models
type ClaudeResponse struct {
	ID      string `json:"id"`
	Type    string `json:"type"`
	Role    string `json:"role"`
	Content []struct {
		Type string `json:"type"`
		Text string `json:"text"`
	} `json:"content"`
	StopReason string `json:"stop_reason"`
	Usage      struct {
		InputTokens  int `json:"input_tokens"`
		OutputTokens int `json:"output_tokens"`
	} `json:"usage"`
}

// NewBedrockService creates a new BedrockService instance
func NewBedrockService(ctx context.Context, region, modelID string) (*BedrockService, error) {
	cfg, err := config.LoadDefaultConfig(ctx, config.WithRegion(region))
	if err != nil {
		return nil, fmt.Errorf("unable to load AWS SDK config: %w", err)
	}

	return &BedrockService{
		client: bedrockruntime.NewFromConfig(cfg),
		model:  modelID,
	}, nil
}

func textMessage(role, text string) ClaudeMessage {
	return ClaudeMessage{Role: role, Content: []ClaudeContent{{Type: "text", Text: text}}}
}

// InvokeWithPrompt sends a text prompt to Claude and returns the response text
func (s *BedrockService) InvokeWithPrompt(ctx context.Context, systemPrompt, userPrompt string) (string, error) {
	return s.invoke(ctx, systemPrompt, []ClaudeMessage{textMessage("user", userPrompt)})
}

// InvokeWithImages sends a prompt plus page images to Claude and returns
// the response text. Images are inlined as base64 PNG blocks.
func (s *BedrockService) InvokeWithImages(ctx context.Context, systemPrompt, userPrompt string, images [][]byte) (string, error) {
	content := make([]ClaudeContent, 0, len(images)+1)
	for _, img := range images {
		content = append(content, ClaudeContent{
			Type: "image",
			Source: &ClaudeImageSource{
				Type:      "base64",
				MediaType: "image/png",
				Data:      base64.StdEncoding.EncodeToString(img),
			},
		})
	}
	content = append(content, ClaudeContent{Type: "text", Text: userPrompt})

	return s.invoke(ctx, systemPrompt, []ClaudeMessage{{Role: "user", Content: content}})
}

// InvokeStructured sends a prompt and parses the JSON response into the provided struct
func (s *BedrockService) InvokeStructured(ctx context.Context, systemPrompt, userPrompt string, result interface{}) error {
	text, err := s.InvokeWithPrompt(ctx, systemPrompt, userPrompt)
	if err != nil {
		return err
	}

	if err := json.Unmarshal([]byte(extractJSON(text)), result); err != nil {
		return fmt.Errorf("failed to parse response as JSON: %w", err)
	}
	return nil
}

// Chat enables multi-turn conversation with Claude
func (s *BedrockService) Chat(ctx context.Context, systemPrompt string, messages []ClaudeMessage) (string, error) {
	return s.invoke(ctx, systemPrompt, messages)
}

func (s *BedrockService) invoke(ctx context.Context, systemPrompt string, messages []ClaudeMessage) (string, error) {
	maxTokens := 4096
	if val := os.Getenv("BEDROCK_MAX_TOKENS"); val != "" {
		if parsed, err := strconv.Atoi(val); err == nil && parsed > 0 {
			maxTokens = parsed
		}
	}

	anthropicVersion := "bedrock-2023-05-31"
	if val := os.Getenv("BEDROCK_ANTHROPIC_VERSION"); val != "" {
		anthropicVersion = val
	}

	request := ClaudeRequest{
		AnthropicVersion: anthropicVersion,
		MaxTokens:        maxTokens,
		System:           systemPrompt,
		Messages:         messages,
	}

	reqBody, err := json.Marshal(request)
	if err != nil {
		return "", fmt.Errorf("failed to marshal request: %w", err)
	}

	output, err := WithCircuitBreaker(ctx, BreakerBedrock, func() (*bedrockruntime.InvokeModelOutput, error) {
		return s.client.InvokeModel(ctx, &bedrockruntime.InvokeModelInput{
			ModelId:     aws.String(s.model),
			Body:        reqBody,
			ContentType: aws.String("application/json"),
		})
	})
	if err != nil {
		return "", fmt.Errorf("failed to invoke model: %w", err)
	}

	var response ClaudeResponse
	if err := json.Unmarshal(output.Body, &response); err != nil {
		return "", fmt.Errorf("failed to unmarshal response: %w", err)
	}

	if len(response.Content) == 0 {
		return "", fmt.Errorf("empty response from model")
	}

	return response.Content[0].Text, nil
}

const statementSystemPrompt = `You extract structured data from broker statement pages. ` +
	`Respond with a single JSON object and nothing else. Schema: ` +
	`{"broker_name": string, "account_id": string, "statement_date": "YYYY-MM-DD", ` +
	`"cash": {"USD": number, "HKD": number, ...}, "cash_total": number, ` +
	`"cash_total_currency": string, "usd_total": number, ` +
	`"positions": [{"stock_code": string, "holding": number, "raw_description": string, ` +
	`"broker_price": number, "price_currency": string, "multiplier": number}]}. ` +
	`Copy stock codes and descriptions exactly as printed. Short positions have negative holdings. ` +
	`Use 0 for values the statement does not show.`

// ExtractStatement reads statement page images into structured content.
// Implements statements.DocumentExtractor.
func (s *BedrockService) ExtractStatement(ctx context.Context, broker string, pages [][]byte) (*statements.ExtractedStatement, error) {
	prompt := fmt.Sprintf("These are the pages of a %s account statement. Extract the cash balances and all positions.", broker)

	text, err := s.InvokeWithImages(ctx, statementSystemPrompt, prompt, pages)
	if err != nil {
		return nil, fmt.Errorf("statement extraction for %s: %w", broker, err)
	}

	var extracted statements.ExtractedStatement
	if err := json.Unmarshal([]byte(extractJSON(text)), &extracted); err != nil {
		return nil, fmt.Errorf("statement extraction for %s returned invalid JSON: %w", broker, err)
	}
	if extracted.BrokerName == "" {
		extracted.BrokerName = broker
	}
	return &extracted, nil
}

// extractJSON trims markdown code fences the model sometimes wraps JSON in.
func extractJSON(text string) string {
	text = strings.TrimSpace(text)
	if strings.HasPrefix(text, "```") {
		text = strings.TrimPrefix(text, "```json")
		text = strings.TrimPrefix(text, "```")
		if idx := strings.LastIndex(text, "```"); idx >= 0 {
			text = text[:idx]
		}
	}
	return strings.TrimSpace(text)
}
