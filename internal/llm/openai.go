package llm

import (
	"context"
	"fmt"
	"strings"

	"github.com/sashabaranov/go-openai"

	"teleautogram/internal/storage"
)

type OpenAIClient struct {
	client *openai.Client
	model  string
}

func NewOpenAI(apiKey, baseURL, model string) *OpenAIClient {
	config := openai.DefaultConfig(apiKey)
	if baseURL != "" {
		config.BaseURL = baseURL
	}
	return &OpenAIClient{
		client: openai.NewClientWithConfig(config),
		model:  model,
	}
}

func (c *OpenAIClient) Respond(ctx context.Context, req RespondRequest) (string, error) {
	resp, err := c.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: c.model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: respondPrompt(req)},
			{Role: openai.ChatMessageRoleUser, Content: req.Incoming},
		},
		MaxTokens:   500,
		Temperature: 0.7,
	})
	if err != nil {
		return "", fmt.Errorf("failed to create chat completion: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("completion returned no choices")
	}
	return strings.TrimSpace(resp.Choices[0].Message.Content), nil
}

func (c *OpenAIClient) UpdateProfile(ctx context.Context, req ProfileRequest) (string, error) {
	history := req.History
	if !req.FullHistory && len(history) > 10 {
		history = history[len(history)-10:]
	}
	if len(history) == 0 {
		return req.Existing, nil
	}

	resp, err := c.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: c.model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: profilePrompt(req.Existing, history, req.SenderName)},
			{Role: openai.ChatMessageRoleUser, Content: "Update the profile now."},
		},
		MaxTokens:   500,
		Temperature: 0.3,
	})
	if err != nil {
		return req.Existing, fmt.Errorf("failed to update profile: %w", err)
	}
	if len(resp.Choices) == 0 {
		return req.Existing, fmt.Errorf("completion returned no choices")
	}
	updated := strings.TrimSpace(resp.Choices[0].Message.Content)
	if updated == "" {
		return req.Existing, nil
	}
	return updated, nil
}

func respondPrompt(req RespondRequest) string {
	var parts []string
	if req.Persona != "" {
		parts = append(parts, req.Persona)
	}
	if req.Profile != "" {
		parts = append(parts, fmt.Sprintf("\n[Profile: %s]\n%s", req.SenderName, req.Profile))
	}
	if conv := renderConversation(req.History, req.SenderName); conv != "" {
		parts = append(parts, fmt.Sprintf("\n[Recent conversation with %s]\n%s", req.SenderName, conv))
	}
	if len(parts) == 0 {
		return "You are a friendly conversational partner. Respond naturally and concisely."
	}
	return strings.Join(parts, "\n")
}

// profilePrompt keeps the operator's own statements out of the sender's
// profile: "Me" lines are the operator, never the counterpart.
func profilePrompt(existing string, history []storage.Message, senderName string) string {
	if existing == "" {
		existing = "(empty — first conversation)"
	}
	lines := []string{
		fmt.Sprintf("You are updating a profile about %q — the OTHER person in this conversation.", senderName),
		`"Me" is YOU (the bot operator). Do NOT extract or store anything "Me" said about myself.`,
		fmt.Sprintf("ONLY extract facts that %q revealed about THEMSELVES.", senderName),
		"",
		fmt.Sprintf("[Current Profile of %s]", senderName),
		existing,
		"",
		"[Recent Conversation]",
		renderConversation(history, senderName),
		"",
		fmt.Sprintf("Update the profile of %s ONLY if they revealed genuinely important new facts about themselves.", senderName),
		"Rules:",
		"- If no new important info was revealed, return the current profile UNCHANGED",
		fmt.Sprintf("- ONLY extract info from what %s said, NEVER from what \"Me\" said", senderName),
		"- ONLY store lasting personal facts worth remembering long-term:",
		`  * Preferred name or nickname ("call me ...")`,
		"  * Preferred language or tone",
		"  * Job, role, or profession",
		"  * Location or timezone",
		`  * Explicit requests ("remember that ...", "I prefer ...")`,
		"- Do NOT store:",
		`  * Anything "Me" said about myself — that is NOT the sender's info`,
		"  * Casual conversation topics or small talk",
		"  * Temporary states (mood, what they ate, weather)",
		"  * Anything that could be inferred from a single greeting",
		"- Keep existing info unless clearly contradicted",
		"- Use concise bullet points, no headings needed for short profiles",
		"- Output ONLY the profile in Markdown, nothing else",
	}
	return strings.Join(lines, "\n")
}
