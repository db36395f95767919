package llm

import (
	"context"
	"fmt"
	"strings"

	"github.com/Morwran/yagpt"
)

type YandexClient struct {
	ya       yagpt.YaGPTFace
	iamToken string
}

func NewYandex(oauthToken, folderID string) (*YandexClient, error) {
	// Create IAM token from OAuth token
	iam, err := yagpt.NewYaIam(oauthToken)
	if err != nil {
		return nil, fmt.Errorf("failed to init yandex iam: %w", err)
	}
	resp, err := iam.Create()
	if err != nil {
		return nil, fmt.Errorf("failed to create iam token: %w", err)
	}

	ya, err := yagpt.NewYagpt(folderID)
	if err != nil {
		return nil, fmt.Errorf("failed to init yagpt: %w", err)
	}

	return &YandexClient{
		ya:       ya,
		iamToken: resp.IamToken,
	}, nil
}

func (c *YandexClient) Respond(ctx context.Context, req RespondRequest) (string, error) {
	out, err := c.complete(ctx, respondPrompt(req), req.Incoming)
	if err != nil {
		return "", err
	}
	return out, nil
}

func (c *YandexClient) UpdateProfile(ctx context.Context, req ProfileRequest) (string, error) {
	history := req.History
	if !req.FullHistory && len(history) > 10 {
		history = history[len(history)-10:]
	}
	if len(history) == 0 {
		return req.Existing, nil
	}
	out, err := c.complete(ctx, profilePrompt(req.Existing, history, req.SenderName), "Update the profile now.")
	if err != nil {
		return req.Existing, err
	}
	if out == "" {
		return req.Existing, nil
	}
	return out, nil
}

func (c *YandexClient) complete(ctx context.Context, systemPrompt, prompt string) (string, error) {
	messages := []yagpt.Message{
		{Role: "system", Content: systemPrompt},
		{Role: "user", Content: prompt},
	}
	resp, err := c.ya.CompletionWithCtx(ctx, c.iamToken, messages)
	if err != nil {
		return "", fmt.Errorf("yagpt completion failed: %w", err)
	}
	if resp == nil || len(resp.Alternatives) == 0 {
		return "", fmt.Errorf("yagpt returned empty response")
	}
	return strings.TrimSpace(resp.Alternatives[0].Message.Content), nil
}
