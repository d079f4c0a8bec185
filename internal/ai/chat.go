package ai

import (
	"context"
	"sync"

	"github.com/google/uuid"
)

// ChatSession is a conversation bound to the assistant system prompt. Turns are
// never cached; each one goes through the cooldown and retry policy.
type ChatSession struct {
	ID string

	gateway *Gateway
	mu      sync.Mutex
	history []Message
}

func (g *Gateway) NewChatSession() *ChatSession {
	return &ChatSession{ID: uuid.NewString(), gateway: g}
}

// Send posts one user message. History only grows when the provider answers.
func (s *ChatSession) Send(ctx context.Context, message string) (*Response, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	g := s.gateway
	var resp *Response
	err := g.withRetry(ctx, "chat", func(ctx context.Context) error {
		r, err := g.provider.Generate(ctx, Request{
			Model:   g.opts.Model,
			System:  chatSystemPrompt,
			History: append([]Message(nil), s.history...),
			Prompt:  message,
			Search:  true,
		})
		if err != nil {
			return err
		}
		resp = r
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.history = append(s.history,
		Message{Role: "user", Content: message},
		Message{Role: "assistant", Content: resp.Text},
	)
	return resp, nil
}

func (s *ChatSession) History() []Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Message(nil), s.history...)
}
