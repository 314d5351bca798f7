// Copyright 2026 © The Agora Authors
// SPDX-License-Identifier: Apache-2.0

package testing

import (
	"context"
	"fmt"
	"sync"

	"github.com/jllopis/agora/pkg/llm"
)

// RoutedProvider is a mock provider for multi-role scenarios. Roles of a
// round call the LLM concurrently, so a single ordered script is not
// deterministic; routes answer by matching the prompt instead. Requests
// that match no route consume the queued responses in order.
type RoutedProvider struct {
	mu           sync.Mutex
	routes       []Route
	responses    []ScriptedResponse
	currentIndex int
	requests     []llm.ChatRequest
	defaultError error
}

// ScriptedResponse defines one reply of the provider.
type ScriptedResponse struct {
	Content string
	Error   error
	Usage   llm.Usage
}

// Route answers every prompt whose last message matches Match.
type Route struct {
	Match StringMatcher
	ScriptedResponse
	// Times bounds how often the route fires. Zero means always.
	Times int

	hits int
}

// NewRoutedProvider creates an empty provider.
func NewRoutedProvider() *RoutedProvider {
	return &RoutedProvider{}
}

// On answers prompts matching m with content.
func (p *RoutedProvider) On(m StringMatcher, content string) *RoutedProvider {
	return p.AddRoute(Route{Match: m, ScriptedResponse: ScriptedResponse{Content: content}})
}

// OnState answers state selection prompts with the given stage.
func (p *RoutedProvider) OnState(state int) *RoutedProvider {
	return p.On(Contains("Just answer a number"), fmt.Sprint(state))
}

// AddRoute adds a fully configured route. Routes are tried in order.
func (p *RoutedProvider) AddRoute(r Route) *RoutedProvider {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.routes = append(p.routes, r)
	return p
}

// AddResponse queues a reply for requests no route matches.
func (p *RoutedProvider) AddResponse(content string) *RoutedProvider {
	return p.AddScriptedResponse(ScriptedResponse{Content: content})
}

// AddErrorResponse queues an error.
func (p *RoutedProvider) AddErrorResponse(err error) *RoutedProvider {
	return p.AddScriptedResponse(ScriptedResponse{Error: err})
}

// AddScriptedResponse queues a fully configured reply.
func (p *RoutedProvider) AddScriptedResponse(resp ScriptedResponse) *RoutedProvider {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.responses = append(p.responses, resp)
	return p
}

// WithDefaultError sets the error returned once nothing matches and the
// queue is empty.
func (p *RoutedProvider) WithDefaultError(err error) *RoutedProvider {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.defaultError = err
	return p
}

// Chat implements llm.Provider.
func (p *RoutedProvider) Chat(_ context.Context, req llm.ChatRequest) (*llm.ChatResponse, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.requests = append(p.requests, req)
	prompt := lastContent(req)

	for i := range p.routes {
		r := &p.routes[i]
		if r.Times > 0 && r.hits >= r.Times {
			continue
		}
		if r.Match.Match(prompt) {
			r.hits++
			return reply(r.ScriptedResponse)
		}
	}

	if p.currentIndex >= len(p.responses) {
		if p.defaultError != nil {
			return nil, p.defaultError
		}
		return nil, fmt.Errorf("no route or scripted response for call %d", len(p.requests))
	}
	resp := p.responses[p.currentIndex]
	p.currentIndex++
	return reply(resp)
}

func reply(r ScriptedResponse) (*llm.ChatResponse, error) {
	if r.Error != nil {
		return nil, r.Error
	}
	return &llm.ChatResponse{Content: r.Content, Usage: r.Usage}, nil
}

func lastContent(req llm.ChatRequest) string {
	if len(req.Messages) == 0 {
		return ""
	}
	return req.Messages[len(req.Messages)-1].Content
}

// Requests returns all captured requests.
func (p *RoutedProvider) Requests() []llm.ChatRequest {
	p.mu.Lock()
	defer p.mu.Unlock()
	result := make([]llm.ChatRequest, len(p.requests))
	copy(result, p.requests)
	return result
}

// LastRequest returns the most recent request.
func (p *RoutedProvider) LastRequest() *llm.ChatRequest {
	p.mu.Lock()
	defer p.mu.Unlock()
	if len(p.requests) == 0 {
		return nil
	}
	req := p.requests[len(p.requests)-1]
	return &req
}

// CallCount returns the number of Chat calls made.
func (p *RoutedProvider) CallCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.requests)
}

// Reset forgets requests, route hits and queue progress.
func (p *RoutedProvider) Reset() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.currentIndex = 0
	p.requests = p.requests[:0]
	for i := range p.routes {
		p.routes[i].hits = 0
	}
}
