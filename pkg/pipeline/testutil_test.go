package pipeline

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/postpilot/postpilot/pkg/image"
	"github.com/postpilot/postpilot/pkg/llm"
	"github.com/postpilot/postpilot/pkg/pipeline/checkpoint"
)

// fakeRouter satisfies ModelRouter with canned structured outputs keyed
// by the target type. It records every call for assertions.
type fakeRouter struct {
	mu sync.Mutex

	// structuredCalls counts GenerateStructured calls per output type.
	structuredCalls map[string]int
	// generateCalls counts Generate calls.
	generateCalls int
	// prompts records every user prompt seen, in call order.
	prompts []string

	// fail maps an output type name (or "generate") to an error.
	fail map[string]error

	// suffix is appended to generated text so regenerated content is
	// distinguishable from the original.
	suffix string
}

func newFakeRouter() *fakeRouter {
	return &fakeRouter{
		structuredCalls: make(map[string]int),
		fail:            make(map[string]error),
	}
}

func (r *fakeRouter) Generate(_ context.Context, req llm.Request) (string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.generateCalls++
	r.prompts = append(r.prompts, req.Prompt)
	if err := r.fail["generate"]; err != nil {
		return "", err
	}
	return "a vivid scene" + r.suffix, nil
}

func (r *fakeRouter) GenerateStructured(_ context.Context, req llm.Request, _ []byte, out any) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.prompts = append(r.prompts, req.Prompt)

	switch v := out.(type) {
	case *Analysis:
		r.structuredCalls["analysis"]++
		if err := r.fail["analysis"]; err != nil {
			return err
		}
		*v = Analysis{
			Themes:         []string{"innovation", "adoption", "impact"},
			Audience:       "technology leaders",
			VisualConcepts: []string{"circuit skyline", "handshake", "sunrise"},
			Tone:           "professional",
			Takeaways:      []string{"start small", "measure results"},
		}
	case *LinkedInPost:
		r.structuredCalls["linkedin"]++
		if err := r.fail["linkedin"]; err != nil {
			return err
		}
		*v = LinkedInPost{
			Text:     "LinkedIn take" + r.suffix,
			Hashtags: []string{"#tech", "#growth"},
		}
	case *InstagramPost:
		r.structuredCalls["instagram"]++
		if err := r.fail["instagram"]; err != nil {
			return err
		}
		*v = InstagramPost{
			Caption:  "Instagram caption" + r.suffix,
			Hashtags: []string{"#a", "#b", "#c", "#d", "#e", "#f", "#g", "#h", "#i", "#j"},
		}
	case *WordPressPost:
		r.structuredCalls["wordpress"]++
		if err := r.fail["wordpress"]; err != nil {
			return err
		}
		*v = WordPressPost{
			Title:          "A Headline Long Enough To Satisfy The Article Contract" + r.suffix,
			Excerpt:        "Short excerpt.",
			SEODescription: strings.Repeat("seo ", 38) + "tail",
			Sections: []Section{
				{Type: "heading", Content: "Intro", Level: 2},
				{Type: "paragraph", Content: "Opening."},
				{Type: "image", Content: "image_reference"},
				{Type: "paragraph", Content: "Body."},
				{Type: "paragraph", Content: "Closing."},
			},
		}
	default:
		return fmt.Errorf("unexpected structured output type %T", out)
	}
	return nil
}

func (r *fakeRouter) structuredCount(kind string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.structuredCalls[kind]
}

func (r *fakeRouter) totalCalls() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.prompts)
}

func (r *fakeRouter) reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.structuredCalls = make(map[string]int)
	r.generateCalls = 0
	r.prompts = nil
}

// countingImages is an image.Generator that records its calls.
type countingImages struct {
	mu     sync.Mutex
	calls  int
	err    error
	prompt string
}

func (g *countingImages) Generate(_ context.Context, prompt string) (string, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.calls++
	g.prompt = prompt
	if g.err != nil {
		return "", g.err
	}
	return "https://img.example.com/generated.png", nil
}

func (g *countingImages) callCount() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.calls
}

var _ image.Generator = (*countingImages)(nil)

// newTestEngine wires an engine over fakes and a memory store.
func newTestEngine(t *testing.T, opts ...Option) (*Engine, *fakeRouter, *countingImages, *checkpoint.MemoryStore) {
	t.Helper()

	router := newFakeRouter()
	images := &countingImages{}
	store := checkpoint.NewMemoryStore()
	t.Cleanup(func() { _ = store.Close() })

	engine, err := New(router, images, store, opts...)
	require.NoError(t, err)
	return engine, router, images, store
}
