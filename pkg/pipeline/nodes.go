package pipeline

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/postpilot/postpilot/pkg/image"
	"github.com/postpilot/postpilot/pkg/llm"
)

// ModelRouter is the slice of the model router the stage functions use.
// *llm.Router satisfies it.
type ModelRouter interface {
	Generate(ctx context.Context, req llm.Request) (string, error)
	GenerateStructured(ctx context.Context, req llm.Request, schema []byte, out any) error
}

// JSON Schemas the model output must conform to, one per structured stage.
const (
	analysisSchema = `{
		"type": "object",
		"required": ["themes", "audience", "visual_concepts", "tone", "takeaways"],
		"properties": {
			"themes": {"type": "array", "items": {"type": "string"}, "minItems": 3, "maxItems": 5},
			"audience": {"type": "string"},
			"visual_concepts": {"type": "array", "items": {"type": "string"}, "minItems": 3, "maxItems": 3},
			"tone": {"type": "string"},
			"takeaways": {"type": "array", "items": {"type": "string"}, "minItems": 2, "maxItems": 5}
		}
	}`

	linkedinSchema = `{
		"type": "object",
		"required": ["text", "hashtags"],
		"properties": {
			"text": {"type": "string", "maxLength": 3000},
			"hashtags": {"type": "array", "items": {"type": "string"}, "minItems": 2, "maxItems": 5}
		}
	}`

	instagramSchema = `{
		"type": "object",
		"required": ["caption", "hashtags"],
		"properties": {
			"caption": {"type": "string", "maxLength": 2200},
			"hashtags": {"type": "array", "items": {"type": "string"}, "minItems": 10, "maxItems": 30}
		}
	}`

	wordpressSchema = `{
		"type": "object",
		"required": ["title", "excerpt", "seo_description", "sections"],
		"properties": {
			"title": {"type": "string", "minLength": 50, "maxLength": 60},
			"excerpt": {"type": "string", "maxLength": 500},
			"seo_description": {"type": "string", "minLength": 150, "maxLength": 160},
			"sections": {
				"type": "array",
				"minItems": 5,
				"items": {
					"type": "object",
					"required": ["type", "content"],
					"properties": {
						"type": {"type": "string", "enum": ["heading", "paragraph", "image"]},
						"content": {"type": "string"},
						"level": {"type": "integer", "minimum": 2, "maximum": 4}
					}
				}
			}
		}
	}`
)

const analyzeSystemPrompt = `You are a content strategist analyzing topics for multi-platform publication.

Given a topic, identify:
- 3-5 key themes or concepts
- the target audience
- exactly 3 visual concepts suitable for image generation
- the recommended tone (professional/casual/inspirational/educational)
- 2-5 key takeaways to communicate

Respond with a single JSON object with keys: themes, audience, visual_concepts, tone, takeaways. Return ONLY the JSON object.`

const imagePromptSystem = `You are an expert at creating image generation prompts for AI models.

Convert a topic into a detailed, visual prompt that will generate a high-quality image suitable for social media posts.

Guidelines:
- Be descriptive and visual (describe what you see, not concepts)
- Include style guidance (e.g., "professional photography", "digital art")
- Include mood/atmosphere (e.g., "warm lighting", "vibrant colors")
- Keep it concise but detailed (2-3 sentences max)
- Avoid requesting text in the image

Return ONLY the prompt text, nothing else.`

// stageSet carries the external collaborators the stage functions call.
type stageSet struct {
	router ModelRouter
	images image.Generator
}

// registry binds stage names to their functions.
func (s *stageSet) registry() map[string]StageFunc {
	return map[string]StageFunc{
		StageAnalyze:           s.analyze,
		StageGenerateImage:     s.generateImage,
		StageGenerateLinkedIn:  s.generateLinkedIn,
		StageGenerateInstagram: s.generateInstagram,
		StageGenerateWordPress: s.generateWordPress,
		StageWaitForApproval:   s.waitForApproval,
		StageApplyFeedback:     s.applyFeedback,
		StageFinalize:          s.finalize,
	}
}

func (s *stageSet) analyze(ctx context.Context, state WorkflowState) (Patch, error) {
	var analysis Analysis
	err := s.router.GenerateStructured(ctx, llm.Request{
		SystemPrompt: analyzeSystemPrompt,
		Prompt:       fmt.Sprintf("Topic: %s\n\nAnalyze this topic.", state.Topic),
	}, []byte(analysisSchema), &analysis)
	if err != nil {
		return Patch{}, fmt.Errorf("analyze topic: %w", err)
	}
	return Patch{Analysis: &analysis}, nil
}

func (s *stageSet) generateImage(ctx context.Context, state WorkflowState) (Patch, error) {
	userPrompt := "Topic: " + state.Topic
	if state.Analysis != nil && len(state.Analysis.VisualConcepts) > 0 {
		userPrompt += "\nVisual concepts: " + strings.Join(state.Analysis.VisualConcepts, "; ")
	}
	userPrompt += "\n\nCreate a detailed image generation prompt for this topic:"

	prompt, err := s.router.Generate(ctx, llm.Request{
		SystemPrompt: imagePromptSystem,
		Prompt:       userPrompt,
		MaxTokens:    150,
	})
	if err != nil {
		return Patch{}, fmt.Errorf("generate image prompt: %w", err)
	}
	prompt = strings.TrimSpace(prompt)

	url, err := s.images.Generate(ctx, prompt)
	if err != nil {
		return Patch{}, fmt.Errorf("generate image: %w", err)
	}

	return Patch{Image: &Image{
		URL:     url,
		Prompt:  prompt,
		AltText: "Illustration for: " + state.Topic,
	}}, nil
}

func (s *stageSet) generateLinkedIn(ctx context.Context, state WorkflowState) (Patch, error) {
	var post LinkedInPost
	err := s.router.GenerateStructured(ctx, llm.Request{
		SystemPrompt: `You write professional LinkedIn posts. Respond with a single JSON object with keys: text (max 3000 characters), hashtags (2-5 strings). Return ONLY the JSON object.`,
		Prompt:       contentPrompt(state, "LinkedIn"),
	}, []byte(linkedinSchema), &post)
	if err != nil {
		return Patch{}, fmt.Errorf("generate linkedin post: %w", err)
	}
	return Patch{LinkedIn: &post}, nil
}

func (s *stageSet) generateInstagram(ctx context.Context, state WorkflowState) (Patch, error) {
	var post InstagramPost
	err := s.router.GenerateStructured(ctx, llm.Request{
		SystemPrompt: `You write engaging Instagram captions. Respond with a single JSON object with keys: caption (max 2200 characters), hashtags (10-30 strings). Return ONLY the JSON object.`,
		Prompt:       contentPrompt(state, "Instagram"),
	}, []byte(instagramSchema), &post)
	if err != nil {
		return Patch{}, fmt.Errorf("generate instagram post: %w", err)
	}
	return Patch{Instagram: &post}, nil
}

func (s *stageSet) generateWordPress(ctx context.Context, state WorkflowState) (Patch, error) {
	var post WordPressPost
	err := s.router.GenerateStructured(ctx, llm.Request{
		SystemPrompt: `You write long-form SEO-optimized WordPress articles. Respond with a single JSON object with keys: title (50-60 characters), excerpt (max 500 characters), seo_description (150-160 characters), sections (at least 5 objects with type heading|paragraph|image, content, and optional level 2-4). Return ONLY the JSON object.`,
		Prompt:       contentPrompt(state, "WordPress"),
	}, []byte(wordpressSchema), &post)
	if err != nil {
		return Patch{}, fmt.Errorf("generate wordpress article: %w", err)
	}
	return Patch{WordPress: &post}, nil
}

// contentPrompt builds the shared user prompt for the platform generators.
func contentPrompt(state WorkflowState, platform string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Topic: %s\nPlatform: %s\n", state.Topic, platform)

	if state.Analysis != nil {
		if analysisJSON, err := json.Marshal(state.Analysis); err == nil {
			fmt.Fprintf(&b, "Topic analysis: %s\n", analysisJSON)
		}
	}
	if state.Image != nil && state.Image.AltText != "" {
		fmt.Fprintf(&b, "Accompanying image: %s\n", state.Image.AltText)
	}
	if state.ApprovalStatus == StatusRegenerating && state.Feedback != "" {
		fmt.Fprintf(&b, "Reviewer feedback on the previous version: %s\n", state.Feedback)
	}

	b.WriteString("\nGenerate the content.")
	return b.String()
}

// waitForApproval marks the state as awaiting review. A decision already
// injected by a reviewer is never downgraded back to pending.
func (s *stageSet) waitForApproval(_ context.Context, state WorkflowState) (Patch, error) {
	switch state.ApprovalStatus {
	case StatusApproved, StatusRejected:
		return Patch{}, nil
	default:
		return Patch{ApprovalStatus: ptr(StatusPendingReview)}, nil
	}
}

// applyFeedback decides which platforms to regenerate from free-text
// feedback. A platform regenerates iff its name appears in the feedback;
// feedback naming no platform means regenerate everything.
func (s *stageSet) applyFeedback(_ context.Context, state WorkflowState) (Patch, error) {
	fb := strings.ToLower(state.Feedback)

	linkedin := strings.Contains(fb, "linkedin")
	instagram := strings.Contains(fb, "instagram")
	wordpress := strings.Contains(fb, "wordpress")

	if !linkedin && !instagram && !wordpress {
		linkedin, instagram, wordpress = true, true, true
	}

	return Patch{
		ApprovalStatus:      ptr(StatusRegenerating),
		RegenerateLinkedIn:  ptr(linkedin),
		RegenerateInstagram: ptr(instagram),
		RegenerateWordPress: ptr(wordpress),
	}, nil
}

func (s *stageSet) finalize(_ context.Context, state WorkflowState) (Patch, error) {
	if state.ApprovalStatus != StatusApproved {
		return Patch{}, fmt.Errorf("finalize requires approved status, got %q", state.ApprovalStatus)
	}
	return Patch{Finalized: ptr(true)}, nil
}
