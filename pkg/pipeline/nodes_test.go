package pipeline

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestStageSet() (*stageSet, *fakeRouter, *countingImages) {
	router := newFakeRouter()
	images := &countingImages{}
	return &stageSet{router: router, images: images}, router, images
}

func TestAnalyze(t *testing.T) {
	set, router, _ := newTestStageSet()
	state := NewState("AI in healthcare", "run-1")

	patch, err := set.analyze(context.Background(), state)

	require.NoError(t, err)
	require.NotNil(t, patch.Analysis)
	assert.Len(t, patch.Analysis.VisualConcepts, 3)
	assert.Equal(t, 1, router.structuredCount("analysis"))
	assert.Contains(t, router.prompts[0], "AI in healthcare")
}

func TestAnalyze_RouterError(t *testing.T) {
	set, router, _ := newTestStageSet()
	router.fail["analysis"] = errors.New("chain down")

	_, err := set.analyze(context.Background(), NewState("topic", "run-1"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "analyze topic")
}

func TestGenerateImage(t *testing.T) {
	set, router, images := newTestStageSet()
	state := NewState("AI in healthcare", "run-1")
	state.Analysis = &Analysis{VisualConcepts: []string{"stethoscope", "circuits", "dawn"}}

	patch, err := set.generateImage(context.Background(), state)

	require.NoError(t, err)
	require.NotNil(t, patch.Image)
	assert.Equal(t, "https://img.example.com/generated.png", patch.Image.URL)
	assert.Equal(t, "a vivid scene", patch.Image.Prompt)
	assert.Contains(t, patch.Image.AltText, "AI in healthcare")

	// One LLM call to craft the prompt, one image call to render it.
	assert.Equal(t, 1, router.generateCalls)
	assert.Equal(t, 1, images.callCount())
	assert.Contains(t, router.prompts[0], "stethoscope")
	assert.Equal(t, "a vivid scene", images.prompt)
}

func TestGenerateImage_BackendError(t *testing.T) {
	set, _, images := newTestStageSet()
	images.err = errors.New("quota exceeded")

	_, err := set.generateImage(context.Background(), NewState("topic", "run-1"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "generate image")
}

func TestPlatformGenerators(t *testing.T) {
	set, router, _ := newTestStageSet()
	state := NewState("AI in healthcare", "run-1")
	state.Analysis = &Analysis{Audience: "clinicians"}
	state.Image = &Image{AltText: "a clinic at dawn"}

	liPatch, err := set.generateLinkedIn(context.Background(), state)
	require.NoError(t, err)
	require.NotNil(t, liPatch.LinkedIn)
	assert.Nil(t, liPatch.Instagram)
	assert.Nil(t, liPatch.WordPress)

	igPatch, err := set.generateInstagram(context.Background(), state)
	require.NoError(t, err)
	require.NotNil(t, igPatch.Instagram)

	wpPatch, err := set.generateWordPress(context.Background(), state)
	require.NoError(t, err)
	require.NotNil(t, wpPatch.WordPress)

	// Prompts carry the analysis and shared image alt text.
	for _, prompt := range router.prompts {
		assert.Contains(t, prompt, "clinicians")
		assert.Contains(t, prompt, "a clinic at dawn")
	}
}

func TestContentPrompt_FeedbackOnlyWhenRegenerating(t *testing.T) {
	state := NewState("topic", "run-1")
	state.Feedback = "too dry"

	// Feedback present but not regenerating: not included.
	assert.NotContains(t, contentPrompt(state, "LinkedIn"), "too dry")

	state.ApprovalStatus = StatusRegenerating
	assert.Contains(t, contentPrompt(state, "LinkedIn"), "too dry")
}

func TestWaitForApproval(t *testing.T) {
	set, _, _ := newTestStageSet()

	t.Run("stamps pending review", func(t *testing.T) {
		state := NewState("topic", "run-1")
		patch, err := set.waitForApproval(context.Background(), state)
		require.NoError(t, err)
		require.NotNil(t, patch.ApprovalStatus)
		assert.Equal(t, StatusPendingReview, *patch.ApprovalStatus)
	})

	t.Run("never downgrades a decision", func(t *testing.T) {
		for _, status := range []Status{StatusApproved, StatusRejected} {
			state := NewState("topic", "run-1")
			state.ApprovalStatus = status
			patch, err := set.waitForApproval(context.Background(), state)
			require.NoError(t, err)
			assert.True(t, patch.IsZero())
		}
	})
}

func TestApplyFeedback_SelectsNamedPlatform(t *testing.T) {
	set, _, _ := newTestStageSet()
	state := NewState("topic", "run-1")
	state.ApprovalStatus = StatusRejected
	state.Feedback = "The LinkedIn post needs polish"

	patch, err := set.applyFeedback(context.Background(), state)

	require.NoError(t, err)
	assert.True(t, *patch.RegenerateLinkedIn)
	assert.False(t, *patch.RegenerateInstagram)
	assert.False(t, *patch.RegenerateWordPress)
	assert.Equal(t, StatusRegenerating, *patch.ApprovalStatus)
}

func TestApplyFeedback_MultiplePlatforms(t *testing.T) {
	set, _, _ := newTestStageSet()
	state := NewState("topic", "run-1")
	state.Feedback = "Fix the WORDPRESS intro and the instagram hashtags"

	patch, err := set.applyFeedback(context.Background(), state)

	require.NoError(t, err)
	assert.False(t, *patch.RegenerateLinkedIn)
	assert.True(t, *patch.RegenerateInstagram)
	assert.True(t, *patch.RegenerateWordPress)
}

func TestApplyFeedback_NoPlatformNamedMeansAll(t *testing.T) {
	set, _, _ := newTestStageSet()
	state := NewState("topic", "run-1")
	state.Feedback = "make it better"

	patch, err := set.applyFeedback(context.Background(), state)

	require.NoError(t, err)
	assert.True(t, *patch.RegenerateLinkedIn)
	assert.True(t, *patch.RegenerateInstagram)
	assert.True(t, *patch.RegenerateWordPress)
}

func TestApplyFeedback_NeverTouchesUpstreamFields(t *testing.T) {
	set, _, _ := newTestStageSet()
	state := NewState("topic", "run-1")
	state.Analysis = &Analysis{Audience: "anyone"}
	state.Image = &Image{URL: "https://img.example.com/1.png"}
	state.Feedback = "rework everything"

	patch, err := set.applyFeedback(context.Background(), state)

	require.NoError(t, err)
	assert.Nil(t, patch.Analysis)
	assert.Nil(t, patch.Image)
}

func TestFinalize(t *testing.T) {
	set, _, _ := newTestStageSet()

	state := NewState("topic", "run-1")
	state.ApprovalStatus = StatusApproved
	patch, err := set.finalize(context.Background(), state)
	require.NoError(t, err)
	assert.True(t, *patch.Finalized)

	state.ApprovalStatus = StatusPendingReview
	_, err = set.finalize(context.Background(), state)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "requires approved")
}
