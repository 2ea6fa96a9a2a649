package pipeline

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewState_Defaults(t *testing.T) {
	state := NewState("AI in healthcare", "run-1")

	assert.Equal(t, "AI in healthcare", state.Topic)
	assert.Equal(t, "run-1", state.RunID)
	assert.Equal(t, StatusPendingGeneration, state.ApprovalStatus)
	assert.True(t, state.RegenerateLinkedIn)
	assert.True(t, state.RegenerateInstagram)
	assert.True(t, state.RegenerateWordPress)
	assert.False(t, state.Finalized)
	assert.Zero(t, state.Pass)
}

func TestMerge_NilFieldsUntouched(t *testing.T) {
	state := NewState("topic", "run-1")
	state.Analysis = &Analysis{Audience: "engineers"}
	state.Feedback = "needs work"

	merged := Merge(state, Patch{})

	assert.Equal(t, state, merged)
}

func TestMerge_OverwritesSetFields(t *testing.T) {
	state := NewState("topic", "run-1")
	state.LinkedIn = &LinkedInPost{Text: "old"}

	merged := Merge(state, Patch{
		LinkedIn:       &LinkedInPost{Text: "new"},
		ApprovalStatus: ptr(StatusPendingReview),
		Feedback:       ptr(""),
		Pass:           ptr(2),
	})

	assert.Equal(t, "new", merged.LinkedIn.Text)
	assert.Equal(t, StatusPendingReview, merged.ApprovalStatus)
	assert.Empty(t, merged.Feedback)
	assert.Equal(t, 2, merged.Pass)

	// Untouched fields survive.
	assert.Equal(t, "topic", merged.Topic)
	assert.True(t, merged.RegenerateLinkedIn)
}

func TestMerge_DisjointPatchesCommute(t *testing.T) {
	state := NewState("topic", "run-1")
	p1 := Patch{LinkedIn: &LinkedInPost{Text: "li"}}
	p2 := Patch{Instagram: &InstagramPost{Caption: "ig"}}

	a := Merge(Merge(state, p1), p2)
	b := Merge(Merge(state, p2), p1)

	assert.Equal(t, a, b)
}

func TestPatch_IsZero(t *testing.T) {
	assert.True(t, Patch{}.IsZero())
	assert.False(t, Patch{Finalized: ptr(true)}.IsZero())
}

func TestWorkflowState_JSONRoundTrip(t *testing.T) {
	state := NewState("topic", "run-1")
	state.Analysis = &Analysis{
		Themes:         []string{"a", "b", "c"},
		Audience:       "everyone",
		VisualConcepts: []string{"x", "y", "z"},
		Tone:           "casual",
		Takeaways:      []string{"one", "two"},
	}
	state.WordPress = &WordPressPost{
		Title:    "Title",
		Sections: []Section{{Type: "heading", Content: "Intro", Level: 2}},
	}

	data, err := json.Marshal(state)
	require.NoError(t, err)

	var decoded WorkflowState
	require.NoError(t, json.Unmarshal(data, &decoded))
	assert.Equal(t, state, decoded)
}
