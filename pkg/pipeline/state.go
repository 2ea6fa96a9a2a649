package pipeline

// Status is the approval lifecycle of a run. Exactly one status holds at
// a time; Finalized=true implies StatusApproved.
type Status string

// Approval statuses.
const (
	StatusPendingGeneration Status = "pending_generation"
	StatusPendingReview     Status = "pending_review"
	StatusApproved          Status = "approved"
	StatusRejected          Status = "rejected"
	StatusRegenerating      Status = "regenerating"
	StatusError             Status = "error"
)

// Analysis is the structured result of the analyze stage.
type Analysis struct {
	Themes         []string `json:"themes"`
	Audience       string   `json:"audience"`
	VisualConcepts []string `json:"visual_concepts"`
	Tone           string   `json:"tone"`
	Takeaways      []string `json:"takeaways"`
}

// Image describes the generated visual shared by all platform posts.
type Image struct {
	URL     string `json:"url"`
	Prompt  string `json:"prompt"`
	AltText string `json:"alt_text"`
}

// LinkedInPost is professional short-form content, max 3000 characters.
type LinkedInPost struct {
	Text     string   `json:"text"`
	Hashtags []string `json:"hashtags"`
}

// InstagramPost is caption-plus-hashtags content, max 2200 characters.
type InstagramPost struct {
	Caption  string   `json:"caption"`
	Hashtags []string `json:"hashtags"`
}

// Section is one structural element of a WordPress article.
type Section struct {
	Type    string `json:"type"` // heading, paragraph, or image
	Content string `json:"content"`
	Level   int    `json:"level,omitempty"` // heading level, 2-4
}

// WordPressPost is a long-form SEO-structured article.
type WordPressPost struct {
	Title          string    `json:"title"`
	Excerpt        string    `json:"excerpt"`
	SEODescription string    `json:"seo_description"`
	Sections       []Section `json:"sections"`
}

// WorkflowState is the single record threaded through every stage.
// Topic and RunID are immutable after creation; everything else mutates
// only through Patch merges returned by stage functions.
type WorkflowState struct {
	Topic string `json:"topic"`
	RunID string `json:"run_id"`

	Analysis  *Analysis      `json:"analysis,omitempty"`
	Image     *Image         `json:"image,omitempty"`
	LinkedIn  *LinkedInPost  `json:"linkedin_post,omitempty"`
	Instagram *InstagramPost `json:"instagram_post,omitempty"`
	WordPress *WordPressPost `json:"wordpress_post,omitempty"`

	ApprovalStatus Status `json:"approval_status"`
	Feedback       string `json:"feedback,omitempty"`

	RegenerateLinkedIn  bool `json:"regenerate_linkedin"`
	RegenerateInstagram bool `json:"regenerate_instagram"`
	RegenerateWordPress bool `json:"regenerate_wordpress"`

	Finalized  bool   `json:"finalized"`
	Error      string `json:"error,omitempty"`
	RetryCount int    `json:"retry_count"`

	// Pass counts generation passes; zero for the initial pass, incremented
	// once per regeneration loop.
	Pass int `json:"pass"`
}

// NewState creates the state for a fresh run. All regenerate flags start
// true: on the first pass there is nothing to preserve.
func NewState(topic, runID string) WorkflowState {
	return WorkflowState{
		Topic:               topic,
		RunID:               runID,
		ApprovalStatus:      StatusPendingGeneration,
		RegenerateLinkedIn:  true,
		RegenerateInstagram: true,
		RegenerateWordPress: true,
	}
}

// Patch is a partial state update. Nil fields mean "no change"; a stage
// function must never set a field it intends to leave alone. Topic and
// RunID are immutable and have no patch representation.
type Patch struct {
	Analysis  *Analysis
	Image     *Image
	LinkedIn  *LinkedInPost
	Instagram *InstagramPost
	WordPress *WordPressPost

	ApprovalStatus *Status
	Feedback       *string

	RegenerateLinkedIn  *bool
	RegenerateInstagram *bool
	RegenerateWordPress *bool

	Finalized  *bool
	Error      *string
	RetryCount *int
	Pass       *int
}

// IsZero reports whether the patch changes nothing.
func (p Patch) IsZero() bool {
	return p == Patch{}
}

// Merge applies a patch to a state, field-wise. Fields absent from the
// patch are untouched, never reset.
func Merge(state WorkflowState, patch Patch) WorkflowState {
	if patch.Analysis != nil {
		state.Analysis = patch.Analysis
	}
	if patch.Image != nil {
		state.Image = patch.Image
	}
	if patch.LinkedIn != nil {
		state.LinkedIn = patch.LinkedIn
	}
	if patch.Instagram != nil {
		state.Instagram = patch.Instagram
	}
	if patch.WordPress != nil {
		state.WordPress = patch.WordPress
	}
	if patch.ApprovalStatus != nil {
		state.ApprovalStatus = *patch.ApprovalStatus
	}
	if patch.Feedback != nil {
		state.Feedback = *patch.Feedback
	}
	if patch.RegenerateLinkedIn != nil {
		state.RegenerateLinkedIn = *patch.RegenerateLinkedIn
	}
	if patch.RegenerateInstagram != nil {
		state.RegenerateInstagram = *patch.RegenerateInstagram
	}
	if patch.RegenerateWordPress != nil {
		state.RegenerateWordPress = *patch.RegenerateWordPress
	}
	if patch.Finalized != nil {
		state.Finalized = *patch.Finalized
	}
	if patch.Error != nil {
		state.Error = *patch.Error
	}
	if patch.RetryCount != nil {
		state.RetryCount = *patch.RetryCount
	}
	if patch.Pass != nil {
		state.Pass = *patch.Pass
	}
	return state
}

// ReviewPatch carries the only fields an external reviewer may inject
// when resuming a suspended run.
type ReviewPatch struct {
	// Decision must be StatusApproved or StatusRejected.
	Decision Status
	// Feedback accompanies a rejection; ignored otherwise by routing
	// but still merged into state.
	Feedback string
}

func ptr[T any](v T) *T {
	return &v
}
