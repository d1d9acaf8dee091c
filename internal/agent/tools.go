package agent

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/feedforge/feedforge/internal/core"
)

// Toolset holds the run-scoped dependencies the tools close over.
type Toolset struct {
	Persona *core.Persona
	Search  core.SearchClient
	Social  core.SocialClient
	Drafts  core.DraftStore
}

// BuildRegistry wires the six pipeline tools for one run.
func (ts Toolset) BuildRegistry() (*Registry, error) {
	r := NewRegistry()
	tools := []Tool{
		&researchTopicTool{search: ts.Search},
		&draftPostTool{persona: ts.Persona},
		&saveDraftTool{drafts: ts.Drafts, persona: ts.Persona},
		&getDraftsTool{drafts: ts.Drafts, persona: ts.Persona},
		&postNowTool{social: ts.Social, drafts: ts.Drafts},
		&getSettingsTool{persona: ts.Persona},
	}
	for _, t := range tools {
		if err := r.Register(t); err != nil {
			return nil, err
		}
	}
	return r, nil
}

// researchTopicTool surfaces ranked sources for a topic query.
type researchTopicTool struct {
	search core.SearchClient
}

func (t *researchTopicTool) Name() string { return "research_topic" }

func (t *researchTopicTool) Description() string {
	return "Research a topic and return ranked sources with summaries."
}

func (t *researchTopicTool) Schema() Schema {
	return Schema{Fields: []Field{
		{Name: "query", Type: FieldString, Required: true, Description: "Search query for the topic"},
		{Name: "limit", Type: FieldInteger, Description: "Maximum number of sources, default 5"},
	}}
}

func (t *researchTopicTool) Execute(ctx context.Context, input map[string]interface{}) (interface{}, error) {
	query := input["query"].(string)
	limit := 5
	if v, ok := input["limit"].(int); ok {
		limit = v
	}
	results, err := t.search.Search(ctx, query, limit)
	if err != nil {
		return nil, err
	}
	return map[string]interface{}{"query": query, "results": results}, nil
}

// draftPostTool composes a draft skeleton. Purely computational: the
// model refines the text before saving.
type draftPostTool struct {
	persona *core.Persona
}

func (t *draftPostTool) Name() string { return "draft_post" }

func (t *draftPostTool) Description() string {
	return "Compose a post draft for a topic honoring the persona's tone and constraints."
}

func (t *draftPostTool) Schema() Schema {
	return Schema{Fields: []Field{
		{Name: "topic", Type: FieldString, Required: true, Description: "Topic to write about"},
		{Name: "constraints", Type: FieldString, Description: "Additional constraints, e.g. length or hashtags"},
	}}
}

func (t *draftPostTool) Execute(_ context.Context, input map[string]interface{}) (interface{}, error) {
	topic := input["topic"].(string)
	constraints, _ := input["constraints"].(string)

	var b strings.Builder
	fmt.Fprintf(&b, "[%s voice", t.persona.Name)
	if t.persona.Tone != "" {
		fmt.Fprintf(&b, ", %s tone", t.persona.Tone)
	}
	b.WriteString("] ")
	b.WriteString(topic)
	if constraints != "" {
		fmt.Fprintf(&b, " (%s)", constraints)
	}
	return map[string]interface{}{"draft": b.String()}, nil
}

// saveDraftTool persists a draft for later review and posting.
type saveDraftTool struct {
	drafts  core.DraftStore
	persona *core.Persona
}

func (t *saveDraftTool) Name() string { return "save_draft" }

func (t *saveDraftTool) Description() string {
	return "Persist a finished draft so it can be reviewed and posted."
}

func (t *saveDraftTool) Schema() Schema {
	return Schema{Fields: []Field{
		{Name: "content", Type: FieldString, Required: true, Description: "Final draft text"},
	}}
}

func (t *saveDraftTool) Execute(ctx context.Context, input map[string]interface{}) (interface{}, error) {
	d := &core.Draft{
		ID:        uuid.NewString(),
		PersonaID: t.persona.ID,
		Content:   input["content"].(string),
		Status:    core.DraftStatusDraft,
		CreatedAt: time.Now().UTC(),
	}
	if err := t.drafts.SaveDraft(ctx, d); err != nil {
		return nil, err
	}
	return map[string]interface{}{"draft_id": d.ID}, nil
}

// getDraftsTool lists the persona's drafts for the review step.
type getDraftsTool struct {
	drafts  core.DraftStore
	persona *core.Persona
}

func (t *getDraftsTool) Name() string { return "get_drafts" }

func (t *getDraftsTool) Description() string {
	return "List existing drafts for review, newest first."
}

func (t *getDraftsTool) Schema() Schema { return Schema{} }

func (t *getDraftsTool) Execute(ctx context.Context, _ map[string]interface{}) (interface{}, error) {
	drafts, err := t.drafts.ListDrafts(ctx, t.persona.ID)
	if err != nil {
		return nil, err
	}
	out := make([]map[string]interface{}, 0, len(drafts))
	for _, d := range drafts {
		out = append(out, map[string]interface{}{
			"draft_id": d.ID,
			"content":  d.Content,
			"status":   string(d.Status),
		})
	}
	return map[string]interface{}{"drafts": out}, nil
}

// postNowTool publishes content to the downstream network. The only
// tool with an irreversible external effect.
type postNowTool struct {
	social core.SocialClient
	drafts core.DraftStore
}

func (t *postNowTool) Name() string { return "post_now" }

func (t *postNowTool) Description() string {
	return "Publish content to the connected network immediately."
}

func (t *postNowTool) Schema() Schema {
	return Schema{Fields: []Field{
		{Name: "content", Type: FieldString, Required: true, Description: "Text to publish"},
		{Name: "draft_id", Type: FieldString, Description: "Draft to mark as posted"},
	}}
}

func (t *postNowTool) Execute(ctx context.Context, input map[string]interface{}) (interface{}, error) {
	content := input["content"].(string)
	receipt, err := t.social.Publish(ctx, content)
	if err != nil {
		return nil, err
	}
	if draftID, ok := input["draft_id"].(string); ok && draftID != "" {
		if err := t.drafts.MarkPosted(ctx, draftID, receipt.PublishedAt); err != nil {
			// The post is live; a bookkeeping failure must not fail the call.
			return map[string]interface{}{
				"post_id": receipt.PostID,
				"warning": "draft could not be marked as posted",
			}, nil
		}
	}
	return map[string]interface{}{"post_id": receipt.PostID}, nil
}

// getSettingsTool exposes persona configuration to the model context.
type getSettingsTool struct {
	persona *core.Persona
}

func (t *getSettingsTool) Name() string { return "get_settings" }

func (t *getSettingsTool) Description() string {
	return "Read the persona's name, topics, tone and style."
}

func (t *getSettingsTool) Schema() Schema { return Schema{} }

func (t *getSettingsTool) Execute(context.Context, map[string]interface{}) (interface{}, error) {
	return map[string]interface{}{
		"persona": t.persona.Name,
		"topics":  t.persona.Topics,
		"tone":    t.persona.Tone,
		"style":   t.persona.Style,
	}, nil
}
