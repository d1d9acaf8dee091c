package agent

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/feedforge/feedforge/internal/core"
)

type echoTool struct {
	name   string
	schema Schema
	got    map[string]interface{}
}

func (t *echoTool) Name() string        { return t.name }
func (t *echoTool) Description() string { return "echoes validated input" }
func (t *echoTool) Schema() Schema      { return t.schema }

func (t *echoTool) Execute(_ context.Context, input map[string]interface{}) (interface{}, error) {
	t.got = input
	return input, nil
}

func TestSchemaValidate_CoercesJSONNumbers(t *testing.T) {
	s := Schema{Fields: []Field{{Name: "limit", Type: FieldInteger}}}

	out, err := s.Validate("x", map[string]interface{}{"limit": float64(5)})
	require.NoError(t, err)
	assert.Equal(t, 5, out["limit"])

	_, err = s.Validate("x", map[string]interface{}{"limit": 5.5})
	require.Error(t, err)
	assert.True(t, core.IsCode(err, core.CodeInvalidToolInput))
}

func TestSchemaValidate_RequiredField(t *testing.T) {
	s := Schema{Fields: []Field{{Name: "query", Type: FieldString, Required: true}}}

	_, err := s.Validate("research_topic", map[string]interface{}{})
	require.Error(t, err)
	assert.True(t, core.IsCode(err, core.CodeInvalidToolInput))

	_, err = s.Validate("research_topic", map[string]interface{}{"query": 7})
	require.Error(t, err)
}

func TestSchemaValidate_DropsUnknownKeys(t *testing.T) {
	s := Schema{Fields: []Field{{Name: "query", Type: FieldString, Required: true}}}

	out, err := s.Validate("x", map[string]interface{}{"query": "go", "surprise": true})
	require.NoError(t, err)
	assert.Equal(t, map[string]interface{}{"query": "go"}, out)
}

func TestSchemaJSONSchema(t *testing.T) {
	s := Schema{Fields: []Field{
		{Name: "query", Type: FieldString, Required: true, Description: "what to search"},
		{Name: "limit", Type: FieldInteger},
	}}

	js := s.JSONSchema()
	assert.Equal(t, "object", js["type"])
	assert.Equal(t, []string{"query"}, js["required"])

	props, ok := js["properties"].(map[string]interface{})
	require.True(t, ok)
	assert.Len(t, props, 2)
}

func TestRegistry_DispatchUnknownTool(t *testing.T) {
	r := NewRegistry()
	_, err := r.Dispatch(context.Background(), "nonexistent", nil)
	require.Error(t, err)
	assert.True(t, core.IsCode(err, core.CodeUnknownTool))
}

func TestRegistry_DispatchValidatesBeforeExecute(t *testing.T) {
	tool := &echoTool{name: "echo", schema: Schema{Fields: []Field{
		{Name: "text", Type: FieldString, Required: true},
	}}}
	r := NewRegistry()
	require.NoError(t, r.Register(tool))

	_, err := r.Dispatch(context.Background(), "echo", map[string]interface{}{})
	require.Error(t, err)
	assert.Nil(t, tool.got)

	out, err := r.Dispatch(context.Background(), "echo", map[string]interface{}{"text": "hi", "junk": 1})
	require.NoError(t, err)
	assert.Equal(t, map[string]interface{}{"text": "hi"}, out)
}

func TestRegistry_RejectsDuplicateNames(t *testing.T) {
	r := NewRegistry()
	require.NoError(t, r.Register(&echoTool{name: "echo"}))
	require.Error(t, r.Register(&echoTool{name: "echo"}))
}

func TestRegistry_SpecsPreserveRegistrationOrder(t *testing.T) {
	r := NewRegistry()
	require.NoError(t, r.Register(&echoTool{name: "b"}))
	require.NoError(t, r.Register(&echoTool{name: "a"}))

	specs := r.Specs()
	require.Len(t, specs, 2)
	assert.Equal(t, "b", specs[0].Name)
	assert.Equal(t, "a", specs[1].Name)
}
