package builder

import (
	"testing"

	"github.com/juju/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warriorguo/dagflow/predicate"
	"github.com/warriorguo/dagflow/types"
)

func TestBuild(t *testing.T) {
	def, err := New("order", "Order fulfilment", "charge then ship").
		AddTask("charge", "Charge card", "payments", types.Data{"currency": "EUR"}).
		AddDecision("in-stock", "In stock?", predicate.ContextKey("in_stock")).
		AddTask("ship", "Ship", "logistics", nil).
		AddTask("backorder", "Backorder", "logistics", nil).
		AddControlFlow("done", "Done", types.Merge).
		Connect("charge", "in-stock").
		ConnectIf("in-stock", "ship", predicate.Truthy(), "yes").
		ConnectIf("in-stock", "backorder", predicate.Not(predicate.Truthy()), "no").
		Connect("ship", "done").
		Connect("backorder", "done").
		SetEndNodes("done").
		Build()
	require.NoError(t, err)

	assert.Equal(t, "order", def.ID)
	assert.Equal(t, "charge then ship", def.Description)
	assert.Equal(t, "charge", def.StartNode())
	assert.Equal(t, []string{"done"}, def.EndNodes())
	assert.Len(t, def.Edges(), 5)
	assert.False(t, def.Published())
	assert.Nil(t, def.Validate())

	decision, exists := def.Node("in-stock")
	require.True(t, exists)
	assert.Equal(t, types.Decision, decision.Kind)
	assert.Equal(t, []string{"ship", "backorder"}, decision.Children())

	done, _ := def.Node("done")
	assert.Equal(t, []string{"ship", "backorder"}, done.Parents())

	charge, _ := def.Node("charge")
	assert.Equal(t, "payments", charge.Domain)
	assert.Equal(t, "EUR", charge.Input["currency"])

	assert.Equal(t, "yes", def.OutEdges("in-stock")[0].Label)
}

func TestBuildKeepsFirstError(t *testing.T) {
	_, err := New("d", "d", "").
		AddTask("A", "A", "x", nil).
		AddTask("A", "A again", "x", nil).
		AddControlFlow("B", "B", types.Task).
		Build()
	assert.True(t, errors.Is(err, types.ErrDuplicateNodeID))
	assert.Equal(t, "node A already exists", err.Error())

	_, err = New("d", "d", "").
		AddControlFlow("B", "B", types.Task).
		Build()
	assert.True(t, errors.Is(err, types.ErrValidation))
}

func TestStartNodeOverride(t *testing.T) {
	def, err := New("d", "d", "").
		AddTask("A", "A", "x", nil).
		AddTask("B", "B", "x", nil).
		SetStartNode("B").
		Build()
	require.NoError(t, err)
	assert.Equal(t, "B", def.StartNode())
}

func TestLenientEdges(t *testing.T) {
	// an edge may be declared before its endpoints exist
	def, err := New("d", "d", "").
		Connect("A", "B").
		AddTask("A", "A", "x", nil).
		AddTask("B", "B", "x", nil).
		Connect("B", "ghost").
		Build()
	require.NoError(t, err)

	a, _ := def.Node("A")
	assert.Equal(t, []string{"B"}, a.Children())
	b, _ := def.Node("B")
	assert.Equal(t, []string{"A"}, b.Parents())
	assert.Empty(t, b.Children())
	assert.True(t, errors.Is(def.Validate(), types.ErrValidation))
}
