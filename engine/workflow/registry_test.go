package workflow

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/codemode/codemode/engine/core"
)

func TestRegistry(t *testing.T) {
	t.Run("Should add, get and remove workflows", func(t *testing.T) {
		r := NewRegistry()
		wf := &Workflow{ID: core.MustNewID(), Name: "one"}
		r.Add(wf)

		got, err := r.Get(wf.ID)
		require.NoError(t, err)
		assert.Equal(t, "one", got.Name)

		require.NoError(t, r.Remove(wf.ID))
		_, err = r.Get(wf.ID)
		assert.ErrorIs(t, err, ErrWorkflowNotFound)
	})
	t.Run("Should fail removing an unknown id", func(t *testing.T) {
		assert.ErrorIs(t, NewRegistry().Remove(core.MustNewID()), ErrWorkflowNotFound)
	})
	t.Run("Should list all registered workflows", func(t *testing.T) {
		r := NewRegistry()
		r.Add(&Workflow{ID: core.MustNewID()})
		r.Add(&Workflow{ID: core.MustNewID()})
		assert.Len(t, r.List(), 2)
	})
	t.Run("Should stamp last execution", func(t *testing.T) {
		r := NewRegistry()
		wf := &Workflow{ID: core.MustNewID()}
		r.Add(wf)
		at := time.Now()
		r.MarkExecuted(wf.ID, at)
		require.NotNil(t, wf.LastExecutionAt)
		assert.Equal(t, at, *wf.LastExecutionAt)
	})
}
