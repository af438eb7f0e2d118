package shapeinfer

import (
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestError(t *testing.T) {
	err := Conflictf(21, 20, "axis %d mismatch", 1)
	assert.Equal(t, "shape conflict: axis 1 mismatch", err.Error())
	assert.ErrorIs(t, err, ErrShapeConflict)
	assert.NotErrorIs(t, err, ErrCycleDetected)

	node := &Node{ID: 3, Name: "fc", Attrs: Dense(10)}
	attributed := asError(err, node)
	assert.Equal(t, `shape conflict in node #3 "fc" (Dense): axis 1 mismatch`, attributed.Error())

	// Already attributed errors keep their node.
	other := &Node{ID: 4, Name: "other", Attrs: Flatten()}
	assert.Contains(t, asError(attributed, other).Error(), `"fc"`)

	// Errors of other types are wrapped with the node context.
	wrapped := asError(errors.New("boom"), node)
	assert.Equal(t, `in node #3 "fc" (Dense): boom`, wrapped.Error())

	// Wrapping preserves the kind.
	var e *Error
	require.True(t, errors.As(errors.WithMessage(attributed, "context"), &e))
	assert.Equal(t, ShapeConflict, e.Kind)
	assert.Equal(t, 21, e.Got)
	assert.Equal(t, 20, e.Want)

	assert.Equal(t, "ErrorKind(99)", ErrorKind(99).String())
	assert.Equal(t, "OpKind(999)", OpKind(999).String())
	assert.Equal(t, "Reshape", OpReshape.String())
}
