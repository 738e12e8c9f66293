package logfields

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestAttrKeys(t *testing.T) {
	assert.Equal(t, KeyRunID, RunID("r-1").Key)
	assert.Equal(t, KeyStage, Stage("artifact-verification").Key)
	assert.Equal(t, KeyStep, Step("install-wheel").Key)
	assert.Equal(t, KeyToken, Token("release").Key)
}

func TestErrorAttr(t *testing.T) {
	a := Error(errors.New("boom"))
	assert.Equal(t, KeyError, a.Key)
	assert.Equal(t, "boom", a.Value.String())

	assert.Equal(t, "", Error(nil).Value.String())
}
