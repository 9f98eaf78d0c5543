package helper

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestInterface2String(t *testing.T) {
	s, ok := Interface2String("Host.ping")
	assert.True(t, ok)
	assert.Equal(t, "Host.ping", s)

	_, ok = Interface2String(42)
	assert.False(t, ok)

	_, ok = Interface2String(nil)
	assert.False(t, ok)
}

func TestInterface2Vector(t *testing.T) {
	v, ok := Interface2Vector([]interface{}{1, "a", true})
	assert.True(t, ok)
	assert.Len(t, v, 3)

	_, ok = Interface2Vector("not a vector")
	assert.False(t, ok)
}

func TestInterface2JsonBytes(t *testing.T) {
	b, ok := Interface2JsonBytes(map[string]interface{}{"a": 1})
	assert.True(t, ok)
	assert.JSONEq(t, `{"a":1}`, string(b))

	_, ok = Interface2JsonBytes(nil)
	assert.False(t, ok)
}
