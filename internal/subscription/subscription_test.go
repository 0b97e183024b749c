package subscription

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSubscribeUnsubscribe(t *testing.T) {
	m := New()
	assert.True(t, m.Subscribe("window://a"))
	assert.False(t, m.Subscribe("window://a"))
	assert.True(t, m.Contains("window://a"))

	assert.True(t, m.Unsubscribe("window://a"))
	assert.False(t, m.Unsubscribe("window://a"))
	assert.False(t, m.Contains("window://a"))
}

func TestListPreservesOrder(t *testing.T) {
	m := New()
	m.Subscribe("c")
	m.Subscribe("a")
	m.Subscribe("b")
	assert.Equal(t, []string{"c", "a", "b"}, m.List())
	assert.Equal(t, 3, m.Len())

	m.Unsubscribe("a")
	assert.Equal(t, []string{"c", "b"}, m.List())
}
