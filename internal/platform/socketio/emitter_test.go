package socketio

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestEmitterOffRemovesOnlyItsHandler(t *testing.T) {
	var e Emitter[int]
	var first, second []int

	subA := e.On("tick", func(v int) { first = append(first, v) })
	e.On("tick", func(v int) { second = append(second, v) })

	assert.Equal(t, 2, e.Emit("tick", 1))
	assert.True(t, e.Off(subA))
	assert.False(t, e.Off(subA), "second Off is a no-op")
	assert.Equal(t, 1, e.Emit("tick", 2))

	assert.Equal(t, []int{1}, first)
	assert.Equal(t, []int{1, 2}, second)
	assert.Equal(t, 1, e.Count("tick"))
}

func TestEmitterUnknownEvent(t *testing.T) {
	var e Emitter[string]
	assert.Zero(t, e.Emit("nothing", "x"))
	assert.False(t, e.Off(nil))
	assert.False(t, e.Off(&Subscription{name: "nothing"}))
}

func TestEmitterRegistrationOrder(t *testing.T) {
	var e Emitter[string]
	var order []string
	e.On("ev", func(string) { order = append(order, "a") })
	e.On("ev", func(string) { order = append(order, "b") })
	e.On("ev", func(string) { order = append(order, "c") })
	e.Emit("ev", "")
	assert.Equal(t, []string{"a", "b", "c"}, order)
}

func TestEmitterOffDistinguishesClosuresOfOneLiteral(t *testing.T) {
	var e Emitter[int]
	got := make([]int, 3)
	subs := make([]*Subscription, 3)
	for i := range subs {
		subs[i] = e.On("tick", func(v int) { got[i] += v })
	}

	assert.True(t, e.Off(subs[1]))
	e.Emit("tick", 5)
	assert.Equal(t, []int{5, 0, 5}, got)
}
