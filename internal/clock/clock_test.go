package clock

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestMock_StartsAtFixedInstantWhenZero(t *testing.T) {
	m := NewMock(time.Time{})
	assert.Equal(t, time.Unix(1000000000, 0), m.Now())
}

func TestMock_Advance(t *testing.T) {
	start := time.Unix(42, 0)
	m := NewMock(start)

	m.Advance(150 * time.Millisecond)
	assert.Equal(t, start.Add(150*time.Millisecond), m.Now())
}

func TestMock_AdvanceNegativePanics(t *testing.T) {
	m := NewMock(time.Time{})
	assert.Panics(t, func() { m.Advance(-time.Second) })
}

func TestOrDefault(t *testing.T) {
	assert.IsType(t, Monotonic{}, OrDefault(nil))

	m := NewMock(time.Time{})
	assert.Same(t, m, OrDefault(m))
}
