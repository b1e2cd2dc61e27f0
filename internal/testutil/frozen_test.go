package testutil

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestFrozenTime(t *testing.T) {
	at := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	f := NewFrozenTime(at)

	assert.Equal(t, at, f.Now())
	assert.Equal(t, at, f.Now(), "repeated reads must not drift")

	f.Advance(90 * time.Second)
	assert.Equal(t, at.Add(90*time.Second), f.Now())
}
