package registry_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/BrandonDHaskell/Portunus/edge/internal/portunus/registry"
)

func TestRegistry_Lookup(t *testing.T) {
	reg := registry.New(map[string]string{
		"8E8939033D": "User 1",
		"1ab631039e": " User 2 ",
		"":           "ghost",
	})

	label, ok := reg.Lookup("8E8939033D")
	assert.True(t, ok)
	assert.Equal(t, "User 1", label)

	label, ok = reg.Lookup("1AB631039E")
	assert.True(t, ok)
	assert.Equal(t, "User 2", label)

	_, ok = reg.Lookup("DEADBEEF00")
	assert.False(t, ok)

	_, ok = reg.Lookup("")
	assert.False(t, ok)

	assert.Equal(t, 2, reg.Len())
	assert.Equal(t, []string{"1AB631039E", "8E8939033D"}, reg.UIDs())
}
