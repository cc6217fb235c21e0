package eventsrc_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/0m3kk/lunafold/eventsrc"
)

func TestOverlay(t *testing.T) {
	cur := eventsrc.Ptr("old")

	eventsrc.Overlay(&cur, nil)
	assert.Equal(t, "old", *cur)

	src := eventsrc.Ptr("new")
	eventsrc.Overlay(&cur, src)
	assert.Equal(t, "new", *cur)
	assert.NotSame(t, src, cur)
}

func TestOverlaySlice(t *testing.T) {
	cur := []string{"a", "b"}

	eventsrc.OverlaySlice(&cur, nil)
	assert.Equal(t, []string{"a", "b"}, cur)

	eventsrc.OverlaySlice(&cur, []string{})
	assert.Empty(t, cur)
	assert.NotNil(t, cur)

	src := []string{"c"}
	eventsrc.OverlaySlice(&cur, src)
	src[0] = "mutated"
	assert.Equal(t, []string{"c"}, cur)
}

func TestChildHelpers(t *testing.T) {
	items := []item{{Name: "a"}, {Name: "b"}}

	i, err := eventsrc.FindChild(items, itemName, "b")
	require.NoError(t, err)
	assert.Equal(t, 1, i)

	_, err = eventsrc.FindChild(items, itemName, "z")
	assert.ErrorIs(t, err, eventsrc.ErrChildNotFound)

	_, err = eventsrc.FindChild(append(items, item{Name: "a"}), itemName, "a")
	assert.ErrorIs(t, err, eventsrc.ErrChildNotFound, "ambiguous id")

	items, err = eventsrc.AddChild(items, item{Name: "c"}, itemName)
	require.NoError(t, err)
	assert.Len(t, items, 3)

	_, err = eventsrc.AddChild(items, item{Name: "a"}, itemName)
	assert.ErrorIs(t, err, eventsrc.ErrDuplicateChildID)

	items = eventsrc.RemoveChildren(items, itemName, "a")
	assert.Equal(t, []item{{Name: "b"}, {Name: "c"}}, items)
	items = eventsrc.RemoveChildren(items, itemName, "a")
	assert.Len(t, items, 2)
}
