package eventsrc

import "slices"

// Mergeable is implemented by every concrete properties type. Merge overlays
// the set fields of update onto the receiver and leaves unset fields alone.
type Mergeable[T any] interface {
	Merge(update T) error
}

// Ptr returns a pointer to v.
func Ptr[T any](v T) *T { return &v }

// ClonePtr returns a pointer to a copy of *p, or nil.
func ClonePtr[T any](p *T) *T {
	if p == nil {
		return nil
	}
	v := *p
	return &v
}

// Overlay replaces *dst with a copy of src when src is set.
func Overlay[T any](dst **T, src *T) {
	if src != nil {
		*dst = ClonePtr(src)
	}
}

// OverlaySlice replaces *dst with a copy of src when src is not nil. An empty,
// non-nil src clears the field.
func OverlaySlice[T any](dst *[]T, src []T) {
	if src != nil {
		*dst = slices.Clone(src)
	}
}

// FindChild returns the index of the single child whose id matches.
func FindChild[T any](children []T, idOf func(*T) string, id string) (int, error) {
	found := -1
	for i := range children {
		if idOf(&children[i]) != id {
			continue
		}
		if found >= 0 {
			return -1, NewError(KindChildNotFound, "child id %q is not unique", id)
		}
		found = i
	}
	if found < 0 {
		return -1, NewError(KindChildNotFound, "child %q does not exist", id)
	}
	return found, nil
}

// AddChild appends child unless a child with the same id already exists.
func AddChild[T any](children []T, child T, idOf func(*T) string) ([]T, error) {
	id := idOf(&child)
	for i := range children {
		if idOf(&children[i]) == id {
			return children, NewError(KindDuplicateChildID, "child %q already exists", id)
		}
	}
	return append(children, child), nil
}

// RemoveChildren drops every child whose id matches. Removing nothing is not an error.
func RemoveChildren[T any](children []T, idOf func(*T) string, id string) []T {
	return slices.DeleteFunc(children, func(c T) bool { return idOf(&c) == id })
}
