// ©Hayabusa Cloud Co., Ltd. 2026. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package ucp

// handleTable maps cookies to live core objects.
// Closures handed to the engine capture a cookie, never the object, and
// resolve it here on every invocation. Removing the cookie is the
// synchronous invalidation point: later invocations find nothing.
type handleTable struct {
	next  uint64
	slots map[uint64]any
}

func (t *handleTable) insert(v any) uint64 {
	if t.slots == nil {
		t.slots = make(map[uint64]any)
	}
	t.next++
	t.slots[t.next] = v
	return t.next
}

func (t *handleTable) remove(cookie uint64) {
	delete(t.slots, cookie)
}

func (t *handleTable) len() int { return len(t.slots) }

func lookup[T any](t *handleTable, cookie uint64) (T, bool) {
	v, ok := t.slots[cookie].(T)
	return v, ok
}
