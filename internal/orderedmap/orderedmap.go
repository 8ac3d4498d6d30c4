// Package orderedmap provides a bounded map that keeps its elements in
// recency order.
package orderedmap

import "container/list"

type entry[K comparable, V any] struct {
	key K
	val V
}

// Map is a map datastructure that allows accessing it's element in
// recency order, the most recently set element is the first one.
// When the number of elements exceeds the capacity, the oldest elements are
// evicted.
type Map[K comparable, V any] struct {
	capacity int
	order    *list.List
	m        map[K]*list.Element
	zeroval  V
}

// New returns an empty map that holds at most capacity elements.
// If capacity is <=0 the map is unbounded.
func New[K comparable, V any](capacity int) *Map[K, V] {
	return &Map[K, V]{
		capacity: capacity,
		order:    list.New(),
		m:        map[K]*list.Element{},
	}
}

// Set adds or updates the value for key and moves it to the front.
// Elements that do not fit into the map anymore are removed, their keys are
// returned.
func (m *Map[K, V]) Set(key K, val V) (evicted []K) {
	if elem, exist := m.m[key]; exist {
		elem.Value.(*entry[K, V]).val = val
		m.order.MoveToFront(elem)
		return nil
	}

	m.m[key] = m.order.PushFront(&entry[K, V]{key: key, val: val})

	if m.capacity <= 0 {
		return nil
	}

	for m.order.Len() > m.capacity {
		oldest := m.order.Back()
		e := m.order.Remove(oldest).(*entry[K, V])
		delete(m.m, e.key)
		evicted = append(evicted, e.key)
	}

	return evicted
}

// PushBack adds the element to the end of the map if the key does not exist
// yet. It is used to restore a map from a representation that is already
// ordered most recent first.
// If the map is full the element is not added.
func (m *Map[K, V]) PushBack(key K, val V) (added bool) {
	if _, exist := m.m[key]; exist {
		return false
	}

	if m.capacity > 0 && m.order.Len() >= m.capacity {
		return false
	}

	m.m[key] = m.order.PushBack(&entry[K, V]{key: key, val: val})

	return true
}

// Get returns the value for the given key.
// If the key does not exist, the zero value and false are returned.
// Get does not change the order.
func (m *Map[K, V]) Get(key K) (V, bool) {
	elem, exist := m.m[key]
	if !exist {
		return m.zeroval, false
	}

	return elem.Value.(*entry[K, V]).val, true
}

// Len returns the number of elements in the maps.
func (m *Map[K, V]) Len() int {
	return m.order.Len()
}

// Cap returns the maximum number of elements, 0 means unbounded.
func (m *Map[K, V]) Cap() int {
	return m.capacity
}

// Foreach itereates through the map, starting with the most recent element.
// When fn returns false the iteration is aborted.
func (m *Map[K, V]) Foreach(fn func(K, V) bool) {
	for e := m.order.Front(); e != nil; e = e.Next() {
		ent := e.Value.(*entry[K, V])
		if !fn(ent.key, ent.val) {
			return
		}
	}
}

// Keys returns the keys in order.
func (m *Map[K, V]) Keys() []K {
	result := make([]K, 0, m.order.Len())

	m.Foreach(func(k K, _ V) bool {
		result = append(result, k)
		return true
	})

	return result
}
