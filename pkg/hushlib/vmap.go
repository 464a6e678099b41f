package hushlib

import "sync"

// VMap is a thread-safe generic map guarded by a read-write mutex. It backs
// the in-memory keyed state shared between callback goroutines.
type VMap[kT comparable, vT any] struct {
	kv map[kT]vT
	mu sync.RWMutex
}

// NewVMap creates an empty VMap with an initialized internal map.
func NewVMap[kT comparable, vT any]() *VMap[kT, vT] {
	return &VMap[kT, vT]{kv: make(map[kT]vT)}
}

// Set stores a value for the given key.
func (vm *VMap[kT, vT]) Set(key kT, val vT) {
	vm.mu.Lock()
	defer vm.mu.Unlock()
	vm.kv[key] = val
}

// Get retrieves the value for the given key, reporting whether it exists.
func (vm *VMap[kT, vT]) Get(key kT) (vT, bool) {
	vm.mu.RLock()
	defer vm.mu.RUnlock()
	val, ok := vm.kv[key]
	return val, ok
}

// Delete removes a key. Returns the removed value and whether it existed.
func (vm *VMap[kT, vT]) Delete(key kT) (vT, bool) {
	vm.mu.Lock()
	defer vm.mu.Unlock()
	val, ok := vm.kv[key]
	if ok {
		delete(vm.kv, key)
	}
	return val, ok
}

// Len returns the number of entries.
func (vm *VMap[kT, vT]) Len() int {
	vm.mu.RLock()
	defer vm.mu.RUnlock()
	return len(vm.kv)
}

// Range iterates over all key-value pairs under a read lock. If f returns
// false, iteration stops early. f must not modify the map.
func (vm *VMap[kT, vT]) Range(f func(key kT, val vT) bool) {
	vm.mu.RLock()
	defer vm.mu.RUnlock()
	for k, v := range vm.kv {
		if !f(k, v) {
			return
		}
	}
}

// Keys returns a copy of all keys.
func (vm *VMap[kT, vT]) Keys() []kT {
	vm.mu.RLock()
	defer vm.mu.RUnlock()
	keys := make([]kT, 0, len(vm.kv))
	for k := range vm.kv {
		keys = append(keys, k)
	}
	return keys
}
