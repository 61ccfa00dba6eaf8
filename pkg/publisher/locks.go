package publisher

import "sync"

// machineMutex hands out one mutex per machine so publish, delete and
// prune for a machine never interleave, while machines stay parallel
type machineMutex struct {
	mu sync.Mutex
	m  map[string]*sync.Mutex
}

func (k *machineMutex) lock(machine string) (unlock func()) {
	k.mu.Lock()
	if k.m == nil {
		k.m = make(map[string]*sync.Mutex)
	}
	l, ok := k.m[machine]
	if !ok {
		l = &sync.Mutex{}
		k.m[machine] = l
	}
	k.mu.Unlock()

	l.Lock()
	return l.Unlock
}
