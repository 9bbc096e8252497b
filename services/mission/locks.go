// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package mission

import "sync"

// missionLocks serializes read-modify-write cycles per mission.
//
// Entries are reference counted and removed when the last holder
// unlocks, so the map only holds missions with work in flight.
type missionLocks struct {
	mu    sync.Mutex
	locks map[string]*missionLock
}

type missionLock struct {
	mu   sync.Mutex
	refs int
}

func newMissionLocks() *missionLocks {
	return &missionLocks{locks: make(map[string]*missionLock)}
}

// lock blocks until key is held and returns its release function.
func (l *missionLocks) lock(key string) func() {
	l.mu.Lock()
	entry, ok := l.locks[key]
	if !ok {
		entry = &missionLock{}
		l.locks[key] = entry
	}
	entry.refs++
	l.mu.Unlock()

	entry.mu.Lock()
	return func() {
		entry.mu.Unlock()
		l.mu.Lock()
		entry.refs--
		if entry.refs == 0 {
			delete(l.locks, key)
		}
		l.mu.Unlock()
	}
}

// size returns the number of tracked keys.
func (l *missionLocks) size() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.locks)
}
