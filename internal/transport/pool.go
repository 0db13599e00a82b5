// Copyright 2026 CoreOS, Inc.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package transport

import (
	"sync"
	"time"

	"golang.org/x/crypto/ssh"
)

// poolKey identifies a distinct (host,port,user) endpoint. Two servers
// that share an endpoint share a pool slot.
type poolKey struct {
	host string
	port int
	user string
}

type pooledConn struct {
	client   *ssh.Client
	lastUsed time.Time
	refs     int
}

// pool bounds concurrent SSH connections per endpoint and reaps ones
// that have sat idle. A mutex guards a map of live connections keyed by
// endpoint, and a background goroutine closes idle entries, selecting
// on a done channel to tear itself down on Close.
type pool struct {
	mu       sync.Mutex
	conns    map[poolKey][]*pooledConn
	capacity int
	idleTTL  time.Duration

	stopOnce sync.Once
	stop     chan struct{}
}

func newPool(capacity int, idleTTL time.Duration) *pool {
	p := &pool{
		conns:    make(map[poolKey][]*pooledConn),
		capacity: capacity,
		idleTTL:  idleTTL,
		stop:     make(chan struct{}),
	}
	go p.reapLoop()
	return p
}

func (p *pool) reapLoop() {
	ticker := time.NewTicker(p.idleTTL)
	defer ticker.Stop()
	for {
		select {
		case <-p.stop:
			return
		case <-ticker.C:
			p.reapIdle()
		}
	}
}

func (p *pool) reapIdle() {
	p.mu.Lock()
	defer p.mu.Unlock()
	now := time.Now()
	for key, conns := range p.conns {
		kept := conns[:0]
		for _, c := range conns {
			if c.refs == 0 && now.Sub(c.lastUsed) > p.idleTTL {
				c.client.Close()
				continue
			}
			kept = append(kept, c)
		}
		if len(kept) == 0 {
			delete(p.conns, key)
		} else {
			p.conns[key] = kept
		}
	}
}

// acquire returns an idle connection for key if one exists, else nil.
func (p *pool) acquire(key poolKey) *ssh.Client {
	p.mu.Lock()
	defer p.mu.Unlock()
	for _, c := range p.conns[key] {
		if c.refs == 0 {
			c.refs++
			c.lastUsed = time.Now()
			return c.client
		}
	}
	return nil
}

// admit reports whether the pool has room for a new connection to key,
// and reserves the slot if so.
func (p *pool) admit(key poolKey, client *ssh.Client) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	if len(p.conns[key]) >= p.capacity {
		return false
	}
	p.conns[key] = append(p.conns[key], &pooledConn{
		client:   client,
		lastUsed: time.Now(),
		refs:     1,
	})
	return true
}

func (p *pool) release(key poolKey, client *ssh.Client) {
	p.mu.Lock()
	defer p.mu.Unlock()
	for _, c := range p.conns[key] {
		if c.client == client {
			c.refs--
			c.lastUsed = time.Now()
			return
		}
	}
}

func (p *pool) close() {
	p.stopOnce.Do(func() {
		close(p.stop)
		p.mu.Lock()
		defer p.mu.Unlock()
		for key, conns := range p.conns {
			for _, c := range conns {
				c.client.Close()
			}
			delete(p.conns, key)
		}
	})
}
