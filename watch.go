package goCounter

// Watch returns a channel that receives a snapshot after every state change,
// starting with the current state. A full channel loses its oldest snapshot
// rather than blocking the client, so the newest state is always delivered.
// The returned function unregisters the channel and closes it; Close does
// the same for every watcher.
func (c *Client) Watch(buffer int) (<-chan State, func()) {
	if buffer < 1 {
		buffer = 1
	}
	ch := make(chan State, buffer)

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		close(ch)
		return ch, func() {}
	}
	c.nextWatch++
	id := c.nextWatch
	c.watchers[id] = ch
	ch <- c.stateLocked()
	c.mu.Unlock()

	return ch, func() {
		c.mu.Lock()
		defer c.mu.Unlock()
		if w, ok := c.watchers[id]; ok {
			delete(c.watchers, id)
			close(w)
		}
	}
}

// commit publishes the current state to watchers and releases c.mu.
func (c *Client) commit() {
	if len(c.watchers) > 0 {
		st := c.stateLocked()
		for _, ch := range c.watchers {
			publish(ch, st)
		}
	}
	c.unlock()
}

func publish(ch chan State, st State) {
	for {
		select {
		case ch <- st:
			return
		default:
		}
		select {
		case <-ch:
		default:
		}
	}
}
