package client

import (
	"context"
	"sync"
)

// Pool shares a bounded set of clients of one service between goroutines.
// A client is used by one goroutine at a time: Get hands it out and Put
// returns it.
//
// The pool is a buffered channel of idle clients. Clients are created on
// demand up to maxClients; Get blocks when all of them are in use.
type Pool struct {
	mu      sync.Mutex
	clients chan *Client
	max     int
	size    int // clients created and not discarded
	closed  bool
	factory func() (*Client, error)
}

// NewPool returns an empty pool that creates clients with factory.
func NewPool(maxClients int, factory func() (*Client, error)) *Pool {
	if maxClients < 1 {
		maxClients = 1
	}
	return &Pool{
		clients: make(chan *Client, maxClients),
		max:     maxClients,
		factory: factory,
	}
}

// Get returns an idle client, creates one while under the limit, or waits
// until a client is returned or ctx is done.
func (p *Pool) Get(ctx context.Context) (*Client, error) {
	select {
	case c, ok := <-p.clients:
		if !ok {
			return nil, ErrPoolClosed
		}
		return c, nil
	default:
	}

	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil, ErrPoolClosed
	}
	if p.size < p.max {
		p.size++
		p.mu.Unlock()
		c, err := p.factory()
		if err != nil {
			p.mu.Lock()
			p.size--
			p.mu.Unlock()
			return nil, err
		}
		return c, nil
	}
	p.mu.Unlock()

	select {
	case c, ok := <-p.clients:
		if !ok {
			return nil, ErrPoolClosed
		}
		return c, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Put returns c to the pool. After Close the client is closed instead.
func (p *Pool) Put(c *Client) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		c.reset()
		return
	}
	p.clients <- c
}

// Do runs fn with a pooled client.
func (p *Pool) Do(ctx context.Context, fn func(c *Client) error) error {
	c, err := p.Get(ctx)
	if err != nil {
		return err
	}
	defer p.Put(c)
	return fn(c)
}

// Close releases the connections of all idle clients. Clients still in use
// are released when they are put back.
func (p *Pool) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return nil
	}
	p.closed = true
	close(p.clients)
	for c := range p.clients {
		c.reset()
	}
	return nil
}
