package client

import (
	"context"
	"testing"

	"pbtcp/server"
)

func benchServer(b *testing.B) *server.Server {
	b.Helper()
	srv, err := server.New(&helloService{}, 0, server.WithHost("127.0.0.1"))
	if err != nil {
		b.Fatal(err)
	}
	if err := srv.Run(); err != nil {
		b.Fatal(err)
	}
	b.Cleanup(func() { srv.Close() })
	return srv
}

// One client, calls in sequence.
func BenchmarkSerialCall(b *testing.B) {
	srv := benchServer(b)
	c, err := New(srv.Endpoint(), nil)
	if err != nil {
		b.Fatal(err)
	}
	defer c.Close()

	ctx := context.Background()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		if _, err := Call[string](ctx, c, "SayHello", "Joe"); err != nil {
			b.Fatal(err)
		}
	}
}

// Parallel callers sharing a pool of 8 clients.
func BenchmarkPooledCall(b *testing.B) {
	srv := benchServer(b)
	pool := NewPool(8, func() (*Client, error) { return New(srv.Endpoint(), nil) })
	defer pool.Close()

	b.ResetTimer()
	b.RunParallel(func(pb *testing.PB) {
		ctx := context.Background()
		for pb.Next() {
			err := pool.Do(ctx, func(c *Client) error {
				_, err := Call[string](ctx, c, "SayHello", "Joe")
				return err
			})
			if err != nil {
				b.Error(err)
				return
			}
		}
	})
}
