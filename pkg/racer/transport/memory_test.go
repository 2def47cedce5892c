package transport

import (
	"context"
	"testing"
	"time"
)

func TestMemoryTransportUnicast(t *testing.T) {
	bus := NewMemoryBus()
	a := bus.NewTransport("a")
	b := bus.NewTransport("b")
	ctx := context.Background()
	if err := a.Bind(ctx); err != nil {
		t.Fatal(err)
	}
	if err := b.Bind(ctx); err != nil {
		t.Fatal(err)
	}

	if err := a.SendToPeer("b", []byte("hello")); err != nil {
		t.Fatalf("send to peer: %v", err)
	}
	select {
	case frame := <-b.RecvRouter():
		if frame.PeerIdentity != "a" || string(frame.Data) != "hello" {
			t.Fatalf("unexpected frame: %+v", frame)
		}
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for router frame")
	}
}

func TestMemoryTransportPublishOnlyReachesSubscribers(t *testing.T) {
	bus := NewMemoryBus()
	a := bus.NewTransport("a")
	b := bus.NewTransport("b")
	c := bus.NewTransport("c")
	ctx := context.Background()
	a.Bind(ctx)
	b.Bind(ctx)
	c.Bind(ctx)

	if err := b.SubscribeTopic("echo/round-1"); err != nil {
		t.Fatal(err)
	}

	if err := a.Publish("echo/round-1", []byte("payload")); err != nil {
		t.Fatalf("publish: %v", err)
	}

	select {
	case frame := <-b.RecvSubscriber():
		if frame.Topic != "echo/round-1" || string(frame.Data) != "payload" {
			t.Fatalf("unexpected frame: %+v", frame)
		}
	case <-time.After(time.Second):
		t.Fatal("subscribed peer never received publish")
	}

	select {
	case frame := <-c.RecvSubscriber():
		t.Fatalf("unsubscribed peer received frame: %+v", frame)
	default:
	}
}

func TestMemoryTransportRouterReplyIsDealerFrame(t *testing.T) {
	bus := NewMemoryBus()
	a := bus.NewTransport("a")
	b := bus.NewTransport("b")
	ctx := context.Background()
	a.Bind(ctx)
	b.Bind(ctx)

	if err := a.SendRouterReply("b", []byte("reply")); err != nil {
		t.Fatalf("send router reply: %v", err)
	}
	select {
	case frame := <-b.RecvDealer():
		if frame.PeerID != "a" || string(frame.Data) != "reply" {
			t.Fatalf("unexpected frame: %+v", frame)
		}
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for dealer frame")
	}
}

func TestMemoryTransportSendToUnknownPeerErrors(t *testing.T) {
	bus := NewMemoryBus()
	a := bus.NewTransport("a")
	a.Bind(context.Background())
	if err := a.SendToPeer("ghost", []byte("x")); err == nil {
		t.Fatal("expected error sending to unknown peer")
	}
}

func TestMemoryTransportCloseRemovesFromBus(t *testing.T) {
	bus := NewMemoryBus()
	a := bus.NewTransport("a")
	b := bus.NewTransport("b")
	a.Bind(context.Background())
	b.Bind(context.Background())

	if err := b.Close(); err != nil {
		t.Fatal(err)
	}
	if err := a.SendToPeer("b", []byte("x")); err == nil {
		t.Fatal("expected error sending to closed peer")
	}
}
