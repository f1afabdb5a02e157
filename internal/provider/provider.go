// Package provider serves the content of virtual process documents.
//
// Content is pulled: a change signal only carries the document identity, and
// readers call ProvideContent to fetch the whole buffer. A dropped signal is
// repaired by the next successful pull because buffers only grow.
package provider

import (
	"context"

	"github.com/zjrosen/procview/internal/document"
	"github.com/zjrosen/procview/internal/log"
	"github.com/zjrosen/procview/internal/pubsub"
	"github.com/zjrosen/procview/internal/registry"
)

// Provider answers document content queries from the registry and emits
// change signals when output is appended.
type Provider struct {
	registry *registry.Registry
	changes  *pubsub.Broker[document.Identity]
	sub      *pubsub.Subscription[registry.OutputEvent]
}

// New creates a provider and subscribes it to bus. Every output event is
// appended to the registry, and a successful append raises one change signal.
func New(reg *registry.Registry, bus *pubsub.Bus[registry.OutputEvent]) *Provider {
	p := &Provider{
		registry: reg,
		changes:  pubsub.NewBroker[document.Identity](),
	}
	p.sub = bus.Subscribe(p.handleOutput)
	return p
}

// ProvideContent returns the accumulated output for doc, or "" when no
// process matches.
func (p *Provider) ProvideContent(doc document.Identity) string {
	e, ok := p.registry.FindByDocument(doc)
	if !ok {
		log.Debug(log.CatDocument, "content requested for unknown document", "doc", doc)
		return ""
	}
	return e.Output()
}

// Subscribe returns a channel of change signals, closed when ctx is done.
func (p *Provider) Subscribe(ctx context.Context) <-chan pubsub.Event[document.Identity] {
	return p.changes.Subscribe(ctx)
}

// Notify publishes a lifecycle signal (exit, detach) for doc.
func (p *Provider) Notify(eventType pubsub.EventType, doc document.Identity) {
	p.changes.Publish(eventType, doc)
}

// Close stops listening for output and closes every change subscription.
func (p *Provider) Close() {
	p.sub.Unsubscribe()
	p.changes.Close()
}

func (p *Provider) handleOutput(ev registry.OutputEvent) error {
	e, ok := p.registry.AppendOutput(ev.ProcessID, ev.Chunk)
	if !ok {
		return nil
	}
	p.changes.Publish(pubsub.ChangedEvent, e.Document)
	return nil
}
