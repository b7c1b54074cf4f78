package event

import (
	"context"
	"testing"

	"github.com/erp/reconciler/internal/domain/shared"
	"github.com/stretchr/testify/assert"
)

type stubHandler struct {
	types []string
}

func (h *stubHandler) Handle(context.Context, shared.DomainEvent) error { return nil }
func (h *stubHandler) EventTypes() []string                          { return h.types }

func TestHandlerRegistry_Register(t *testing.T) {
	registry := NewHandlerRegistry()
	typed := &stubHandler{types: []string{"erporder.synced"}}
	wildcard := &stubHandler{}

	registry.Register(typed, "erporder.synced", "erporder.deleted")
	registry.Register(wildcard)

	handlers := registry.GetHandlers("erporder.synced")
	assert.Equal(t, []shared.EventHandler{typed, wildcard}, handlers)

	handlers = registry.GetHandlers("payment.ingested")
	assert.Equal(t, []shared.EventHandler{wildcard}, handlers)

	assert.Equal(t, 2, registry.Count())
}

func TestHandlerRegistry_Unregister(t *testing.T) {
	registry := NewHandlerRegistry()
	first := &stubHandler{}
	second := &stubHandler{}
	wildcard := &stubHandler{}

	registry.Register(first, "erporder.synced")
	registry.Register(second, "erporder.synced")
	registry.Register(wildcard)

	registry.Unregister(first)
	assert.Equal(t, []shared.EventHandler{second, wildcard}, registry.GetHandlers("erporder.synced"))

	registry.Unregister(second)
	registry.Unregister(wildcard)
	assert.Empty(t, registry.GetHandlers("erporder.synced"))
	assert.Zero(t, registry.Count())
}

func TestHandlerRegistry_GetHandlersReturnsCopy(t *testing.T) {
	registry := NewHandlerRegistry()
	h := &stubHandler{}
	registry.Register(h, "erporder.synced")

	handlers := registry.GetHandlers("erporder.synced")
	handlers[0] = nil

	assert.Equal(t, []shared.EventHandler{h}, registry.GetHandlers("erporder.synced"))
}
