package ident

import (
	"fmt"
	"sync"
)

// NamespaceId scopes every identifier minted by one host process. Two
// allocators installed with different namespaces can never produce
// colliding pipeline ids.
type NamespaceId uint32

// PipelineId identifies one page/frame pipeline (its script+layout pair).
type PipelineId struct {
	Namespace NamespaceId `json:"namespace"`
	Index     uint32      `json:"index"`
}

func (p PipelineId) String() string {
	return fmt.Sprintf("(%d,%d)", p.Namespace, p.Index)
}

// ComponentKind names which half of a pipeline a monitored component is.
type ComponentKind string

const (
	ComponentKindScript ComponentKind = "script"
	ComponentKindLayout ComponentKind = "layout"
)

// ComponentId identifies one supervised unit of work. Comparable; usable
// as a map key. Never reused for a different logical unit.
type ComponentId struct {
	Pipeline PipelineId    `json:"pipeline"`
	Kind     ComponentKind `json:"kind"`
}

func (c ComponentId) String() string {
	return fmt.Sprintf("%s/%s", c.Pipeline, c.Kind)
}

// RouterId identifies one broadcast-channel endpoint (one global scope).
type RouterId struct {
	Namespace NamespaceId `json:"namespace"`
	Index     uint32      `json:"index"`
}

func (r RouterId) String() string {
	return fmt.Sprintf("router(%d,%d)", r.Namespace, r.Index)
}

// Allocator mints process-unique identifiers within one installed
// namespace. It is an explicit handle passed to whoever needs to mint
// ids, not a process-wide global. Safe for concurrent use.
type Allocator struct {
	namespace NamespaceId

	mu         sync.Mutex
	nextIndex  uint32
	nextRouter uint32
}

// NewAllocator installs a namespace and returns an allocator bound to it.
func NewAllocator(namespace NamespaceId) *Allocator {
	return &Allocator{namespace: namespace}
}

// Namespace returns the namespace this allocator was installed with.
func (a *Allocator) Namespace() NamespaceId {
	return a.namespace
}

// NextPipeline mints a fresh pipeline id.
func (a *Allocator) NextPipeline() PipelineId {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.nextIndex++
	return PipelineId{Namespace: a.namespace, Index: a.nextIndex}
}

// NextRouter mints a fresh broadcast-router id.
func (a *Allocator) NextRouter() RouterId {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.nextRouter++
	return RouterId{Namespace: a.namespace, Index: a.nextRouter}
}

// NamespaceIssuer hands out namespaces to newly started host processes.
// Owned by the orchestrator; one issuer per embedding.
type NamespaceIssuer struct {
	mu   sync.Mutex
	next NamespaceId
}

// NewNamespaceIssuer creates an issuer. Namespace 0 is reserved for the
// orchestrator's own process, so issued namespaces start at 1.
func NewNamespaceIssuer() *NamespaceIssuer {
	return &NamespaceIssuer{}
}

// Issue returns the next unused namespace.
func (n *NamespaceIssuer) Issue() NamespaceId {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.next++
	return n.next
}
