package ident

import (
	"sync"
	"testing"
)

func TestPipelineIdsUniqueWithinNamespace(t *testing.T) {
	alloc := NewAllocator(1)
	seen := make(map[PipelineId]bool)
	for i := 0; i < 1000; i++ {
		id := alloc.NextPipeline()
		if seen[id] {
			t.Fatalf("pipeline id %s issued twice", id)
		}
		seen[id] = true
	}
}

func TestNamespacesNeverCollide(t *testing.T) {
	issuer := NewNamespaceIssuer()
	allocA := NewAllocator(issuer.Issue())
	allocB := NewAllocator(issuer.Issue())

	if allocA.Namespace() == allocB.Namespace() {
		t.Fatal("issuer handed out the same namespace twice")
	}
	if allocA.NextPipeline() == allocB.NextPipeline() {
		t.Fatal("pipeline ids from different namespaces collided")
	}
}

func TestConcurrentMinting(t *testing.T) {
	alloc := NewAllocator(3)
	const workers = 8
	const perWorker = 200

	ids := make(chan PipelineId, workers*perWorker)
	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < perWorker; i++ {
				ids <- alloc.NextPipeline()
			}
		}()
	}
	wg.Wait()
	close(ids)

	seen := make(map[PipelineId]bool)
	for id := range ids {
		if seen[id] {
			t.Fatalf("pipeline id %s issued twice under concurrency", id)
		}
		seen[id] = true
	}
	if len(seen) != workers*perWorker {
		t.Fatalf("expected %d ids, got %d", workers*perWorker, len(seen))
	}
}

func TestComponentIdsAreMapKeys(t *testing.T) {
	alloc := NewAllocator(1)
	pipeline := alloc.NextPipeline()

	script := ComponentId{Pipeline: pipeline, Kind: ComponentKindScript}
	layout := ComponentId{Pipeline: pipeline, Kind: ComponentKindLayout}
	if script == layout {
		t.Fatal("script and layout halves of one pipeline must differ")
	}

	m := map[ComponentId]int{script: 1, layout: 2}
	if m[script] != 1 || m[layout] != 2 {
		t.Fatal("component ids did not behave as map keys")
	}
}

func TestRouterIdsUnique(t *testing.T) {
	alloc := NewAllocator(1)
	a := alloc.NextRouter()
	b := alloc.NextRouter()
	if a == b {
		t.Fatalf("router id %s issued twice", a)
	}
}

func TestStringFormats(t *testing.T) {
	id := ComponentId{
		Pipeline: PipelineId{Namespace: 2, Index: 7},
		Kind:     ComponentKindLayout,
	}
	if got := id.String(); got != "(2,7)/layout" {
		t.Fatalf("unexpected component id string %q", got)
	}
}
