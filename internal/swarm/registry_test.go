package swarm

import (
	"sync"
	"testing"

	"streambridge/internal/domain"
)

func TestInsertIfAbsentConcurrent(t *testing.T) {
	reg := NewRegistry()
	const workers = 32

	var wg sync.WaitGroup
	var mu sync.Mutex
	inserted := 0

	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			s := newSession("aaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaa", "magnet:?xt=urn:btih:a", domain.CategoryVideo)
			if _, loaded := reg.InsertIfAbsent(s); !loaded {
				mu.Lock()
				inserted++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	if inserted != 1 {
		t.Errorf("inserted %d sessions for one info hash, want exactly 1", inserted)
	}
	if reg.Len() != 1 {
		t.Errorf("registry holds %d sessions, want 1", reg.Len())
	}
}

func TestInsertIfAbsentReturnsExisting(t *testing.T) {
	reg := NewRegistry()
	first := newSession("aaaa", "magnet:?xt=urn:btih:a", domain.CategoryVideo)
	second := newSession("aaaa", "magnet:?xt=urn:btih:a", domain.CategoryVideo)

	if _, loaded := reg.InsertIfAbsent(first); loaded {
		t.Fatal("first insert reported loaded")
	}
	got, loaded := reg.InsertIfAbsent(second)
	if !loaded {
		t.Fatal("second insert did not report loaded")
	}
	if got != first {
		t.Error("second insert did not return the first record")
	}
}

func TestDeleteAndList(t *testing.T) {
	reg := NewRegistry()
	reg.InsertIfAbsent(newSession("aaaa", "", domain.CategoryVideo))
	reg.InsertIfAbsent(newSession("bbbb", "", domain.CategoryVideo))

	reg.Delete("aaaa")
	if _, ok := reg.Get("aaaa"); ok {
		t.Error("deleted session still retrievable")
	}
	if list := reg.List(); len(list) != 1 || list[0].InfoHash() != "bbbb" {
		t.Errorf("list after delete = %d entries", len(list))
	}

	// Unknown hash is a no-op.
	reg.Delete("cccc")
	if reg.Len() != 1 {
		t.Errorf("len = %d after deleting unknown hash", reg.Len())
	}

	reg.Clear()
	if reg.Len() != 0 {
		t.Errorf("len = %d after clear", reg.Len())
	}
}
