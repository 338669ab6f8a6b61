package store

import "github.com/norbi07011/zzp-werkplsats-nowy-sub005/internal/bus"

// Policy names how an entity's snapshot tracks the backing store.
type Policy string

const (
	// RefetchAfterWrite updates the snapshot only by re-reading after a
	// confirmed write; there is no speculative local edit.
	RefetchAfterWrite Policy = "refetch-after-write"
	// OptimisticApply shows a local edit immediately and confirms it
	// afterwards.
	OptimisticApply Policy = "optimistic-apply"
)

// entityPolicies is the per-entity consistency table. Chat is the one
// optimistic entity: send latency matters more to a conversation than
// strict read-after-write, and an append-only log makes the optimistic
// entry trivially reconcilable. Projects and tasks carry server-assigned
// fields and nested collections, so they re-fetch instead.
var entityPolicies = map[bus.Table]Policy{
	bus.TableProjects: RefetchAfterWrite,
	bus.TableTasks:    RefetchAfterWrite,
	bus.TableChat:     OptimisticApply,
}

func policyFor(table bus.Table) Policy {
	if p, ok := entityPolicies[table]; ok {
		return p
	}
	return RefetchAfterWrite
}
