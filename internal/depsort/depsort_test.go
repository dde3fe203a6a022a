package depsort

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"dbbackup/internal/schema"
)

func fkTable(name string, refs ...string) *schema.Table {
	t := &schema.Table{Name: name}
	for _, ref := range refs {
		t.Constraints = append(t.Constraints, &schema.Constraint{
			Name:            "fk_" + name + "_" + ref,
			Type:            schema.ConstraintForeignKey,
			ReferencedTable: ref,
		})
	}
	return t
}

func orderNames(r Result) []string {
	names := make([]string, len(r.Order))
	for i, t := range r.Order {
		names[i] = t.Name
	}
	return names
}

func indexOf(names []string, name string) int {
	for i, n := range names {
		if n == name {
			return i
		}
	}
	return -1
}

func TestSortNoDependencies(t *testing.T) {
	tables := []*schema.Table{fkTable("b"), fkTable("a"), fkTable("c")}
	r := Sort(tables)
	assert.False(t, r.HasCycles)
	assert.Equal(t, []string{"a", "b", "c"}, orderNames(r), "ties broken by name")
}

func TestSortLinearDependency(t *testing.T) {
	orders := fkTable("orders", "customers")
	customers := fkTable("customers")
	r := Sort([]*schema.Table{orders, customers})

	names := orderNames(r)
	assert.False(t, r.HasCycles)
	assert.Less(t, indexOf(names, "customers"), indexOf(names, "orders"))
}

func TestSortSelfReferenceIsNotAnEdge(t *testing.T) {
	employees := fkTable("employees", "employees")
	r := Sort([]*schema.Table{employees})
	assert.False(t, r.HasCycles)
	assert.Equal(t, []string{"employees"}, orderNames(r))
}

func TestSortIgnoresReferencesOutsideInputSet(t *testing.T) {
	orders := fkTable("orders", "customers") // customers not in the input set
	r := Sort([]*schema.Table{orders})
	assert.False(t, r.HasCycles)
	assert.Equal(t, []string{"orders"}, orderNames(r))
}

func TestSortDetectsCycle(t *testing.T) {
	a := fkTable("a", "b")
	b := fkTable("b", "a")
	r := Sort([]*schema.Table{a, b})

	require.True(t, r.HasCycles)
	assert.Len(t, r.Order, 2, "cycle members are still placed, best-effort")
	assert.ElementsMatch(t, []string{"a", "b"}, orderNames(r))

	var seen []string
	for _, e := range r.CycleEdges {
		seen = append(seen, e.From+"->"+e.To)
	}
	assert.Equal(t, []string{"b->a"}, seen, "only the FK on the alphabetically later table is deferred")
}

func TestSortAcyclicPredecessorsPlacedBeforeCycle(t *testing.T) {
	root := fkTable("root")
	a := fkTable("a", "b", "root")
	b := fkTable("b", "a")
	r := Sort([]*schema.Table{a, b, root})

	names := orderNames(r)
	require.True(t, r.HasCycles)
	assert.Less(t, indexOf(names, "root"), indexOf(names, "a"))
	assert.Less(t, indexOf(names, "root"), indexOf(names, "b"))
}

func TestReverseOrder(t *testing.T) {
	a, b, c := fkTable("a"), fkTable("b"), fkTable("c")
	rev := ReverseOrder([]*schema.Table{a, b, c})
	assert.Equal(t, []*schema.Table{c, b, a}, rev)
}

func TestSortEmptyInput(t *testing.T) {
	r := Sort(nil)
	assert.Empty(t, r.Order)
	assert.False(t, r.HasCycles)
}
