package rangekey

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestIdentContains(t *testing.T) {
	r := Ident{Table: Table{ID: "t", Generation: 1}, Start: "a", End: "m"}

	assert.False(t, r.Contains("a"), "start is exclusive")
	assert.True(t, r.Contains("b"))
	assert.True(t, r.Contains("m"), "end is inclusive")
	assert.False(t, r.Contains("n"))
}

func TestIdentContainsUnbounded(t *testing.T) {
	r := Ident{Table: Table{ID: "t", Generation: 1}, Start: "", End: ""}
	assert.True(t, r.Contains(""))
	assert.True(t, r.Contains("zzz"))
}

func TestIdentCompareOrdering(t *testing.T) {
	tbl := Table{ID: "t", Generation: 1}
	a := Ident{Table: tbl, Start: "", End: "m"}
	b := Ident{Table: tbl, Start: "m", End: "z"}

	assert.True(t, a.Less(b))
	assert.False(t, b.Less(a))
	assert.Equal(t, 0, a.Compare(a))
}

func TestTableEqual(t *testing.T) {
	a := Table{ID: "t", Generation: 1}
	b := Table{ID: "t", Generation: 2}
	assert.False(t, a.Equal(b))
	assert.True(t, a.Equal(Table{ID: "t", Generation: 1}))
}

func TestDependencySentinel(t *testing.T) {
	assert.Equal(t, "ROOT", DependencySentinel(GroupRoot, "rs1"))
	assert.Equal(t, "rs1-user", DependencySentinel(GroupUser, "rs1"))
}
