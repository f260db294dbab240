package records

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var births = NewSchema("birth", "forename", "surname", "father_forename", "mother_forename")

func TestIsMissing(t *testing.T) {
	t.Run("empty and whitespace", func(t *testing.T) {
		assert.True(t, IsMissing(""))
		assert.True(t, IsMissing("   "))
	})

	t.Run("missing marker in any case", func(t *testing.T) {
		assert.True(t, IsMissing("missing"))
		assert.True(t, IsMissing("<MISSING>"))
		assert.True(t, IsMissing("father missing"))
	})

	t.Run("dash placeholders", func(t *testing.T) {
		assert.True(t, IsMissing("--"))
		assert.True(t, IsMissing(" ---- "))
		assert.False(t, IsMissing("-"))
		assert.False(t, IsMissing("---"))
	})

	t.Run("real values", func(t *testing.T) {
		assert.False(t, IsMissing("john"))
		assert.False(t, IsMissing("0"))
	})
}

func TestSchema(t *testing.T) {
	ids, err := births.FieldIDs("surname", "mother_forename")
	require.NoError(t, err)
	assert.Equal(t, []FieldID{1, 3}, ids)

	_, err = births.FieldIDs("surname", "nope")
	assert.Error(t, err)

	assert.Equal(t, "field_9", births.Name(9))
}

func TestFields(t *testing.T) {
	r := New(births, "b1", "john", "smith")

	v, ok := r.Field(0)
	assert.True(t, ok)
	assert.Equal(t, "john", v)

	v, ok = r.Field(3)
	assert.True(t, ok)
	assert.Equal(t, "", v)

	_, ok = r.Field(7)
	assert.False(t, ok)

	_, present := Value(r, 3)
	assert.False(t, present)

	m := FromMap(births, "b2", map[string]string{"surname": "brown", "unknown": "x"})
	v, _ = m.Field(1)
	assert.Equal(t, "brown", v)
	assert.Equal(t, "surname", m.FieldName(1))
}

func TestFilter(t *testing.T) {
	fields := []FieldID{0, 1, 2, 3}
	rs := []Record{
		New(births, "full", "a", "b", "c", "d"),
		New(births, "three", "a", "b", "--", "d"),
		New(births, "one", "a", "missing", "", "----"),
	}

	t.Run("required fields", func(t *testing.T) {
		kept, rejected := Filter(rs, fields, 3, 0)
		require.Len(t, kept, 2)
		assert.Equal(t, "full", kept[0].ID())
		assert.Equal(t, "three", kept[1].ID())
		assert.Equal(t, 1, rejected)
	})

	t.Run("limit stops early", func(t *testing.T) {
		kept, _ := Filter(rs, fields, 0, 1)
		assert.Len(t, kept, 1)
	})

	t.Run("jointly populated", func(t *testing.T) {
		assert.Equal(t, 3, JointlyPopulated(rs[0], fields, rs[1], fields))
		assert.Equal(t, 1, JointlyPopulated(rs[1], fields, rs[2], fields))
	})
}

func TestSliceAndIndex(t *testing.T) {
	a := New(births, "a")
	b := New(births, "b")

	src := Slice{a, b}
	got, err := src.Records(context.Background())
	require.NoError(t, err)
	assert.Len(t, got, 2)

	got[0] = nil
	assert.NotNil(t, src[0])

	idx := NewIndex(got[1:], []Record{a})
	r, ok := idx.Resolve("a")
	assert.True(t, ok)
	assert.Equal(t, a, r)
	_, ok = idx.Resolve("z")
	assert.False(t, ok)
}
