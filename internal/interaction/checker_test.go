package interaction

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"medeasy/rx/domain"
	"medeasy/rx/internal/dbtest"
)

// newChecker stores pairs given as indexes into a fixed medicine list.
func newChecker(t *testing.T, pairs ...domain.Interaction) (*SQLChecker, []int64) {
	t.Helper()
	db := dbtest.Open(t)
	ids := make([]int64, 4)
	for i, name := range []string{"Warfarin", "Aspirin", "Omeprazole", "Paracetamol"} {
		ids[i] = dbtest.Medicine(t, db, name)
	}
	c := NewSQLChecker(db)
	for _, p := range pairs {
		p.MedicineA, p.MedicineB = ids[p.MedicineA], ids[p.MedicineB]
		require.NoError(t, c.Put(context.Background(), p))
	}
	return c, ids
}

func TestCheckIsSymmetric(t *testing.T) {
	// Stored with the larger index first on purpose.
	c, ids := newChecker(t,
		domain.Interaction{MedicineA: 1, MedicineB: 0, Severity: domain.SeveritySevere, Description: "bleeding risk"},
		domain.Interaction{MedicineA: 2, MedicineB: 0, Severity: domain.SeverityModerate, Description: "raised INR"},
	)
	ctx := context.Background()
	ab, err := c.Check(ctx, []int64{ids[0], ids[1]})
	require.NoError(t, err)
	ba, err := c.Check(ctx, []int64{ids[1], ids[0]})
	require.NoError(t, err)
	require.Len(t, ab, 1)
	require.Len(t, ba, 1)
	assert.Equal(t, ab[0], ba[0])
	assert.Less(t, ab[0].MedicineA, ab[0].MedicineB)
}

func TestCheckReturnsMostSevereFirst(t *testing.T) {
	c, ids := newChecker(t,
		domain.Interaction{MedicineA: 0, MedicineB: 2, Severity: domain.SeverityModerate},
		domain.Interaction{MedicineA: 0, MedicineB: 1, Severity: domain.SeveritySevere},
		domain.Interaction{MedicineA: 2, MedicineB: 3, Severity: domain.SeverityMinor},
	)
	found, err := c.Check(context.Background(), ids)
	require.NoError(t, err)
	require.Len(t, found, 3)
	assert.Equal(t, domain.SeveritySevere, found[0].Severity)
	assert.Equal(t, domain.SeverityModerate, found[1].Severity)
	assert.Equal(t, domain.SeverityMinor, found[2].Severity)

	blocking, ok := Blocking(found)
	assert.True(t, ok)
	assert.Equal(t, domain.SeveritySevere, blocking.Severity)
}

func TestCheckWithoutKnownPairs(t *testing.T) {
	c, ids := newChecker(t, domain.Interaction{MedicineA: 0, MedicineB: 1, Severity: domain.SeverityMinor})
	ctx := context.Background()
	found, err := c.Check(ctx, []int64{ids[2], ids[3]})
	require.NoError(t, err)
	assert.Empty(t, found)

	found, err = c.Check(ctx, []int64{ids[0], ids[0]})
	require.NoError(t, err)
	assert.Empty(t, found, "a medicine does not interact with itself")

	_, ok := Blocking(found)
	assert.False(t, ok)
}

func TestPutReplacesPair(t *testing.T) {
	db := dbtest.Open(t)
	a := dbtest.Medicine(t, db, "A")
	b := dbtest.Medicine(t, db, "B")
	c := NewSQLChecker(db)
	ctx := context.Background()

	require.NoError(t, c.Put(ctx, domain.Interaction{MedicineA: a, MedicineB: b, Severity: domain.SeverityMinor}))
	require.NoError(t, c.Put(ctx, domain.Interaction{MedicineA: b, MedicineB: a, Severity: domain.SeveritySevere}))

	found, err := c.Check(ctx, []int64{a, b})
	require.NoError(t, err)
	require.Len(t, found, 1)
	assert.Equal(t, domain.SeveritySevere, found[0].Severity)

	assert.ErrorIs(t, c.Put(ctx, domain.Interaction{MedicineA: a, MedicineB: a, Severity: domain.SeverityMinor}), domain.ErrInvalidArgument)
	assert.ErrorIs(t, c.Put(ctx, domain.Interaction{MedicineA: a, MedicineB: b, Severity: "LETHAL"}), domain.ErrInvalidArgument)
}
