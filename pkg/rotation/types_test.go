package rotation

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAssignment(t *testing.T) {
	a := NewAssignment([]string{"1.2", "1.1", "2.1"})
	a["1.1"] = "g1"
	a["2.1"] = "g2"

	t.Run("occupied is sorted", func(t *testing.T) {
		assert.Equal(t, []string{"1.1", "2.1"}, a.Occupied())
		assert.Equal(t, []string{"1.1", "1.2", "2.1"}, a.Positions())
	})

	t.Run("position lookup", func(t *testing.T) {
		pos, ok := a.PositionOf("g2")
		assert.True(t, ok)
		assert.Equal(t, "2.1", pos)

		_, ok = a.PositionOf("nobody")
		assert.False(t, ok)
		assert.False(t, a.IsSeated(""))
	})

	t.Run("clone is independent", func(t *testing.T) {
		c := a.Clone()
		c["1.2"] = "g3"
		assert.Equal(t, "", a["1.2"])
	})

	t.Run("normalize adds missing positions", func(t *testing.T) {
		b := Assignment{"1.1": "g1"}
		b.Normalize([]string{"1.1", "1.2"})
		assert.Equal(t, Assignment{"1.1": "g1", "1.2": ""}, b)
	})

	t.Run("unseat clears every seat", func(t *testing.T) {
		b := Assignment{"1.1": "g1", "1.2": "g1", "1.3": "g2"}
		assert.Equal(t, []string{"1.1", "1.2"}, b.Unseat("g1"))
		assert.False(t, b.IsSeated("g1"))
		assert.True(t, b.IsSeated("g2"))
	})
}

func TestStateValidate(t *testing.T) {
	t.Run("valid state", func(t *testing.T) {
		s := NewState()
		s.Assignments = Assignment{"1.1": "g1", "1.2": ""}
		s.Queue = []QueueEntry{{PersonnelID: "g2", ReturnToSection: "1"}}
		assert.NoError(t, s.Validate())
	})

	t.Run("double booking", func(t *testing.T) {
		s := NewState()
		s.Assignments = Assignment{"1.1": "g1", "1.2": "g1"}
		err := s.Validate()
		require.Error(t, err)
		assert.ErrorIs(t, err, ErrInvariantViolation)
	})

	t.Run("seated and queued", func(t *testing.T) {
		s := NewState()
		s.Assignments = Assignment{"1.1": "g1"}
		s.Queue = []QueueEntry{{PersonnelID: "g1", ReturnToSection: "1"}}
		assert.ErrorIs(t, s.Validate(), ErrInvariantViolation)
	})

	t.Run("queued twice", func(t *testing.T) {
		s := NewState()
		s.Queue = []QueueEntry{
			{PersonnelID: "g1", ReturnToSection: "1"},
			{PersonnelID: "g1", ReturnToSection: "2"},
		}
		assert.ErrorIs(t, s.Validate(), ErrInvariantViolation)
	})
}

func TestStateClone(t *testing.T) {
	s := NewState()
	s.Assignments["1.1"] = "g1"
	s.Queue = append(s.Queue, QueueEntry{PersonnelID: "g2", ReturnToSection: "1"})
	s.SyncBreaks()
	s.SeatUpdatedAt["1.1"] = 10

	c := s.Clone()
	c.Assignments["1.1"] = ""
	c.Queue[0].PersonnelID = "g9"
	c.SeatUpdatedAt["1.1"] = 20
	delete(c.Breaks, "g2")

	assert.Equal(t, "g1", s.Assignments["1.1"])
	assert.Equal(t, "g2", s.Queue[0].PersonnelID)
	assert.Equal(t, int64(10), s.SeatUpdatedAt["1.1"])
	assert.Contains(t, s.Breaks, "g2")
}
