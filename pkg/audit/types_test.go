package audit

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRecord_Validate(t *testing.T) {
	tests := []struct {
		name    string
		rec     Record
		wantErr bool
	}{
		{"valid", Record{ActorID: "A1", Action: ActionLogin}, false},
		{"missing actor", Record{Action: ActionLogin}, true},
		{"missing action", Record{ActorID: "A1"}, true},
		{"target id without type", Record{ActorID: "A1", Action: ActionAssignedRole, TargetID: "U1"}, true},
		{"target with type", Record{ActorID: "A1", Action: ActionAssignedRole, TargetType: TargetUser, TargetID: "U1"}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.rec.Validate()
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestFilter_EffectiveLimit(t *testing.T) {
	assert.Equal(t, DefaultListLimit, Filter{}.EffectiveLimit())
	assert.Equal(t, 5, Filter{Limit: 5}.EffectiveLimit())
	assert.Equal(t, 1000, Filter{Limit: 50000}.EffectiveLimit())
}

func TestKnownActions(t *testing.T) {
	actions := KnownActions()
	assert.Len(t, actions, 8)
	assert.Contains(t, actions, ActionExitImpersonation)
}

func TestMemoryAppender_ListNewestFirst(t *testing.T) {
	m := NewMemoryAppender()
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	ctx := context.Background()

	require.NoError(t, m.Append(ctx, &Record{ActorID: "A1", Action: ActionLogin, Timestamp: base}))
	require.NoError(t, m.Append(ctx, &Record{ActorID: "A2", Action: ActionLogin, Timestamp: base.Add(time.Minute)}))
	require.NoError(t, m.Append(ctx, &Record{ActorID: "A1", Action: ActionRoleSwitch, Timestamp: base.Add(2 * time.Minute)}))

	all, err := m.List(ctx, Filter{})
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Equal(t, ActionRoleSwitch, all[0].Action)

	mine, err := m.List(ctx, Filter{ActorID: "A1", Limit: 1})
	require.NoError(t, err)
	require.Len(t, mine, 1)
	assert.Equal(t, int64(3), mine[0].ID)

	recent, err := m.List(ctx, Filter{Action: ActionLogin, Since: base.Add(30 * time.Second)})
	require.NoError(t, err)
	require.Len(t, recent, 1)
	assert.Equal(t, "A2", recent[0].ActorID)
}
