package model

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStatusFromLabel(t *testing.T) {
	testCases := []struct {
		label    string
		expected Status
	}{
		{"In Progress", "in_progress"},
		{"Resolved", "Resolved"},
		{"Rejected", "Rejected"},
		{"Pending", "Pending"},
		{"pending", "pending"},
		{"in_progress", "in_progress"},
	}

	for _, tc := range testCases {
		t.Run(tc.label, func(t *testing.T) {
			got, err := StatusFromLabel(tc.label)
			require.NoError(t, err)
			assert.Equal(t, tc.expected, got)
		})
	}
}

func TestStatusFromLabelRejectsUnknown(t *testing.T) {
	for _, label := range []string{"", "Processed", "resolved", "IN PROGRESS"} {
		_, err := StatusFromLabel(label)
		assert.True(t, errors.Is(err, ErrInvalidStatus), "label %q", label)
	}
}

func TestStatusCanonicalAndLabel(t *testing.T) {
	assert.Equal(t, StatusPending, StatusPendingLegacy.Canonical())
	assert.Equal(t, StatusPending, Status("").Canonical())
	assert.Equal(t, StatusInProgress, Status("In Progress").Canonical())
	assert.Equal(t, StatusResolved, Status("resolved").Canonical())
	assert.Equal(t, StatusRejected, StatusRejected.Canonical())

	assert.Equal(t, "In Progress", StatusInProgress.Label())
	assert.Equal(t, "Pending", StatusPending.Label())
	assert.Equal(t, "Processed", Status("Processed").Label())
}

func TestHasCoordinates(t *testing.T) {
	assert.True(t, Report{Latitude: 17.4, Longitude: 78.5}.HasCoordinates())
	assert.False(t, Report{Latitude: 0, Longitude: 78.5}.HasCoordinates())
	assert.False(t, Report{}.HasCoordinates())
}

func TestTransportErrorMessage(t *testing.T) {
	cause := errors.New("connection refused")
	err := &TransportError{Service: "detector", Err: cause}
	assert.Equal(t, "detector: connection refused", err.Error())
	assert.True(t, errors.Is(err, cause))

	err = &TransportError{Service: "detector", StatusCode: 500, Detail: "model crashed"}
	assert.Equal(t, "detector: status 500: model crashed", err.Error())

	assert.True(t, errors.Is(Validationf("no image"), ErrValidation))
}
