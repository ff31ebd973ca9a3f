package achievement

import (
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validCandidate() Candidate {
	return Candidate{
		FieldTitle:       "Collector",
		FieldDescription: "You have installed 62 custom integration.",
		FieldSource:      "achievements-core",
		FieldID:          "6a6a8a11-f477-4b08-8dad-51b9b1f0d49d",
	}
}

func TestValidate_AcceptsCompleteCandidate(t *testing.T) {
	require.NoError(t, validCandidate().Validate())
}

func TestValidate_NamesMissingField(t *testing.T) {
	for _, field := range RequiredFields {
		t.Run(field, func(t *testing.T) {
			c := validCandidate()
			delete(c, field)

			err := c.Validate()
			require.Error(t, err)
			assert.ErrorIs(t, err, ErrInvalidCandidate)

			var invalid *InvalidCandidateError
			require.True(t, errors.As(err, &invalid))
			assert.Equal(t, field, invalid.Field)
		})
	}
}

func TestValidate_RejectsEmptyAndNonStringFields(t *testing.T) {
	c := validCandidate()
	c[FieldTitle] = ""
	assert.ErrorIs(t, c.Validate(), ErrInvalidCandidate)

	c = validCandidate()
	c[FieldID] = 42
	var invalid *InvalidCandidateError
	require.ErrorAs(t, c.Validate(), &invalid)
	assert.Equal(t, FieldID, invalid.Field)
}

func TestGrantedOn(t *testing.T) {
	now := time.Date(2025, 3, 1, 8, 0, 0, 0, time.UTC)

	t.Run("absent uses now", func(t *testing.T) {
		got, err := validCandidate().GrantedOn(now)
		require.NoError(t, err)
		assert.Equal(t, now, got)
	})

	t.Run("wire format with offset", func(t *testing.T) {
		c := validCandidate()
		c[FieldGrantedOn] = "2024-06-01T10:30:00+02:00"
		got, err := c.GrantedOn(now)
		require.NoError(t, err)
		assert.True(t, got.Equal(time.Date(2024, 6, 1, 8, 30, 0, 0, time.UTC)))
		assert.Equal(t, time.UTC, got.Location())
	})

	t.Run("fractional seconds and compact offset", func(t *testing.T) {
		c := validCandidate()
		c[FieldGrantedOn] = "2024-06-01T10:30:00.123456+0200"
		got, err := c.GrantedOn(now)
		require.NoError(t, err)
		assert.True(t, got.Equal(time.Date(2024, 6, 1, 8, 30, 0, 123456000, time.UTC)))
	})

	t.Run("malformed falls back to now", func(t *testing.T) {
		c := validCandidate()
		c[FieldGrantedOn] = "yesterday"
		got, err := c.GrantedOn(now)
		assert.ErrorIs(t, err, ErrMalformedTimestamp)
		assert.Equal(t, now, got)
	})

	t.Run("non-string falls back to now", func(t *testing.T) {
		c := validCandidate()
		c[FieldGrantedOn] = 1717230600
		got, err := c.GrantedOn(now)
		assert.ErrorIs(t, err, ErrMalformedTimestamp)
		assert.Equal(t, now, got)
	})
}

func TestBuild_ComputesIdentityKey(t *testing.T) {
	grantedOn := time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)
	a := validCandidate().Build(grantedOn)

	assert.Equal(t, "achievements-core.6a6a8a11-f477-4b08-8dad-51b9b1f0d49d", a.Key)
	assert.Equal(t, "6a6a8a11-f477-4b08-8dad-51b9b1f0d49d", a.ID)
	assert.Equal(t, "achievements-core", a.Source)
	assert.Equal(t, "Collector", a.Title)
	assert.Equal(t, grantedOn, a.GrantedOn)
}

func TestEnvelope_WireShape(t *testing.T) {
	c := validCandidate()
	c[FieldGrantedOn] = FormatWireTime(time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC))

	raw, err := json.Marshal(NewEnvelope(c))
	require.NoError(t, err)

	var decoded map[string]any
	require.NoError(t, json.Unmarshal(raw, &decoded))
	assert.EqualValues(t, 0, decoded["major_version"])
	assert.EqualValues(t, 1, decoded["minor_version"])

	inner := decoded["achievement"].(map[string]any)
	assert.Equal(t, "2024-01-01T12:00:00+00:00", inner["granted_on"])
	assert.Equal(t, "Collector", inner["title"])
}

func TestCandidateIdentityKey(t *testing.T) {
	assert.Equal(t, "achievements-core.6a6a8a11-f477-4b08-8dad-51b9b1f0d49d", validCandidate().IdentityKey())
	assert.Empty(t, Candidate{FieldSource: "x"}.IdentityKey())
}
