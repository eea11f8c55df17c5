package payload_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"i4.energy/across/nbiotgw/payload"
)

func mustRecord(t *testing.T, id string, values []float64, timestamps ...string) *payload.Record {
	t.Helper()
	r, err := payload.NewRecord(id, values, timestamps...)
	require.NoError(t, err)
	return r
}

func TestCompose(t *testing.T) {
	light := mustRecord(t, "light", []float64{1.234, 2.345}, "10:00:00")
	temp := mustRecord(t, "temperature", []float64{21.5}, "10:00:01")

	assert.Equal(t, "group,light,1.234,2.345,ts,10:00:00", payload.Compose("group", light))
	assert.Equal(t, "group,light,1.234,2.345,ts,10:00:00,temperature,21.5,ts,10:00:01", payload.Compose("group", light, temp))
	assert.Equal(t, "group", payload.Compose("group"))
}

func TestTopic(t *testing.T) {
	light := mustRecord(t, "light", nil)
	temp := mustRecord(t, "temperature", nil)

	assert.Equal(t, "ubiss/light", payload.Topic("ubiss/", light))
	assert.Equal(t, "ubiss/multiple", payload.Topic("ubiss/", light, temp))
	assert.Equal(t, "ubiss/multiple", payload.Topic("ubiss/"))
}

func TestDecode(t *testing.T) {
	t.Run("Round trip of composed records", func(t *testing.T) {
		light := mustRecord(t, "light", []float64{1.234, 2.345}, "10:00:00")
		temp := mustRecord(t, "temperature", []float64{21.5, 21.75}, "10:00:01", "10:00:02")

		user, records, err := payload.Decode(payload.Compose("group", light, temp))
		require.NoError(t, err)
		assert.Equal(t, "group", user)
		require.Len(t, records, 2)

		assert.Equal(t, "light", records[0].Identifier())
		assert.Equal(t, []float64{1.234, 2.345}, records[0].Values())
		assert.Equal(t, []string{"10:00:00"}, records[0].Timestamps())

		assert.Equal(t, "temperature", records[1].Identifier())
		assert.Equal(t, []float64{21.5, 21.75}, records[1].Values())
		assert.Equal(t, []string{"10:00:01", "10:00:02"}, records[1].Timestamps())
	})

	t.Run("Tokens before the first identifier are dropped", func(t *testing.T) {
		user, records, err := payload.Decode("group,1.5,10:00:00,light,2,ts,10:00:01")
		require.NoError(t, err)
		assert.Equal(t, "group", user)
		require.Len(t, records, 1)
		assert.Equal(t, []float64{2}, records[0].Values())
	})

	t.Run("Numeric looking identifier is read as a value", func(t *testing.T) {
		_, records, err := payload.Decode("group,light,1,ts,10:00:00,2,3,ts,10:00:01")
		require.NoError(t, err)
		require.Len(t, records, 1)
		assert.Equal(t, []float64{1, 2, 3}, records[0].Values())
		assert.Equal(t, []string{"10:00:00", "10:00:01"}, records[0].Timestamps())
	})

	t.Run("User only", func(t *testing.T) {
		user, records, err := payload.Decode("group")
		require.NoError(t, err)
		assert.Equal(t, "group", user)
		assert.Empty(t, records)
	})

	t.Run("ErrEmptyPayload", func(t *testing.T) {
		_, _, err := payload.Decode("")
		assert.ErrorIs(t, err, payload.ErrEmptyPayload)
	})
}

func TestDecodeDownload(t *testing.T) {
	user, sensor, err := payload.DecodeDownload("group,all")
	require.NoError(t, err)
	assert.Equal(t, "group", user)
	assert.Equal(t, "all", sensor)

	user, sensor, err = payload.DecodeDownload("group,light,extra")
	require.NoError(t, err)
	assert.Equal(t, "group", user)
	assert.Equal(t, "light", sensor)

	_, _, err = payload.DecodeDownload("")
	assert.ErrorIs(t, err, payload.ErrEmptyPayload)
}

func TestExpandTimestamps(t *testing.T) {
	shared := mustRecord(t, "light", []float64{1, 2, 3}, "10:00:00")
	assert.Equal(t, []string{"10:00:00", "10:00:00", "10:00:00"}, shared.ExpandTimestamps())

	own := mustRecord(t, "light", []float64{1, 2}, "10:00:00", "10:00:01")
	assert.Equal(t, []string{"10:00:00", "10:00:01"}, own.ExpandTimestamps())

	none := mustRecord(t, "light", []float64{1})
	assert.Empty(t, none.ExpandTimestamps())
}
