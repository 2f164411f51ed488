package util

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestNormalizePhone(t *testing.T) {
	cases := map[string]string{
		"+55 11 98888-7777": "5511988887777",
		"5511988887777":     "5511988887777",
		" +55 (11) 3333 ":   "55113333",
		"+":                 "",
		"   ":               "",
	}
	for in, want := range cases {
		assert.Equal(t, want, NormalizePhone(in), in)
	}
}

func TestChannelAddress(t *testing.T) {
	assert.Equal(t, "+5511988887777", ChannelAddress("5511988887777"))
}

func TestUntilNextHour(t *testing.T) {
	now := time.Date(2026, 5, 4, 9, 59, 30, 0, time.UTC)
	assert.Equal(t, 30*time.Second, UntilNextHour(now))

	now = time.Date(2026, 5, 4, 23, 0, 0, 0, time.UTC)
	assert.Equal(t, time.Hour, UntilNextHour(now))

	now = time.Date(2026, 5, 4, 9, 15, 10, 500, time.UTC)
	assert.Equal(t, 44*time.Minute+49*time.Second+(time.Second-500*time.Nanosecond), UntilNextHour(now))
}

func TestDayAndAddDays(t *testing.T) {
	loc := time.FixedZone("BRT", -3*3600)
	// 01:00 UTC is still the previous day in BRT
	now := time.Date(2026, 5, 4, 1, 0, 0, 0, time.UTC)
	day := Day(now, loc)
	assert.Equal(t, time.Date(2026, 5, 3, 0, 0, 0, 0, loc), day)
	assert.Equal(t, time.Date(2026, 6, 2, 0, 0, 0, 0, loc), AddDays(day, 30))
	assert.True(t, SameDay(day, AddDays(day, 0)))
	assert.False(t, SameDay(day, AddDays(day, 1)))
}

func TestNewRunID(t *testing.T) {
	id := NewRunID("delivery")
	assert.True(t, strings.HasPrefix(id, "delivery_"))
	assert.Len(t, id, len("delivery_")+26)
}
