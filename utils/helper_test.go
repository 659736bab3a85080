package utils

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestUniqueSlice(t *testing.T) {
	assert.Equal(t, []int{3, 1, 2}, UniqueSlice([]int{3, 1, 3, 2, 1}))
	assert.Nil(t, UniqueSlice([]int(nil)))
}

func TestDereferencePtr(t *testing.T) {
	v := 5
	assert.Equal(t, 5, DereferencePtr(&v))
	assert.Equal(t, 0, DereferencePtr[int](nil))
	assert.Equal(t, 9, DereferencePtr(nil, 9))
}

func TestMonthRange(t *testing.T) {
	start, end := MonthRange(2026, time.February)
	assert.Equal(t, time.Date(2026, 2, 1, 0, 0, 0, 0, time.UTC), start)
	assert.Equal(t, time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC), end)

	// year rollover
	start, end = MonthRange(2026, time.December)
	assert.Equal(t, time.Date(2026, 12, 1, 0, 0, 0, 0, time.UTC), start)
	assert.Equal(t, time.Date(2027, 1, 1, 0, 0, 0, 0, time.UTC), end)
}

func TestConvertToDate(t *testing.T) {
	// 02:00 UTC is still the previous day in Lima (UTC-5)
	instant := time.Date(2026, 6, 10, 2, 0, 0, 0, time.UTC)
	date, err := ConvertToDate(instant, "")
	assert.NoError(t, err)
	assert.Equal(t, 9, date.Day())
	assert.Equal(t, 0, date.Hour())

	_, err = ConvertToDate(instant, "Not/AZone")
	assert.Error(t, err)
}
