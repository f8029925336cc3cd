package faults

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testRecord(i int, cat Category) *Record {
	return &Record{
		ID:       fmt.Sprintf("err_test_%d", i),
		Category: cat,
	}
}

func TestLogEvictsOldest(t *testing.T) {
	l := NewLog(3)

	for i := 0; i < 5; i++ {
		l.Append(testRecord(i, CategoryUnknown))
	}

	assert.Equal(t, 3, l.Len())
	recent := l.Recent(0)
	require.Len(t, recent, 3)
	assert.Equal(t, "err_test_2", recent[0].ID)
	assert.Equal(t, "err_test_4", recent[2].ID)
}

func TestLogRecentSubset(t *testing.T) {
	l := NewLog(10)
	for i := 0; i < 4; i++ {
		l.Append(testRecord(i, CategoryUnknown))
	}

	recent := l.Recent(2)
	require.Len(t, recent, 2)
	assert.Equal(t, "err_test_2", recent[0].ID)
	assert.Equal(t, "err_test_3", recent[1].ID)
}

func TestLogStatsSurviveEviction(t *testing.T) {
	l := NewLog(2)
	l.Append(testRecord(0, CategoryMergeFailed))
	l.Append(testRecord(1, CategoryMergeFailed))
	l.Append(testRecord(2, CategoryCancelled))

	stats := l.Stats()
	assert.Equal(t, 2, stats[CategoryMergeFailed])
	assert.Equal(t, 1, stats[CategoryCancelled])
	assert.Equal(t, 2, l.Len())
}

func TestLogClear(t *testing.T) {
	l := NewLog(5)
	l.Append(testRecord(0, CategoryCleanup))
	l.Clear()

	assert.Equal(t, 0, l.Len())
	assert.Empty(t, l.Stats())
	assert.Empty(t, l.Recent(0))
}

func TestLogIgnoresNil(t *testing.T) {
	l := NewLog(5)
	l.Append(nil)
	assert.Equal(t, 0, l.Len())
}
