package diarization

import (
	"reflect"
	"testing"
)

func TestMerge(t *testing.T) {
	tests := []struct {
		name     string
		input    []Interval
		expected []Interval
	}{
		{
			name: "same speaker run collapses",
			input: []Interval{
				{Start: 0, End: 2, Speaker: "A"},
				{Start: 2, End: 4, Speaker: "A"},
				{Start: 4, End: 5, Speaker: "B"},
			},
			expected: []Interval{
				{Start: 0, End: 4, Speaker: "A"},
				{Start: 4, End: 5, Speaker: "B"},
			},
		},
		{
			name:     "single interval unchanged",
			input:    []Interval{{Start: 1.5, End: 3.25, Speaker: "SPEAKER_00"}},
			expected: []Interval{{Start: 1.5, End: 3.25, Speaker: "SPEAKER_00"}},
		},
		{
			name: "alternating speakers unchanged",
			input: []Interval{
				{Start: 0, End: 1, Speaker: "A"},
				{Start: 1, End: 2, Speaker: "B"},
				{Start: 2, End: 3, Speaker: "A"},
			},
			expected: []Interval{
				{Start: 0, End: 1, Speaker: "A"},
				{Start: 1, End: 2, Speaker: "B"},
				{Start: 2, End: 3, Speaker: "A"},
			},
		},
		{
			name: "run ends with last interval end",
			input: []Interval{
				{Start: 0, End: 5, Speaker: "A"},
				{Start: 1, End: 3, Speaker: "A"},
				{Start: 3, End: 4, Speaker: "B"},
				{Start: 4, End: 6, Speaker: "B"},
				{Start: 6, End: 7, Speaker: "B"},
			},
			expected: []Interval{
				{Start: 0, End: 3, Speaker: "A"},
				{Start: 3, End: 7, Speaker: "B"},
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := Merge(tt.input)
			if !reflect.DeepEqual(result, tt.expected) {
				t.Errorf("Expected %+v, got %+v", tt.expected, result)
			}
		})
	}
}

func TestMerge_Empty(t *testing.T) {
	for _, input := range [][]Interval{nil, {}} {
		result := Merge(input)
		if result == nil {
			t.Fatal("Expected non-nil slice")
		}
		if len(result) != 0 {
			t.Errorf("Expected empty slice, got %+v", result)
		}
	}
}

func TestMerge_NoAdjacentSameSpeaker(t *testing.T) {
	speakers := []string{"A", "A", "B", "B", "B", "A", "C", "C", "A", "A"}
	input := make([]Interval, len(speakers))
	for i, s := range speakers {
		input[i] = Interval{Start: float64(i), End: float64(i + 1), Speaker: s}
	}

	result := Merge(input)

	if len(result) != 5 {
		t.Fatalf("Expected 5 intervals, got %d: %+v", len(result), result)
	}
	for i := 1; i < len(result); i++ {
		if result[i].Speaker == result[i-1].Speaker {
			t.Errorf("Adjacent intervals %d and %d share speaker %s", i-1, i, result[i].Speaker)
		}
		if result[i].Start < result[i-1].Start {
			t.Errorf("Interval %d starts before interval %d", i, i-1)
		}
	}
}

func TestMerge_DoesNotMutateInput(t *testing.T) {
	input := []Interval{
		{Start: 0, End: 2, Speaker: "A"},
		{Start: 2, End: 4, Speaker: "A"},
	}
	Merge(input)

	if input[1].Start != 2 {
		t.Errorf("Expected input to be untouched, got %+v", input[1])
	}
}

func TestSortIntervals(t *testing.T) {
	input := []Interval{
		{Start: 4, End: 5, Speaker: "B"},
		{Start: 0, End: 2, Speaker: "A"},
		{Start: 2, End: 3, Speaker: "C"},
		{Start: 2, End: 4, Speaker: "A"},
	}

	result := SortIntervals(input)

	expected := []Interval{
		{Start: 0, End: 2, Speaker: "A"},
		{Start: 2, End: 3, Speaker: "C"},
		{Start: 2, End: 4, Speaker: "A"},
		{Start: 4, End: 5, Speaker: "B"},
	}
	if !reflect.DeepEqual(result, expected) {
		t.Errorf("Expected stable order %+v, got %+v", expected, result)
	}
	if input[0].Speaker != "B" {
		t.Error("Expected input slice to be left unsorted")
	}
}
