package model

import (
	"testing"
)

func TestSplitIDs(t *testing.T) {
	cases := []struct {
		in   string
		want []int
	}{
		{"", nil},
		{"   ", nil},
		{"7", []int{7}},
		{"7,9,1904", []int{7, 9, 1904}},
		{" 7 , 9 ", []int{7, 9}},
		{"7,,9", []int{7, 9}},
		{"7,abc,9", []int{7, 9}},
	}
	for _, tc := range cases {
		got := SplitIDs(tc.in)
		if len(got) != len(tc.want) {
			t.Errorf("SplitIDs(%q) = %v, want %v", tc.in, got, tc.want)
			continue
		}
		for i := range got {
			if got[i] != tc.want[i] {
				t.Errorf("SplitIDs(%q) = %v, want %v", tc.in, got, tc.want)
				break
			}
		}
	}
}

func TestJoinIDs_RoundTrip(t *testing.T) {
	if got := JoinIDs(nil); got != "" {
		t.Errorf("JoinIDs(nil) = %q", got)
	}
	if got := JoinIDs([]int{7, 9}); got != "7,9" {
		t.Errorf("JoinIDs = %q", got)
	}

	alert := Alert{BrandIDs: JoinIDs([]int{7, 9}), ConditionIDs: JoinIDs([]int{1})}
	if ids := alert.BrandIDList(); len(ids) != 2 || ids[0] != 7 || ids[1] != 9 {
		t.Errorf("BrandIDList = %v", ids)
	}
	if ids := alert.ConditionIDList(); len(ids) != 1 || ids[0] != 1 {
		t.Errorf("ConditionIDList = %v", ids)
	}
	if ids := alert.SizeIDList(); ids != nil {
		t.Errorf("SizeIDList = %v, want nil", ids)
	}
}
