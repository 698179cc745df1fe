package domain

import "testing"

func TestEntryFilter_Normalize(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		in   EntryFilter
		want EntryFilter
	}{
		{name: "defaults", in: EntryFilter{}, want: EntryFilter{Limit: 50}},
		{name: "clamps limit", in: EntryFilter{Limit: 1000}, want: EntryFilter{Limit: 200}},
		{name: "negative offset", in: EntryFilter{Limit: 5, Offset: -4}, want: EntryFilter{Limit: 5}},
		{
			name: "normalizes text",
			in:   EntryFilter{Name: "  Fibonacci   NUMBERS ", Keyword: "Nice", Limit: 10, Offset: 20},
			want: EntryFilter{Name: "fibonacci numbers", Keyword: "nice", Limit: 10, Offset: 20},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			f := tt.in
			f.Normalize()
			if f != tt.want {
				t.Errorf("Normalize() = %+v, want %+v", f, tt.want)
			}
		})
	}
}
