package allergen

import (
	"reflect"
	"testing"
)

func TestMatch(t *testing.T) {
	t.Parallel()

	t.Run("single keyword reported once despite repeats", func(t *testing.T) {
		t.Parallel()
		profile := Profile{Common: []Common{Milk}}
		got := Match("milk, more milk, and extra milk solids", profile)
		if !reflect.DeepEqual(got, []string{"Milk"}) {
			t.Errorf("Match = %v, want [Milk]", got)
		}
	})

	t.Run("derivative keywords map to display name", func(t *testing.T) {
		t.Parallel()
		profile := Profile{Common: []Common{Milk}}
		for _, text := range []string{"contains casein", "WHEY protein isolate", "cultured cream"} {
			got := Match(text, profile)
			if !reflect.DeepEqual(got, []string{"Milk"}) {
				t.Errorf("Match(%q) = %v, want [Milk]", text, got)
			}
		}
	})

	t.Run("case insensitive", func(t *testing.T) {
		t.Parallel()
		got := Match("CONTAINS PEANUTS", Profile{Common: []Common{Peanuts}})
		if !reflect.DeepEqual(got, []string{"Peanuts"}) {
			t.Errorf("Match = %v", got)
		}
	})

	t.Run("profile order preserved", func(t *testing.T) {
		t.Parallel()
		profile := Profile{Common: []Common{Wheat, Milk, Soy}}
		got := Match("soy lecithin, milk powder, wheat flour", profile)
		if !reflect.DeepEqual(got, []string{"Wheat", "Milk", "Soy"}) {
			t.Errorf("Match = %v, want profile order", got)
		}
	})

	t.Run("custom allergens matched after common", func(t *testing.T) {
		t.Parallel()
		profile := Profile{Common: []Common{Milk}, Custom: []string{"quinoa"}}
		got := Match("milk and quinoa blend", profile)
		if !reflect.DeepEqual(got, []string{"Milk", "quinoa"}) {
			t.Errorf("Match = %v", got)
		}
	})

	t.Run("no match", func(t *testing.T) {
		t.Parallel()
		if got := Match("water, salt", Profile{Common: []Common{Fish}}); got != nil {
			t.Errorf("Match = %v, want nil", got)
		}
	})

	t.Run("empty inputs", func(t *testing.T) {
		t.Parallel()
		if got := Match("", Profile{Common: []Common{Milk}}); got != nil {
			t.Errorf("empty text: Match = %v", got)
		}
		if got := Match("milk", Profile{}); got != nil {
			t.Errorf("empty profile: Match = %v", got)
		}
	})
}

func TestCommonFromName(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name string
		want Common
		ok   bool
	}{
		{"milk", Milk, true},
		{"Tree nuts", TreeNuts, true},
		{"  SHELLFISH  ", Shellfish, true},
		{"plutonium", 0, false},
	}
	for _, tc := range cases {
		got, ok := CommonFromName(tc.name)
		if ok != tc.ok || (ok && got != tc.want) {
			t.Errorf("CommonFromName(%q) = (%v, %v), want (%v, %v)", tc.name, got, ok, tc.want, tc.ok)
		}
	}
}

func TestProfileNames(t *testing.T) {
	t.Parallel()

	p := Profile{Common: []Common{Eggs, Sesame}, Custom: []string{"kiwi"}}
	want := []string{"Eggs", "Sesame", "kiwi"}
	if got := p.Names(); !reflect.DeepEqual(got, want) {
		t.Errorf("Names = %v, want %v", got, want)
	}

	if !(Profile{}).IsEmpty() {
		t.Error("zero profile should be empty")
	}
}
