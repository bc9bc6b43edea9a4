package models

import "testing"

func TestLessonStars(t *testing.T) {
	cases := []struct {
		uses int
		want string
	}{
		{0, "-----"},
		{1, "*----"},
		{4, "*----"},
		{5, "**---"},
		{9, "**---"},
		{10, "***--"},
		{49, "***--"},
		{50, "****-"},
		{99, "****-"},
		{100, "*****"},
	}
	for _, c := range cases {
		l := &Lesson{Uses: c.uses}
		if got := l.Stars(); got != c.want {
			t.Errorf("Stars(uses=%d) = %q, want %q", c.uses, got, c.want)
		}
	}
}

func TestLessonVelocityStars(t *testing.T) {
	cases := []struct {
		velocity float64
		want     string
	}{
		{0, "-----"},
		{0.05, "*----"},
		{0.1, "*----"},
		{0.5, "**---"},
		{1.0, "***--"},
		{2.0, "****-"},
		{4.0, "*****"},
		{10.0, "*****"},
	}
	for _, c := range cases {
		l := &Lesson{Velocity: c.velocity}
		if got := l.VelocityStars(); got != c.want {
			t.Errorf("VelocityStars(v=%v) = %q, want %q", c.velocity, got, c.want)
		}
	}
}

func TestLessonCiteSaturates(t *testing.T) {
	l := &Lesson{Uses: MaxUses - 1}
	l.Cite()
	if l.Uses != MaxUses {
		t.Fatalf("expected Uses=%d, got %d", MaxUses, l.Uses)
	}
	l.Cite()
	if l.Uses != MaxUses {
		t.Fatalf("Uses must saturate at %d, got %d", MaxUses, l.Uses)
	}
}

func TestLessonIsStale(t *testing.T) {
	l := &Lesson{LastUsed: daysAgo(61)}
	if !l.IsStale(StaleDaysDefault) {
		t.Fatal("expected stale at 61 days with 60-day threshold")
	}

	l2 := &Lesson{LastUsed: daysAgo(60)}
	if l2.IsStale(60) {
		t.Fatal("exactly at threshold should not be stale")
	}
}

func TestNormalizedTitle(t *testing.T) {
	l := &Lesson{Title: "  Don't Use eval()!  "}
	got := l.NormalizedTitle()
	want := "dont use eval"
	if got != want {
		t.Fatalf("NormalizedTitle() = %q, want %q", got, want)
	}
}

func TestSanitizeTruncatesAndStripsControlBytes(t *testing.T) {
	in := "abc\x00\x01def"
	got := Sanitize(in, 100)
	if got != "abcdef" {
		t.Fatalf("Sanitize stripped wrong: %q", got)
	}

	long := make([]byte, 50)
	for i := range long {
		long[i] = 'a'
	}
	got2 := Sanitize(string(long), 10)
	if len(got2) != 10 {
		t.Fatalf("Sanitize did not truncate: len=%d", len(got2))
	}
}
