package tensor

import "testing"

func TestImageShape(t *testing.T) {
	s := ImageShape(48, 32)
	if !s.Equal(Shape{1, 32, 48, 3}) {
		t.Fatalf("unexpected shape %s", s)
	}
	if s.Size() != 32*48*3 {
		t.Fatalf("unexpected size %d", s.Size())
	}
	if s.String() != "(1,32,48,3)" {
		t.Fatalf("unexpected string %s", s)
	}
}

func TestShapeEqual(t *testing.T) {
	cases := []struct {
		a, b Shape
		want bool
	}{
		{Shape{1, 224, 224, 3}, Shape{1, 224, 224, 3}, true},
		{Shape{1, 48, 48, 3}, Shape{1, 224, 224, 3}, false},
		{Shape{1, 2, 3}, Shape{1, 2, 3, 1}, false},
		{Shape{}, Shape{}, true},
	}
	for _, tc := range cases {
		if got := tc.a.Equal(tc.b); got != tc.want {
			t.Fatalf("%s == %s: got %v want %v", tc.a, tc.b, got, tc.want)
		}
	}
}

func TestFromDataRejectsWrongLength(t *testing.T) {
	if _, err := FromData(Shape{1, 2, 2, 3}, make([]float32, 5)); err == nil {
		t.Fatal("expected error")
	}
}

func TestNCHW(t *testing.T) {
	// 1x1x2x3: two pixels, RGB each.
	src, err := FromData(Shape{1, 1, 2, 3}, []float32{1, 2, 3, 4, 5, 6})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	got, err := src.NCHW()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	want := []float32{1, 4, 2, 5, 3, 6}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("index %d: got %v want %v", i, got[i], want[i])
		}
	}
}
