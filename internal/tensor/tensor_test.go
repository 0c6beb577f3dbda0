package tensor

import (
	"testing"
)

func TestShapeNumElements(t *testing.T) {
	tests := []struct {
		shape Shape
		want  int
	}{
		{Shape{}, 1},
		{Shape{5}, 5},
		{Shape{2, 3}, 6},
		{Shape{2, 3, 4, 4}, 96},
	}
	for _, tt := range tests {
		if got := tt.shape.NumElements(); got != tt.want {
			t.Errorf("%v.NumElements() = %d, want %d", tt.shape, got, tt.want)
		}
	}
}

func TestShapeValidate(t *testing.T) {
	if err := (Shape{2, 3}).Validate(); err != nil {
		t.Errorf("valid shape rejected: %v", err)
	}
	if err := (Shape{2, 0}).Validate(); err == nil {
		t.Error("zero dimension accepted")
	}
	if err := (Shape{-1, 3}).Validate(); err == nil {
		t.Error("negative dimension accepted")
	}
}

func TestShapeEqual(t *testing.T) {
	if !(Shape{2, 3}).Equal(Shape{2, 3}) {
		t.Error("equal shapes reported unequal")
	}
	if (Shape{2, 3}).Equal(Shape{3, 2}) {
		t.Error("different shapes reported equal")
	}
	if (Shape{2, 3}).Equal(Shape{2, 3, 1}) {
		t.Error("shapes of different rank reported equal")
	}
}

func TestShapeCloneIndependent(t *testing.T) {
	s := Shape{2, 3}
	c := s.Clone()
	c[0] = 99
	if s[0] != 2 {
		t.Error("Clone shares backing array")
	}
}

func TestComputeStrides(t *testing.T) {
	strides := Shape{2, 3, 4}.ComputeStrides()
	want := []int{12, 4, 1}
	for i := range want {
		if strides[i] != want[i] {
			t.Errorf("strides = %v, want %v", strides, want)
			break
		}
	}
}

func TestDataTypeSize(t *testing.T) {
	if Float32.Size() != 4 {
		t.Errorf("Float32.Size() = %d, want 4", Float32.Size())
	}
	if Float64.Size() != 8 {
		t.Errorf("Float64.Size() = %d, want 8", Float64.Size())
	}
}

func TestNewRaw(t *testing.T) {
	r, err := NewRaw(Shape{2, 3}, Float32, CPU)
	if err != nil {
		t.Fatalf("NewRaw: %v", err)
	}
	if !r.Shape().Equal(Shape{2, 3}) {
		t.Errorf("shape = %v", r.Shape())
	}
	if len(r.Bytes()) != 24 {
		t.Errorf("buffer size = %d, want 24", len(r.Bytes()))
	}
	data := r.AsFloat32()
	if len(data) != 6 {
		t.Fatalf("AsFloat32 length = %d, want 6", len(data))
	}
	for i, v := range data {
		if v != 0 {
			t.Errorf("element %d = %v, want 0", i, v)
		}
	}
}

func TestNewRawInvalidShape(t *testing.T) {
	if _, err := NewRaw(Shape{2, -1}, Float32, CPU); err == nil {
		t.Error("invalid shape accepted")
	}
}

func TestAsFloat32WrongDTypePanics(t *testing.T) {
	r := MustRaw(Shape{2}, Float64, CPU)
	defer func() {
		if recover() == nil {
			t.Error("AsFloat32 on float64 tensor did not panic")
		}
	}()
	r.AsFloat32()
}

func TestRawClone(t *testing.T) {
	r := MustRaw(Shape{3}, Float32, CPU)
	r.AsFloat32()[0] = 7
	c := r.Clone()
	c.AsFloat32()[0] = 9
	if r.AsFloat32()[0] != 7 {
		t.Error("Clone shares backing buffer")
	}
}

func TestWithShape(t *testing.T) {
	r := MustRaw(Shape{2, 3}, Float32, CPU)
	for i := range r.AsFloat32() {
		r.AsFloat32()[i] = float32(i)
	}
	v := r.WithShape(Shape{3, 2})
	if !v.Shape().Equal(Shape{3, 2}) {
		t.Errorf("shape = %v", v.Shape())
	}
	for i, x := range v.AsFloat32() {
		if x != float32(i) {
			t.Errorf("element %d = %v", i, x)
		}
	}
}

func TestWithShapeElementCountMismatchPanics(t *testing.T) {
	r := MustRaw(Shape{2, 3}, Float32, CPU)
	defer func() {
		if recover() == nil {
			t.Error("element-count-changing reshape did not panic")
		}
	}()
	r.WithShape(Shape{4, 2})
}
