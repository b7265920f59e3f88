package resources

import "testing"

func TestGreaterOrEqual(t *testing.T) {
	cases := []struct {
		name     string
		left     ClusterResource
		right    ClusterResource
		expected bool
	}{
		{
			name:     "equal is geq",
			left:     New(Axis{"default": 4}, Axis{"default": 8}, Axis{"A100": 2}),
			right:    New(Axis{"default": 4}, Axis{"default": 8}, Axis{"A100": 2}),
			expected: true,
		},
		{
			name:     "missing right key defaults to zero",
			left:     New(Axis{"default": 4}, nil, Axis{"A100": 2}),
			right:    New(nil, nil, nil),
			expected: true,
		},
		{
			name:     "short on one sku fails",
			left:     New(nil, nil, Axis{"A100": 1}),
			right:    New(nil, nil, Axis{"A100": 2}),
			expected: false,
		},
		{
			name:     "one unit more is denied",
			left:     New(nil, nil, Axis{"A100": 4}),
			right:    New(nil, nil, Axis{"A100": 5}),
			expected: false,
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := tc.left.GreaterOrEqual(tc.right); got != tc.expected {
				t.Errorf("GreaterOrEqual() = %v, want %v", got, tc.expected)
			}
		})
	}
}

func TestAddSub(t *testing.T) {
	r := New(nil, nil, Axis{"A100": 4})
	used := New(nil, nil, Axis{"A100": 4})
	remaining := r.Sub(used)
	if remaining.GPU["A100"] != 0 {
		t.Fatalf("expected 0 remaining, got %v", remaining.GPU["A100"])
	}
	back := remaining.Add(used)
	if back.GPU["A100"] != 4 {
		t.Fatalf("expected 4 after re-adding, got %v", back.GPU["A100"])
	}
}

func TestScaleDiscount(t *testing.T) {
	r := New(Axis{"default": 100}, Axis{"default": 100}, Axis{"A100": 100})
	discounted := r.Scale(0.95)
	if discounted.CPU["default"] != 95 {
		t.Fatalf("expected 95, got %v", discounted.CPU["default"])
	}
	if discounted.GPU["A100"] != 95 {
		t.Fatalf("expected 95, got %v", discounted.GPU["A100"])
	}
}

func TestHasEmptyGPUOrCPU(t *testing.T) {
	if !New(nil, Axis{"default": 1}, nil).HasEmptyGPUOrCPU() {
		t.Fatal("expected empty gpu axis to report empty")
	}
	if !New(Axis{"default": 0}, nil, Axis{"A100": 1}).HasEmptyGPUOrCPU() {
		t.Fatal("expected all-zero cpu axis to report empty")
	}
	if New(Axis{"default": 1}, nil, Axis{"A100": 1}).HasEmptyGPUOrCPU() {
		t.Fatal("did not expect empty report when both axes hold positive amounts")
	}
}

func TestCloneIsIndependent(t *testing.T) {
	r := New(nil, nil, Axis{"A100": 4})
	clone := r.Clone()
	clone.GPU["A100"] = 0
	if r.GPU["A100"] != 4 {
		t.Fatalf("mutating clone mutated original: %v", r.GPU["A100"])
	}
}
