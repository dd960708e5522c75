package foc

import (
	"math"
	"testing"
)

const eps = 1e-4

func near(a, b, tol float32) bool {
	return math.Abs(float64(a-b)) <= float64(tol)
}

func TestClarkeBalanced(t *testing.T) {
	// 1 A peak at 0 rad electrical
	ia := float32(1)
	ib := float32(-0.5)
	ic := float32(-0.5)

	alpha, beta := Clarke(ia, ib, ic)
	if !near(alpha, 1, eps) || !near(beta, 0, eps) {
		t.Errorf("Clarke(1,-0.5,-0.5) = (%f, %f), want (1, 0)", alpha, beta)
	}

	// 90 degrees
	ia = 0
	ib = Sqrt3 / 2
	ic = -Sqrt3 / 2
	alpha, beta = Clarke(ia, ib, ic)
	if !near(alpha, 0, eps) || !near(beta, 1, eps) {
		t.Errorf("Clarke at 90deg = (%f, %f), want (0, 1)", alpha, beta)
	}
}

func TestParkInverse(t *testing.T) {
	angles := []float32{0, 0.3, 1.2, 2.5, 3.14159, 4.4, 5.9}
	for _, theta := range angles {
		s, c := SinCos(theta)
		q, d := Park(0.7, -0.2, s, c)
		alpha, beta := InvPark(q, d, s, c)
		if !near(alpha, 0.7, eps) || !near(beta, -0.2, eps) {
			t.Errorf("theta=%f: InvPark(Park(x)) = (%f, %f), want (0.7, -0.2)", theta, alpha, beta)
		}
	}
}

func TestParkAlignedVector(t *testing.T) {
	// A stationary vector aligned with the rotor flux is pure d-axis
	theta := float32(0.8)
	s, c := SinCos(theta)
	q, d := Park(c, s, s, c)
	if !near(q, 0, eps) || !near(d, 1, eps) {
		t.Errorf("Park(aligned) = (q=%f, d=%f), want (0, 1)", q, d)
	}
}

func TestSVPWMPreservesLineVoltages(t *testing.T) {
	cases := []struct{ alpha, beta float32 }{
		{1, 0}, {0, 1}, {-0.4, 0.9}, {0.3, -0.7}, {0, 0},
	}
	for _, tc := range cases {
		a, b, c := InvClarkeSVPWM(tc.alpha, tc.beta)

		// plain inverse Clarke for reference
		ra := tc.alpha
		rb := -0.5*tc.alpha + 0.5*Sqrt3*tc.beta
		rc := -0.5*tc.alpha - 0.5*Sqrt3*tc.beta

		if !near(a-b, ra-rb, eps) || !near(b-c, rb-rc, eps) {
			t.Errorf("(%f,%f): line voltages changed: got a-b=%f b-c=%f want %f %f",
				tc.alpha, tc.beta, a-b, b-c, ra-rb, rb-rc)
		}

		// centred: max and min symmetric around zero
		vmax := max(a, b, c)
		vmin := min(a, b, c)
		if !near(vmax+vmin, 0, eps) {
			t.Errorf("(%f,%f): output not centred, max=%f min=%f", tc.alpha, tc.beta, vmax, vmin)
		}
	}
}

// Clarke → Park → InvPark → InvClarkeSVPWM → Clarke returns the original vector
// when no clamping is involved.
func TestTransformRoundTrip(t *testing.T) {
	for i := 0; i < 24; i++ {
		theta := float32(i) * TwoPi / 24
		ia := 2 * float32(math.Cos(float64(theta)))
		ib := 2 * float32(math.Cos(float64(theta)-2*math.Pi/3))
		ic := -ia - ib

		alpha, beta := Clarke(ia, ib, ic)
		s, c := SinCos(0.37 * float32(i))
		q, d := Park(alpha, beta, s, c)
		va, vb := InvPark(q, d, s, c)
		a, b, cc := InvClarkeSVPWM(va, vb)

		// remove the injected common mode before transforming back
		mean := (a + b + cc) / 3
		gotAlpha, gotBeta := Clarke(a-mean, b-mean, cc-mean)
		if !near(gotAlpha, alpha, 1e-3) || !near(gotBeta, beta, 1e-3) {
			t.Errorf("step %d: round trip (%f,%f) -> (%f,%f)", i, alpha, beta, gotAlpha, gotBeta)
		}
	}
}

func TestDutyGuardsZeroBus(t *testing.T) {
	if got := Duty(3, 0); got != 0.5 {
		t.Errorf("Duty with zero bus = %f, want 0.5", got)
	}
	if got := Duty(-3, -1); got != 0.5 {
		t.Errorf("Duty with negative bus = %f, want 0.5", got)
	}
	if got := Duty(6, 12); got != 1 {
		t.Errorf("Duty(6,12) = %f, want 1", got)
	}
	if got := Duty(-100, 12); got != 0 {
		t.Errorf("Duty(-100,12) = %f, want 0 (clamped)", got)
	}
}

func TestClampMagnitude(t *testing.T) {
	vbus := float32(12)
	limit := OvermodulationFactor * vbus * vbus
	// a 45° vector lands on the circle with equal components
	want := float32(math.Sqrt(float64(limit) / 2))
	q, d := ClampMagnitude(20, 20, limit)
	if !near(q, want, 1e-3) || !near(d, want, 1e-3) {
		t.Errorf("ClampMagnitude(20,20) = (%f,%f), want (%f,%f)", q, d, want, want)
	}
	if norm := q*q + d*d; norm > limit*(1+1e-5) {
		t.Errorf("clamped norm %f exceeds limit %f", norm, limit)
	}

	q, d = ClampMagnitude(3, 4, limit)
	if q != 3 || d != 4 {
		t.Errorf("vector inside limit was modified: (%f,%f)", q, d)
	}

	q, d = ClampMagnitude(30, 0, 0)
	if q != 30 || d != 0 {
		t.Errorf("zero limit should pass through, got (%f,%f)", q, d)
	}
}

func TestClampMagnitudeLargeInputs(t *testing.T) {
	vbus := float32(12)
	limitSq := OvermodulationFactor * vbus * vbus
	limit := float32(math.Sqrt(float64(limitSq)))
	inf := float32(math.Inf(1))
	nan := float32(math.NaN())
	diag := limit / float32(math.Sqrt2)

	cases := []struct {
		name         string
		x, y         float32
		wantX, wantY float32
	}{
		{"squares overflow", 1e20, 0, limit, 0},
		{"both huge", -3e38, 3e38, -diag, diag},
		{"positive infinity", inf, 1, limit, 0},
		{"opposed infinities", -inf, inf, -diag, diag},
		{"nan x", nan, 5, 0, 5},
		{"nan both", nan, nan, 0, 0},
	}
	for _, tc := range cases {
		x, y := ClampMagnitude(tc.x, tc.y, limitSq)
		if !near(x, tc.wantX, 1e-3) || !near(y, tc.wantY, 1e-3) {
			t.Errorf("%s: got (%f,%f), want (%f,%f)", tc.name, x, y, tc.wantX, tc.wantY)
		}
	}
}

func TestClampAndDutyRejectNaN(t *testing.T) {
	nan := float32(math.NaN())
	if got := Clamp(nan, -5, 5); got != 0 {
		t.Errorf("Clamp(NaN,-5,5) = %f, want 0", got)
	}
	if got := Clamp(nan, 1, 5); got != 1 {
		t.Errorf("Clamp(NaN,1,5) = %f, want 1", got)
	}
	if got := Duty(nan, 12); got != 0.5 {
		t.Errorf("Duty(NaN,12) = %f, want 0.5", got)
	}
	if got := Duty(3, nan); got != 0.5 {
		t.Errorf("Duty(3,NaN) = %f, want 0.5", got)
	}
	if got := Duty(float32(math.Inf(1)), 12); got != 1 {
		t.Errorf("Duty(+Inf,12) = %f, want 1", got)
	}
}

func TestWrapAngle(t *testing.T) {
	cases := []struct{ in, want float32 }{
		{0, 0},
		{-0.5, TwoPi - 0.5},
		{TwoPi + 1, 1},
		{3 * TwoPi, 0},
	}
	for _, tc := range cases {
		got := WrapAngle(tc.in)
		if got < 0 || got >= TwoPi {
			t.Errorf("WrapAngle(%f) = %f, outside [0, 2π)", tc.in, got)
		}
		if !sameAngle(got, tc.want, 1e-4) {
			t.Errorf("WrapAngle(%f) = %f, want %f", tc.in, got, tc.want)
		}
	}
}

// sameAngle compares two angles modulo 2π.
func sameAngle(a, b, tol float32) bool {
	d := math.Mod(math.Abs(float64(a-b)), 2*math.Pi)
	return d <= float64(tol) || 2*math.Pi-d <= float64(tol)
}

func TestLowPassAlpha(t *testing.T) {
	a := LowPassAlpha(1000, 20000)
	if a <= 0 || a >= 1 {
		t.Fatalf("alpha out of range: %f", a)
	}
	// 1 kHz at 20 kHz is roughly 0.239
	if !near(a, 0.239, 0.01) {
		t.Errorf("LowPassAlpha(1000, 20000) = %f, want ~0.239", a)
	}
	if LowPassAlpha(0, 20000) != 1 {
		t.Error("zero bandwidth should disable filtering")
	}
}
