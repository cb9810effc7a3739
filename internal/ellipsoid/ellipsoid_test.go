package ellipsoid

import (
	"math"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/relabs-tech/magcal/internal/field"
)

// Fixed test rotation: 30° about z composed with 20° about x.
func testRotation() [3][3]float64 {
	return matMul3(rotZ(30*math.Pi/180), rotX(20*math.Pi/180))
}

func rotZ(th float64) [3][3]float64 {
	c, s := math.Cos(th), math.Sin(th)
	return [3][3]float64{{c, -s, 0}, {s, c, 0}, {0, 0, 1}}
}

func rotX(th float64) [3][3]float64 {
	c, s := math.Cos(th), math.Sin(th)
	return [3][3]float64{{1, 0, 0}, {0, c, -s}, {0, s, c}}
}

func matMul3(a, b [3][3]float64) [3][3]float64 {
	var x [3][3]float64
	for i := 0; i < 3; i++ {
		for j := 0; j < 3; j++ {
			for k := 0; k < 3; k++ {
				x[i][j] += a[i][k] * b[k][j]
			}
		}
	}
	return x
}

// softIron is the analytic correction R·diag(f/axes_i)·Rᵀ for an ellipsoid
// with the given principal semi-axes and rotation.
func softIron(rot [3][3]float64, axes field.Vec3, f float64) [3][3]float64 {
	d := [3][3]float64{{f / axes.X, 0, 0}, {0, f / axes.Y, 0}, {0, 0, f / axes.Z}}
	rt := [3][3]float64{}
	for i := 0; i < 3; i++ {
		for j := 0; j < 3; j++ {
			rt[i][j] = rot[j][i]
		}
	}
	return matMul3(matMul3(rot, d), rt)
}

func genPoints(t *testing.T, n int, center, axes field.Vec3, rot [3][3]float64, noise float64, seed int64) []field.Vec3 {
	t.Helper()
	src := field.NewMockSource(seed)
	src.Center = center
	src.Axes = axes
	src.Rot = rot
	src.Noise = noise
	pts := make([]field.Vec3, n)
	for i := range pts {
		s, err := src.Next()
		require.NoError(t, err)
		pts[i] = s.Vec3
	}
	return pts
}

func TestFitLSRecoversExactEllipsoid(t *testing.T) {
	center := field.Vec3{X: 10, Y: -5, Z: 3}
	axes := field.Vec3{X: 60, Y: 45, Z: 50}
	rot := testRotation()
	pts := genPoints(t, 200, center, axes, rot, 0, 1)

	q, err := FitLS(pts)
	require.NoError(t, err)

	geo, err := q.Geometry()
	require.NoError(t, err)

	assert.InDelta(t, center.X, geo.Center.X, 1e-6)
	assert.InDelta(t, center.Y, geo.Center.Y, 1e-6)
	assert.InDelta(t, center.Z, geo.Center.Z, 1e-6)

	// Ascending eigenvalues give descending semi-axes sqrt(−K/λ).
	want := []float64{60, 50, 45}
	for i, l := range geo.Eigvals {
		assert.InDelta(t, want[i], math.Sqrt(-geo.K/l), 1e-6)
	}
}

func TestFitLSInsufficientData(t *testing.T) {
	pts := genPoints(t, 5, field.Vec3{}, field.Vec3{X: 50, Y: 50, Z: 50}, rotZ(0), 0, 2)
	_, err := FitLS(pts)
	assert.ErrorIs(t, err, ErrInsufficientData)
}

func TestFitLSCollinearIsIllConditioned(t *testing.T) {
	pts := make([]field.Vec3, 30)
	for i := range pts {
		s := float64(i) - 15
		pts[i] = field.Vec3{X: s, Y: 2 * s, Z: 3 * s}
	}
	_, err := FitLS(pts)
	assert.ErrorIs(t, err, ErrIllConditioned)
}

func TestIntersectOnSurfacePoint(t *testing.T) {
	center := field.Vec3{X: 1, Y: 2, Z: -1}
	axes := field.Vec3{X: 40, Y: 55, Z: 48}
	pts := genPoints(t, 200, center, axes, testRotation(), 0, 3)

	q, err := FitLS(pts)
	require.NoError(t, err)
	geo, err := q.Geometry()
	require.NoError(t, err)

	for _, p := range pts[:20] {
		surf, ok := Intersect(p, geo.Center, geo.Q, field.Vec3{}, geo.K)
		require.True(t, ok)
		assert.InDelta(t, 0, p.Sub(surf).Norm(), 1e-6)
	}
}

func TestIntersectDegenerateRay(t *testing.T) {
	pts := genPoints(t, 100, field.Vec3{}, field.Vec3{X: 50, Y: 50, Z: 50}, rotZ(0), 0, 4)
	q, err := FitLS(pts)
	require.NoError(t, err)
	geo, err := q.Geometry()
	require.NoError(t, err)

	_, ok := Intersect(geo.Center, geo.Center, geo.Q, field.Vec3{}, geo.K)
	assert.False(t, ok)
}

func TestEstimatorRejectsOutliers(t *testing.T) {
	center := field.Vec3{X: 12, Y: -6, Z: 3}
	axes := field.Vec3{X: 55, Y: 45, Z: 50}
	rot := testRotation()

	src := field.NewMockSource(5)
	src.Center = center
	src.Axes = axes
	src.Rot = rot
	src.Noise = 0.2
	src.OutlierFrac = 0.25
	pts := make([]field.Vec3, 400)
	for i := range pts {
		s, err := src.Next()
		require.NoError(t, err)
		pts[i] = s.Vec3
	}

	est := &Estimator{Iterations: 150, InlierThreshold: 1.0, Rand: rand.New(rand.NewSource(6))}
	q, inliers, err := est.Fit(pts)
	require.NoError(t, err)
	assert.Greater(t, len(inliers), 200)

	geo, err := q.Geometry()
	require.NoError(t, err)
	assert.InDelta(t, center.X, geo.Center.X, 0.5)
	assert.InDelta(t, center.Y, geo.Center.Y, 0.5)
	assert.InDelta(t, center.Z, geo.Center.Z, 0.5)

	// Round trip: every inlier corrected to within the inlier threshold of
	// the reference sphere.
	cal, err := Derive(q, 50)
	require.NoError(t, err)
	for _, i := range inliers {
		assert.InDelta(t, 50, cal.Apply(pts[i]).Norm(), 3*est.InlierThreshold)
	}
}

func TestEstimatorInsufficientData(t *testing.T) {
	pts := genPoints(t, 5, field.Vec3{}, field.Vec3{X: 50, Y: 50, Z: 50}, rotZ(0), 0, 7)
	est := &Estimator{Iterations: 50, InlierThreshold: 1, Rand: rand.New(rand.NewSource(1))}
	_, _, err := est.Fit(pts)
	assert.ErrorIs(t, err, ErrInsufficientData)
}

func TestEstimatorCollinearNoConsensus(t *testing.T) {
	pts := make([]field.Vec3, 40)
	for i := range pts {
		s := float64(i) - 20
		pts[i] = field.Vec3{X: s, Y: -s, Z: 0.5 * s}
	}
	est := &Estimator{Iterations: 50, InlierThreshold: 1, Rand: rand.New(rand.NewSource(2))}
	_, _, err := est.Fit(pts)
	assert.ErrorIs(t, err, ErrNoConsensus)
}

func TestEstimatorDeterministicWithSeed(t *testing.T) {
	pts := genPoints(t, 150, field.Vec3{X: 5, Y: 5, Z: 5}, field.Vec3{X: 52, Y: 47, Z: 50}, testRotation(), 0.3, 8)

	run := func() (Quadric, int) {
		est := &Estimator{Iterations: 60, InlierThreshold: 1.0, Rand: rand.New(rand.NewSource(99))}
		q, in, err := est.Fit(pts)
		require.NoError(t, err)
		return q, len(in)
	}
	q1, n1 := run()
	q2, n2 := run()
	assert.Equal(t, q1, q2)
	assert.Equal(t, n1, n2)
}

// The reference scenario: unit sphere scaled by (2,1,1.5), rotated, centered
// at (0.1,−0.2,0.05), reference field 50 µT.
func TestDeriveReferenceScenario(t *testing.T) {
	center := field.Vec3{X: 0.1, Y: -0.2, Z: 0.05}
	axes := field.Vec3{X: 2, Y: 1, Z: 1.5}
	rot := testRotation()
	pts := genPoints(t, 200, center, axes, rot, 0, 9)

	est := &Estimator{Iterations: 50, InlierThreshold: 0.05, Rand: rand.New(rand.NewSource(10))}
	q, _, err := est.Fit(pts)
	require.NoError(t, err)

	cal, err := Derive(q, 50)
	require.NoError(t, err)

	assert.InDelta(t, center.X, cal.B.X, 1e-3)
	assert.InDelta(t, center.Y, cal.B.Y, 1e-3)
	assert.InDelta(t, center.Z, cal.B.Z, 1e-3)

	want := softIron(rot, axes, 50)
	for i := 0; i < 3; i++ {
		for j := 0; j < 3; j++ {
			assert.InDelta(t, want[i][j], cal.A[i][j], 1e-2)
		}
	}

	for _, p := range pts {
		assert.InDelta(t, 50, cal.Apply(p).Norm(), 1e-6)
	}
}

func TestDeriveRejectsNonEllipsoid(t *testing.T) {
	// A hyperboloid: one negative pure quadratic coefficient.
	q := Quadric{A: 0.7, B: 0.7, C: -0.14, D: -1}
	_, err := Derive(q, 50)
	assert.ErrorIs(t, err, ErrDegenerateGeometry)
}

func TestDeriveRejectsBadReferenceField(t *testing.T) {
	pts := genPoints(t, 100, field.Vec3{}, field.Vec3{X: 50, Y: 50, Z: 50}, rotZ(0), 0, 11)
	q, err := FitLS(pts)
	require.NoError(t, err)
	_, err = Derive(q, 0)
	assert.Error(t, err)
}
