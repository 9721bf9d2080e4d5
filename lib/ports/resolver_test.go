package ports

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/require"
)

type fakeInspector struct {
	ports map[string][]string
	err   error
}

func (f *fakeInspector) InspectImagePorts(_ context.Context, name string) ([]string, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.ports[name], nil
}

type fakeLister struct {
	ports []int
	err   error
}

func (f *fakeLister) UsedPorts(context.Context) ([]int, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.ports, nil
}

func newTestResolver(inspector *fakeInspector, lister *fakeLister) *Resolver {
	r := NewResolver(inspector, lister)
	// Deterministic last-resort port for tests
	r.randPort = func() int { return 35000 }
	return r
}

func TestResolveIntrospectedPort(t *testing.T) {
	inspector := &fakeInspector{ports: map[string][]string{
		"redis:latest": {"6379/tcp"},
	}}
	lister := &fakeLister{ports: []int{6380}}
	r := newTestResolver(inspector, lister)

	got := r.Resolve(context.Background(), "redis:latest")
	require.Equal(t, map[string]int{"6379/tcp": 6381}, got)
}

func TestResolveFirstDeclaredPortWins(t *testing.T) {
	inspector := &fakeInspector{ports: map[string][]string{
		"webapp:v2": {"8080/tcp", "9090/tcp"},
	}}
	r := newTestResolver(inspector, &fakeLister{})

	got := r.Resolve(context.Background(), "webapp:v2")
	require.Equal(t, map[string]int{"8080/tcp": 8081}, got)
}

func TestResolveNameHeuristicsWhenInspectFails(t *testing.T) {
	tests := []struct {
		name     string
		imageRef string
		want     map[string]int
	}{
		{"postgres", "postgres:16", map[string]int{"5432/tcp": 5433}},
		{"redis", "redis:latest", map[string]int{"6379/tcp": 6380}},
		{"mongo", "docker.io/library/mongo:7", map[string]int{"27017/tcp": 27018}},
		{"nginx", "nginx:alpine", map[string]int{"80/tcp": 8080}},
		{"unknown image defaults to 80->8080", "some-custom-app:v1", map[string]int{"80/tcp": 8080}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			inspector := &fakeInspector{err: errors.New("inspect unavailable")}
			r := newTestResolver(inspector, &fakeLister{})

			got := r.Resolve(context.Background(), tt.imageRef)
			require.Equal(t, tt.want, got)
		})
	}
}

func TestResolveUsedPortsFailOpen(t *testing.T) {
	inspector := &fakeInspector{ports: map[string][]string{
		"redis:latest": {"6379/tcp"},
	}}
	lister := &fakeLister{err: errors.New("endpoint down")}
	r := newTestResolver(inspector, lister)

	// A dead used-ports endpoint never blocks allocation.
	got := r.Resolve(context.Background(), "redis:latest")
	require.Equal(t, map[string]int{"6379/tcp": 6380}, got)
}

func TestResolveNeverReturnsUsedPort(t *testing.T) {
	for occupied := 1; occupied < probeWindow; occupied++ {
		used := make([]int, 0, occupied)
		for i := 0; i < occupied; i++ {
			used = append(used, 8080+i)
		}

		inspector := &fakeInspector{ports: map[string][]string{
			"nginx:latest": {"80/tcp"},
		}}
		r := newTestResolver(inspector, &fakeLister{ports: used})

		got := r.Resolve(context.Background(), "nginx:latest")
		require.Len(t, got, 1)
		for _, host := range got {
			require.Equal(t, 8080+occupied, host)
			require.NotContains(t, used, host)
		}
	}
}

func TestResolveDeterministic(t *testing.T) {
	inspector := &fakeInspector{ports: map[string][]string{
		"postgres:16": {"5432/tcp"},
	}}
	lister := &fakeLister{ports: []int{5433, 5434}}
	r := newTestResolver(inspector, lister)

	first := r.Resolve(context.Background(), "postgres:16")
	second := r.Resolve(context.Background(), "postgres:16")
	require.Equal(t, first, second)
	require.Equal(t, map[string]int{"5432/tcp": 5435}, first)
}

func TestProbeRandomFallbackWhenWindowExhausted(t *testing.T) {
	used := make([]int, probeWindow)
	for i := range used {
		used[i] = 8080 + i
	}
	r := newTestResolver(&fakeInspector{ports: map[string][]string{
		"nginx:latest": {"80/tcp"},
	}}, &fakeLister{ports: used})

	got := r.Resolve(context.Background(), "nginx:latest")
	require.Equal(t, map[string]int{"80/tcp": 35000}, got)
}

func TestProbeRandomFallbackRange(t *testing.T) {
	used := make(map[int]struct{}, probeWindow)
	for i := 0; i < probeWindow; i++ {
		used[8080+i] = struct{}{}
	}
	r := NewResolver(&fakeInspector{}, &fakeLister{})

	for i := 0; i < 50; i++ {
		got := r.probe(8080, used)
		require.GreaterOrEqual(t, got, 30000)
		require.Less(t, got, 40000)
	}
}

func TestPreferredHostPort(t *testing.T) {
	tests := []struct {
		name string
		in   int
		want int
	}{
		{"http convention", 80, 8080},
		{"https convention", 443, 8443},
		{"postgres convention", 5432, 5433},
		{"privileged without convention shifts high", 21, 8021},
		{"unprivileged without convention maps through", 4000, 4000},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			require.Equal(t, tt.want, preferredHostPort(tt.in))
		})
	}
}

func TestParsePortSpec(t *testing.T) {
	port, err := parsePortSpec("6379/tcp")
	require.NoError(t, err)
	require.Equal(t, 6379, port)

	_, err = parsePortSpec("not-a-port")
	require.Error(t, err)
}
