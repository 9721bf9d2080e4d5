package ports

import (
	"context"
	"strconv"
	"strings"

	"github.com/armoureye/intake/lib/logger"
)

const (
	defaultPortSpec = "80/tcp"
	defaultHostPort = 8080
)

// strategy proposes a container port spec and a preferred host port for an
// image. Strategies are composed by first-success selection.
type strategy func(ctx context.Context, imageRef string) (portSpec string, hostPort int, ok bool)

func (r *Resolver) strategies() []strategy {
	return []strategy{
		r.introspectedPort,
		knownImagePort,
		defaultPort,
	}
}

// hostConventions maps well-known container ports to their conventional
// host-port offsets.
var hostConventions = map[int]int{
	80:    8080,
	443:   8443,
	3000:  3001,
	3306:  3307,
	5000:  5001,
	5432:  5433,
	6379:  6380,
	8080:  8081,
	9090:  9091,
	9200:  9201,
	27017: 27018,
}

// knownImages maps image-name substrings to conventional port bindings.
// Checked in order; first substring match wins.
var knownImages = []struct {
	substr   string
	portSpec string
	hostPort int
}{
	{"postgres", "5432/tcp", 5433},
	{"mysql", "3306/tcp", 3307},
	{"mariadb", "3306/tcp", 3307},
	{"mongo", "27017/tcp", 27018},
	{"redis", "6379/tcp", 6380},
	{"elasticsearch", "9200/tcp", 9201},
	{"nginx", "80/tcp", 8080},
	{"httpd", "80/tcp", 8080},
	{"caddy", "80/tcp", 8080},
	{"tomcat", "8080/tcp", 8081},
	{"node", "3000/tcp", 3001},
	{"flask", "5000/tcp", 5001},
	{"django", "8000/tcp", 8001},
}

// introspectedPort takes the first of the image's declared exposed ports.
// Fails open when introspection is unreachable or reports nothing.
func (r *Resolver) introspectedPort(ctx context.Context, imageRef string) (string, int, bool) {
	exposed, err := r.inspector.InspectImagePorts(ctx, imageRef)
	if err != nil {
		logger.FromContext(ctx).WarnContext(ctx, "image inspect failed, using name heuristics",
			"image", imageRef, "error", err)
		return "", 0, false
	}
	if len(exposed) == 0 {
		return "", 0, false
	}

	spec := exposed[0]
	port, err := parsePortSpec(spec)
	if err != nil {
		return "", 0, false
	}
	return spec, preferredHostPort(port), true
}

// knownImagePort matches well-known image names to conventional bindings.
func knownImagePort(_ context.Context, imageRef string) (string, int, bool) {
	name := strings.ToLower(imageRef)
	for _, entry := range knownImages {
		if strings.Contains(name, entry.substr) {
			return entry.portSpec, entry.hostPort, true
		}
	}
	return "", 0, false
}

// defaultPort is the total fallback: 80/tcp -> 8080.
func defaultPort(context.Context, string) (string, int, bool) {
	return defaultPortSpec, defaultHostPort, true
}

// preferredHostPort picks a host port for a raw container port. Ports with a
// safe convention use it; privileged ports shift above 8000; the rest map
// straight through.
func preferredHostPort(containerPort int) int {
	if host, ok := hostConventions[containerPort]; ok {
		return host
	}
	if containerPort < 1024 {
		return containerPort + 8000
	}
	return containerPort
}

// parsePortSpec extracts the numeric port from a "6379/tcp" specifier.
func parsePortSpec(spec string) (int, error) {
	num, _, _ := strings.Cut(spec, "/")
	return strconv.Atoi(num)
}
