package libbuild

import (
	"archive/zip"
	"bufio"
	"encoding/xml"
	"io"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/DeusData/docgraph/internal/domain"
)

// Coordinate strategies, in the order they are tried.
const (
	StrategyPomProperties = "pom.properties"
	StrategyPomXML        = "pom.xml"
	StrategyManifest      = "manifest"
	StrategyGradleCache   = "gradle-cache"
	StrategyMavenRepo     = "maven-repo"
	StrategyFileName      = "file-name"
)

var (
	versionSuffix   = regexp.MustCompile(`-(\d+(\.\d+).*)$`)
	gradleCachePath = regexp.MustCompile(`(?i)/\.gradle/caches/modules-\d+/files-[\d.]+/([^/]+)/([^/]+)/([^/]+)/[^/]+/[^/]+\.jar$`)
)

// repoStopWords end the walk up a repository path when collecting a group id.
var repoStopWords = map[string]bool{
	"repository": true, "libs": true, ".m2": true, ".gradle": true,
	"caches": true, "maven": true, "m2": true,
}

// maxScannedClasses bounds the package scan of the file name strategy.
const maxScannedClasses = 1000

// ParseCoordinate determines the coordinate of the jar at path. It returns
// the name of the strategy that produced it.
func ParseCoordinate(path string, zr *zip.Reader) (domain.Coordinate, string, bool) {
	strategies := []struct {
		name string
		fn   func() (domain.Coordinate, bool)
	}{
		{StrategyPomProperties, func() (domain.Coordinate, bool) { return fromPomProperties(zr) }},
		{StrategyPomXML, func() (domain.Coordinate, bool) { return fromPomXML(zr) }},
		{StrategyManifest, func() (domain.Coordinate, bool) { return fromManifest(zr) }},
		{StrategyGradleCache, func() (domain.Coordinate, bool) { return fromGradleCache(path) }},
		{StrategyMavenRepo, func() (domain.Coordinate, bool) { return fromMavenRepo(path) }},
		{StrategyFileName, func() (domain.Coordinate, bool) { return fromFileName(path, zr) }},
	}
	for _, s := range strategies {
		if c, ok := s.fn(); ok && complete(c) {
			return c, s.name, true
		}
	}
	return domain.Coordinate{}, "", false
}

func complete(c domain.Coordinate) bool {
	return c.Group != "" && c.Artifact != "" && c.Version != ""
}

func readEntry(f *zip.File) ([]byte, error) {
	rc, err := f.Open()
	if err != nil {
		return nil, err
	}
	defer rc.Close()
	return io.ReadAll(io.LimitReader(rc, 1<<20))
}

func mavenEntries(zr *zip.Reader, suffix string) []*zip.File {
	var out []*zip.File
	for _, f := range zr.File {
		if strings.HasPrefix(f.Name, "META-INF/maven/") && strings.HasSuffix(f.Name, suffix) {
			out = append(out, f)
		}
	}
	return out
}

func fromPomProperties(zr *zip.Reader) (domain.Coordinate, bool) {
	for _, f := range mavenEntries(zr, "/pom.properties") {
		data, err := readEntry(f)
		if err != nil {
			continue
		}
		props := parseProperties(string(data))
		c := domain.Coordinate{Group: props["groupId"], Artifact: props["artifactId"], Version: props["version"]}
		if complete(c) {
			return c, true
		}
	}
	return domain.Coordinate{}, false
}

// parseProperties reads the key=value and key: value lines of a Java
// properties file. Escapes and continuation lines are not needed for pom.properties.
func parseProperties(s string) map[string]string {
	out := map[string]string{}
	sc := bufio.NewScanner(strings.NewReader(s))
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" || line[0] == '#' || line[0] == '!' {
			continue
		}
		i := strings.IndexAny(line, "=:")
		if i < 0 {
			continue
		}
		out[strings.TrimSpace(line[:i])] = strings.TrimSpace(line[i+1:])
	}
	return out
}

type pomProject struct {
	GroupID    string `xml:"groupId"`
	ArtifactID string `xml:"artifactId"`
	Version    string `xml:"version"`
	Parent     struct {
		GroupID string `xml:"groupId"`
		Version string `xml:"version"`
	} `xml:"parent"`
}

func fromPomXML(zr *zip.Reader) (domain.Coordinate, bool) {
	for _, f := range mavenEntries(zr, "/pom.xml") {
		data, err := readEntry(f)
		if err != nil {
			continue
		}
		if c, ok := parsePom(data); ok {
			return c, true
		}
	}
	return domain.Coordinate{}, false
}

// parsePom reads a project's coordinate, inheriting group and version from
// the parent block. Unresolved ${...} properties count as missing.
func parsePom(data []byte) (domain.Coordinate, bool) {
	var p pomProject
	if err := xml.Unmarshal(data, &p); err != nil {
		return domain.Coordinate{}, false
	}
	pick := func(vals ...string) string {
		for _, v := range vals {
			v = strings.TrimSpace(v)
			if v != "" && !strings.HasPrefix(v, "${") {
				return v
			}
		}
		return ""
	}
	c := domain.Coordinate{
		Group:    pick(p.GroupID, p.Parent.GroupID),
		Artifact: pick(p.ArtifactID),
		Version:  pick(p.Version, p.Parent.Version),
	}
	return c, complete(c)
}

func fromManifest(zr *zip.Reader) (domain.Coordinate, bool) {
	var attrs map[string]string
	for _, f := range zr.File {
		if strings.EqualFold(f.Name, "META-INF/MANIFEST.MF") {
			data, err := readEntry(f)
			if err != nil {
				return domain.Coordinate{}, false
			}
			attrs = parseManifest(string(data))
			break
		}
	}
	if attrs == nil {
		return domain.Coordinate{}, false
	}
	vendor, title, version := attrs["Implementation-Vendor-Id"], attrs["Implementation-Title"], attrs["Implementation-Version"]
	if vendor != "" && title != "" && version != "" {
		return domain.Coordinate{Group: vendor, Artifact: title, Version: version}, true
	}
	if bundle, bv := attrs["Bundle-SymbolicName"], attrs["Bundle-Version"]; bundle != "" && bv != "" {
		name, _, _ := strings.Cut(bundle, ";")
		if c, ok := splitDotted(strings.TrimSpace(name), bv); ok {
			return c, true
		}
	}
	if module := attrs["Automatic-Module-Name"]; module != "" {
		v := version
		if v == "" {
			v = attrs["Bundle-Version"]
		}
		if v != "" {
			return splitDotted(module, v)
		}
	}
	return domain.Coordinate{}, false
}

// parseManifest reads the main section of a manifest, joining continuation
// lines (those starting with a single space).
func parseManifest(s string) map[string]string {
	out := map[string]string{}
	var last string
	for _, line := range strings.Split(strings.ReplaceAll(s, "\r\n", "\n"), "\n") {
		if line == "" {
			break
		}
		if strings.HasPrefix(line, " ") && last != "" {
			out[last] += line[1:]
			continue
		}
		k, v, ok := strings.Cut(line, ":")
		if !ok {
			continue
		}
		last = strings.TrimSpace(k)
		out[last] = strings.TrimSpace(v)
	}
	return out
}

// splitDotted turns "org.acme.widgets" into group "org.acme", artifact "widgets".
func splitDotted(name, version string) (domain.Coordinate, bool) {
	i := strings.LastIndexByte(name, '.')
	if i <= 0 || i == len(name)-1 {
		return domain.Coordinate{}, false
	}
	group := name[:i]
	if !strings.Contains(group, ".") {
		return domain.Coordinate{}, false
	}
	return domain.Coordinate{Group: group, Artifact: name[i+1:], Version: version}, true
}

func slashPath(path string) string {
	if abs, err := filepath.Abs(path); err == nil {
		path = abs
	}
	return filepath.ToSlash(path)
}

func fromGradleCache(path string) (domain.Coordinate, bool) {
	m := gradleCachePath.FindStringSubmatch(slashPath(path))
	if m == nil {
		return domain.Coordinate{}, false
	}
	return domain.Coordinate{Group: m[1], Artifact: m[2], Version: m[3]}, true
}

// splitFileName splits "widgets-1.2.3.jar" into artifact and version.
func splitFileName(path string) (artifact, version string, ok bool) {
	name := filepath.Base(path)
	name = strings.TrimSuffix(strings.TrimSuffix(name, ".jar"), ".JAR")
	loc := versionSuffix.FindStringSubmatchIndex(name)
	if loc == nil || loc[0] == 0 {
		return "", "", false
	}
	return name[:loc[0]], name[loc[2]:loc[3]], true
}

// fromMavenRepo recognizes .../group/path/artifact/version/artifact-version.jar.
func fromMavenRepo(path string) (domain.Coordinate, bool) {
	artifact, version, ok := splitFileName(path)
	if !ok {
		return domain.Coordinate{}, false
	}
	dirs := strings.Split(slashPath(filepath.Dir(path)), "/")
	n := len(dirs)
	if n < 3 || dirs[n-1] != version || dirs[n-2] != artifact {
		return domain.Coordinate{}, false
	}
	var group []string
	for i := n - 3; i >= 0; i-- {
		d := dirs[i]
		if d == "" || repoStopWords[strings.ToLower(d)] {
			break
		}
		group = append([]string{d}, group...)
	}
	if len(group) == 0 {
		return domain.Coordinate{}, false
	}
	return domain.Coordinate{Group: strings.Join(group, "."), Artifact: artifact, Version: version}, true
}

// fromFileName takes artifact and version from the file name and the group
// from the longest package prefix shared by the jar's classes.
func fromFileName(path string, zr *zip.Reader) (domain.Coordinate, bool) {
	artifact, version, ok := splitFileName(path)
	if !ok {
		return domain.Coordinate{}, false
	}
	group := commonPackage(zr)
	if group == "" {
		return domain.Coordinate{}, false
	}
	return domain.Coordinate{Group: group, Artifact: artifact, Version: version}, true
}

func commonPackage(zr *zip.Reader) string {
	var prefix []string
	scanned := 0
	for _, f := range zr.File {
		if scanned >= maxScannedClasses {
			break
		}
		if !strings.HasSuffix(f.Name, ".class") || strings.HasPrefix(f.Name, "META-INF/") {
			continue
		}
		scanned++
		dir := filepath.ToSlash(filepath.Dir(f.Name))
		if dir == "." {
			return ""
		}
		parts := strings.Split(dir, "/")
		if prefix == nil {
			prefix = parts
			continue
		}
		i := 0
		for i < len(prefix) && i < len(parts) && prefix[i] == parts[i] {
			i++
		}
		prefix = prefix[:i]
	}
	if len(prefix) < 2 {
		return ""
	}
	return strings.Join(prefix, ".")
}
