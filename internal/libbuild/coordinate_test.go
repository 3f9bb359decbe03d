package libbuild

import (
	"archive/zip"
	"bytes"
	"path/filepath"
	"testing"

	"github.com/DeusData/docgraph/internal/bytecode/classtest"
	"github.com/DeusData/docgraph/internal/domain"
)

func zipOf(t *testing.T, entries map[string][]byte) *zip.Reader {
	t.Helper()
	data, err := classtest.Jar(entries)
	if err != nil {
		t.Fatalf("Jar: %v", err)
	}
	zr, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		t.Fatalf("zip: %v", err)
	}
	return zr
}

func TestParseCoordinateStrategies(t *testing.T) {
	pomXML := []byte(`<?xml version="1.0"?>
<project xmlns="http://maven.apache.org/POM/4.0.0">
  <!-- <groupId>commented.out</groupId> -->
  <parent><groupId>org.acme</groupId><version>2.0.0</version></parent>
  <artifactId>widgets</artifactId>
</project>`)
	manifest := []byte("Manifest-Version: 1.0\r\nBundle-SymbolicName: org.acme.gears;singleton:=true\r\nBundle-Version: 3.1\r\n\r\nName: x\r\n")

	tests := []struct {
		name     string
		path     string
		entries  map[string][]byte
		want     domain.Coordinate
		strategy string
	}{
		{
			name: "pom.properties",
			path: "lib.jar",
			entries: map[string][]byte{
				"META-INF/maven/org.acme/widgets/pom.properties": []byte("#generated\ngroupId=org.acme\nartifactId=widgets\nversion=1.2.3\n"),
			},
			want:     domain.Coordinate{Group: "org.acme", Artifact: "widgets", Version: "1.2.3"},
			strategy: StrategyPomProperties,
		},
		{
			name:     "pom.xml with parent",
			path:     "lib.jar",
			entries:  map[string][]byte{"META-INF/maven/org.acme/widgets/pom.xml": pomXML},
			want:     domain.Coordinate{Group: "org.acme", Artifact: "widgets", Version: "2.0.0"},
			strategy: StrategyPomXML,
		},
		{
			name:     "bundle manifest",
			path:     "lib.jar",
			entries:  map[string][]byte{"META-INF/MANIFEST.MF": manifest},
			want:     domain.Coordinate{Group: "org.acme", Artifact: "gears", Version: "3.1"},
			strategy: StrategyManifest,
		},
		{
			name:     "gradle cache",
			path:     "/home/u/.gradle/caches/modules-2/files-2.1/com.squareup.okhttp3/okhttp/4.12.0/abc123/okhttp-4.12.0.jar",
			entries:  map[string][]byte{"README": nil},
			want:     domain.Coordinate{Group: "com.squareup.okhttp3", Artifact: "okhttp", Version: "4.12.0"},
			strategy: StrategyGradleCache,
		},
		{
			name:     "maven repository",
			path:     "/home/u/.m2/repository/org/apache/kafka/kafka-clients/3.7.0/kafka-clients-3.7.0.jar",
			entries:  map[string][]byte{"README": nil},
			want:     domain.Coordinate{Group: "org.apache.kafka", Artifact: "kafka-clients", Version: "3.7.0"},
			strategy: StrategyMavenRepo,
		},
		{
			name: "file name and packages",
			path: "/tmp/jars/billing-client-1.0.0-SNAPSHOT.jar",
			entries: map[string][]byte{
				"com/acme/billing/Client.class":     nil,
				"com/acme/billing/dto/Invoice.class": nil,
			},
			want:     domain.Coordinate{Group: "com.acme.billing", Artifact: "billing-client", Version: "1.0.0-SNAPSHOT"},
			strategy: StrategyFileName,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, strategy, ok := ParseCoordinate(filepath.FromSlash(tt.path), zipOf(t, tt.entries))
			if !ok {
				t.Fatal("no coordinate")
			}
			if got != tt.want || strategy != tt.strategy {
				t.Errorf("got %s via %s, want %s via %s", got, strategy, tt.want, tt.strategy)
			}
		})
	}
}

func TestParseCoordinateFailures(t *testing.T) {
	unresolved := []byte(`<project><groupId>${org}</groupId><artifactId>a</artifactId><version>1.0</version></project>`)
	cases := map[string]struct {
		path    string
		entries map[string][]byte
	}{
		"unresolved property": {"lib.jar", map[string][]byte{"META-INF/maven/x/a/pom.xml": unresolved}},
		"no version in name":  {"widgets.jar", map[string][]byte{"com/acme/A.class": nil}},
		"single segment root": {"w-1.0.jar", map[string][]byte{"acme/A.class": nil, "other/B.class": nil}},
	}
	for name, tc := range cases {
		if c, s, ok := ParseCoordinate(tc.path, zipOf(t, tc.entries)); ok {
			t.Errorf("%s: got %s via %s", name, c, s)
		}
	}
}

func TestParseManifestContinuation(t *testing.T) {
	attrs := parseManifest("Implementation-Title: very-long-artifact-na\n me\nImplementation-Version: 1.0\n")
	if attrs["Implementation-Title"] != "very-long-artifact-name" || attrs["Implementation-Version"] != "1.0" {
		t.Errorf("attrs = %v", attrs)
	}
}

func TestSplitFileName(t *testing.T) {
	cases := map[string][2]string{
		"jackson-databind-2.17.1.jar": {"jackson-databind", "2.17.1"},
		"guava-33.0.0-jre.jar":        {"guava", "33.0.0-jre"},
	}
	for in, want := range cases {
		a, v, ok := splitFileName(in)
		if !ok || a != want[0] || v != want[1] {
			t.Errorf("splitFileName(%q) = %q %q %v", in, a, v, ok)
		}
	}
}
