package libbuild

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/DeusData/docgraph/internal/bytecode"
	"github.com/DeusData/docgraph/internal/bytecode/classtest"
	"github.com/DeusData/docgraph/internal/domain"
	"github.com/DeusData/docgraph/internal/library"
	"github.com/DeusData/docgraph/internal/store"
)

const (
	restTemplate = "org/springframework/web/client/RestTemplate"
	getForObject = "(Ljava/lang/String;Ljava/lang/Class;[Ljava/lang/Object;)Ljava/lang/Object;"
	pingDesc     = "(Lorg/springframework/web/client/RestTemplate;)Ljava/lang/Object;"
)

// clientClass assembles com.acme.Client with a field and two ping overloads,
// one of which calls rest.getForObject("http://svc/ping", String.class).
func clientClass() []byte {
	a := classtest.NewClass()
	a.Field(bytecode.AccPrivate|bytecode.AccFinal, "base", "Ljava/lang/String;")
	body := classtest.Join(
		classtest.Op(bytecode.OpAload0),
		classtest.Op2(bytecode.OpLdcW, a.String("http://svc/ping")),
		classtest.Op2(bytecode.OpLdcW, a.ClassRef("java/lang/String")),
		classtest.Op(bytecode.OpIconst0),
		classtest.Op2(bytecode.OpAnewarray, a.ClassRef("java/lang/Object")),
		classtest.Op2(bytecode.OpInvokevirtual, a.MethodRef(restTemplate, "getForObject", getForObject)),
		classtest.Op(bytecode.OpAreturn),
	)
	a.Method(bytecode.AccPublic|bytecode.AccStatic, "ping", pingDesc, body)
	a.Method(bytecode.AccPublic|bytecode.AccAbstract, "ping", "()Ljava/lang/Object;", nil)
	return a.Bytes(bytecode.AccPublic|bytecode.AccAbstract, "com/acme/Client", "java/lang/Object")
}

func innerClass() []byte {
	a := classtest.NewClass()
	return a.Bytes(bytecode.AccPublic|bytecode.AccStatic, "com/acme/Client$Options", "java/lang/Object")
}

func writeJar(t *testing.T, dir, name string, entries map[string][]byte) string {
	t.Helper()
	data, err := classtest.Jar(entries)
	if err != nil {
		t.Fatalf("Jar: %v", err)
	}
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, data, 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func clientJar(t *testing.T, dir string) string {
	return writeJar(t, dir, "client.jar", map[string][]byte{
		"META-INF/maven/com.acme/client/pom.properties": []byte("groupId=com.acme\nartifactId=client\nversion=1.0\n"),
		"com/acme/Client.class":                         clientClass(),
		"com/acme/Client$Options.class":                 innerClass(),
	})
}

func openStore(t *testing.T) *store.Store {
	t.Helper()
	s, err := store.OpenMemory()
	if err != nil {
		t.Fatalf("OpenMemory: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestBuildAllPersistsLibrary(t *testing.T) {
	s := openStore(t)
	dir := t.TempDir()
	jar := clientJar(t, dir)
	idx := library.NewIndex(nil)
	b := New(StoreTx(s), idx, Options{Workers: 2, CompanyPrefixes: []string{"com.acme"}})

	res, err := b.BuildAll(context.Background(), []string{jar, filepath.Join(dir, "notes.txt")})
	if err != nil {
		t.Fatalf("BuildAll: %v", err)
	}
	if res.Processed != 1 || res.Skipped != 1 || res.Failed != 0 {
		t.Fatalf("result = %+v", res)
	}
	// class, nested class, field, one merged method
	if res.NodesCreated != 4 {
		t.Errorf("nodes = %d, want 4", res.NodesCreated)
	}

	lib, err := s.FindLibrary(domain.Coordinate{Group: "com.acme", Artifact: "client", Version: "1.0"})
	if err != nil || lib == nil {
		t.Fatalf("FindLibrary = %v, %v", lib, err)
	}
	if lib.Kind != domain.LibraryInternal || lib.Meta["strategy"] != StrategyPomProperties {
		t.Errorf("library = %+v", lib)
	}

	cls, _ := s.FindLibraryNode(lib.ID, "com.acme.Client")
	inner, _ := s.FindLibraryNode(lib.ID, "com.acme.Client$Options")
	if cls == nil || inner == nil {
		t.Fatalf("class nodes missing: %v %v", cls, inner)
	}
	if inner.ParentID == nil || *inner.ParentID != cls.ID {
		t.Errorf("nested parent = %v, want %d", inner.ParentID, cls.ID)
	}

	field, _ := s.FindLibraryNode(lib.ID, "com.acme.Client.base")
	if field == nil || field.Kind != domain.KindField || field.Signature != "java.lang.String" {
		t.Errorf("field = %+v", field)
	}

	ping, _ := s.FindLibraryNode(lib.ID, "com.acme.Client.ping")
	if ping == nil || ping.ParentID == nil || *ping.ParentID != cls.ID {
		t.Fatalf("ping = %+v", ping)
	}
	analysis, ok := domain.IntegrationAnalysisFromMeta(ping.Meta[domain.MetaIntegrationAnalysis])
	if !ok {
		t.Fatalf("ping meta = %v", ping.Meta)
	}
	if len(analysis.URLs) != 1 || analysis.URLs[0] != "http://svc/ping" || analysis.ClientType != "RestTemplate" || !analysis.IsParentClient {
		t.Errorf("analysis = %+v", analysis)
	}
	if ds, _ := ping.Meta["descriptors"].([]any); len(ds) != 2 {
		t.Errorf("descriptors = %v", ping.Meta["descriptors"])
	}

	if idx.FindByMethodFQN("com.acme.Client.ping") == nil {
		t.Error("built method not added to index")
	}
}

func TestBuildAllSkipsExistingAndFiltered(t *testing.T) {
	s := openStore(t)
	dir := t.TempDir()
	jar := clientJar(t, dir)

	b := New(StoreTx(s), nil, Options{})
	if _, err := b.BuildAll(context.Background(), []string{jar}); err != nil {
		t.Fatal(err)
	}
	res, err := b.BuildAll(context.Background(), []string{jar})
	if err != nil {
		t.Fatal(err)
	}
	if res.Skipped != 1 || res.Artifacts[0].Reason != "already built" {
		t.Errorf("second run = %+v", res.Artifacts)
	}

	filtered := New(StoreTx(openStore(t)), nil, Options{Exclude: []string{"com.acme"}})
	res, _ = filtered.BuildAll(context.Background(), []string{jar})
	if res.Skipped != 1 || res.Artifacts[0].Reason != "group filtered" {
		t.Errorf("filtered run = %+v", res.Artifacts)
	}
}

func TestBuildAllRecordsFailures(t *testing.T) {
	s := openStore(t)
	dir := t.TempDir()
	broken := filepath.Join(dir, "broken-1.0.jar")
	if err := os.WriteFile(broken, []byte("not a zip"), 0o644); err != nil {
		t.Fatal(err)
	}
	bad := writeJar(t, dir, "bad.jar", map[string][]byte{
		"META-INF/maven/com.acme/bad/pom.properties": []byte("groupId=com.acme\nartifactId=bad\nversion=1\n"),
		"com/acme/Good.class":                        innerClass(),
		"com/acme/Bad.class":                         []byte{0xCA, 0xFE, 0xBA, 0xBE, 0},
	})

	res, err := New(StoreTx(s), nil, Options{}).BuildAll(context.Background(), []string{broken, bad})
	if err != nil {
		t.Fatal(err)
	}
	if res.Failed != 1 || res.Processed != 1 {
		t.Fatalf("result = %+v", res)
	}
	// one for the unreadable jar, one for the truncated class
	if len(res.Errors) != 2 {
		t.Errorf("errors = %v", res.Errors)
	}
}

func TestJars(t *testing.T) {
	dir := t.TempDir()
	clientJar(t, dir)
	if err := os.MkdirAll(filepath.Join(dir, "nested"), 0o755); err != nil {
		t.Fatal(err)
	}
	writeJar(t, filepath.Join(dir, "nested"), "other.JAR", map[string][]byte{"x": nil})
	got, err := Jars([]string{dir})
	if err != nil || len(got) != 2 {
		t.Errorf("Jars = %v, %v", got, err)
	}
	if _, err := Jars([]string{t.TempDir()}); err != ErrNoJars {
		t.Errorf("empty dir err = %v", err)
	}
}
