package parser

import (
	"testing"

	tree_sitter "github.com/tree-sitter/go-tree-sitter"

	"github.com/DeusData/docgraph/internal/lang"
)

func TestParseKotlin(t *testing.T) {
	source := []byte(`fun greet(name: String): String {
    return "Hello, $name"
}

class MyService {
    fun process(): Unit {}
}

object Singleton {
    fun instance(): Singleton = this
}
`)
	tree, err := Parse(lang.Kotlin, source)
	if err != nil {
		t.Fatalf("Parse Kotlin: %v", err)
	}
	defer tree.Close()

	root := tree.RootNode()
	var funcCount, classCount, objectCount int
	Walk(root, func(n *tree_sitter.Node) bool {
		switch n.Kind() {
		case "function_declaration":
			funcCount++
		case "class_declaration":
			classCount++
		case "object_declaration":
			objectCount++
		}
		return true
	})
	if funcCount != 3 {
		t.Errorf("expected 3 function_declarations, got %d", funcCount)
	}
	if classCount != 1 {
		t.Errorf("expected 1 class_declaration, got %d", classCount)
	}
	if objectCount != 1 {
		t.Errorf("expected 1 object_declaration, got %d", objectCount)
	}
}

func TestParseJava(t *testing.T) {
	source := []byte(`package com.example;

public class Greeter {
    private String prefix;

    public String greet(String name) {
        return prefix + name;
    }

    private void helper() {}
}
`)
	tree, err := Parse(lang.Java, source)
	if err != nil {
		t.Fatalf("Parse Java: %v", err)
	}
	defer tree.Close()

	root := tree.RootNode()
	if root == nil {
		t.Fatal("root node is nil")
	}

	var classCount, methodCount, fieldCount int
	Walk(root, func(n *tree_sitter.Node) bool {
		switch n.Kind() {
		case "class_declaration":
			classCount++
		case "method_declaration":
			methodCount++
		case "field_declaration":
			fieldCount++
		}
		return true
	})
	if classCount != 1 {
		t.Errorf("expected 1 class_declaration, got %d", classCount)
	}
	if methodCount != 2 {
		t.Errorf("expected 2 method_declarations, got %d", methodCount)
	}
	if fieldCount != 1 {
		t.Errorf("expected 1 field_declaration, got %d", fieldCount)
	}
}

func TestAllLanguagesLoad(t *testing.T) {
	for _, l := range lang.AllLanguages() {
		_, err := GetLanguage(l)
		if err != nil {
			t.Errorf("GetLanguage(%s): %v", l, err)
		}
	}
}

func TestNodeTextAndChildren(t *testing.T) {
	source := []byte(`class Hello {
    void run() {}
}
`)
	tree, err := Parse(lang.Java, source)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	defer tree.Close()

	root := tree.RootNode()
	cls := FirstChildOfKind(root, "class_declaration")
	if cls == nil {
		t.Fatal("class_declaration not found")
	}
	nameNode := cls.ChildByFieldName("name")
	if nameNode == nil {
		t.Fatal("class has no name node")
	}
	if got := NodeText(nameNode, source); got != "Hello" {
		t.Errorf("expected Hello, got %s", got)
	}
	if StartLine(cls) != 1 || EndLine(cls) != 3 {
		t.Errorf("span = %d-%d, want 1-3", StartLine(cls), EndLine(cls))
	}
	body := cls.ChildByFieldName("body")
	if methods := ChildrenOfKind(body, "method_declaration"); len(methods) != 1 {
		t.Errorf("expected 1 method in body, got %d", len(methods))
	}
}
