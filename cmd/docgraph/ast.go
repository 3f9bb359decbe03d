package main

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"
	tree_sitter "github.com/tree-sitter/go-tree-sitter"

	"github.com/DeusData/docgraph/internal/lang"
	"github.com/DeusData/docgraph/internal/parser"
)

var astCmd = &cobra.Command{
	Use:    "ast <file>",
	Short:  "Dump the tree-sitter syntax tree of a Kotlin or Java file",
	Args:   cobra.ExactArgs(1),
	Hidden: true,
	RunE:   runAST,
}

func init() {
	rootCmd.AddCommand(astCmd)
}

func runAST(cmd *cobra.Command, args []string) error {
	l, ok := lang.LanguageForExtension(filepath.Ext(args[0]))
	if !ok {
		return fmt.Errorf("unsupported file type: %s", args[0])
	}
	source, err := os.ReadFile(args[0])
	if err != nil {
		return err
	}
	tree, err := parser.Parse(l, source)
	if err != nil {
		return err
	}
	defer tree.Close()
	printAST(cmd.OutOrStdout(), tree.RootNode(), source, 0)
	return nil
}

func printAST(w io.Writer, node *tree_sitter.Node, source []byte, indent int) {
	if node == nil {
		return
	}
	parentKind := "nil"
	if node.Parent() != nil {
		parentKind = node.Parent().Kind()
	}
	text := string(source[node.StartByte():node.EndByte()])
	if len(text) > 60 {
		text = text[:60] + "..."
	}
	fmt.Fprintf(w, "%s%s (parent=%s) %q\n", strings.Repeat("  ", indent), node.Kind(), parentKind, text)
	for i := uint(0); i < node.ChildCount(); i++ {
		printAST(w, node.Child(i), source, indent+1)
	}
}
