package parser

import (
	"path/filepath"
	"strings"

	sitter "github.com/smacker/go-tree-sitter"
	"github.com/mimiclab/mimic/pkg/models"
)

// Unit is a code unit located in a parsed tree, still holding its syntax
// node so feature extraction can walk it.
type Unit struct {
	Kind          models.UnitKind
	Name          string
	QualifiedName string
	StartLine     uint32
	EndLine       uint32
	Node          *sitter.Node
}

// ExtractUnits finds every analyzable unit in a parse result: functions
// and methods, classes, and the whole module as a single unit. Methods
// are qualified with their enclosing class name.
func ExtractUnits(res *Result) []Unit {
	root := res.Tree.RootNode()
	funcTypes := functionNodeTypes(res.Language)
	classTypes := classNodeTypes(res.Language)

	units := []Unit{moduleUnit(res, root)}

	var visit func(node *sitter.Node, enclosing string)
	visit = func(node *sitter.Node, enclosing string) {
		nodeType := node.Type()

		if contains(classTypes, nodeType) {
			name := nodeName(node, res.Source, res.Language)
			if name != "" {
				units = append(units, Unit{
					Kind:          models.UnitClass,
					Name:          name,
					QualifiedName: qualify(enclosing, name),
					StartLine:     node.StartPoint().Row + 1,
					EndLine:       node.EndPoint().Row + 1,
					Node:          node,
				})
				enclosing = qualify(enclosing, name)
			}
		} else if contains(funcTypes, nodeType) {
			name := nodeName(node, res.Source, res.Language)
			if name == "" {
				name = "anonymous"
			}
			units = append(units, Unit{
				Kind:          models.UnitFunction,
				Name:          name,
				QualifiedName: qualify(enclosing, name),
				StartLine:     node.StartPoint().Row + 1,
				EndLine:       node.EndPoint().Row + 1,
				Node:          node,
			})
			enclosing = qualify(enclosing, name)
		}

		for i := range int(node.ChildCount()) {
			visit(node.Child(i), enclosing)
		}
	}
	visit(root, "")

	return units
}

// moduleUnit wraps the whole file as one unit.
func moduleUnit(res *Result, root *sitter.Node) Unit {
	name := strings.TrimSuffix(filepath.Base(res.Path), filepath.Ext(res.Path))
	if name == "" {
		name = "module"
	}
	return Unit{
		Kind:          models.UnitModule,
		Name:          name,
		QualifiedName: name,
		StartLine:     root.StartPoint().Row + 1,
		EndLine:       root.EndPoint().Row + 1,
		Node:          root,
	}
}

func qualify(enclosing, name string) string {
	if enclosing == "" {
		return name
	}
	return enclosing + "." + name
}

func contains(set []string, s string) bool {
	for _, v := range set {
		if v == s {
			return true
		}
	}
	return false
}

// functionNodeTypes returns the AST node types for functions in each language.
func functionNodeTypes(lang Language) []string {
	switch lang {
	case LangGo:
		return []string{"function_declaration", "method_declaration"}
	case LangRust:
		return []string{"function_item"}
	case LangPython:
		return []string{"function_definition"}
	case LangTypeScript, LangJavaScript, LangTSX:
		return []string{"function_declaration", "function", "arrow_function", "method_definition"}
	case LangJava:
		return []string{"method_declaration", "constructor_declaration"}
	case LangC, LangCPP:
		return []string{"function_definition"}
	case LangCSharp:
		return []string{"method_declaration", "constructor_declaration"}
	case LangRuby:
		return []string{"method", "singleton_method"}
	case LangPHP:
		return []string{"function_definition", "method_declaration"}
	case LangBash:
		return []string{"function_definition"}
	default:
		return nil
	}
}

// classNodeTypes returns the AST node types for classes in each language.
func classNodeTypes(lang Language) []string {
	switch lang {
	case LangRust:
		return []string{"struct_item", "impl_item"}
	case LangPython:
		return []string{"class_definition"}
	case LangTypeScript, LangJavaScript, LangTSX:
		return []string{"class_declaration", "class"}
	case LangJava:
		return []string{"class_declaration", "interface_declaration"}
	case LangCPP:
		return []string{"class_specifier", "struct_specifier"}
	case LangCSharp:
		return []string{"class_declaration", "interface_declaration", "struct_declaration"}
	case LangRuby:
		return []string{"class", "module"}
	case LangPHP:
		return []string{"class_declaration", "interface_declaration", "trait_declaration"}
	default:
		return nil
	}
}

// nodeName extracts the declared name of a function or class node.
func nodeName(node *sitter.Node, source []byte, lang Language) string {
	if nameNode := node.ChildByFieldName("name"); nameNode != nil {
		return NodeText(nameNode, source)
	}

	// C/C++ bury the name inside nested declarators.
	if lang == LangC || lang == LangCPP {
		decl := node.ChildByFieldName("declarator")
		for decl != nil {
			if inner := decl.ChildByFieldName("declarator"); inner != nil {
				decl = inner
				continue
			}
			return NodeText(decl, source)
		}
	}

	return ""
}
