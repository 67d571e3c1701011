package fingerprint

import (
	"fmt"
	"strconv"

	sitter "github.com/smacker/go-tree-sitter"

	"github.com/mimiclab/mimic/pkg/models"
	"github.com/mimiclab/mimic/pkg/parser"
)

// maxDepthToken caps the nesting marker so pathological nesting cannot
// inflate the token vocabulary without bound.
const maxDepthToken = 12

// Extractor walks a unit's syntax node and emits structural tokens. The
// walk ignores identifier spellings, literal values, comments, and
// docstring contents, so two units that differ only in naming produce
// identical sequences.
type Extractor struct{}

// NewExtractor creates an extractor.
func NewExtractor() *Extractor {
	return &Extractor{}
}

// Extract derives the token sequence for one unit. A unit whose subtree
// contains syntax errors yields a ParseError; a degenerate body (empty
// function, pass-only stub) still yields a minimal valid sequence with
// at least the unit-kind token.
func (e *Extractor) Extract(unit parser.Unit, res *parser.Result) (TokenSequence, error) {
	if unit.Node == nil {
		return TokenSequence{}, &models.ParseError{
			File: res.Path,
			Unit: unit.QualifiedName,
			Err:  fmt.Errorf("unit has no syntax node"),
		}
	}
	if unit.Node.HasError() {
		return TokenSequence{}, &models.ParseError{
			File: res.Path,
			Unit: unit.QualifiedName,
			Err:  fmt.Errorf("syntax errors in unit"),
		}
	}

	tokens := []string{"unit:" + string(unit.Kind)}
	tokens = appendSignatureTokens(tokens, unit, res)

	depth := 0
	var walk func(node *sitter.Node)
	walk = func(node *sitter.Node) {
		for i := range int(node.ChildCount()) {
			child := node.Child(i)
			nodeType := child.Type()

			if !child.IsNamed() {
				if op := anonymousToken(nodeType); op != "" {
					tokens = append(tokens, op)
				}
				continue
			}

			switch classify(nodeType) {
			case classIdentifier, classComment:
				// No token, no descent: spellings and comments carry no
				// structural signal.
				continue
			case classString:
				// Presence matters, content never does. Covers docstrings.
				tokens = append(tokens, "node:string")
				continue
			}

			tokens = append(tokens, "node:"+nodeType)

			if target, argc, ok := callSignature(child, res); ok {
				tokens = append(tokens, "call:"+target, "args:"+strconv.Itoa(argc))
			}

			if isBlockNode(nodeType) {
				depth++
				tokens = append(tokens, "depth:"+strconv.Itoa(min(depth, maxDepthToken)))
				walk(child)
				depth--
				continue
			}
			walk(child)
		}
	}
	walk(unit.Node)

	return TokenSequence{Tokens: tokens}, nil
}

// appendSignatureTokens emits arity features of the unit itself:
// parameter count for functions, decorator count, base-class count and
// names for classes. Counts survive renames, so they anchor structural
// identity without leaking identifier choice from the body.
func appendSignatureTokens(tokens []string, unit parser.Unit, res *parser.Result) []string {
	node := unit.Node

	switch unit.Kind {
	case models.UnitFunction:
		params := node.ChildByFieldName("parameters")
		if params == nil {
			params = node.ChildByFieldName("parameter_list")
		}
		n := 0
		if params != nil {
			n = int(params.NamedChildCount())
		}
		tokens = append(tokens, "params:"+strconv.Itoa(n))
		tokens = append(tokens, "decorators:"+strconv.Itoa(decoratorCount(node)))

	case models.UnitClass:
		bases := node.ChildByFieldName("superclasses")
		if bases == nil {
			bases = node.ChildByFieldName("bases")
		}
		n := 0
		if bases != nil {
			for i := range int(bases.NamedChildCount()) {
				base := bases.NamedChild(i)
				n++
				if name := parser.NodeText(base, res.Source); name != "" {
					tokens = append(tokens, "base:"+name)
				}
			}
		}
		tokens = append(tokens, "bases:"+strconv.Itoa(n))
	}

	return tokens
}

// decoratorCount counts decorator siblings for languages that wrap the
// definition (python decorated_definition) or prefix it (typescript).
func decoratorCount(node *sitter.Node) int {
	n := 0
	if parent := node.Parent(); parent != nil && parent.Type() == "decorated_definition" {
		for i := range int(parent.NamedChildCount()) {
			if parent.NamedChild(i).Type() == "decorator" {
				n++
			}
		}
		return n
	}
	for i := range int(node.NamedChildCount()) {
		if node.NamedChild(i).Type() == "decorator" {
			n++
		}
	}
	return n
}

// callSignature reports the callee name and argument count when node is
// a call. Callee names are the one identifier class deliberately kept:
// what a unit calls is structure, not spelling.
func callSignature(node *sitter.Node, res *parser.Result) (string, int, bool) {
	switch node.Type() {
	case "call", "call_expression", "method_invocation", "invocation_expression", "function_call_expression":
	default:
		return "", 0, false
	}

	argc := 0
	if args := node.ChildByFieldName("arguments"); args != nil {
		argc = int(args.NamedChildCount())
	}

	callee := node.ChildByFieldName("function")
	if callee == nil {
		callee = node.ChildByFieldName("name")
	}
	target := calleeName(callee, res.Source)
	if target == "" {
		target = "anonymous"
	}
	return target, argc, true
}

// calleeName unwraps attribute/selector chains to the final member name:
// self.repo.save resolves to save.
func calleeName(node *sitter.Node, source []byte) string {
	if node == nil {
		return ""
	}
	switch node.Type() {
	case "attribute", "member_expression", "selector_expression", "field_expression", "scoped_identifier":
		for _, field := range []string{"attribute", "property", "field", "name"} {
			if inner := node.ChildByFieldName(field); inner != nil {
				return parser.NodeText(inner, source)
			}
		}
		return ""
	default:
		return parser.NodeText(node, source)
	}
}

type tokenClass int

const (
	classDefault tokenClass = iota
	classIdentifier
	classComment
	classString
)

// classify buckets named node types that need special handling. Anything
// unlisted flows through as a plain kind token.
func classify(nodeType string) tokenClass {
	switch nodeType {
	case "identifier", "field_identifier", "type_identifier", "property_identifier",
		"shorthand_property_identifier", "shorthand_property_identifier_pattern",
		"package_identifier", "statement_identifier", "namespace_identifier",
		"simple_identifier", "constant", "instance_variable", "class_variable",
		"global_variable", "variable_name", "word", "label_name", "heredoc_content":
		return classIdentifier
	case "comment", "line_comment", "block_comment":
		return classComment
	case "string", "string_literal", "interpreted_string_literal", "raw_string_literal",
		"template_string", "string_content", "string_fragment", "char_literal",
		"character_literal", "rune_literal", "heredoc_body", "encapsed_string":
		return classString
	default:
		return classDefault
	}
}

// isBlockNode marks nodes that open a nesting level worth a depth marker.
func isBlockNode(nodeType string) bool {
	switch nodeType {
	case "block", "statement_block", "compound_statement", "declaration_list",
		"field_declaration_list", "body_statement", "do_block", "class_body",
		"enum_body", "interface_body":
		return true
	default:
		return false
	}
}

// anonymousToken keeps operator and keyword leaves but drops pure
// punctuation, which adds bulk without discriminating power.
func anonymousToken(nodeType string) string {
	switch nodeType {
	case "(", ")", "{", "}", "[", "]", ",", ";", ":", ".", "->", "=>", "\"", "'",
		"`", "...", "::", "?", "#", "\n":
		return ""
	default:
		return "op:" + nodeType
	}
}
