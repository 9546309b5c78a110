package scan

import (
	"fmt"

	sitter "github.com/smacker/go-tree-sitter"
)

// Finding categories. The patch tool keys off ToolSprintfOverload, so the
// message for that category always starts with the exact call text.
const (
	ToolSprintf         = "sprintf"
	ToolSprintfOverload = "sprintf-overload"
	ToolStrcpy          = "strcpy"
	ToolAlloca          = "alloca"
	ToolStaticLocal     = "static-local"
	ToolRegisterCommand = "Register_Command"
	ToolPointerArith    = "pointer-arith"
)

func isSprintfName(name string) bool {
	return name == "sprintf" || name == "vsprintf"
}

func isStrcpyName(name string) bool {
	return name == "strcpy" || name == "strcat"
}

func isRegisterCommandName(name string) bool {
	return name == "Register_Command" || name == "Register_CommandWithPayload"
}

// detectCall handles every call-shaped pattern: unsafe string formatting,
// the project's sprintf overloads (member calls, since the syntactic
// scanner has no type information to classify free-function overloads),
// insecure buffer copies, alloca, and Register_Command registrations.
func detectCall(node *sitter.Node, source []byte, rep *reporter) {
	if node.Type() != "call_expression" {
		return
	}
	fn := node.ChildByFieldName("function")
	if fn == nil {
		return
	}

	switch fn.Type() {
	case "identifier":
		name := nodeText(fn, source)
		switch {
		case isSprintfName(name):
			rep.report(node, ToolSprintf, name)
		case isStrcpyName(name):
			if target := copyTargetName(node, source); target != "" {
				rep.report(node, ToolStrcpy, name+"("+target+")")
			}
		case name == "alloca" || name == "__builtin_alloca":
			rep.report(node, ToolAlloca, "x")
		}
	case "field_expression":
		field := fn.ChildByFieldName("field")
		if field == nil {
			return
		}
		name := nodeText(field, source)
		switch {
		case isSprintfName(name):
			// Member overloads format into the receiver object.
			rep.report(field, ToolSprintfOverload, name+"("+receiverText(fn, source)+")")
		case isRegisterCommandName(name):
			detectRegisterCommand(node, name, source, rep)
		}
	}
}

// copyTargetName returns the destination argument of a strcpy/strcat-like
// call, or "" when the destination is a dereference (likely copying into
// memory we allocated ourselves, a common false positive).
func copyTargetName(call *sitter.Node, source []byte) string {
	args := call.ChildByFieldName("arguments")
	if args == nil || args.NamedChildCount() < 2 {
		return ""
	}
	dest := args.NamedChild(0)
	switch dest.Type() {
	case "pointer_expression":
		return ""
	case "field_expression":
		if op := dest.Child(1); op != nil && nodeText(op, source) == "->" {
			return ""
		}
	}
	return nodeText(dest, source)
}

// receiverText renders the receiver of a member call for the finding
// message.
func receiverText(fieldExpr *sitter.Node, source []byte) string {
	arg := fieldExpr.ChildByFieldName("argument")
	text := nodeText(arg, source)
	if text == "" {
		return "<unknown>"
	}
	return text
}

// detectRegisterCommand logs daemon-core command registrations together
// with the key argument values.
func detectRegisterCommand(call *sitter.Node, name string, source []byte, rep *reporter) {
	args := call.ChildByFieldName("arguments")
	if args == nil || args.NamedChildCount() < 5 {
		rep.report(call, ToolRegisterCommand, "call without enough arguments")
		return
	}
	command := nodeText(args.NamedChild(0), source)
	perm := "ALLOW"
	if args.NamedChildCount() >= 6 {
		perm = nodeText(args.NamedChild(5), source)
	}
	auth := "false"
	if args.NamedChildCount() >= 8 {
		auth = nodeText(args.NamedChild(7), source)
	}
	rep.report(call, ToolRegisterCommand,
		fmt.Sprintf("%s command=%s perm=%s auth=%s", name, command, perm, auth))
}

// detectSubscript reports index expressions, the subscript face of
// pointer arithmetic. Indexing by the constant 0 is plain dereferencing
// and is exempt. A bounds-unchecked container operator[] parses as the
// same subscript node, so it lands in this category too.
func detectSubscript(node *sitter.Node, source []byte, rep *reporter) {
	if node.Type() != "subscript_expression" {
		return
	}
	if isZeroIndex(node.ChildByFieldName("index"), source) {
		return
	}
	rep.report(node, ToolPointerArith, "subscript")
}

func isZeroIndex(idx *sitter.Node, source []byte) bool {
	for idx != nil && idx.Type() == "parenthesized_expression" {
		idx = idx.NamedChild(0)
	}
	return idx != nil && idx.Type() == "number_literal" && nodeText(idx, source) == "0"
}

// detectStaticLocal reports local variables declared static but not
// const: hidden process-wide state inside a function body.
func detectStaticLocal(node *sitter.Node, source []byte, rep *reporter) {
	if node.Type() != "declaration" {
		return
	}
	if !insideFunctionBody(node) {
		return
	}

	static, constQualified := false, false
	for i := 0; i < int(node.ChildCount()); i++ {
		child := node.Child(i)
		switch child.Type() {
		case "storage_class_specifier":
			if nodeText(child, source) == "static" {
				static = true
			}
		case "type_qualifier":
			if nodeText(child, source) == "const" {
				constQualified = true
			}
		}
	}
	if !static || constQualified {
		return
	}

	for i := 0; i < int(node.NamedChildCount()); i++ {
		child := node.NamedChild(i)
		if name := declaratorName(child, source); name != "" {
			rep.report(node, ToolStaticLocal, name)
			return
		}
	}
}

// insideFunctionBody reports whether the declaration sits under a
// compound statement of a function definition rather than at file or
// class scope.
func insideFunctionBody(node *sitter.Node) bool {
	inBlock := false
	for p := node.Parent(); p != nil; p = p.Parent() {
		switch p.Type() {
		case "compound_statement":
			inBlock = true
		case "function_definition":
			return inBlock
		case "class_specifier", "struct_specifier", "namespace_definition", "translation_unit":
			if !inBlock {
				return false
			}
		}
	}
	return false
}

// declaratorName digs the declared identifier out of a (possibly nested)
// declarator.
func declaratorName(node *sitter.Node, source []byte) string {
	switch node.Type() {
	case "identifier":
		return nodeText(node, source)
	case "init_declarator", "pointer_declarator", "array_declarator", "reference_declarator":
		if d := node.ChildByFieldName("declarator"); d != nil {
			return declaratorName(d, source)
		}
		for i := 0; i < int(node.NamedChildCount()); i++ {
			if name := declaratorName(node.NamedChild(i), source); name != "" {
				return name
			}
		}
	}
	return ""
}
