package lang

func init() {
	Register(&LanguageSpec{
		Language:       Java,
		FileExtensions: []string{".java"},
		TypeNodeTypes: []string{
			"class_declaration",
			"interface_declaration",
			"enum_declaration",
			"annotation_type_declaration",
			"record_declaration",
		},
		FunctionNodeTypes:  []string{"method_declaration", "constructor_declaration"},
		FieldNodeTypes:     []string{"field_declaration"},
		BodyNodeTypes:      []string{"class_body", "interface_body", "enum_body", "enum_body_declarations", "annotation_type_body"},
		ModuleNodeTypes:    []string{"program"},
		CallNodeTypes:      []string{"method_invocation", "object_creation_expression"},
		MemberAccessTypes:  []string{"field_access"},
		ReferenceNodeTypes: []string{"method_reference"},
		ThrowNodeTypes:     []string{"throw_statement"},
		LocalVarNodeTypes:  []string{"local_variable_declaration"},
		ParamListNodeTypes: []string{"formal_parameters"},
		SupertypeNodeTypes: []string{"superclass", "super_interfaces", "extends_interfaces"},
		ImportNodeTypes:    []string{"import_declaration"},
		PackageNodeTypes:   []string{"package_declaration"},
		DecoratorNodeTypes: []string{"annotation", "marker_annotation"},
		CommentNodeTypes:   []string{"line_comment", "block_comment"},
		LambdaNodeTypes:    []string{"lambda_expression"},
	})
}
