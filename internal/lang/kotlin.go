package lang

func init() {
	Register(&LanguageSpec{
		Language:       Kotlin,
		FileExtensions: []string{".kt", ".kts"},
		TypeNodeTypes: []string{
			"class_declaration",
			"object_declaration",
			"companion_object",
		},
		FunctionNodeTypes: []string{
			"function_declaration",
			"secondary_constructor",
		},
		FieldNodeTypes:     []string{"property_declaration"},
		BodyNodeTypes:      []string{"class_body", "enum_class_body"},
		ModuleNodeTypes:    []string{"source_file"},
		CallNodeTypes:      []string{"call_expression"},
		MemberAccessTypes:  []string{"navigation_expression"},
		ReferenceNodeTypes: []string{"callable_reference"},
		ThrowNodeTypes:     []string{"throw_expression"},
		LocalVarNodeTypes:  []string{"property_declaration"},
		ParamListNodeTypes: []string{"function_value_parameters"},
		SupertypeNodeTypes: []string{"delegation_specifiers"},
		ImportNodeTypes:    []string{"import"},
		PackageNodeTypes:   []string{"package_header"},
		DecoratorNodeTypes: []string{
			"annotation",
		},
		CommentNodeTypes: []string{"line_comment", "block_comment"},
		LambdaNodeTypes:  []string{"lambda_literal", "anonymous_function"},
	})
}
