package frameq

import (
	"errors"
	"strings"
	"testing"
)

const (
	testVertSource = `@vertex fn vs_main() -> @builtin(position) vec4<f32> { return vec4<f32>(0.0); }`
	testFragSource = `@fragment fn fs_main() -> @location(0) vec4<f32> { return vec4<f32>(1.0); }`
)

func testShaderParams() ShaderParams {
	return ShaderParams{
		VertexSource:   testVertSource,
		FragmentSource: testFragSource,
		Uniforms:       []string{"u_mvp", "u_tint"},
		VertexStride:   20,
	}
}

func TestShaderParams_Validate(t *testing.T) {
	if err := testShaderParams().Validate(); err != nil {
		t.Fatalf("valid params rejected: %v", err)
	}
}

func TestShaderParams_ValidateRejects(t *testing.T) {
	tooMany := make([]string, MaxUniforms+1)
	for i := range tooMany {
		tooMany[i] = strings.Repeat("u", i+1)
	}

	tests := []struct {
		name   string
		mutate func(*ShaderParams)
	}{
		{"missing vertex source", func(p *ShaderParams) { p.VertexSource = "" }},
		{"missing fragment source", func(p *ShaderParams) { p.FragmentSource = "" }},
		{"too many uniforms", func(p *ShaderParams) { p.Uniforms = tooMany }},
		{"empty uniform name", func(p *ShaderParams) { p.Uniforms = []string{"a", ""} }},
		{"duplicate uniform name", func(p *ShaderParams) { p.Uniforms = []string{"a", "a"} }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := testShaderParams()
			tt.mutate(&p)
			if err := p.Validate(); !errors.Is(err, ErrValidation) {
				t.Errorf("err = %v, want ErrValidation", err)
			}
		})
	}
}

func TestShaderParams_HasUniform(t *testing.T) {
	p := testShaderParams()
	if !p.HasUniform("u_mvp") {
		t.Error("u_mvp not found")
	}
	if p.HasUniform("u_missing") {
		t.Error("u_missing reported present")
	}
}
