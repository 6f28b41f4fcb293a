package inputval

import "testing"

func TestValidate(t *testing.T) {
	type input struct {
		Name  string `json:"name" validate:"required,max=10" label:"Class name"`
		Code  string `json:"code" validate:"omitempty,accesscode" label:"Access code"`
		Role  string `json:"role" validate:"omitempty,role" label:"Role"`
		Image string `json:"image_url" validate:"omitempty,httpurl" label:"Image"`
		User  string `json:"user_id" validate:"omitempty,objectid"`
	}

	tests := []struct {
		name      string
		in        input
		wantField string
		wantFirst string
	}{
		{"valid", input{Name: "4eso-B", Code: "123-456", Role: "admin-4eso-B", Image: "https://x.test/a.png"}, "", ""},
		{"missing name", input{}, "name", "Class name is required."},
		{"name too long", input{Name: "Robótica avanzada"}, "name", "Class name must be at most 10 characters."},
		{"bad code", input{Name: "x", Code: "123456"}, "code", "Access code must look like 123-456."},
		{"unknown role", input{Name: "x", Role: "owner"}, "role", "Role is not a known role."},
		{"relative url", input{Name: "x", Image: "/img.png"}, "image_url", "Image must be an http(s) URL."},
		{"bad id, no label", input{Name: "x", User: "42"}, "user_id", "user_id must be a valid id."},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res := Validate(tt.in)
			if tt.wantField == "" {
				if res.HasErrors() {
					t.Fatalf("unexpected errors: %s", res.All())
				}
				return
			}
			if !res.HasErrors() {
				t.Fatal("expected errors")
			}
			if res.Errors[0].Field != tt.wantField || res.First() != tt.wantFirst {
				t.Errorf("first = %s %q, want %s %q", res.Errors[0].Field, res.First(), tt.wantField, tt.wantFirst)
			}
		})
	}
}

func TestResult_All(t *testing.T) {
	r := &Result{Errors: []FieldError{{Message: "Error 1"}, {Message: "Error 2"}}}
	if got := r.All(); got != "Error 1; Error 2" {
		t.Errorf("All() = %q", got)
	}
	if (&Result{}).First() != "" {
		t.Error("First() on empty result should be empty")
	}
}

func TestIsValidHTTPURL(t *testing.T) {
	tests := []struct {
		url  string
		want bool
	}{
		{"https://example.com/a.png", true},
		{"http://localhost:8080", true},
		{"ftp://example.com", false},
		{"https://", false},
		{"", false},
		{"example.com", false},
	}
	for _, tt := range tests {
		if got := IsValidHTTPURL(tt.url); got != tt.want {
			t.Errorf("IsValidHTTPURL(%q) = %v, want %v", tt.url, got, tt.want)
		}
	}
}
