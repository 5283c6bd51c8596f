package inputval

import "testing"

func TestIsValidEmail(t *testing.T) {
	tests := []struct {
		email string
		want  bool
	}{
		{"user@example.com", true},
		{"user.name@example.com", true},
		{"user+tag@example.com", true},
		{"user@localhost", true},

		{"", false},
		{"   ", false},
		{"user", false},
		{"user@", false},
		{"@example.com", false},
		{"User Name <user@example.com>", false},
		{"user @example.com", false},
	}

	for _, tt := range tests {
		t.Run(tt.email, func(t *testing.T) {
			got := IsValidEmail(tt.email)
			if got != tt.want {
				t.Errorf("IsValidEmail(%q) = %v, want %v", tt.email, got, tt.want)
			}
		})
	}
}

func TestIsValidGPS(t *testing.T) {
	tests := []struct {
		gps  string
		want bool
	}{
		{"-23.5505, -46.6333", true},
		{"40.7128,-74.0060", true},
		{"0, 0", true},
		{"90, 180", true},
		{"-90, -180", true},

		{"", false},
		{"91, 0", false},
		{"0, 181", false},
		{"abc, def", false},
		{"-23.5505", false},
		{"-23.5505; -46.6333", false},
	}

	for _, tt := range tests {
		t.Run(tt.gps, func(t *testing.T) {
			got := IsValidGPS(tt.gps)
			if got != tt.want {
				t.Errorf("IsValidGPS(%q) = %v, want %v", tt.gps, got, tt.want)
			}
		})
	}
}

func TestIsValidObjectID(t *testing.T) {
	tests := []struct {
		id   string
		want bool
	}{
		{"507f1f77bcf86cd799439011", true},
		{"  507f1f77bcf86cd799439011  ", true},
		{"", false},
		{"507f1f77bcf86cd79943901", false},
		{"507f1f77bcf86cd79943901g", false},
	}

	for _, tt := range tests {
		t.Run(tt.id, func(t *testing.T) {
			if got := IsValidObjectID(tt.id); got != tt.want {
				t.Errorf("IsValidObjectID(%q) = %v, want %v", tt.id, got, tt.want)
			}
		})
	}
}

func TestIsValidHTTPURL(t *testing.T) {
	tests := []struct {
		url  string
		want bool
	}{
		{"https://example.com/photo.jpg", true},
		{"http://example.com", true},
		{"ftp://example.com", false},
		{"example.com", false},
		{"", false},
	}

	for _, tt := range tests {
		t.Run(tt.url, func(t *testing.T) {
			if got := IsValidHTTPURL(tt.url); got != tt.want {
				t.Errorf("IsValidHTTPURL(%q) = %v, want %v", tt.url, got, tt.want)
			}
		})
	}
}

func TestValidate(t *testing.T) {
	type TestInput struct {
		Street string `validate:"required,max=10" label:"Street"`
		Email  string `validate:"required,email" label:"Email address"`
		Type   string `validate:"required,addresstype" label:"Type"`
		GPS    string `validate:"omitempty,gps" label:"GPS"`
	}

	tests := []struct {
		name       string
		input      TestInput
		wantErrors bool
		wantFirst  string
	}{
		{
			name:  "valid input",
			input: TestInput{Street: "main st", Email: "a@b.co", Type: "house"},
		},
		{
			name:       "missing street",
			input:      TestInput{Email: "a@b.co", Type: "house"},
			wantErrors: true,
			wantFirst:  "Street is required.",
		},
		{
			name:       "street too long",
			input:      TestInput{Street: "avenida paulista", Email: "a@b.co", Type: "house"},
			wantErrors: true,
			wantFirst:  "Street must be at most 10 characters.",
		},
		{
			name:       "invalid email",
			input:      TestInput{Street: "main st", Email: "nope", Type: "house"},
			wantErrors: true,
			wantFirst:  "A valid email address is required.",
		},
		{
			name:       "unknown type",
			input:      TestInput{Street: "main st", Email: "a@b.co", Type: "castle"},
			wantErrors: true,
			wantFirst:  "Type must be one of: house, department, apartment, store, hotel, restaurant.",
		},
		{
			name:       "bad gps",
			input:      TestInput{Street: "main st", Email: "a@b.co", Type: "house", GPS: "north"},
			wantErrors: true,
			wantFirst:  `GPS must be "latitude, longitude".`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := Validate(tt.input)

			if result.HasErrors() != tt.wantErrors {
				t.Errorf("Validate() HasErrors = %v, want %v (%s)", result.HasErrors(), tt.wantErrors, result.All())
			}
			if tt.wantErrors && result.First() != tt.wantFirst {
				t.Errorf("Validate() First() = %q, want %q", result.First(), tt.wantFirst)
			}
		})
	}
}

func TestResult_All(t *testing.T) {
	r := &Result{
		Errors: []FieldError{
			{Message: "Error 1"},
			{Message: "Error 2"},
		},
	}
	if got := r.All(); got != "Error 1; Error 2" {
		t.Errorf("All() = %q, want %q", got, "Error 1; Error 2")
	}
	if (&Result{}).All() != "" {
		t.Error("All() on empty result should be empty")
	}
}

func TestResult_FirstField(t *testing.T) {
	r := Validate(struct {
		City string `validate:"required" label:"City"`
	}{})
	if r.FirstField() != "City" {
		t.Errorf("FirstField() = %q, want %q", r.FirstField(), "City")
	}
}
