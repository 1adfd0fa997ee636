// Package dto provides data transfer objects for HTTP request and response handling.
package dto

import (
	validation "github.com/jellydator/validation"

	customValidation "github.com/allisson/piivault/internal/validation"
)

// RegisterUserRequest contains the parameters for registering a new user.
type RegisterUserRequest struct {
	Name     string `json:"name"`
	Email    string `json:"email"`
	Password string `json:"password"`
}

// Validate checks structural constraints on the request. Business rules such
// as password strength are enforced by the use case layer.
func (r RegisterUserRequest) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.Name,
			validation.Required.Error("name is required"),
			customValidation.NotBlank,
		),
		validation.Field(&r.Email,
			validation.Required.Error("email is required"),
			customValidation.Email,
		),
		validation.Field(&r.Password,
			validation.Required.Error("password is required"),
		),
	)
}

// UpdateUserEmailRequest contains the parameters for replacing a user's email.
type UpdateUserEmailRequest struct {
	Email string `json:"email"`
}

// Validate checks structural constraints on the request.
func (r UpdateUserEmailRequest) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.Email,
			validation.Required.Error("email is required"),
			customValidation.Email,
		),
	)
}
