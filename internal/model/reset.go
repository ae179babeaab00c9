package model

// CheckEmailRequest starts the password reset flow.
type CheckEmailRequest struct {
	Email string `json:"email"`
}

// ChangePasswordRequest completes the password reset flow. The reset token
// travels in the query string, not the body.
type ChangePasswordRequest struct {
	NewPassword          string `json:"newPassword"`
	PasswordConfirmation string `json:"passwordConfirmation"`
}
