// Copyright 2025 Oliver Andrich
// Licensed under the EUPL-1.2

// Package models holds the database row structs and the closed enums
// shared by the step-up engine.
package models

// Action identifies the sensitive operation a step-up challenge guards.
// The set is closed; widening it is a policy change, not an engine change.
type Action string

const (
	ActionAdminAccess    Action = "admin_access"
	ActionSignIn         Action = "sign_in"
	ActionEmailChange    Action = "account_email_change"
	ActionPasswordChange Action = "account_password_change"
	ActionAccountDelete  Action = "account_delete"
)

// Valid reports whether a is one of the known actions.
func (a Action) Valid() bool {
	switch a {
	case ActionAdminAccess, ActionSignIn, ActionEmailChange, ActionPasswordChange, ActionAccountDelete:
		return true
	}
	return false
}

// Method identifies how a step-up challenge was (or may be) verified.
type Method string

const (
	MethodTOTP         Method = "totp"
	MethodRecoveryCode Method = "recovery_code"
	MethodPassword     Method = "password"
)

// Valid reports whether m is one of the known verification methods.
func (m Method) Valid() bool {
	switch m {
	case MethodTOTP, MethodRecoveryCode, MethodPassword:
		return true
	}
	return false
}
