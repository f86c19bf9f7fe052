// Package mocks contains gomock doubles for auth collaborators.
package mocks

//go:generate go run go.uber.org/mock/mockgen@v0.6.0 -package=mocks -destination=profile_creator_mock.go qazna.org/authservice/internal/auth ProfileCreator
