// Package mocks provides centralized mock implementations for testing.
//
// Mocks expose a function field per interface method; when the field is nil
// the mock returns its default values. MockGenerator also records the
// requests it receives.
//
//	gen := &mocks.MockGenerator{
//	    GenerateSceneFn: func(ctx context.Context, req generation.SceneRequest) (string, error) {
//	        return "", generation.ErrTransientFailure
//	    },
//	}
package mocks
